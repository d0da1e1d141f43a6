package app

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
	execsigner "github.com/novabot/nova/internal/execution/signer"
	"github.com/novabot/nova/internal/logger"
	"github.com/novabot/nova/internal/model"
	"github.com/novabot/nova/internal/policy"
	"github.com/novabot/nova/internal/registry"
)

// ensureSession binds the configured network once per invocation. Commands
// that submit transactions require a signer; read commands work without one.
func (s *runtimeState) ensureSession(ctx context.Context) (*execution.Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	cfg, err := registry.LoadChainConfig(s.settings.ChainsDir, s.settings.Network)
	if err != nil {
		return nil, err
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, cfg)
	if err != nil {
		return nil, err
	}

	opts := execution.SessionOptions{
		Dialer:  s.runner.dial,
		Policy:  s.executionPolicy(),
		Metrics: s.metrics,
	}
	if s.cache != nil {
		opts.Cache = s.cache
	}
	txSigner, err := s.resolveSigner()
	if err != nil {
		if s.signerRequired() {
			return nil, err
		}
		logger.Debug("continuing without signer: %v", err)
	} else {
		opts.Signer = txSigner
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()
	session, err := execution.OpenSession(dialCtx, cfg, rpcURL, opts)
	if err != nil {
		return nil, err
	}
	s.session = session
	s.lastNetwork = session.Network()
	return session, nil
}

// signerRequired is false for read commands and for dry runs.
func (s *runtimeState) signerRequired() bool {
	return !s.dryRun && !policy.ReadOnly(s.lastCommand)
}

func (s *runtimeState) resolveSigner() (execsigner.Signer, error) {
	local, err := execsigner.NewLocalSignerFromInputs(s.keyFlags.source, s.keyFlags.privateKey)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signing key", err)
	}
	return local, nil
}

func (s *runtimeState) executionPolicy() execution.Policy {
	p := execution.DefaultPolicy()
	if s.settings.GasPriceMultiplier > 0 {
		p.GasPriceMultiplier = s.settings.GasPriceMultiplier
	}
	if s.settings.AmountOutMin != nil {
		p.AmountOutMin = s.settings.AmountOutMin
	}
	if s.settings.DeadlineWindow > 0 {
		p.DeadlineWindow = s.settings.DeadlineWindow
	}
	return p
}

func (s *runtimeState) ensureStore() (*execution.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open plan store", err)
	}
	s.store = store
	return store, nil
}

func (s *runtimeState) newExecutor(session *execution.Session) (*execution.ActionExecutor, error) {
	store, err := s.ensureStore()
	if err != nil {
		return nil, err
	}
	tx := execution.DefaultTransactionExecutor()
	if s.settings.PollInterval > 0 {
		tx.PollInterval = s.settings.PollInterval
	}
	if s.settings.ReceiptTimeout > 0 {
		tx.ReceiptTimeout = s.settings.ReceiptTimeout
	}
	return execution.NewActionExecutor(session, tx, store), nil
}

// runActions executes actions as one plan and reports per-action outcomes.
func (s *runtimeState) runActions(ctx context.Context, session *execution.Session, executor *execution.ActionExecutor, actions []execution.Action) (model.ExecutionReport, error) {
	results, err := executor.Run(ctx, actions)
	if err != nil {
		return model.ExecutionReport{}, err
	}
	return model.NewExecutionReport(executor.LastPlanID(), session.Network(), accountString(session), results), nil
}

// executeNow runs actions and emits the report for single-shot commands.
func (s *runtimeState) executeNow(cmd commandRunner, actions []execution.Action) error {
	ctx := cmd.Context()
	session, err := s.ensureSession(ctx)
	if err != nil {
		return err
	}
	executor, err := s.newExecutor(session)
	if err != nil {
		return err
	}
	report, err := s.runActions(ctx, session, executor, actions)
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), report, reportWarnings(report), report.Partial())
}

// previewNow describes actions together with the unsigned transactions each
// would submit. Nothing is signed or broadcast.
func (s *runtimeState) previewNow(cmd commandRunner, actions []execution.Action) error {
	ctx := cmd.Context()
	session, err := s.ensureSession(ctx)
	if err != nil {
		return err
	}
	preview := model.NewPlanPreview(session.Network(), session.Registry().NativeTicker(), actions)
	var warnings []string
	for i, action := range actions {
		txs, err := session.Steps(ctx, action)
		if err != nil {
			preview.Actions[i].Error = err.Error()
			warnings = append(warnings, fmt.Sprintf("action %d: %v", i, err))
			continue
		}
		preview.Actions[i].Steps = model.NewPlannedSteps(txs)
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), preview, warnings, false)
}

type commandRunner interface {
	Context() context.Context
	CommandPath() string
}

func accountString(session *execution.Session) string {
	addr, err := session.Address()
	if err != nil {
		return ""
	}
	return addr.Hex()
}

func reportWarnings(report model.ExecutionReport) []string {
	if report.Failed == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%d of %d actions failed", report.Failed, len(report.Results))}
}

func networkInfo(cfg registry.ChainConfig, active bool) model.NetworkInfo {
	info := model.NetworkInfo{
		Name:            cfg.Network,
		RPCURL:          cfg.RPCURL,
		ExplorerURL:     cfg.ExplorerURL,
		ExchangeAddress: cfg.ExchangeAddress,
		NativeToken:     cfg.NativeToken.Ticker,
		Active:          active,
	}
	info.Tokens = append(info.Tokens, model.TokenInfo{Ticker: cfg.NativeToken.Ticker, Address: cfg.NativeToken.Address, Native: true})
	for _, token := range cfg.Tokens {
		info.Tokens = append(info.Tokens, model.TokenInfo{Ticker: token.Ticker, Address: token.Address})
	}
	return info
}

func requireValue(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("--%s is required", name))
	}
	return nil
}
