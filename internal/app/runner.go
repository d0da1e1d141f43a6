package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/novabot/nova/internal/assistant"
	"github.com/novabot/nova/internal/cache"
	"github.com/novabot/nova/internal/config"
	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/logger"
	"github.com/novabot/nova/internal/metrics"
	"github.com/novabot/nova/internal/model"
	"github.com/novabot/nova/internal/out"
	"github.com/novabot/nova/internal/policy"
	"github.com/novabot/nova/internal/schema"
	"github.com/novabot/nova/internal/version"
)

type Runner struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	dial   execution.Dialer
}

func NewRunner() *Runner {
	return NewRunnerWithIO(os.Stdin, os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return NewRunnerWithIO(os.Stdin, stdout, stderr)
}

func NewRunnerWithIO(stdin io.Reader, stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		dial:   execution.DialEthclient,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	keyFlags    keyFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	lastNetwork string
	lastPartial bool
	dryRun      bool

	metrics *metrics.Recorder
	cache   *cache.TokenCache
	store   *execution.Store
	session *execution.Session
}

type keyFlags struct {
	source     string
	privateKey string
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	state := &runtimeState{runner: r, metrics: metrics.NewRecorder()}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	state.close()
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Natural-language action queue for EVM networks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			if s.keyFlags.source == "" {
				s.keyFlags.source = settings.KeySource
			}

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			if err := logger.Init(logger.Options{Level: settings.LogLevel, File: settings.LogFile, Writer: s.runner.stderr}); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure logging", err)
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				tokens, err := cache.Open(settings.CachePath, settings.CacheLockPath, settings.CacheTTL)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = tokens
				if err := tokens.Prune(); err != nil {
					logger.Warn("prune token cache: %v", err)
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "RPC dial and assistant request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per assistant request")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable the token decimals cache")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&s.flags.Network, "network", "n", "", "Network name (bsc, bsctest, or a file in --chains-dir)")
	cmd.PersistentFlags().StringVar(&s.flags.ChainsDir, "chains-dir", "", "Directory holding chain config documents")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC URL override for the selected network")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error|off)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&s.keyFlags.source, "key-source", "", "Key source (auto|env|file|keystore)")
	cmd.PersistentFlags().StringVar(&s.keyFlags.privateKey, "private-key", "", "Private key hex override (prefer NOVA_PRIVATE_KEY)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newNetworksCommand())
	cmd.AddCommand(s.newAccountCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newSendCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newPlanCommand())
	cmd.AddCommand(s.newHistoryCommand())
	cmd.AddCommand(s.newChatCommand())
	cmd.AddCommand(s.newShellCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, partial bool) error {
	s.lastPartial = partial
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.lastNetwork,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Network:   s.lastNetwork,
			Partial:   s.lastPartial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// close releases the session and stores and flushes metrics.
func (s *runtimeState) close() {
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
	if err := s.metrics.WriteTextfile(s.settings.MetricsTextfile); err != nil {
		logger.Warn("%v", err)
	}
	logger.Close()
}

func (s *runtimeState) newAssistant() *assistant.Client {
	return assistant.New(assistant.Config{
		Endpoint: s.settings.AssistantEndpoint,
		Model:    s.settings.AssistantModel,
		Timeout:  s.settings.AssistantTimeout,
		Retries:  s.settings.Retries,
	})
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// shouldOpenCache limits the decimals cache to commands that read tokens.
func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema", "networks", "networks list", "networks show", "account", "history", "history list", "history get", "plan describe":
		return false
	default:
		return true
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}
