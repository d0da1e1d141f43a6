package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/logger"
)

// Journal persists plan records. *Store implements it.
type Journal interface {
	Save(plan PlanRecord) error
}

// ActionExecutor runs a queue of actions strictly in order against a
// session. Each action is attempted at most once: the queue is cleared after
// every run, whatever the outcome.
type ActionExecutor struct {
	session *Session
	tx      TransactionExecutor
	journal Journal

	mu         sync.Mutex
	queue      []Action
	lastPlanID string
}

func NewActionExecutor(session *Session, tx TransactionExecutor, journal Journal) *ActionExecutor {
	return &ActionExecutor{session: session, tx: tx, journal: journal}
}

// Load replaces the pending queue.
func (e *ActionExecutor) Load(actions []Action) {
	e.mu.Lock()
	e.queue = append([]Action(nil), actions...)
	e.mu.Unlock()
}

func (e *ActionExecutor) Pending() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Action(nil), e.queue...)
}

func (e *ActionExecutor) LastPlanID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPlanID
}

// Run loads actions and executes them.
func (e *ActionExecutor) Run(ctx context.Context, actions []Action) ([]ActionResult, error) {
	e.Load(actions)
	return e.Execute(ctx)
}

// Execute drains the queue and returns one result per queued action, in
// order. The only error is CodeBusy, when another run holds the session;
// the queue is left intact in that case.
func (e *ActionExecutor) Execute(ctx context.Context) ([]ActionResult, error) {
	b, err := e.session.begin()
	if err != nil {
		return nil, err
	}
	defer e.session.end()

	e.mu.Lock()
	actions := e.queue
	e.queue = nil
	e.mu.Unlock()

	plan := e.startPlan(b, actions)
	results := make([]ActionResult, 0, len(actions))
	for i, action := range actions {
		result := e.executeOne(ctx, b, action)
		result.Index = i
		result.Kind = action.Kind()
		results = append(results, result)
		b.metrics().Result(b.network(), string(result.Kind), string(result.Status))
		logger.Info("action %d (%s) on %s: %s", i, result.Kind, b.network(), result.Status)
	}
	e.finishPlan(plan, results)
	return results, nil
}

func (e *ActionExecutor) executeOne(ctx context.Context, b *binding, action Action) ActionResult {
	switch a := action.(type) {
	case GetTokenBalance:
		return b.balance(ctx, a)
	case SendNative:
		return e.sendNative(ctx, b, a)
	case SendERC20:
		return e.sendToken(ctx, b, a)
	case SwapTokens:
		return e.swap(ctx, b, a)
	case InvalidAction:
		return errorResult(a.message())
	default:
		return errorResult(fmt.Sprintf("Unknown action: %v", action))
	}
}

func (e *ActionExecutor) sendNative(ctx context.Context, b *binding, a SendNative) ActionResult {
	desc := Describe(a, b.registry.NativeTicker())
	if err := requireSigner(b); err != nil {
		return failure(desc, err, nil)
	}
	state, err := b.chainState(ctx)
	if err != nil {
		return failure(desc, err, nil)
	}
	tx, err := b.builder().NativeTransfer(a, state)
	if err != nil {
		return failure(desc, err, nil)
	}
	receipt, err := e.tx.submit(ctx, b, &tx)
	if err != nil {
		return failure(desc, err, b.linkFor(receipt))
	}
	return success(fmt.Sprintf("Sent %s %s to %s", a.Amount.String(), b.registry.NativeTicker(), a.To), b.linkFor(receipt))
}

func (e *ActionExecutor) sendToken(ctx context.Context, b *binding, a SendERC20) ActionResult {
	desc := Describe(a, b.registry.NativeTicker())
	if err := requireSigner(b); err != nil {
		return failure(desc, err, nil)
	}
	token, err := b.registry.Lookup(a.Ticker)
	if err != nil {
		return failure(desc, err, nil)
	}
	if token.Native {
		return failure(desc, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is the native token; use send_native_token", token.Ticker)), nil)
	}
	decimals, err := b.tokenDecimals(ctx, token.Address)
	if err != nil {
		return failure(desc, err, nil)
	}
	state, err := b.chainState(ctx)
	if err != nil {
		return failure(desc, err, nil)
	}
	tx, err := b.builder().TokenTransfer(a, decimals, state)
	if err != nil {
		return failure(desc, err, nil)
	}
	receipt, err := e.tx.submit(ctx, b, &tx)
	if err != nil {
		return failure(desc, err, b.linkFor(receipt))
	}
	return success(fmt.Sprintf("Sent %s %s to %s", a.Amount.String(), token.Ticker, a.To), b.linkFor(receipt))
}

// swap submits the steps Builder.SwapSteps describes, but builds the router
// call only once the approval receipt is confirmed.
func (e *ActionExecutor) swap(ctx context.Context, b *binding, a SwapTokens) ActionResult {
	desc := Describe(a, b.registry.NativeTicker())
	if err := requireSigner(b); err != nil {
		return failure(desc, err, nil)
	}
	inDecimals, err := b.swapInputDecimals(ctx, a)
	if err != nil {
		return failure(desc, err, nil)
	}
	builder := b.builder()
	route, err := builder.Route(a, inDecimals)
	if err != nil {
		return failure(desc, err, nil)
	}
	if route.NeedsApproval {
		state, err := b.chainState(ctx)
		if err != nil {
			return failure(desc, err, nil)
		}
		approve, err := builder.Approve(route.TokenIn, route.AmountIn, state)
		if err != nil {
			return failure(desc, err, nil)
		}
		receipt, err := e.tx.submit(ctx, b, &approve)
		if err != nil {
			return failure(fmt.Sprintf("Approve %s for %s", route.TokenIn.Ticker, desc), err, b.linkFor(receipt))
		}
	}
	state, err := b.chainState(ctx)
	if err != nil {
		return failure(desc, err, nil)
	}
	tx, err := builder.SwapTx(route, state)
	if err != nil {
		return failure(desc, err, nil)
	}
	receipt, err := e.tx.submit(ctx, b, &tx)
	if err != nil {
		return failure(desc, err, b.linkFor(receipt))
	}
	return success(fmt.Sprintf("Swapped %s %s for %s", a.AmountIn.String(), route.TokenIn.Ticker, route.TokenOut.Ticker), b.linkFor(receipt))
}

func (e *ActionExecutor) startPlan(b *binding, actions []Action) *PlanRecord {
	account := ""
	if b.opts.Signer != nil {
		account = b.opts.Signer.Address().Hex()
	}
	entries := make([]PlanEntry, 0, len(actions))
	for i, action := range actions {
		entries = append(entries, PlanEntry{Index: i, Kind: action.Kind(), Description: Describe(action, b.registry.NativeTicker())})
	}
	plan := NewPlanRecord(NewPlanID(), b.network(), account, entries)
	e.mu.Lock()
	e.lastPlanID = plan.PlanID
	e.mu.Unlock()
	e.save(plan)
	return &plan
}

func (e *ActionExecutor) finishPlan(plan *PlanRecord, results []ActionResult) {
	plan.Finish(results)
	e.save(*plan)
}

func (e *ActionExecutor) save(plan PlanRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Save(plan); err != nil {
		logger.Warn("journal plan %s: %v", plan.PlanID, err)
	}
}

type txLink struct {
	hash string
	url  string
}

func (b *binding) linkFor(receipt Receipt) *txLink {
	if receipt.TxHash == (common.Hash{}) {
		return nil
	}
	hash := receipt.TxHash.Hex()
	return &txLink{hash: hash, url: b.config.ExplorerLink(hash)}
}

func requireSigner(b *binding) error {
	if b.opts.Signer == nil || b.nonces == nil {
		return clierr.New(clierr.CodeNotInitialized, "no signing account configured")
	}
	return nil
}

func success(message string, link *txLink) ActionResult {
	result := ActionResult{Status: ResultStatusSuccess, Message: message}
	if link != nil {
		result.TxHash = link.hash
		result.ExplorerLink = link.url
	}
	return result
}

func failure(desc string, err error, link *txLink) ActionResult {
	result := errorResult(fmt.Sprintf("%s failed: %v", desc, err))
	if link != nil {
		result.TxHash = link.hash
		result.ExplorerLink = link.url
	}
	return result
}

func errorResult(message string) ActionResult {
	return ActionResult{Status: ResultStatusError, Message: message}
}
