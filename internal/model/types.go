package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/units"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Network   string    `json:"network,omitempty"`
	Partial   bool      `json:"partial"`
}

type TokenInfo struct {
	Ticker  string `json:"ticker"`
	Address string `json:"address"`
	Native  bool   `json:"native"`
}

type NetworkInfo struct {
	Name            string      `json:"name"`
	RPCURL          string      `json:"rpc_url,omitempty"`
	ExplorerURL     string      `json:"explorer_url,omitempty"`
	ExchangeAddress string      `json:"exchange_address,omitempty"`
	NativeToken     string      `json:"native_token,omitempty"`
	Tokens          []TokenInfo `json:"tokens,omitempty"`
	Active          bool        `json:"active"`
}

type AccountInfo struct {
	Address     string `json:"address"`
	Network     string `json:"network"`
	ChainID     string `json:"chain_id"`
	NativeToken string `json:"native_token"`
}

type PlannedAction struct {
	Index       int           `json:"index"`
	Kind        string        `json:"kind"`
	Description string        `json:"description"`
	Valid       bool          `json:"valid"`
	Steps       []PlannedStep `json:"steps,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// PlannedStep is one unsigned transaction an action would submit.
type PlannedStep struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Gas         uint64 `json:"gas"`
	GasPrice    string `json:"gas_price"`
	Data        string `json:"data,omitempty"`
}

type PlanPreview struct {
	Network        string          `json:"network"`
	NativeToken    string          `json:"native_token"`
	Actions        []PlannedAction `json:"actions"`
	AutoExecutable bool            `json:"auto_executable"`
}

type ExecutionReport struct {
	PlanID    string                   `json:"plan_id"`
	Network   string                   `json:"network"`
	Account   string                   `json:"account,omitempty"`
	Results   []execution.ActionResult `json:"results"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
}

// Partial reports whether any action failed.
func (r ExecutionReport) Partial() bool {
	return r.Failed > 0
}

type ChatReply struct {
	Prompt   string           `json:"prompt"`
	Model    string           `json:"model"`
	Raw      string           `json:"raw_response"`
	Plan     PlanPreview      `json:"plan"`
	Executed bool             `json:"executed"`
	Report   *ExecutionReport `json:"report,omitempty"`
}

// NewPlanPreview describes actions against the given native ticker.
func NewPlanPreview(network, nativeTicker string, actions []execution.Action) PlanPreview {
	preview := PlanPreview{
		Network:        network,
		NativeToken:    nativeTicker,
		Actions:        make([]PlannedAction, 0, len(actions)),
		AutoExecutable: execution.AutoExecutable(actions),
	}
	for i, action := range actions {
		_, invalid := action.(execution.InvalidAction)
		preview.Actions = append(preview.Actions, PlannedAction{
			Index:       i,
			Kind:        string(action.Kind()),
			Description: execution.Describe(action, nativeTicker),
			Valid:       !invalid,
		})
	}
	return preview
}

// NewPlannedSteps renders unsigned transactions; values are in native units.
func NewPlannedSteps(txs []execution.UnsignedTx) []PlannedStep {
	steps := make([]PlannedStep, 0, len(txs))
	for _, tx := range txs {
		step := PlannedStep{
			Type:        string(tx.Type),
			Description: tx.Description,
			To:          tx.To.Hex(),
			Value:       units.FormatUnits(tx.Value, units.NativeDecimals),
			Gas:         tx.Gas,
			GasPrice:    "0",
		}
		if tx.GasPrice != nil {
			step.GasPrice = tx.GasPrice.String()
		}
		if len(tx.Data) > 0 {
			step.Data = hexutil.Encode(tx.Data)
		}
		steps = append(steps, step)
	}
	return steps
}

// NewExecutionReport tallies results.
func NewExecutionReport(planID, network, account string, results []execution.ActionResult) ExecutionReport {
	report := ExecutionReport{PlanID: planID, Network: network, Account: account, Results: results}
	for _, result := range results {
		if result.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	return report
}
