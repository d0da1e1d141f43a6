package execution

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ResultStatus string

type StepType string

type PlanStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

const (
	StepTypeNativeTransfer StepType = "native_transfer"
	StepTypeTokenTransfer  StepType = "token_transfer"
	StepTypeApproval       StepType = "approval"
	StepTypeSwap           StepType = "swap"
)

const (
	PlanStatusRunning   PlanStatus = "running"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusPartial   PlanStatus = "partial"
	PlanStatusFailed    PlanStatus = "failed"
)

// ActionResult is the outcome of one queued action. Exactly one is produced
// per input action, in input order.
type ActionResult struct {
	Index        int          `json:"index"`
	Kind         ActionKind   `json:"kind"`
	Status       ResultStatus `json:"status"`
	Message      string       `json:"message"`
	TxHash       string       `json:"transaction_hash,omitempty"`
	ExplorerLink string       `json:"explorer_link,omitempty"`
}

func (r ActionResult) OK() bool { return r.Status == ResultStatusSuccess }

// UnsignedTx is a transaction request before nonce assignment and signing.
// It is built fresh for every attempt.
type UnsignedTx struct {
	Type        StepType
	Description string
	From        common.Address
	To          common.Address
	Value       *big.Int
	Data        []byte
	Gas         uint64
	GasPrice    *big.Int
	Nonce       *uint64
}

type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	Success     bool        `json:"success"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
}

// PlanEntry is one action of a journaled plan.
type PlanEntry struct {
	Index       int           `json:"index"`
	Kind        ActionKind    `json:"kind"`
	Description string        `json:"description"`
	Result      *ActionResult `json:"result,omitempty"`
}

// PlanRecord is the journal row for one execution of the action queue.
type PlanRecord struct {
	PlanID    string      `json:"plan_id"`
	Network   string      `json:"network"`
	Account   string      `json:"account"`
	Status    PlanStatus  `json:"status"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
	Entries   []PlanEntry `json:"entries"`
}

func NewPlanRecord(planID, network, account string, entries []PlanEntry) PlanRecord {
	now := time.Now().UTC().Format(time.RFC3339)
	return PlanRecord{
		PlanID:    planID,
		Network:   network,
		Account:   account,
		Status:    PlanStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Entries:   entries,
	}
}

func (p *PlanRecord) Touch() {
	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Finish records results and derives the final plan status.
func (p *PlanRecord) Finish(results []ActionResult) {
	ok := 0
	for i := range results {
		result := results[i]
		if i < len(p.Entries) {
			p.Entries[i].Result = &result
		}
		if result.OK() {
			ok++
		}
	}
	switch {
	case ok == len(results):
		p.Status = PlanStatusCompleted
	case ok == 0:
		p.Status = PlanStatusFailed
	default:
		p.Status = PlanStatusPartial
	}
	p.Touch()
}
