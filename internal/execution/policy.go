package execution

import (
	"math/big"
	"time"
)

// Policy holds the pricing and routing knobs applied by the transaction
// builder. The defaults keep the historical behaviour: doubled gas price,
// no minimum output and a twenty minute swap deadline.
type Policy struct {
	GasPriceMultiplier int64
	AmountOutMin       *big.Int
	DeadlineWindow     time.Duration

	NativeTransferGas uint64
	TokenTransferGas  uint64
	ApprovalGas       uint64
	SwapGas           uint64
}

const (
	DefaultGasPriceMultiplier = 2
	DefaultDeadlineWindow     = 1200 * time.Second

	DefaultNativeTransferGas uint64 = 21_000
	DefaultTokenTransferGas  uint64 = 100_000
	DefaultApprovalGas       uint64 = 100_000
	DefaultSwapGas           uint64 = 300_000
)

func DefaultPolicy() Policy {
	return Policy{
		GasPriceMultiplier: DefaultGasPriceMultiplier,
		AmountOutMin:       big.NewInt(0),
		DeadlineWindow:     DefaultDeadlineWindow,
		NativeTransferGas:  DefaultNativeTransferGas,
		TokenTransferGas:   DefaultTokenTransferGas,
		ApprovalGas:        DefaultApprovalGas,
		SwapGas:            DefaultSwapGas,
	}
}

// withDefaults fills zero fields so a partially configured policy stays usable.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.GasPriceMultiplier <= 0 {
		p.GasPriceMultiplier = def.GasPriceMultiplier
	}
	if p.AmountOutMin == nil || p.AmountOutMin.Sign() < 0 {
		p.AmountOutMin = def.AmountOutMin
	}
	if p.DeadlineWindow <= 0 {
		p.DeadlineWindow = def.DeadlineWindow
	}
	if p.NativeTransferGas == 0 {
		p.NativeTransferGas = def.NativeTransferGas
	}
	if p.TokenTransferGas == 0 {
		p.TokenTransferGas = def.TokenTransferGas
	}
	if p.ApprovalGas == 0 {
		p.ApprovalGas = def.ApprovalGas
	}
	if p.SwapGas == 0 {
		p.SwapGas = def.SwapGas
	}
	return p
}

func (p Policy) gasPrice(suggested *big.Int) *big.Int {
	if suggested == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(suggested, big.NewInt(p.GasPriceMultiplier))
}

func (p Policy) deadline(blockTimestamp uint64) *big.Int {
	return new(big.Int).SetUint64(blockTimestamp + uint64(p.DeadlineWindow/time.Second))
}
