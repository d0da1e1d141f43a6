package execution

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/registry"
	"github.com/novabot/nova/internal/units"
)

var (
	erc20ABI  = mustABI(registry.ERC20ABI)
	routerABI = mustABI(registry.UniswapV2RouterABI)
)

const (
	methodSwapExactETHForTokens    = "swapExactETHForTokens"
	methodSwapExactTokensForETH    = "swapExactTokensForETH"
	methodSwapExactTokensForTokens = "swapExactTokensForTokens"
)

// ChainState is the network snapshot a transaction is priced against.
type ChainState struct {
	SuggestedGasPrice *big.Int
	BlockTimestamp    uint64
}

// Builder turns actions into unsigned transactions. It performs no network
// I/O; token decimals and chain state are supplied by the caller.
type Builder struct {
	Registry *registry.Registry
	Exchange common.Address
	Account  common.Address
	Policy   Policy
}

// SwapRoute is the router call selected for a swap.
type SwapRoute struct {
	Method        string
	TokenIn       registry.Entry
	TokenOut      registry.Entry
	Path          []common.Address
	AmountIn      *big.Int
	NeedsApproval bool
}

func (b Builder) NativeTransfer(action SendNative, state ChainState) (UnsignedTx, error) {
	to, err := parseRecipient(action.To)
	if err != nil {
		return UnsignedTx{}, err
	}
	value, err := units.PositiveBaseUnits(action.Amount, units.NativeDecimals)
	if err != nil {
		return UnsignedTx{}, err
	}
	policy := b.Policy.withDefaults()
	return UnsignedTx{
		Type:        StepTypeNativeTransfer,
		Description: fmt.Sprintf("Send %s %s to %s", action.Amount.String(), b.Registry.NativeTicker(), to.Hex()),
		From:        b.Account,
		To:          to,
		Value:       value,
		Gas:         policy.NativeTransferGas,
		GasPrice:    policy.gasPrice(state.SuggestedGasPrice),
	}, nil
}

// TokenTransfer builds an ERC20 transfer; decimals must come from the
// token's on-chain decimals().
func (b Builder) TokenTransfer(action SendERC20, decimals uint8, state ChainState) (UnsignedTx, error) {
	token, err := b.Registry.Lookup(action.Ticker)
	if err != nil {
		return UnsignedTx{}, err
	}
	to, err := parseRecipient(action.To)
	if err != nil {
		return UnsignedTx{}, err
	}
	amount, err := units.PositiveBaseUnits(action.Amount, decimals)
	if err != nil {
		return UnsignedTx{}, err
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return UnsignedTx{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
	}
	policy := b.Policy.withDefaults()
	return UnsignedTx{
		Type:        StepTypeTokenTransfer,
		Description: fmt.Sprintf("Send %s %s to %s", action.Amount.String(), token.Ticker, to.Hex()),
		From:        b.Account,
		To:          token.Address,
		Value:       big.NewInt(0),
		Data:        data,
		Gas:         policy.TokenTransferGas,
		GasPrice:    policy.gasPrice(state.SuggestedGasPrice),
	}, nil
}

// Approve grants the exchange an allowance of exactly amount base units.
func (b Builder) Approve(token registry.Entry, amount *big.Int, state ChainState) (UnsignedTx, error) {
	if amount == nil || amount.Sign() <= 0 {
		return UnsignedTx{}, clierr.New(clierr.CodeUsage, "approval amount must be positive")
	}
	data, err := erc20ABI.Pack("approve", b.Exchange, amount)
	if err != nil {
		return UnsignedTx{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	policy := b.Policy.withDefaults()
	return UnsignedTx{
		Type:        StepTypeApproval,
		Description: fmt.Sprintf("Approve %s for exchange", token.Ticker),
		From:        b.Account,
		To:          token.Address,
		Value:       big.NewInt(0),
		Data:        data,
		Gas:         policy.ApprovalGas,
		GasPrice:    policy.gasPrice(state.SuggestedGasPrice),
	}, nil
}

// Route selects the router method for a swap. inDecimals is ignored when
// the input is the native token.
func (b Builder) Route(action SwapTokens, inDecimals uint8) (SwapRoute, error) {
	in, err := b.Registry.Lookup(action.TokenIn)
	if err != nil {
		return SwapRoute{}, err
	}
	out, err := b.Registry.Lookup(action.TokenOut)
	if err != nil {
		return SwapRoute{}, err
	}
	if in.Address == out.Address {
		return SwapRoute{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("cannot swap %s for itself", in.Ticker))
	}
	route := SwapRoute{TokenIn: in, TokenOut: out, Path: []common.Address{in.Address, out.Address}}
	switch {
	case in.Native:
		route.Method = methodSwapExactETHForTokens
		route.AmountIn, err = units.PositiveBaseUnits(action.AmountIn, units.NativeDecimals)
	case out.Native:
		route.Method = methodSwapExactTokensForETH
		route.NeedsApproval = true
		route.AmountIn, err = units.PositiveBaseUnits(action.AmountIn, inDecimals)
	default:
		route.Method = methodSwapExactTokensForTokens
		route.NeedsApproval = true
		route.AmountIn, err = units.PositiveBaseUnits(action.AmountIn, inDecimals)
	}
	if err != nil {
		return SwapRoute{}, err
	}
	return route, nil
}

// SwapTx builds the router call for route. The deadline is measured from
// the latest block timestamp, not local time.
func (b Builder) SwapTx(route SwapRoute, state ChainState) (UnsignedTx, error) {
	policy := b.Policy.withDefaults()
	deadline := policy.deadline(state.BlockTimestamp)
	var (
		data  []byte
		value = big.NewInt(0)
		err   error
	)
	switch route.Method {
	case methodSwapExactETHForTokens:
		data, err = routerABI.Pack(route.Method, policy.AmountOutMin, route.Path, b.Account, deadline)
		value = new(big.Int).Set(route.AmountIn)
	case methodSwapExactTokensForETH, methodSwapExactTokensForTokens:
		data, err = routerABI.Pack(route.Method, route.AmountIn, policy.AmountOutMin, route.Path, b.Account, deadline)
	default:
		return UnsignedTx{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("unsupported swap method %q", route.Method))
	}
	if err != nil {
		return UnsignedTx{}, clierr.Wrap(clierr.CodeInternal, "pack swap calldata", err)
	}
	return UnsignedTx{
		Type:        StepTypeSwap,
		Description: fmt.Sprintf("Swap %s for %s", route.TokenIn.Ticker, route.TokenOut.Ticker),
		From:        b.Account,
		To:          b.Exchange,
		Value:       value,
		Data:        data,
		Gas:         policy.SwapGas,
		GasPrice:    policy.gasPrice(state.SuggestedGasPrice),
	}, nil
}

// SwapSteps returns every transaction a swap needs, in submission order:
// [swap] for native input, [approve, swap] otherwise.
func (b Builder) SwapSteps(action SwapTokens, inDecimals uint8, state ChainState) ([]UnsignedTx, error) {
	route, err := b.Route(action, inDecimals)
	if err != nil {
		return nil, err
	}
	steps := make([]UnsignedTx, 0, 2)
	if route.NeedsApproval {
		approve, err := b.Approve(route.TokenIn, route.AmountIn, state)
		if err != nil {
			return nil, err
		}
		steps = append(steps, approve)
	}
	swap, err := b.SwapTx(route, state)
	if err != nil {
		return nil, err
	}
	return append(steps, swap), nil
}

func parseRecipient(raw string) (common.Address, error) {
	value := strings.TrimSpace(raw)
	if !common.IsHexAddress(value) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("recipient %q must be a valid EVM address", raw))
	}
	return common.HexToAddress(value), nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
