package execution

import (
	"context"
	"fmt"

	clierr "github.com/novabot/nova/internal/errors"
)

// Steps builds the transactions action would submit on the current network,
// in submission order, without assigning nonces or signing. Balance reads
// and invalid actions need none. The sender is the zero address when the
// session has no signer.
func (s *Session) Steps(ctx context.Context, action Action) ([]UnsignedTx, error) {
	b := s.current()
	switch a := action.(type) {
	case SendNative:
		state, err := b.chainState(ctx)
		if err != nil {
			return nil, err
		}
		tx, err := b.builder().NativeTransfer(a, state)
		if err != nil {
			return nil, err
		}
		return []UnsignedTx{tx}, nil
	case SendERC20:
		token, err := b.registry.Lookup(a.Ticker)
		if err != nil {
			return nil, err
		}
		if token.Native {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is the native token; use send_native_token", token.Ticker))
		}
		decimals, err := b.tokenDecimals(ctx, token.Address)
		if err != nil {
			return nil, err
		}
		state, err := b.chainState(ctx)
		if err != nil {
			return nil, err
		}
		tx, err := b.builder().TokenTransfer(a, decimals, state)
		if err != nil {
			return nil, err
		}
		return []UnsignedTx{tx}, nil
	case SwapTokens:
		inDecimals, err := b.swapInputDecimals(ctx, a)
		if err != nil {
			return nil, err
		}
		state, err := b.chainState(ctx)
		if err != nil {
			return nil, err
		}
		return b.builder().SwapSteps(a, inDecimals, state)
	default:
		return nil, nil
	}
}

// swapInputDecimals is zero for native input, the token's decimals otherwise.
func (b *binding) swapInputDecimals(ctx context.Context, a SwapTokens) (uint8, error) {
	in, err := b.registry.Lookup(a.TokenIn)
	if err != nil {
		return 0, err
	}
	if in.Native {
		return 0, nil
	}
	return b.tokenDecimals(ctx, in.Address)
}
