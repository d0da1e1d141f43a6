package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/units"
)

// Balance reads the balance of ticker held by address on the current
// network. It never fails: problems are reported as an error result.
// An empty address means the session account.
func (s *Session) Balance(ctx context.Context, ticker, address string) ActionResult {
	return s.current().balance(ctx, GetTokenBalance{Ticker: ticker, Address: address})
}

func (b *binding) balance(ctx context.Context, action GetTokenBalance) ActionResult {
	result := ActionResult{Kind: KindGetTokenBalance}
	amount, ticker, err := b.readBalance(ctx, action)
	if err != nil {
		if ticker == "" {
			ticker = strings.TrimSpace(action.Ticker)
		}
		result.Status = ResultStatusError
		result.Message = fmt.Sprintf("Error getting %s balance: %v", ticker, err)
		return result
	}
	result.Status = ResultStatusSuccess
	result.Message = fmt.Sprintf("%s balance: %s", ticker, amount)
	return result
}

func (b *binding) readBalance(ctx context.Context, action GetTokenBalance) (string, string, error) {
	token, err := b.registry.Lookup(action.Ticker)
	if err != nil {
		return "", "", err
	}
	owner, err := b.balanceOwner(action.Address)
	if err != nil {
		return "", token.Ticker, err
	}
	if token.Native {
		raw, err := b.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return "", token.Ticker, clierr.Wrap(clierr.CodeChainRPC, "read native balance", err)
		}
		return units.FormatUnits(raw, units.NativeDecimals), token.Ticker, nil
	}
	raw, err := b.tokenBalance(ctx, token.Address, owner)
	if err != nil {
		return "", token.Ticker, err
	}
	decimals, err := b.tokenDecimals(ctx, token.Address)
	if err != nil {
		return "", token.Ticker, err
	}
	return units.FormatUnits(new(big.Int).Set(raw), decimals), token.Ticker, nil
}

func (b *binding) balanceOwner(address string) (common.Address, error) {
	value := strings.TrimSpace(address)
	if value == "" {
		if b.opts.Signer == nil {
			return common.Address{}, clierr.New(clierr.CodeNotInitialized, "no address given and no signing account configured")
		}
		return b.opts.Signer.Address(), nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("address %q must be a valid EVM address", address))
	}
	return common.HexToAddress(value), nil
}
