package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/novabot/nova/internal/errors"
)

// Entry is a resolved ticker.
type Entry struct {
	Ticker  string
	Address common.Address
	Native  bool
}

// Registry maps tickers to token contracts for one network. It is immutable
// once built; a chain switch builds a new one.
type Registry struct {
	network string
	native  Entry
	entries []Entry
	byKey   map[string]Entry
}

// New builds a registry from a validated chain config.
func New(cfg ChainConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	native := Entry{
		Ticker:  strings.TrimSpace(cfg.NativeToken.Ticker),
		Address: common.HexToAddress(cfg.NativeToken.Address),
		Native:  true,
	}
	r := &Registry{
		network: cfg.Network,
		native:  native,
		entries: []Entry{native},
		byKey:   map[string]Entry{tickerKey(native.Ticker): native},
	}
	for _, token := range cfg.Tokens {
		entry := Entry{
			Ticker:  strings.TrimSpace(token.Ticker),
			Address: common.HexToAddress(token.Address),
		}
		key := tickerKey(entry.Ticker)
		existing, dup := r.byKey[key]
		switch {
		case dup && existing.Native && existing.Address == entry.Address:
			continue
		case dup && existing.Native:
			return nil, clierr.New(clierr.CodeChainConfigInvalid, fmt.Sprintf("token %s conflicts with the native token address", entry.Ticker))
		case dup:
			return nil, clierr.New(clierr.CodeChainConfigInvalid, fmt.Sprintf("duplicate token ticker %s", entry.Ticker))
		}
		r.byKey[key] = entry
		r.entries = append(r.entries, entry)
	}
	return r, nil
}

func (r *Registry) Network() string { return r.network }

func (r *Registry) NativeTicker() string { return r.native.Ticker }

// Lookup returns the entry for ticker, compared case-insensitively.
func (r *Registry) Lookup(ticker string) (Entry, error) {
	entry, ok := r.byKey[tickerKey(ticker)]
	if !ok {
		return Entry{}, clierr.New(clierr.CodeTokenNotFound, fmt.Sprintf("token %s not found on %s", strings.TrimSpace(ticker), r.network))
	}
	return entry, nil
}

func (r *Registry) ResolveAddress(ticker string) (common.Address, error) {
	entry, err := r.Lookup(ticker)
	if err != nil {
		return common.Address{}, err
	}
	return entry.Address, nil
}

func (r *Registry) IsNative(ticker string) bool {
	return tickerKey(ticker) == tickerKey(r.native.Ticker)
}

// Tickers returns every known ticker, native first, in config order.
func (r *Registry) Tickers() []string {
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Ticker)
	}
	return out
}

func (r *Registry) ERC20Tickers() []string {
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		if !entry.Native {
			out = append(out, entry.Ticker)
		}
	}
	return out
}

func tickerKey(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
