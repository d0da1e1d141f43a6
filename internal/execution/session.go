package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution/signer"
	"github.com/novabot/nova/internal/logger"
	"github.com/novabot/nova/internal/metrics"
	"github.com/novabot/nova/internal/registry"
)

// DecimalsCache persists token decimals between runs.
type DecimalsCache interface {
	Lookup(chainID int64, token common.Address) (uint8, bool, error)
	Remember(chainID int64, token common.Address, decimals uint8) error
}

type SessionOptions struct {
	Dialer  Dialer
	Signer  signer.Signer
	Policy  Policy
	Cache   DecimalsCache
	Metrics *metrics.Recorder
}

// Session owns the network handle, signing identity and nonce state that
// the executor works against. Chain switches replace the binding as a whole.
type Session struct {
	mu      sync.Mutex
	opts    SessionOptions
	binding *binding
	busy    bool
}

// binding is everything that changes on a chain switch.
type binding struct {
	config   registry.ChainConfig
	registry *registry.Registry
	backend  Backend
	chainID  *big.Int
	nonces   *NonceSequencer
	opts     *SessionOptions
}

// OpenSession dials the network described by cfg. rpcURL overrides cfg.RPCURL
// when non-empty.
func OpenSession(ctx context.Context, cfg registry.ChainConfig, rpcURL string, opts SessionOptions) (*Session, error) {
	if opts.Dialer == nil {
		opts.Dialer = DialEthclient
	}
	opts.Policy = opts.Policy.withDefaults()
	s := &Session{opts: opts}
	b, err := s.bind(ctx, cfg, rpcURL)
	if err != nil {
		return nil, err
	}
	s.binding = b
	return s, nil
}

func (s *Session) bind(ctx context.Context, cfg registry.ChainConfig, rpcURL string) (*binding, error) {
	reg, err := registry.New(cfg)
	if err != nil {
		return nil, err
	}
	endpoint, err := registry.ResolveRPCURL(rpcURL, cfg)
	if err != nil {
		return nil, err
	}
	backend, err := s.opts.Dialer(ctx, endpoint)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRPC, fmt.Sprintf("connect %s", cfg.Network), err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, clierr.Wrap(clierr.CodeChainRPC, fmt.Sprintf("read chain id for %s", cfg.Network), err)
	}
	b := &binding{
		config:   cfg,
		registry: reg,
		backend:  backend,
		chainID:  chainID,
		opts:     &s.opts,
	}
	if s.opts.Signer != nil {
		b.nonces = NewNonceSequencer(s.opts.Signer.Address())
	}
	return b, nil
}

// SwitchChain rebinds the session to another network. The signing key and
// address are kept; the nonce cache starts empty. It fails with CodeBusy
// while an action queue is executing.
func (s *Session) SwitchChain(ctx context.Context, cfg registry.ChainConfig, rpcURL string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return clierr.New(clierr.CodeBusy, "cannot switch chain while actions are executing")
	}
	// Hold the busy flag while dialing so no execution starts on the old binding.
	s.busy = true
	s.mu.Unlock()

	next, err := s.bind(ctx, cfg, rpcURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return err
	}
	previous := s.binding
	s.binding = next
	if previous != nil && previous.backend != nil {
		previous.backend.Close()
	}
	logger.Info("switched session from %s to %s (chain id %s)", previous.config.Network, cfg.Network, next.chainID.String())
	return nil
}

// begin marks the session busy and returns the binding to execute against.
func (s *Session) begin() (*binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, clierr.New(clierr.CodeBusy, "session is busy")
	}
	s.busy = true
	return s.binding, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) current() *binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Address is the signing account. It fails with CodeNotInitialized when the
// session was opened without a signer.
func (s *Session) Address() (common.Address, error) {
	if s.opts.Signer == nil {
		return common.Address{}, clierr.New(clierr.CodeNotInitialized, "no signing account configured")
	}
	return s.opts.Signer.Address(), nil
}

func (s *Session) Network() string { return s.current().config.Network }

func (s *Session) Config() registry.ChainConfig { return s.current().config }

func (s *Session) Registry() *registry.Registry { return s.current().registry }

func (s *Session) ChainID() *big.Int { return new(big.Int).Set(s.current().chainID) }

// Nonces returns the sequencer of the current binding, nil without a signer.
func (s *Session) Nonces() *NonceSequencer { return s.current().nonces }

func (s *Session) Policy() Policy { return s.opts.Policy }

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding != nil && s.binding.backend != nil {
		s.binding.backend.Close()
	}
}

func (b *binding) network() string { return b.config.Network }

func (b *binding) metrics() *metrics.Recorder { return b.opts.Metrics }

func (b *binding) builder() Builder {
	var account common.Address
	if b.opts.Signer != nil {
		account = b.opts.Signer.Address()
	}
	return Builder{
		Registry: b.registry,
		Exchange: common.HexToAddress(b.config.ExchangeAddress),
		Account:  account,
		Policy:   b.opts.Policy,
	}
}

// chainState reads the suggested gas price and the latest block timestamp.
func (b *binding) chainState(ctx context.Context) (ChainState, error) {
	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return ChainState{}, clierr.Wrap(clierr.CodeChainRPC, "suggest gas price", err)
	}
	header, err := b.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return ChainState{}, clierr.Wrap(clierr.CodeChainRPC, "fetch latest header", err)
	}
	return ChainState{SuggestedGasPrice: gasPrice, BlockTimestamp: header.Time}, nil
}

// tokenDecimals calls decimals() on token, consulting the cache first.
func (b *binding) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	chainID := b.chainID.Int64()
	if b.opts.Cache != nil {
		if decimals, ok, err := b.opts.Cache.Lookup(chainID, token); err == nil && ok {
			return decimals, nil
		}
	}
	out, err := b.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, clierr.New(clierr.CodeChainRPC, "decimals() returned no value")
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeChainRPC, fmt.Sprintf("unexpected decimals() type %T", out[0]))
	}
	if b.opts.Cache != nil {
		if err := b.opts.Cache.Remember(chainID, token, decimals); err != nil {
			logger.Warn("cache decimals for %s: %v", token.Hex(), err)
		}
	}
	return decimals, nil
}

func (b *binding) tokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := b.call(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, clierr.New(clierr.CodeChainRPC, "balanceOf() returned no value")
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeChainRPC, fmt.Sprintf("unexpected balanceOf() type %T", out[0]))
	}
	return balance, nil
}

func (b *binding) call(ctx context.Context, token common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s calldata", method), err)
	}
	raw, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRPC, fmt.Sprintf("call %s on %s", method, token.Hex()), err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRPC, fmt.Sprintf("decode %s result", method), err)
	}
	return out, nil
}
