package app

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/novabot/nova/internal/execution"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testPeer       = "0x000000000000000000000000000000000000dEaD"
	bscRPC         = "https://bsc-dataseed.binance.org"
	bsctestRPC     = "https://data-seed-prebsc-1-s1.binance.org:8545"
)

var (
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67}
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31}
	bscUSDT           = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
)

// chainBackend mines every broadcast transaction immediately.
type chainBackend struct {
	mu sync.Mutex

	chainID       *big.Int
	nonce         uint64
	nativeBalance *big.Int
	tokens        map[common.Address]*big.Int
	decimals      map[common.Address]uint8
	sent          []*types.Transaction
	closed        bool
}

func newChainBackend(chainID int64) *chainBackend {
	return &chainBackend{
		chainID:       big.NewInt(chainID),
		nativeBalance: big.NewInt(2_000_000_000_000_000_000),
		tokens:        map[common.Address]*big.Int{bscUSDT: big.NewInt(12_340_000)},
		decimals:      map[common.Address]uint8{bscUSDT: 6},
	}
}

func (c *chainBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *chainBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *chainBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *chainBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), Time: 1_700_000_000}, nil
}

func (c *chainBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.nativeBalance), nil
}

func (c *chainBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("bad call")
	}
	switch {
	case bytes.Equal(call.Data[:4], selectorDecimals):
		d, ok := c.decimals[*call.To]
		if !ok {
			return nil, fmt.Errorf("execution reverted")
		}
		return common.LeftPadBytes([]byte{d}, 32), nil
	case bytes.Equal(call.Data[:4], selectorBalanceOf):
		balance, ok := c.tokens[*call.To]
		if !ok {
			balance = big.NewInt(0)
		}
		return common.LeftPadBytes(balance.Bytes(), 32), nil
	default:
		return nil, fmt.Errorf("unexpected selector %x", call.Data[:4])
	}
}

func (c *chainBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.Nonce() != c.nonce {
		return fmt.Errorf("nonce too low")
	}
	c.sent = append(c.sent, tx)
	c.nonce++
	return nil
}

func (c *chainBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(101), GasUsed: tx.Gas()}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (c *chainBackend) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *chainBackend) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func chainDialer(backends map[string]*chainBackend) execution.Dialer {
	return func(_ context.Context, rpcURL string) (execution.Backend, error) {
		backend, ok := backends[rpcURL]
		if !ok {
			return nil, fmt.Errorf("no route to %s", rpcURL)
		}
		return backend, nil
	}
}

// isolateEnv keeps config, cache and key discovery inside the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("NOVA_CONFIG", "")
	t.Setenv("NOVA_PRIVATE_KEY", "")
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("NOVA_PRIVATE_KEY_FILE", "")
	t.Setenv("NOVA_KEYSTORE_PATH", "")
	t.Setenv("NOVA_NETWORK", "")
	t.Setenv("NOVA_RPC_URL", "")
	t.Setenv("NOVA_POLL_INTERVAL", "10ms")
}

type testRunner struct {
	*Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestRunner(t *testing.T, stdin string, backends map[string]*chainBackend) testRunner {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithIO(bytes.NewBufferString(stdin), &stdout, &stderr)
	r.dial = chainDialer(backends)
	return testRunner{Runner: r, stdout: &stdout, stderr: &stderr}
}
