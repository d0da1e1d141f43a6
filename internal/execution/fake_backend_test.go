package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/novabot/nova/internal/execution/signer"
	"github.com/novabot/nova/internal/registry"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

var (
	testRouter = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	testWBNB   = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	testCAKE   = common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
	testUSDT   = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	testPeer   = "0x000000000000000000000000000000000000dEaD"
)

// fakeBackend is an in-memory chain: every broadcast transaction is mined
// immediately unless marked to revert.
type fakeBackend struct {
	mu sync.Mutex

	chainID       *big.Int
	pendingNonce  uint64
	gasPrice      *big.Int
	blockTime     uint64
	nativeBalance *big.Int
	tokenBalance  map[common.Address]*big.Int
	decimals      map[common.Address]uint8

	nonceCalls    int
	decimalsCalls int
	failSendAt    int
	revertSendAt  int
	stuckReceipts bool
	sent          []*types.Transaction
	events        []string
	closed        bool
}

func newFakeBackend(chainID int64) *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(chainID),
		pendingNonce:  7,
		gasPrice:      big.NewInt(5_000_000_000),
		blockTime:     1_700_000_000,
		nativeBalance: mustBig("1500000000000000000"),
		tokenBalance: map[common.Address]*big.Int{
			testCAKE: mustBig("2500000000000000000"),
			testUSDT: big.NewInt(12_340_000),
		},
		decimals: map[common.Address]uint8{
			testCAKE: 18,
			testUSDT: 6,
		},
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	f.events = append(f.events, "nonce")
	return f.pendingNonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), Time: f.blockTime}, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.nativeBalance == nil {
		return nil, errors.New("balance unavailable")
	}
	return new(big.Int).Set(f.nativeBalance), nil
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if call.To == nil || len(call.Data) < 4 {
		return nil, errors.New("bad call")
	}
	selector := call.Data[:4]
	switch {
	case bytes.Equal(selector, erc20ABI.Methods["decimals"].ID):
		f.decimalsCalls++
		d, ok := f.decimals[*call.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return erc20ABI.Methods["decimals"].Outputs.Pack(d)
	case bytes.Equal(selector, erc20ABI.Methods["balanceOf"].ID):
		bal, ok := f.tokenBalance[*call.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(bal)
	}
	return nil, fmt.Errorf("unexpected selector %x", selector)
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt := len(f.sent) + 1
	if f.failSendAt == attempt {
		f.failSendAt = 0
		f.events = append(f.events, "send-failed")
		return errors.New("nonce too low")
	}
	f.sent = append(f.sent, tx)
	f.events = append(f.events, "send:"+tx.Hash().Hex())
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stuckReceipts {
		return nil, ethereum.NotFound
	}
	for i, tx := range f.sent {
		if tx.Hash() != hash {
			continue
		}
		f.events = append(f.events, "receipt:"+hash.Hex())
		status := types.ReceiptStatusSuccessful
		if f.revertSendAt == i+1 {
			status = types.ReceiptStatusFailed
		}
		return &types.Receipt{Status: status, TxHash: hash, BlockNumber: big.NewInt(int64(101 + i)), GasUsed: 21_000}, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func (f *fakeBackend) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func testChainConfig(network, nativeTicker string) registry.ChainConfig {
	return registry.ChainConfig{
		Network:         network,
		RPCURL:          "https://" + network + ".rpc.example",
		ExplorerURL:     "https://" + network + ".scan.example/tx/",
		ExchangeAddress: testRouter.Hex(),
		NativeToken:     registry.TokenConfig{Ticker: nativeTicker, Address: testWBNB.Hex()},
		Tokens: []registry.TokenConfig{
			{Ticker: "CAKE", Address: testCAKE.Hex()},
			{Ticker: "USDT", Address: testUSDT.Hex()},
		},
	}
}

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return s
}

func staticDialer(backends map[string]*fakeBackend) Dialer {
	return func(_ context.Context, rpcURL string) (Backend, error) {
		b, ok := backends[rpcURL]
		if !ok {
			return nil, fmt.Errorf("no backend for %s", rpcURL)
		}
		return b, nil
	}
}

func openTestSession(t *testing.T, backend *fakeBackend, withSigner bool) *Session {
	t.Helper()
	cfg := testChainConfig("bsc", "BNB")
	opts := SessionOptions{Dialer: staticDialer(map[string]*fakeBackend{cfg.RPCURL: backend})}
	if withSigner {
		opts.Signer = testSigner(t)
	}
	s, err := OpenSession(context.Background(), cfg, "", opts)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// rejectingSigner reports a real address but refuses to sign.
type rejectingSigner struct {
	signer.Signer
}

func (rejectingSigner) SignTx(*big.Int, *types.Transaction) (*types.Transaction, error) {
	return nil, errors.New("hardware wallet locked")
}

func fastTransactionExecutor() TransactionExecutor {
	return TransactionExecutor{PollInterval: time.Millisecond, ReceiptTimeout: time.Second}
}

func mustBig(v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		panic("bad big int " + v)
	}
	return n
}
