package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/logger"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReceiptTimeout = 2 * time.Minute
)

// TransactionExecutor signs, broadcasts and confirms single transactions.
type TransactionExecutor struct {
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

func DefaultTransactionExecutor() TransactionExecutor {
	return TransactionExecutor{PollInterval: DefaultPollInterval, ReceiptTimeout: DefaultReceiptTimeout}
}

// Submit sends tx on the session's current network and waits for its
// receipt. Any failure after nonce assignment resets the nonce cache.
func (e TransactionExecutor) Submit(ctx context.Context, s *Session, tx *UnsignedTx) (Receipt, error) {
	b, err := s.begin()
	if err != nil {
		return Receipt{}, err
	}
	defer s.end()
	return e.submit(ctx, b, tx)
}

func (e TransactionExecutor) submit(ctx context.Context, b *binding, tx *UnsignedTx) (Receipt, error) {
	if tx == nil {
		return Receipt{}, clierr.New(clierr.CodeInternal, "missing transaction")
	}
	txSigner := b.opts.Signer
	if txSigner == nil || b.nonces == nil {
		return Receipt{}, clierr.New(clierr.CodeNotInitialized, "no signing account configured")
	}
	if e.PollInterval <= 0 {
		e.PollInterval = DefaultPollInterval
	}
	if e.ReceiptTimeout <= 0 {
		e.ReceiptTimeout = DefaultReceiptTimeout
	}
	log := logger.With("tx-executor")

	if tx.From == (common.Address{}) {
		tx.From = txSigner.Address()
	}
	if tx.Nonce == nil {
		nonce, err := b.nonces.Next(ctx, b.backend.PendingNonceAt)
		if err != nil {
			return Receipt{}, e.fail(b, "nonce", clierr.Wrap(clierr.CodeChainRPC, "fetch nonce", err))
		}
		tx.Nonce = &nonce
	}
	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := tx.To
	signed, err := txSigner.SignTx(b.chainID, types.NewTx(&types.LegacyTx{
		Nonce:    *tx.Nonce,
		GasPrice: tx.GasPrice,
		Gas:      tx.Gas,
		To:       &to,
		Value:    value,
		Data:     tx.Data,
	}))
	if err != nil {
		return Receipt{}, e.fail(b, "sign", clierr.Wrap(clierr.CodeChainRPC, "sign transaction", err))
	}
	if err := b.backend.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, e.fail(b, "broadcast", clierr.Wrap(clierr.CodeChainRPC, "broadcast transaction", err))
	}
	b.metrics().Submitted(b.network(), string(tx.Type))
	log.Info().
		Str("network", b.network()).
		Str("type", string(tx.Type)).
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", *tx.Nonce).
		Msg("transaction broadcast")

	started := time.Now()
	receipt, err := e.waitReceipt(ctx, b, signed)
	b.metrics().ObserveReceiptWait(b.network(), time.Since(started).Seconds())
	if err != nil {
		return Receipt{TxHash: signed.Hash()}, e.fail(b, "confirm", err)
	}
	out := Receipt{
		TxHash:  signed.Hash(),
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !out.Success {
		return out, e.fail(b, "reverted", clierr.New(clierr.CodeReceiptFailure, fmt.Sprintf("transaction %s reverted on-chain", signed.Hash().Hex())))
	}
	log.Info().Str("tx", signed.Hash().Hex()).Uint64("block", out.BlockNumber).Msg("transaction confirmed")
	return out, nil
}

func (e TransactionExecutor) waitReceipt(ctx context.Context, b *binding, signed *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := b.backend.TransactionReceipt(waitCtx, signed.Hash())
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Debug("receipt poll for %s: %v", signed.Hash().Hex(), err)
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeChainRPC, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// fail resets the nonce cache so the next transaction resynchronises with
// the network, then returns err.
func (e TransactionExecutor) fail(b *binding, stage string, err error) error {
	b.nonces.Reset()
	b.metrics().Failed(b.network(), stage)
	b.metrics().NonceReset(b.network())
	logger.Warn("%s failed on %s, nonce cache reset: %v", stage, b.network(), err)
	return err
}
