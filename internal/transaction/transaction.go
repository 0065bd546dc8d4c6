// internal/transaction/transaction.go
package transaction

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

// Options настраивает ожидание подтверждения.
type Options struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Manager отправляет транзакции и ждет одно подтверждение.
type Manager struct {
	backend blockchain.Backend
	opts    Options
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewManager создает менеджер транзакций.
func NewManager(backend blockchain.Backend, opts Options, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Manager{
		backend: backend,
		opts:    opts,
		metrics: collector,
		logger:  logger.Named("tx-manager"),
	}
}

// SendAndConfirm отправляет транзакцию через signer и ждет receipt.
// Receipt со статусом failed возвращается вместе с blockchain.ErrTransactionReverted.
func (m *Manager) SendAndConfirm(ctx context.Context, signer blockchain.Signer, txType string, req blockchain.TxRequest) (*types.Receipt, error) {
	start := time.Now()
	req.From = signer.Address()

	hash, err := signer.SendTransaction(ctx, req)
	if err != nil {
		m.metrics.RecordTransaction(ctx, txType, time.Since(start), false)
		return nil, fmt.Errorf("send %s transaction: %w", txType, err)
	}

	base := m.logger.With(zap.String("type", txType))
	processlog.WithTransaction(base, hash.Hex(), processlog.TxPending).
		Info("Transaction sent, waiting for confirmation")

	receipt, err := m.WaitForReceipt(ctx, hash)
	if err != nil {
		m.metrics.RecordTransaction(ctx, txType, time.Since(start), false)
		processlog.WithTransaction(base, hash.Hex(), processlog.TxPending).
			Warn("Transaction not confirmed", zap.Error(err))
		return nil, err
	}

	out := &types.Receipt{
		Hash:        hash.Hex(),
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Success:     receipt.Status == gethtypes.ReceiptStatusSuccessful,
	}
	m.metrics.RecordTransaction(ctx, txType, time.Since(start), out.Success)

	if !out.Success {
		processlog.WithTransaction(base, hash.Hex(), processlog.TxFailed).
			Warn("Transaction reverted", zap.Uint64("gas_used", receipt.GasUsed))
		return out, fmt.Errorf("%s %s: %w", txType, hash.Hex(), blockchain.ErrTransactionReverted)
	}

	processlog.WithTransaction(base, hash.Hex(), processlog.TxConfirmed).
		Info("Transaction confirmed", zap.Uint64("gas_used", receipt.GasUsed))
	return out, nil
}

// WaitForReceipt опрашивает TransactionReceipt с экспоненциальной задержкой
// до появления receipt или истечения ConfirmTimeout.
func (m *Manager) WaitForReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = m.opts.PollInterval
	backoffPolicy.MaxInterval = m.opts.PollInterval * 5

	notify := func(err error, duration time.Duration) {
		m.logger.Debug("Receipt not available yet",
			zap.String("tx_hash", hash.Hex()),
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	operation := func() (*gethtypes.Receipt, error) {
		receipt, err := m.backend.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if receipt == nil {
			return nil, ethereum.NotFound
		}
		return receipt, nil
	}

	receipt, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxElapsedTime(m.opts.ConfirmTimeout),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// SimulatedHash возвращает синтетический хеш вида 0x + 64 hex.
func SimulatedHash() string {
	var buf [32]byte
	_, _ = rand.Read(buf[:])
	return "0x" + hex.EncodeToString(buf[:])
}

// Simulate ждет delay с учетом отмены контекста и возвращает синтетический receipt.
func Simulate(ctx context.Context, delay time.Duration) (*types.Receipt, error) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return &types.Receipt{Hash: SimulatedHash(), Success: true, Simulated: true}, nil
}
