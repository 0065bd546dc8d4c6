// internal/liquidity/provider.go
package liquidity

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

const (
	txTypeAddLiquidity    = "add_liquidity"
	txTypeRemoveLiquidity = "remove_liquidity"
	txTypeCreatePool      = "create_pool"
)

// Approver выдает allowance только при необходимости.
// *allowance.Coordinator удовлетворяет интерфейсу.
type Approver interface {
	Ensure(ctx context.Context, token, spender, amount, owner string) (bool, common.Hash, error)
}

// Result describes a liquidity operation. Deposits and withdrawals are always
// simulated until a position manager is deployed.
type Result struct {
	Hash      string   `json:"hash"`
	Simulated bool     `json:"simulated"`
	Approvals []string `json:"approvals,omitempty"`
}

// Provider выполняет операции с ликвидностью от имени подключенного кошелька.
type Provider struct {
	approver Approver
	sessions types.SessionSource
	delay    time.Duration
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewProvider(approver Approver, sessions types.SessionSource, delay time.Duration, collector *metrics.Collector, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		approver: approver,
		sessions: sessions,
		delay:    delay,
		metrics:  collector,
		logger:   logger.Named("liquidity-provider"),
	}
}

// AddLiquidity approves both ERC20 legs for the pool and deposits.
func (p *Provider) AddLiquidity(ctx context.Context, pool PoolSpec, amount1, amount2, owner string) (*Result, error) {
	ownerAddr, err := p.prepare(owner, amount1, amount2)
	if err != nil {
		return nil, err
	}

	legs := []struct {
		tok    types.Token
		amount string
	}{
		{pool.Token1, amount1},
		{pool.Token2, amount2},
	}
	var approvals []string
	for _, leg := range legs {
		if leg.tok.IsNative() {
			continue
		}
		approved, hash, err := p.approver.Ensure(ctx, leg.tok.Address, pool.Address, leg.amount, ownerAddr.Hex())
		if err != nil {
			return nil, fmt.Errorf("approve %s: %w", leg.tok.Symbol, err)
		}
		if approved {
			approvals = append(approvals, hash.Hex())
		}
	}

	p.logger.Info("Adding liquidity",
		zap.String("pool", pool.Address),
		zap.String(pool.Token1.Symbol, amount1),
		zap.String(pool.Token2.Symbol, amount2),
		zap.String("mode", "simulated"))

	return p.simulate(ctx, txTypeAddLiquidity, approvals)
}

// RemoveLiquidity approves the LP token for the pool and withdraws lpAmount.
func (p *Provider) RemoveLiquidity(ctx context.Context, pool PoolSpec, lpAmount, owner string) (*Result, error) {
	ownerAddr, err := p.prepare(owner, lpAmount)
	if err != nil {
		return nil, err
	}

	var approvals []string
	approved, hash, err := p.approver.Ensure(ctx, pool.Address, pool.Address, lpAmount, ownerAddr.Hex())
	if err != nil {
		return nil, fmt.Errorf("approve LP token: %w", err)
	}
	if approved {
		approvals = append(approvals, hash.Hex())
	}

	p.logger.Info("Removing liquidity",
		zap.String("pool", pool.Address),
		zap.String("lp_amount", lpAmount),
		zap.String("mode", "simulated"))

	return p.simulate(ctx, txTypeRemoveLiquidity, approvals)
}

// CreatePool simulates pair creation with initial amounts.
func (p *Provider) CreatePool(ctx context.Context, tokenA, tokenB types.Token, amountA, amountB, owner string) (*Result, error) {
	if _, err := p.prepare(owner, amountA, amountB); err != nil {
		return nil, err
	}
	if tokenA.ID == tokenB.ID {
		return nil, fmt.Errorf("%w: pool needs two distinct tokens", types.ErrUnknownToken)
	}

	p.logger.Info("Creating pool",
		zap.String("token_a", tokenA.Symbol),
		zap.String("token_b", tokenB.Symbol),
		zap.String("mode", "simulated"))

	return p.simulate(ctx, txTypeCreatePool, nil)
}

func (p *Provider) prepare(owner string, amounts ...string) (common.Address, error) {
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return common.Address{}, fmt.Errorf("owner: %w", err)
	}
	for _, amount := range amounts {
		if _, ok := types.ParsePositiveAmount(amount); !ok {
			return common.Address{}, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
		}
	}
	if _, err := types.SignerFor(p.sessions, ownerAddr); err != nil {
		return common.Address{}, err
	}
	return ownerAddr, nil
}

func (p *Provider) simulate(ctx context.Context, txType string, approvals []string) (*Result, error) {
	receipt, err := transaction.Simulate(ctx, p.delay)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordSimulated(txType)
	processlog.WithTransaction(p.logger, receipt.Hash, processlog.TxSimulated).
		Warn("Liquidity operation simulated", zap.String("type", txType))
	return &Result{Hash: receipt.Hash, Simulated: true, Approvals: approvals}, nil
}
