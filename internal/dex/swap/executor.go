// =============================
// File: internal/dex/swap/executor.go
// =============================
package swap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/gas"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

const txTypeSwap = "swap"

// Options настраивает параметры свапа.
type Options struct {
	Router         string
	FeeTier        uint32
	Deadline       time.Duration
	SimulatedDelay time.Duration
	GasMultiplier  float64
}

// OptionsFromConfig собирает Options из конфигурации.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Router:         cfg.Contracts.SwapRouter,
		FeeTier:        cfg.Swap.FeeTier,
		Deadline:       time.Duration(cfg.Swap.DeadlineMinutes) * time.Minute,
		SimulatedDelay: cfg.Swap.SimulatedDelay,
		GasMultiplier:  cfg.Swap.GasMultiplier,
	}
}

// Result is the outcome of a submitted (or simulated) swap.
type Result struct {
	Hash      string `json:"hash"`
	Simulated bool   `json:"simulated"`
}

// Executor submits exact-input single-hop swaps through the router.
type Executor struct {
	backend  blockchain.Backend
	registry *token.Registry
	gas      *gas.Estimator
	tx       *transaction.Manager
	sessions types.SessionSource
	opts     Options
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

func NewExecutor(
	backend blockchain.Backend,
	registry *token.Registry,
	estimator *gas.Estimator,
	tx *transaction.Manager,
	sessions types.SessionSource,
	opts Options,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FeeTier == 0 {
		opts.FeeTier = config.DefaultFeeTier
	}
	if opts.Deadline <= 0 {
		opts.Deadline = config.DefaultDeadlineMinutes * time.Minute
	}
	if opts.SimulatedDelay < 0 {
		opts.SimulatedDelay = 0
	}
	if opts.GasMultiplier < 1 {
		opts.GasMultiplier = config.DefaultGasMultiplier
	}
	return &Executor{
		backend:  backend,
		registry: registry,
		gas:      estimator,
		tx:       tx,
		sessions: sessions,
		opts:     opts,
		metrics:  collector,
		logger:   logger.Named("swap"),
		now:      time.Now,
	}
}

// Router returns the configured router address (possibly a placeholder).
func (e *Executor) Router() string {
	return e.opts.Router
}

type plan struct {
	tokenIn   types.Token
	tokenOut  types.Token
	trader    common.Address
	simulated bool
	// placeholder is the first unconfigured address when simulated.
	placeholder string
	router      common.Address
	in, out     common.Address
}

func (e *Executor) prepare(amountIn, tokenIn, tokenOut, trader string) (*plan, error) {
	if _, ok := types.ParsePositiveAmount(amountIn); !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amountIn)
	}
	traderAddr, err := address.Parse(trader)
	if err != nil {
		return nil, fmt.Errorf("trader: %w", err)
	}
	src, err := e.registry.Lookup(tokenIn)
	if err != nil {
		return nil, err
	}
	dst, err := e.registry.Lookup(tokenOut)
	if err != nil {
		return nil, err
	}

	targets := []string{e.opts.Router, e.registry.Routable(src), e.registry.Routable(dst)}
	mode, resolved, err := address.ResolveAll(targets...)
	if err != nil {
		return nil, err
	}
	p := &plan{tokenIn: src, tokenOut: dst, trader: traderAddr}
	if mode == address.ModeSimulated {
		p.simulated = true
		for _, s := range targets {
			if address.IsPlaceholder(s) {
				p.placeholder = s
				break
			}
		}
		return p, nil
	}
	p.router, p.in, p.out = resolved[0], resolved[1], resolved[2]
	return p, nil
}

// Swap sells amountIn of tokenIn for at least minAmountOut of tokenOut.
// Tokens are ids, symbols or addresses known to the registry.
func (e *Executor) Swap(ctx context.Context, tokenIn, tokenOut, amountIn, minAmountOut, trader string) (*Result, error) {
	p, err := e.prepare(amountIn, tokenIn, tokenOut, trader)
	if err != nil {
		return nil, err
	}
	log := e.logger.With(
		zap.String("token_in", p.tokenIn.Symbol),
		zap.String("token_out", p.tokenOut.Symbol),
		zap.String("amount_in", amountIn),
		zap.String("trader", p.trader.Hex()))

	if p.simulated {
		log.Warn("Swap contracts not configured, simulating",
			zap.String("mode", address.ModeSimulated.String()),
			zap.String("placeholder", p.placeholder))
		receipt, err := transaction.Simulate(ctx, e.opts.SimulatedDelay)
		if err != nil {
			return nil, err
		}
		e.metrics.RecordSimulated(txTypeSwap)
		processlog.WithTransaction(log, receipt.Hash, processlog.TxSimulated).Info("Swap simulated")
		return &Result{Hash: receipt.Hash, Simulated: true}, nil
	}

	req, err := e.build(p, amountIn, minAmountOut)
	if err != nil {
		return nil, err
	}
	signer, err := types.SignerFor(e.sessions, p.trader)
	if err != nil {
		return nil, err
	}

	est := e.gas.EstimateSwap(ctx, gas.SwapGasRequest{
		Router: p.router.Hex(),
		From:   p.trader,
		Data:   req.Data,
		Value:  req.Value,
	})
	req.Gas = applyMultiplier(est.GasLimit, e.opts.GasMultiplier)

	log.Info("Submitting swap",
		zap.String("min_amount_out", minAmountOut),
		zap.Uint64("gas_limit", req.Gas),
		zap.String("gas_tier", string(est.Tier)))

	receipt, err := e.tx.SendAndConfirm(ctx, signer, txTypeSwap, req)
	if err != nil {
		classified := Classify(err)
		log.Error("Swap failed", zap.Error(classified))
		return nil, classified
	}
	log.Info("Swap confirmed", zap.String("tx_hash", receipt.Hash))
	return &Result{Hash: receipt.Hash}, nil
}

// EstimateGas prices a swap without sending it.
func (e *Executor) EstimateGas(ctx context.Context, tokenIn, tokenOut, amountIn, trader string) (*types.GasEstimate, error) {
	p, err := e.prepare(amountIn, tokenIn, tokenOut, trader)
	if err != nil {
		return nil, err
	}
	if p.simulated {
		return e.gas.EstimateSwap(ctx, gas.SwapGasRequest{Router: p.placeholder, From: p.trader}), nil
	}
	req, err := e.build(p, amountIn, "0")
	if err != nil {
		return nil, err
	}
	return e.gas.EstimateSwap(ctx, gas.SwapGasRequest{
		Router: p.router.Hex(),
		From:   p.trader,
		Data:   req.Data,
		Value:  req.Value,
	}), nil
}

func applyMultiplier(limit uint64, multiplier float64) uint64 {
	return uint64(decimal.NewFromInt(int64(limit)).Mul(decimal.NewFromFloat(multiplier)).IntPart())
}

// build packs exactInputSingle, wrapping it in a multicall with unwrapWETH9
// and refundETH when the output is the native currency.
func (e *Executor) build(p *plan, amountIn, minAmountOut string) (blockchain.TxRequest, error) {
	rawIn, err := types.ParseUnits(amountIn, p.tokenIn.Decimals)
	if err != nil || rawIn.Sign() <= 0 {
		return blockchain.TxRequest{}, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amountIn)
	}
	rawMin := new(big.Int)
	if minAmountOut != "" {
		rawMin, err = types.ParseUnits(minAmountOut, p.tokenOut.Decimals)
		if err != nil || rawMin.Sign() < 0 {
			return blockchain.TxRequest{}, fmt.Errorf("%w: min amount out %q", types.ErrInvalidAmount, minAmountOut)
		}
	}

	params := contracts.ExactInputSingleParams{
		TokenIn:           p.in,
		TokenOut:          p.out,
		Fee:               new(big.Int).SetUint64(uint64(e.opts.FeeTier)),
		Recipient:         p.trader,
		Deadline:          big.NewInt(e.now().Add(e.opts.Deadline).Unix()),
		AmountIn:          rawIn,
		AmountOutMinimum:  rawMin,
		SqrtPriceLimitX96: new(big.Int),
	}

	var data []byte
	if p.tokenOut.IsNative() {
		// Роутер получает wrapped-токен и сам разворачивает его трейдеру.
		params.Recipient = p.router
		swapCall, err := contracts.PackExactInputSingle(params)
		if err != nil {
			return blockchain.TxRequest{}, fmt.Errorf("pack exactInputSingle: %w", err)
		}
		data, err = contracts.PackUnwrapToNative(swapCall, rawMin, p.trader)
		if err != nil {
			return blockchain.TxRequest{}, fmt.Errorf("pack multicall: %w", err)
		}
	} else {
		data, err = contracts.PackExactInputSingle(params)
		if err != nil {
			return blockchain.TxRequest{}, fmt.Errorf("pack exactInputSingle: %w", err)
		}
	}

	value := new(big.Int)
	if p.tokenIn.IsNative() {
		value.Set(rawIn)
	}
	return blockchain.TxRequest{To: p.router, Data: data, Value: value}, nil
}
