// internal/dex/quote/engine.go
package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

// Gas hints reported with every quote.
const (
	// Подсказка газа: консервативная для котировки с цепи, мок-значение для синтетической.
	gasHintOnChain   = "300000"
	gasHintSynthetic = "250000"
)

const legacyFeeTier = 3000

// Engine resolves a best-effort swap output through an ordered chain of strategies.
type Engine struct {
	registry   *token.Registry
	strategies []Strategy
	synthetic  *Synthetic
	timeout    time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewEngine builds an engine with an explicit strategy chain.
func NewEngine(registry *token.Registry, strategies []Strategy, synthetic *Synthetic, timeout time.Duration, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = config.DefaultQuoteTimeout
	}
	return &Engine{
		registry:   registry,
		strategies: strategies,
		synthetic:  synthetic,
		timeout:    timeout,
		metrics:    collector,
		logger:     logger.Named("quote"),
	}
}

// NewDefaultEngine wires the standard chain from configuration:
// multi-tier v2, single tiers 3000/500/10000, legacy v1, pool reserves.
// Strategies whose contract is a placeholder are left out.
func NewDefaultEngine(caller contracts.Caller, registry *token.Registry, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) *Engine {
	var chain []Strategy

	if t, err := address.Resolve(cfg.Contracts.QuoterV2); err == nil && !t.IsSimulated() {
		chain = append(chain, NewMultiFeeTier(caller, t.Address(), cfg.Quote.FeeTiers))
		for _, fee := range []uint32{3000, 500, 10000} {
			chain = append(chain, NewSingleFeeTier(caller, t.Address(), fee))
		}
	}
	if t, err := address.Resolve(cfg.Contracts.QuoterV1); err == nil && !t.IsSimulated() {
		chain = append(chain, NewLegacyQuoter(caller, t.Address(), legacyFeeTier))
	}

	pools := NewPoolReserves(caller)
	for _, p := range cfg.Contracts.Pools {
		t, err := address.Resolve(p.Address)
		if err != nil || t.IsSimulated() {
			continue
		}
		a, errA := registry.ByID(p.Token1)
		b, errB := registry.ByID(p.Token2)
		if errA != nil || errB != nil {
			continue
		}
		ra, rb := registry.Routable(a), registry.Routable(b)
		if !address.IsValid(ra) || !address.IsValid(rb) {
			continue
		}
		pools.AddPool(common.HexToAddress(ra), common.HexToAddress(rb), t.Address())
	}
	if len(pools.pools) > 0 {
		chain = append(chain, pools)
	}

	return NewEngine(registry, chain,
		NewSynthetic(cfg.Quote.ReferencePrices, cfg.Quote.SyntheticFactor),
		cfg.Quote.Timeout, collector, logger)
}

// GetAmountOut returns the expected output for amountIn of tokenIn, formatted
// in tokenOut units. A non-positive amount yields "0".
func (e *Engine) GetAmountOut(ctx context.Context, tokenIn, tokenOut, amountIn string) (string, error) {
	out, _, err := e.quote(ctx, tokenIn, tokenOut, amountIn)
	return out, err
}

// GetSwapQuote returns the output together with the gas hint and route.
func (e *Engine) GetSwapQuote(ctx context.Context, tokenIn, tokenOut, amountIn string) (*types.SwapQuote, error) {
	out, strategy, err := e.quote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	in, _ := e.registry.Lookup(tokenIn)
	dst, _ := e.registry.Lookup(tokenOut)

	gas := gasHintOnChain
	if strategy == e.synthetic.Name() {
		gas = gasHintSynthetic
	}
	return &types.SwapQuote{
		AmountOut:   out,
		GasEstimate: gas,
		Route:       []string{in.Symbol, dst.Symbol},
		Strategy:    strategy,
	}, nil
}

// ReferencePrice exposes the synthetic price table.
func (e *Engine) ReferencePrice(symbol string) (float64, bool) {
	p, ok := e.synthetic.Price(symbol)
	return p.InexactFloat64(), ok
}

func (e *Engine) quote(ctx context.Context, tokenIn, tokenOut, amountIn string) (string, string, error) {
	amount, ok := types.ParsePositiveAmount(amountIn)
	if !ok {
		return "0", "", nil
	}
	src, err := e.registry.Lookup(tokenIn)
	if err != nil {
		return "", "", err
	}
	dst, err := e.registry.Lookup(tokenOut)
	if err != nil {
		return "", "", err
	}

	synthetic := func(reason string) (string, string, error) {
		out := e.synthetic.Quote(src.Symbol, dst.Symbol, amount)
		e.metrics.RecordQuoteAttempt(e.synthetic.Name(), "success")
		e.logger.Debug("Using synthetic quote",
			zap.String("reason", reason),
			zap.String("pair", src.Symbol+"/"+dst.Symbol),
			zap.String("amount_out", out))
		return out, e.synthetic.Name(), nil
	}

	inAddr, outAddr := e.registry.Routable(src), e.registry.Routable(dst)
	mode, resolved, err := address.ResolveAll(inAddr, outAddr)
	if err != nil {
		return "", "", fmt.Errorf("resolve pair: %w", err)
	}
	if mode == address.ModeSimulated {
		return synthetic("placeholder token")
	}

	raw, err := types.ParseUnits(amountIn, src.Decimals)
	if err != nil || raw.Sign() <= 0 {
		return synthetic("amount below token precision")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := Request{TokenIn: src, TokenOut: dst, In: resolved[0], Out: resolved[1], AmountIn: raw}
	for _, s := range e.strategies {
		res, err := s.Attempt(ctx, req)
		if err == nil && positive(res.AmountOut) {
			e.metrics.RecordQuoteAttempt(s.Name(), "success")
			out := types.FormatUnits(res.AmountOut, dst.Decimals)
			e.logger.Debug("Quote resolved",
				zap.String("strategy", s.Name()),
				zap.Uint32("fee", res.Fee),
				zap.String("amount_out", out))
			return out, s.Name(), nil
		}
		e.metrics.RecordQuoteAttempt(s.Name(), "failure")
		e.logger.Debug("Quote strategy failed", zap.String("strategy", s.Name()), zap.Error(err))

		if ctx.Err() != nil {
			return synthetic("timeout")
		}
	}
	return synthetic("all strategies failed")
}
