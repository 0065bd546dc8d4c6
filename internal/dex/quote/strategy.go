// internal/dex/quote/strategy.go
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

var (
	// ErrNoQuote: стратегия не дала положительного результата.
	ErrNoQuote = errors.New("no quote")
	// ErrNoPool: для пары не настроен пул.
	ErrNoPool = errors.New("no direct pool for pair")
)

// Request is one quote attempt. In and Out are routable (never native) addresses.
type Request struct {
	TokenIn  types.Token
	TokenOut types.Token
	In       common.Address
	Out      common.Address
	AmountIn *big.Int
}

// Result is a raw on-chain output in TokenOut base units.
type Result struct {
	AmountOut *big.Int
	Fee       uint32
}

// Strategy is one link of the quote chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (Result, error)
}

func quoteParams(req Request, fee uint32) contracts.QuoteParams {
	return contracts.QuoteParams{
		TokenIn:           req.In,
		TokenOut:          req.Out,
		AmountIn:          req.AmountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	}
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

// MultiFeeTier queries every fee tier of the v2 quoter concurrently and keeps
// the best output.
type MultiFeeTier struct {
	caller contracts.Caller
	quoter common.Address
	tiers  []uint32
}

func NewMultiFeeTier(caller contracts.Caller, quoter common.Address, tiers []uint32) *MultiFeeTier {
	return &MultiFeeTier{caller: caller, quoter: quoter, tiers: tiers}
}

func (s *MultiFeeTier) Name() string { return "multi_fee_tier" }

func (s *MultiFeeTier) Attempt(ctx context.Context, req Request) (Result, error) {
	var (
		mu   sync.Mutex
		best Result
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, fee := range s.tiers {
		g.Go(func() error {
			res, err := contracts.QuoteExactInputSingleV2(gctx, s.caller, s.quoter, quoteParams(req, fee))
			if err != nil || !positive(res.AmountOut) {
				// Тир без ликвидности просто пропускаем.
				return nil
			}
			mu.Lock()
			if best.AmountOut == nil || res.AmountOut.Cmp(best.AmountOut) > 0 {
				best = Result{AmountOut: res.AmountOut, Fee: fee}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if best.AmountOut == nil {
		return Result{}, fmt.Errorf("%w: all %d fee tiers failed", ErrNoQuote, len(s.tiers))
	}
	return best, nil
}

// SingleFeeTier asks the v2 quoter for one fee tier.
type SingleFeeTier struct {
	caller contracts.Caller
	quoter common.Address
	fee    uint32
}

func NewSingleFeeTier(caller contracts.Caller, quoter common.Address, fee uint32) *SingleFeeTier {
	return &SingleFeeTier{caller: caller, quoter: quoter, fee: fee}
}

func (s *SingleFeeTier) Name() string { return fmt.Sprintf("single_fee_tier_%d", s.fee) }

func (s *SingleFeeTier) Attempt(ctx context.Context, req Request) (Result, error) {
	res, err := contracts.QuoteExactInputSingleV2(ctx, s.caller, s.quoter, quoteParams(req, s.fee))
	if err != nil {
		return Result{}, err
	}
	if !positive(res.AmountOut) {
		return Result{}, ErrNoQuote
	}
	return Result{AmountOut: res.AmountOut, Fee: s.fee}, nil
}

// LegacyQuoter asks the v1 quoter. Some deployments return the amount only
// inside revert data.
type LegacyQuoter struct {
	caller contracts.Caller
	quoter common.Address
	fee    uint32
}

func NewLegacyQuoter(caller contracts.Caller, quoter common.Address, fee uint32) *LegacyQuoter {
	return &LegacyQuoter{caller: caller, quoter: quoter, fee: fee}
}

func (s *LegacyQuoter) Name() string { return "legacy_quoter" }

func (s *LegacyQuoter) Attempt(ctx context.Context, req Request) (Result, error) {
	out, err := contracts.QuoteExactInputSingleV1(ctx, s.caller, s.quoter, quoteParams(req, s.fee))
	if err != nil {
		decoded, decErr := contracts.DecodeRevertAmount(err)
		if decErr != nil {
			return Result{}, err
		}
		out = decoded
	}
	if !positive(out) {
		return Result{}, ErrNoQuote
	}
	return Result{AmountOut: out, Fee: s.fee}, nil
}

type pairKey struct {
	a, b common.Address
}

func newPairKey(x, y common.Address) pairKey {
	if x.Cmp(y) > 0 {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// PoolReserves prices against a directly configured constant-product pair.
type PoolReserves struct {
	caller contracts.Caller
	pools  map[pairKey]common.Address
}

func NewPoolReserves(caller contracts.Caller) *PoolReserves {
	return &PoolReserves{caller: caller, pools: make(map[pairKey]common.Address)}
}

// AddPool registers pool for the unordered pair (x, y).
func (s *PoolReserves) AddPool(x, y, pool common.Address) {
	s.pools[newPairKey(x, y)] = pool
}

func (s *PoolReserves) Name() string { return "pool_reserves" }

func (s *PoolReserves) Attempt(ctx context.Context, req Request) (Result, error) {
	pool, ok := s.pools[newPairKey(req.In, req.Out)]
	if !ok {
		return Result{}, ErrNoPool
	}
	token0, _, err := contracts.PoolTokens(ctx, s.caller, pool)
	if err != nil {
		return Result{}, err
	}
	reserves, err := contracts.GetReserves(ctx, s.caller, pool)
	if err != nil {
		return Result{}, err
	}

	reserveIn, reserveOut := reserves.Reserve0, reserves.Reserve1
	if token0 != req.In {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	out := ConstantProductOut(req.AmountIn, reserveIn, reserveOut)
	if !positive(out) {
		return Result{}, ErrNoQuote
	}
	return Result{AmountOut: out, Fee: 3000}, nil
}

// ConstantProductOut is the x*y=k output with a 0.3% input fee.
func ConstantProductOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if !positive(amountIn) || !positive(reserveIn) || !positive(reserveOut) {
		return new(big.Int)
	}
	withFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	denominator.Add(denominator, withFee)
	return numerator.Div(numerator, denominator)
}
