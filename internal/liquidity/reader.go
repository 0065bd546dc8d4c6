// internal/liquidity/reader.go
package liquidity

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

// MockAPY отображается для всех пулов, пока нет источника доходности.
const MockAPY = 15.8

const readConcurrency = 4

// PoolSpec is a configured pair with resolved tokens.
type PoolSpec struct {
	Address string
	Token1  types.Token
	Token2  types.Token
}

// PoolSpecsFromConfig resolves token ids of configured pools.
func PoolSpecsFromConfig(registry *token.Registry, pools []config.PoolConfig) ([]PoolSpec, error) {
	specs := make([]PoolSpec, 0, len(pools))
	for _, p := range pools {
		t1, err := registry.Lookup(p.Token1)
		if err != nil {
			return nil, fmt.Errorf("pool %s token1: %w", p.Address, err)
		}
		t2, err := registry.Lookup(p.Token2)
		if err != nil {
			return nil, fmt.Errorf("pool %s token2: %w", p.Address, err)
		}
		specs = append(specs, PoolSpec{Address: p.Address, Token1: t1, Token2: t2})
	}
	return specs, nil
}

// Reader собирает снимки пулов ликвидности.
type Reader struct {
	backend blockchain.Backend
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewReader(backend blockchain.Backend, collector *metrics.Collector, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{backend: backend, metrics: collector, logger: logger.Named("liquidity")}
}

// FetchPools reads every configured pool. Placeholder, invalid or failing pools
// are skipped; the result keeps configuration order. owner may be empty, in
// which case the user LP balance is not read.
func (r *Reader) FetchPools(ctx context.Context, owner string, specs []PoolSpec) []types.LiquidityPool {
	slots := make([]*types.LiquidityPool, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, spec := range specs {
		g.Go(func() error {
			log := r.logger.With(zap.String("pool", spec.Address))
			if address.IsPlaceholder(spec.Address) || !address.IsValid(spec.Address) {
				log.Warn("Skipping unconfigured pool")
				return nil
			}
			pool, err := r.fetchPool(gctx, owner, spec)
			if err != nil {
				log.Warn("Failed to read pool", zap.Error(err))
				return nil
			}
			slots[i] = pool
			return nil
		})
	}
	_ = g.Wait()

	pools := make([]types.LiquidityPool, 0, len(specs))
	for _, p := range slots {
		if p != nil {
			pools = append(pools, *p)
		}
	}
	return pools
}

func (r *Reader) fetchPool(ctx context.Context, owner string, spec PoolSpec) (*types.LiquidityPool, error) {
	poolAddr := common.HexToAddress(spec.Address)
	if err := r.ValidatePool(ctx, spec.Address); err != nil {
		return nil, err
	}

	reserves, err := contracts.GetReserves(ctx, r.backend, poolAddr)
	if err != nil {
		return nil, err
	}
	token0, _, err := contracts.PoolTokens(ctx, r.backend, poolAddr)
	if err != nil {
		return nil, err
	}
	supply, err := contracts.TotalSupply(ctx, r.backend, poolAddr)
	if err != nil {
		return nil, err
	}

	// Резервы ориентируются по token0 пары.
	reserve1, reserve2 := reserves.Reserve0, reserves.Reserve1
	if address.IsValid(spec.Token2.Address) && common.HexToAddress(spec.Token2.Address) == token0 {
		reserve1, reserve2 = reserves.Reserve1, reserves.Reserve0
	}

	pool := &types.LiquidityPool{
		ID:            spec.Address,
		PoolAddress:   spec.Address,
		Name:          spec.Token1.Symbol + "/" + spec.Token2.Symbol,
		Token1:        spec.Token1,
		Token2:        spec.Token2,
		Reserve1:      types.FormatUnits(reserve1, types.LPDecimals),
		Reserve2:      types.FormatUnits(reserve2, types.LPDecimals),
		TotalSupplyLP: types.FormatUnits(supply, types.LPDecimals),
		APY:           MockAPY,
	}
	pool.TotalLiquidityUSD = tvl(pool.Reserve1, pool.Reserve2)

	if address.IsValid(owner) {
		pool.UserLPBalance = r.userBalance(ctx, poolAddr, common.HexToAddress(owner))
	}

	r.record(pool, reserve1, reserve2)
	return pool, nil
}

// ValidatePool requires deployed code at addr.
func (r *Reader) ValidatePool(ctx context.Context, addr string) error {
	poolAddr, err := address.Parse(addr)
	if err != nil {
		return err
	}
	ok, err := blockchain.HasCode(ctx, r.backend, poolAddr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrContractNotFound, poolAddr.Hex())
	}
	return nil
}

func (r *Reader) userBalance(ctx context.Context, pool, owner common.Address) string {
	raw, err := contracts.BalanceOf(ctx, r.backend, pool, owner)
	if err != nil {
		r.logger.Warn("Failed to read LP balance", zap.String("pool", pool.Hex()), zap.Error(err))
		return "0"
	}
	return types.FormatUnits(raw, types.LPDecimals)
}

func (r *Reader) record(pool *types.LiquidityPool, reserve1, reserve2 *big.Int) {
	r.metrics.UpdatePoolLiquidity(pool.PoolAddress, pool.Token1.Symbol, toFloat(reserve1))
	r.metrics.UpdatePoolLiquidity(pool.PoolAddress, pool.Token2.Symbol, toFloat(reserve2))
}

// tvl считает стоимость пула по $1 за токен.
func tvl(reserve1, reserve2 string) string {
	a, err1 := decimal.NewFromString(reserve1)
	b, err2 := decimal.NewFromString(reserve2)
	if err1 != nil || err2 != nil {
		return "0.00"
	}
	return a.Add(b).StringFixed(2)
}

func toFloat(raw *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(raw, -types.LPDecimals).Float64()
	return f
}
