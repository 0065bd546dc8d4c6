// internal/gas/gas.go
package gas

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

// Operation names a gas-estimated action.
type Operation string

const (
	OpSwap          Operation = "swap"
	OpBuyNFT        Operation = "buy_nft"
	OpListNFT       Operation = "list_nft"
	OpDelistNFT     Operation = "delist_nft"
	OpTransferNFT   Operation = "transfer_nft"
	OpNFTApproval   Operation = "nft_approval"
	OpTokenApproval Operation = "token_approval"
)

// DefaultFallbackGwei: цена газа, если сеть недоступна.
const DefaultFallbackGwei = 20

type limits struct {
	mock    uint64
	failure uint64
	// revert overrides failure when the estimate reverts.
	revert uint64
}

var opLimits = map[Operation]limits{
	OpSwap:          {mock: 300_000, failure: 300_000, revert: 350_000},
	OpBuyNFT:        {mock: 150_000, failure: 150_000},
	OpListNFT:       {mock: 120_000, failure: 120_000},
	OpDelistNFT:     {mock: 80_000, failure: 80_000},
	OpTransferNFT:   {mock: 100_000, failure: 100_000},
	OpNFTApproval:   {mock: 50_000, failure: 50_000},
	OpTokenApproval: {mock: 60_000, failure: 60_000},
}

// PriceSource provides USD reference prices by symbol.
type PriceSource interface {
	ReferencePrice(symbol string) (float64, bool)
}

// Estimator prices operations with three tiers: live, degraded and mocked.
// It never returns an error.
type Estimator struct {
	backend       blockchain.Backend
	fallbackPrice *big.Int
	prices        PriceSource
	nativeSymbol  string
	metrics       *metrics.Collector
	logger        *zap.Logger
}

// NewEstimator создаёт оценщик газа. prices может быть nil: тогда GasCostInUSD пуст.
func NewEstimator(backend blockchain.Backend, fallbackGwei int64, prices PriceSource, nativeSymbol string, collector *metrics.Collector, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbackGwei <= 0 {
		fallbackGwei = DefaultFallbackGwei
	}
	return &Estimator{
		backend:       backend,
		fallbackPrice: new(big.Int).Mul(big.NewInt(fallbackGwei), big.NewInt(params.GWei)),
		prices:        prices,
		nativeSymbol:  nativeSymbol,
		metrics:       collector,
		logger:        logger.Named("gas"),
	}
}

// call is a packed transaction to price.
type call struct {
	op     Operation
	target string
	from   common.Address
	value  *big.Int
	pack   func() ([]byte, error)
}

func (e *Estimator) estimate(ctx context.Context, c call) *types.GasEstimate {
	lim := opLimits[c.op]
	log := e.logger.With(zap.String("operation", string(c.op)), zap.String("target", c.target))

	target, err := address.Resolve(c.target)
	if err == nil && target.IsSimulated() {
		return e.result(c.op, lim.mock, e.fallbackPrice, types.GasTierMocked)
	}
	if err != nil {
		log.Warn("Malformed gas target, using conservative limit", zap.Error(err))
		return e.failed(ctx, c.op, lim.failure)
	}
	to := target.Address()

	hasCode, err := blockchain.HasCode(ctx, e.backend, to)
	if err != nil || !hasCode {
		log.Warn("No contract at gas target, using conservative limit", zap.Error(err))
		return e.failed(ctx, c.op, lim.failure)
	}

	data, err := c.pack()
	if err != nil {
		log.Warn("Failed to pack call for estimation", zap.Error(err))
		return e.failed(ctx, c.op, lim.failure)
	}

	limit, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: c.value, Data: data})
	if err != nil {
		failure := lim.failure
		if lim.revert > 0 && isRevert(err) {
			failure = lim.revert
		}
		log.Warn("Gas estimation failed, using conservative limit",
			zap.Uint64("limit", failure), zap.Error(err))
		return e.failed(ctx, c.op, failure)
	}

	price, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		log.Warn("Gas price unavailable, using fallback", zap.Error(err))
		return e.result(c.op, limit, e.fallbackPrice, types.GasTierDegraded)
	}
	return e.result(c.op, limit, price, types.GasTierLive)
}

// failed prices a conservative limit with the live price when available.
func (e *Estimator) failed(ctx context.Context, op Operation, limit uint64) *types.GasEstimate {
	price, err := e.backend.SuggestGasPrice(ctx)
	if err != nil || price == nil {
		price = e.fallbackPrice
	}
	return e.result(op, limit, price, types.GasTierDegraded)
}

func (e *Estimator) result(op Operation, limit uint64, price *big.Int, tier types.GasTier) *types.GasEstimate {
	e.metrics.RecordGasEstimate(string(op), string(tier))

	wei := new(big.Int).Mul(new(big.Int).SetUint64(limit), price)
	eth := types.FormatUnits(wei, 18)
	est := &types.GasEstimate{
		GasLimit:     limit,
		GasPrice:     new(big.Int).Set(price),
		GasCostInWei: wei,
		GasCostInEth: eth,
		Tier:         tier,
	}
	if e.prices != nil {
		if usd, ok := e.prices.ReferencePrice(e.nativeSymbol); ok {
			est.GasCostInUSD = decimal.RequireFromString(eth).Mul(decimal.NewFromFloat(usd)).StringFixed(2)
		}
	}
	return est
}

func isRevert(err error) bool {
	if _, ok := contracts.RevertData(err); ok {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
