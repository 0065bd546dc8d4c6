// internal/balance/balance.go
package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// DefaultConcurrency ограничивает число параллельных RPC-запросов в одном батче.
const DefaultConcurrency = 8

const nativeDecimals = 18

// Fetcher reads native and ERC20 balances.
type Fetcher struct {
	backend     blockchain.Backend
	concurrency int
	logger      *zap.Logger
}

func NewFetcher(backend blockchain.Backend, concurrency int, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{backend: backend, concurrency: concurrency, logger: logger.Named("balance")}
}

// FetchBalances returns formatted balances keyed by token id. Only a malformed
// owner is an error; every per-token failure degrades to "0".
func (f *Fetcher) FetchBalances(ctx context.Context, owner string, tokens []types.Token) (map[string]string, error) {
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	result := make(map[string]string, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, tok := range tokens {
		g.Go(func() error {
			value := f.fetchOne(gctx, ownerAddr, tok)
			mu.Lock()
			result[tok.ID] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, owner common.Address, tok types.Token) string {
	if tok.IsNative() {
		wei, err := f.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			f.logger.Warn("Failed to read native balance", zap.String("token", tok.ID), zap.Error(err))
			return "0"
		}
		return types.FormatUnits(wei, nativeDecimals)
	}

	if !address.IsValid(tok.Address) {
		f.logger.Warn("Skipping token with malformed address",
			zap.String("token", tok.ID),
			zap.String("address", tok.Address))
		return "0"
	}
	raw, err := contracts.BalanceOf(ctx, f.backend, common.HexToAddress(tok.Address), owner)
	if err != nil {
		f.logger.Warn("Failed to read token balance", zap.String("token", tok.ID), zap.Error(err))
		return "0"
	}
	return types.FormatUnits(raw, tok.Decimals)
}

// Native reads the native balance of owner.
func (f *Fetcher) Native(ctx context.Context, owner string) (*big.Int, error) {
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return nil, err
	}
	wei, err := f.backend.BalanceAt(ctx, ownerAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", ownerAddr.Hex(), err)
	}
	return wei, nil
}

var dust = decimal.New(1, -4)

// FormatBalance renders a balance for display: "0" for zero, "< 0.0001" for
// dust, otherwise rounded to maxDecimals places. Unparsable input renders as "0".
func FormatBalance(value string, maxDecimals int32) string {
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsZero() {
		return "0"
	}
	if d.Abs().LessThan(dust) {
		return "< 0.0001"
	}
	return d.StringFixed(maxDecimals)
}

// FormatTokenAmount сокращает большие суммы до K/M.
func FormatTokenAmount(value string) string {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return "0"
	}
	switch {
	case d.GreaterThanOrEqual(decimal.New(1, 6)):
		return d.Div(decimal.New(1, 6)).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(decimal.New(1, 3)):
		return d.Div(decimal.New(1, 3)).StringFixed(2) + "K"
	}
	return d.StringFixed(2)
}
