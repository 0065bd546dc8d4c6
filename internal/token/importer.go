// internal/token/importer.go
package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// Importer reads ERC20 metadata for arbitrary addresses and caches it.
type Importer struct {
	backend blockchain.Backend
	cache   *metadataCache
	logger  *zap.Logger
}

// NewImporter создаёт импортёр. redisClient может быть nil.
func NewImporter(backend blockchain.Backend, redisClient *redis.Client, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		backend: backend,
		cache:   newMetadataCache(redisClient, metadataTTL),
		logger:  logger.Named("token-importer"),
	}
}

// Import returns token metadata for addr. The token id is the lower-cased address.
func (i *Importer) Import(ctx context.Context, addr string) (*types.Token, error) {
	a, err := address.Parse(addr)
	if err != nil {
		return nil, err
	}
	id := strings.ToLower(a.Hex())

	// 1. Кэш
	cached, ok, err := i.cache.get(ctx, id)
	if err != nil {
		i.logger.Warn("Token cache unavailable", zap.String("token", id), zap.Error(err))
	}
	if ok {
		i.logger.Debug("Token metadata retrieved from cache", zap.String("symbol", cached.Symbol))
		return cached, nil
	}

	// 2. On-chain
	hasCode, err := blockchain.HasCode(ctx, i.backend, a)
	if err != nil {
		return nil, err
	}
	if !hasCode {
		return nil, fmt.Errorf("%w: %s", types.ErrContractNotFound, a.Hex())
	}
	info, err := contracts.ReadTokenInfo(ctx, i.backend, a)
	if err != nil {
		return nil, fmt.Errorf("read token metadata: %w", err)
	}

	tok := types.Token{
		ID:       id,
		Name:     info.Name,
		Symbol:   info.Symbol,
		Address:  a.Hex(),
		Decimals: info.Decimals,
	}
	if err := i.cache.put(ctx, tok); err != nil {
		i.logger.Warn("Failed to cache token metadata", zap.String("token", id), zap.Error(err))
	}

	i.logger.Info("Token imported",
		zap.String("address", tok.Address),
		zap.String("symbol", tok.Symbol),
		zap.Uint8("decimals", tok.Decimals))
	return &tok, nil
}
