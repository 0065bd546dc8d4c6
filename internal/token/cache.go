// internal/token/cache.go
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

const (
	metadataTTL    = time.Hour
	redisKeyPrefix = "sonic-defi:token:"
)

type cachedToken struct {
	token     types.Token
	expiresAt time.Time
}

// metadataCache: двухуровневый кэш: sync.Map в памяти и опциональный Redis.
type metadataCache struct {
	local sync.Map
	redis *redis.Client
	ttl   time.Duration
}

func newMetadataCache(client *redis.Client, ttl time.Duration) *metadataCache {
	if ttl <= 0 {
		ttl = metadataTTL
	}
	return &metadataCache{redis: client, ttl: ttl}
}

// get проверяет память, затем Redis. Ошибки Redis не фатальны.
func (c *metadataCache) get(ctx context.Context, id string) (*types.Token, bool, error) {
	if value, ok := c.local.Load(id); ok {
		entry := value.(cachedToken)
		if time.Now().Before(entry.expiresAt) {
			tok := entry.token
			return &tok, true, nil
		}
		// Данные устарели
		c.local.Delete(id)
	}

	if c.redis == nil {
		return nil, false, nil
	}
	data, err := c.redis.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var tok types.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	c.local.Store(id, cachedToken{token: tok, expiresAt: time.Now().Add(c.ttl)})
	return &tok, true, nil
}

func (c *metadataCache) put(ctx context.Context, tok types.Token) error {
	c.local.Store(tok.ID, cachedToken{token: tok, expiresAt: time.Now().Add(c.ttl)})
	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return c.redis.Set(ctx, redisKeyPrefix+tok.ID, data, c.ttl).Err()
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
