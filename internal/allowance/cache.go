// internal/allowance/cache.go
package allowance

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type cacheKey struct {
	token, owner, spender string
}

func newKey(token, owner, spender string) cacheKey {
	return cacheKey{
		token:   strings.ToLower(token),
		owner:   strings.ToLower(owner),
		spender: strings.ToLower(spender),
	}
}

// Cache records the last known allowance per (token, owner, spender).
type Cache struct {
	mu     sync.RWMutex
	values map[cacheKey]decimal.Decimal
}

func NewCache() *Cache {
	return &Cache{values: make(map[cacheKey]decimal.Decimal)}
}

// Set stores a formatted allowance. Unparsable values forget the entry.
func (c *Cache) Set(token, owner, spender, value string) {
	d, err := decimal.NewFromString(value)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		delete(c.values, newKey(token, owner, spender))
		return
	}
	c.values[newKey(token, owner, spender)] = d
}

// Forget drops the entry so the allowance is unknown again.
func (c *Cache) Forget(token, owner, spender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, newKey(token, owner, spender))
}

// Get returns the known allowance.
func (c *Cache) Get(token, owner, spender string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.values[newKey(token, owner, spender)]
	return d, ok
}

// Insufficient reports whether the cached allowance is known to be below amount.
// Unknown entries and unparsable amounts report false.
func (c *Cache) Insufficient(token, owner, spender, amount string) bool {
	want, err := decimal.NewFromString(amount)
	if err != nil {
		return false
	}
	have, ok := c.Get(token, owner, spender)
	return ok && have.LessThan(want)
}
