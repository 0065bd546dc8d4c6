// internal/token/registry.go
package token

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// Registry holds the token list known to the dashboard. Imported tokens may
// be added at runtime.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]types.Token
	bySymbol map[string]string
	nativeID string
	wrapped  string
}

// NewRegistry validates the list and indexes it. Exactly one native token is
// required; wrappedNative is the ERC20 the native currency is routed through.
func NewRegistry(tokens []types.Token, wrappedNative string) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]types.Token, len(tokens)),
		bySymbol: make(map[string]string, len(tokens)),
		wrapped:  wrappedNative,
	}
	for _, tok := range tokens {
		if err := r.add(tok); err != nil {
			return nil, err
		}
	}
	if r.nativeID == "" {
		return nil, fmt.Errorf("token list has no native token")
	}
	return r, nil
}

// Add registers an imported token. Re-adding a known id is a no-op.
func (r *Registry) Add(tok types.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[tok.ID]; ok {
		return nil
	}
	return r.add(tok)
}

func (r *Registry) add(tok types.Token) error {
	if tok.ID == "" {
		return fmt.Errorf("token %q has empty id", tok.Symbol)
	}
	if _, dup := r.byID[tok.ID]; dup {
		return fmt.Errorf("duplicate token id %q", tok.ID)
	}
	if tok.IsNative() {
		if r.nativeID != "" {
			return fmt.Errorf("second native token %q (already have %q)", tok.ID, r.nativeID)
		}
		r.nativeID = tok.ID
	} else if !address.IsValid(tok.Address) && !address.IsPlaceholder(tok.Address) {
		return fmt.Errorf("token %q: %w: %s", tok.ID, types.ErrInvalidAddress, tok.Address)
	}

	r.byID[tok.ID] = tok
	r.order = append(r.order, tok.ID)
	sym := strings.ToLower(tok.Symbol)
	if _, taken := r.bySymbol[sym]; !taken {
		r.bySymbol[sym] = tok.ID
	}
	return nil
}

// ByID returns the token with the given id.
func (r *Registry) ByID(id string) (types.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.byID[id]
	if !ok {
		return types.Token{}, fmt.Errorf("%w: %s", types.ErrUnknownToken, id)
	}
	return tok, nil
}

// BySymbol looks a token up case-insensitively.
func (r *Registry) BySymbol(symbol string) (types.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySymbol[strings.ToLower(symbol)]
	if !ok {
		return types.Token{}, fmt.Errorf("%w: %s", types.ErrUnknownToken, symbol)
	}
	return r.byID[id], nil
}

// Lookup accepts an id, a symbol or a contract address.
func (r *Registry) Lookup(key string) (types.Token, error) {
	if tok, err := r.ByID(key); err == nil {
		return tok, nil
	}
	if tok, err := r.BySymbol(key); err == nil {
		return tok, nil
	}
	if address.IsValid(key) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, id := range r.order {
			if strings.EqualFold(r.byID[id].Address, key) {
				return r.byID[id], nil
			}
		}
	}
	return types.Token{}, fmt.Errorf("%w: %s", types.ErrUnknownToken, key)
}

// All returns tokens in registration order.
func (r *Registry) All() []types.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Token, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Native() types.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[r.nativeID]
}

// Wrapped returns the registered token at the wrapped-native address, if any.
func (r *Registry) Wrapped() (types.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if strings.EqualFold(r.byID[id].Address, r.wrapped) {
			return r.byID[id], true
		}
	}
	return types.Token{}, false
}

// WrappedAddress is the routing address of the native currency.
func (r *Registry) WrappedAddress() string {
	return r.wrapped
}

// Routable maps the native token onto its wrapped ERC20 address.
func (r *Registry) Routable(tok types.Token) string {
	if tok.IsNative() {
		return r.wrapped
	}
	return tok.Address
}
