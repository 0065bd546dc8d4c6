// internal/types/types.go
package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// NativeAddress is the sentinel stored in Token.Address for the chain's native currency.
const NativeAddress = "native"

// Token describes a fungible asset known to the dashboard.
type Token struct {
	ID       string `json:"id" yaml:"id" mapstructure:"id"`
	Name     string `json:"name" yaml:"name" mapstructure:"name"`
	Symbol   string `json:"symbol" yaml:"symbol" mapstructure:"symbol"`
	Address  string `json:"address" yaml:"address" mapstructure:"address"`
	Decimals uint8  `json:"decimals" yaml:"decimals" mapstructure:"decimals"`
	IconURL  string `json:"iconUrl,omitempty" yaml:"icon_url,omitempty" mapstructure:"icon_url"`
	Balance  string `json:"balance,omitempty" yaml:"-" mapstructure:"-"`
}

// IsNative reports whether the token is the chain's native currency.
func (t Token) IsNative() bool {
	return strings.EqualFold(strings.TrimSpace(t.Address), NativeAddress)
}

// WithBalance returns a copy of the token carrying the given balance.
func (t Token) WithBalance(balance string) Token {
	t.Balance = balance
	return t
}

// NativeCurrency is the metadata a wallet needs to register a network.
type NativeCurrency struct {
	Name     string `json:"name" mapstructure:"name"`
	Symbol   string `json:"symbol" mapstructure:"symbol"`
	Decimals uint8  `json:"decimals" mapstructure:"decimals"`
}

// Network is the single chain the dashboard targets.
type Network struct {
	ChainID         uint64         `json:"chainId" mapstructure:"chain_id"`
	Name            string         `json:"name" mapstructure:"name"`
	RPCURL          string         `json:"rpcUrl" mapstructure:"rpc_url"`
	FallbackRPCURLs []string       `json:"-" mapstructure:"fallback_rpc_urls"`
	ExplorerURL     string         `json:"explorerUrl" mapstructure:"explorer_url"`
	NativeCurrency  NativeCurrency `json:"nativeCurrency" mapstructure:"native_currency"`
}

// RPCURLs returns the primary endpoint followed by the fallbacks.
func (n Network) RPCURLs() []string {
	return append([]string{n.RPCURL}, n.FallbackRPCURLs...)
}

// SwapQuote is a transient preview of a swap. It is never persisted.
type SwapQuote struct {
	AmountOut   string   `json:"amountOut"`
	GasEstimate string   `json:"gasEstimate"`
	Route       []string `json:"route"`
	Strategy    string   `json:"strategy"`
}

// Receipt is the subset of a mined transaction the core reports back.
type Receipt struct {
	Hash        string   `json:"hash"`
	BlockNumber *big.Int `json:"blockNumber,omitempty"`
	GasUsed     uint64   `json:"gasUsed"`
	Success     bool     `json:"success"`
	Simulated   bool     `json:"simulated"`
}

// ParseUnits converts a human decimal string into base units.
// Extra precision beyond decimals is truncated.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, err
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParsePositiveAmount parses amount and reports whether it is strictly positive.
func ParsePositiveAmount(amount string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// WalletSession is an immutable snapshot of a connected wallet. The session
// manager replaces it wholesale and never mutates a published value.
type WalletSession struct {
	Provider blockchain.Backend
	Signer   blockchain.Signer
	Address  common.Address
	ChainID  uint64
}

// SessionSource hands out the current wallet session, or nil when disconnected.
type SessionSource interface {
	Session() *WalletSession
}

// SignerFor returns the session signer acting for owner.
func SignerFor(src SessionSource, owner common.Address) (blockchain.Signer, error) {
	if src == nil {
		return nil, ErrNoSession
	}
	s := src.Session()
	if s == nil || s.Signer == nil {
		return nil, ErrNoSession
	}
	if s.Address != owner {
		return nil, fmt.Errorf("%w: session %s, requested %s", ErrSignerMismatch, s.Address.Hex(), owner.Hex())
	}
	return s.Signer, nil
}
