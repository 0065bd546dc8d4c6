// internal/config/tokens.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

type tokenFile struct {
	Tokens []types.Token `yaml:"tokens"`
}

// LoadTokens reads a YAML token list of the form `tokens: [{id, name, symbol, address, decimals}]`.
func LoadTokens(path string) ([]types.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}
	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse token list %s: %w", path, err)
	}
	if len(f.Tokens) == 0 {
		return nil, fmt.Errorf("token list %s is empty", path)
	}
	return f.Tokens, nil
}

// DefaultTokens is the Sonic mainnet token set.
func DefaultTokens() []types.Token {
	return []types.Token{
		{ID: "s", Name: "Sonic", Symbol: "S", Address: types.NativeAddress, Decimals: 18},
		{ID: "sll", Name: "SLL Token", Symbol: "SLL", Address: "0x3F78599a7C0fb772591540225d3C6a7831547a12", Decimals: 18},
		{ID: "ws", Name: "Wrapped Sonic", Symbol: "wS", Address: defaultWrappedNative, Decimals: 18},
		{ID: "usdc", Name: "USD Coin", Symbol: "USDC", Address: "0x29219dd400f2Bf60E5a23d13Be72B486D4038894", Decimals: 6},
		{ID: "usdt", Name: "Tether USD", Symbol: "USDT", Address: "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b", Decimals: 6},
	}
}
