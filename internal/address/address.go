// Package address validates account and contract addresses and decides
// whether a configured contract is real or an unconfigured placeholder.
package address

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

const placeholderMarker = "placeholder"

// minConfiguredLength is the shortest string treated as a configured address.
const minConfiguredLength = 20

// IsValid reports whether s is a 0x-prefixed 20-byte hex address.
func IsValid(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	return common.IsHexAddress(s)
}

// IsNative reports whether s is the native-currency sentinel.
func IsNative(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), types.NativeAddress)
}

// IsPlaceholder reports whether s is an unconfigured contract address.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < minConfiguredLength {
		return true
	}
	if strings.Contains(strings.ToLower(s), placeholderMarker) {
		return true
	}
	if IsValid(s) && common.HexToAddress(s) == (common.Address{}) {
		return true
	}
	return false
}

// Parse validates s and returns the checksummed address.
func Parse(s string) (common.Address, error) {
	if !IsValid(s) {
		return common.Address{}, fmt.Errorf("%w: %q", types.ErrInvalidAddress, s)
	}
	return common.HexToAddress(strings.TrimSpace(s)), nil
}

// Normalize returns the EIP-55 form of s, or s unchanged when it is not valid.
func Normalize(s string) string {
	if !IsValid(s) {
		return s
	}
	return common.HexToAddress(strings.TrimSpace(s)).Hex()
}

// Shorten renders an address as 0x1234...abcd.
func Shorten(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
