// =============================
// File: internal/dex/swap/errors.go
// =============================
package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// ErrorKind классифицирует причину неудачного свапа.
type ErrorKind string

const (
	KindInsufficientOutput    ErrorKind = "insufficient_output"
	KindInsufficientLiquidity ErrorKind = "insufficient_liquidity"
	KindDeadlineExpired       ErrorKind = "deadline_expired"
	KindTransferFailed        ErrorKind = "transfer_failed"
	KindInsufficientFunds     ErrorKind = "insufficient_funds"
	KindGasEstimation         ErrorKind = "gas_estimation"
	KindNonceConflict         ErrorKind = "nonce_conflict"
	KindReverted              ErrorKind = "reverted"
	KindUnknown               ErrorKind = "unknown"
)

type rule struct {
	kind     ErrorKind
	message  string
	patterns []string
}

// Порядок важен: конкретные причины проверяются до общего "execution reverted".
var rules = []rule{
	{KindInsufficientOutput, "price moved beyond slippage tolerance, output below minimum",
		[]string{"Too little received", "INSUFFICIENT_OUTPUT_AMOUNT"}},
	{KindInsufficientLiquidity, "pool does not have enough liquidity for this trade",
		[]string{"INSUFFICIENT_LIQUIDITY", "LOK"}},
	{KindDeadlineExpired, "transaction deadline expired before it was mined",
		[]string{"Transaction too old", "EXPIRED"}},
	{KindTransferFailed, "token transfer failed, check balance and allowance",
		[]string{"STF", "TRANSFER_FROM_FAILED", "transfer amount exceeds allowance"}},
	{KindInsufficientFunds, "insufficient funds for amount plus gas",
		[]string{"insufficient funds"}},
	{KindGasEstimation, "gas could not be estimated, the swap would likely fail",
		[]string{"cannot estimate gas", "gas required exceeds"}},
	{KindNonceConflict, "nonce conflict with a pending transaction",
		[]string{"nonce too low", "replacement transaction underpriced"}},
	{KindReverted, "swap reverted on chain",
		[]string{"execution reverted"}},
}

// SwapError is a classified swap failure.
type SwapError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SwapError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *SwapError) Unwrap() error {
	return e.Err
}

// Classify wraps err into a *SwapError. Upper-case revert codes match
// case-sensitively, phrases match case-insensitively.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var se *SwapError
	if errors.As(err, &se) {
		return err
	}

	text := err.Error()
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, p := range r.patterns {
			if matches(text, lower, p) {
				return &SwapError{Kind: r.kind, Message: r.message, Err: err}
			}
		}
	}
	if errors.Is(err, blockchain.ErrTransactionReverted) {
		return &SwapError{Kind: KindReverted, Message: "swap reverted on chain", Err: err}
	}
	return &SwapError{Kind: KindUnknown, Message: "swap failed", Err: err}
}

func matches(text, lower, pattern string) bool {
	if pattern == strings.ToUpper(pattern) {
		return strings.Contains(text, pattern)
	}
	return strings.Contains(lower, strings.ToLower(pattern))
}

// IsSwapError reports whether err carries a *SwapError.
func IsSwapError(err error) bool {
	var se *SwapError
	return errors.As(err, &se)
}

// IsKind reports whether err is a *SwapError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SwapError
	return errors.As(err, &se) && se.Kind == kind
}
