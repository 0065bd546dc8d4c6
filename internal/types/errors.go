// internal/types/errors.go
package types

import "errors"

// Ошибки валидации, общие для всех компонентов
var (
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrUnknownToken             = errors.New("unknown token")
	ErrNativeTokenNotApprovable = errors.New("native token does not require approval")
	ErrContractNotFound         = errors.New("no contract code at address")
)

// Ошибки сессии кошелька
var (
	ErrNoSession      = errors.New("wallet not connected")
	ErrSignerMismatch = errors.New("session signer does not control this account")
)
