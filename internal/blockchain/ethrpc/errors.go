// internal/blockchain/ethrpc/errors.go
package ethrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNoActiveNodes возникает, когда все узлы помечены неактивными
	ErrNoActiveNodes = errors.New("no active RPC nodes available")

	// ErrChainMismatch возникает, когда узел обслуживает другую сеть
	ErrChainMismatch = errors.New("RPC node serves a different chain")
)

// Error представляет ошибку RPC с контекстом узла
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// retryable сообщает, стоит ли повторить запрос на другом узле. Ответы узла
// (JSON-RPC ошибки, revert, NotFound) не повторяются: другой узел ответит так же.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	return true
}
