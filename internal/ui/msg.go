package ui

import (
	"github.com/rovshanmuradov/sonic-defi/internal/flow"
	"github.com/rovshanmuradov/sonic-defi/internal/logger"
)

// Tea message types for UI communication

// PreviewMsg carries a finished quote preview and the input key it answers.
type PreviewMsg struct {
	Key     string
	Preview *flow.Preview
	Err     error
}

// ConnectedMsg is the result of a connect request.
type ConnectedMsg struct {
	Address string
	Err     error
}

// SessionMsg mirrors a session event from the core.
type SessionMsg struct {
	Address      string
	ChainID      uint64
	WrongNetwork bool
	Disconnected bool
}

// ApprovedMsg is the result of a standalone approval.
type ApprovedMsg struct {
	Hash string
	Err  error
}

// SwappedMsg is the result of the approve-then-swap sequence.
type SwappedMsg struct {
	Result *flow.ExecuteResult
	Err    error
}

// TxMsg mirrors a settled transaction event.
type TxMsg struct {
	Kind      string
	Hash      string
	Simulated bool
	Err       error
}

// BalancesMsg carries refreshed balances keyed by token id.
type BalancesMsg struct {
	Wallet   string
	Balances map[string]string
}

// LogMsg signals a new log entry.
type LogMsg struct {
	Entry logger.LogEntry
}
