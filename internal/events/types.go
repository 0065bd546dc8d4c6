// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Wallet session events
	SessionConnected    EventType = "session.connected"
	SessionChanged      EventType = "session.changed"
	SessionDisconnected EventType = "session.disconnected"
	WrongNetwork        EventType = "session.wrong_network"

	// Transaction events
	TransactionConfirmed EventType = "transaction.confirmed"
	TransactionFailed    EventType = "transaction.failed"

	// Marketplace events
	MarketplaceSettled EventType = "marketplace.settled"

	// Read-side events
	BalancesRefreshed EventType = "balances.refreshed"
	QuoteUpdated      EventType = "quote.updated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event of the given type with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// SessionEvent is emitted whenever the wallet session is created, replaced or torn down.
type SessionEvent struct {
	BaseEvent
	Address string
	ChainID uint64
	// Expected is the target chain for WrongNetwork events.
	Expected uint64
}

// TransactionEvent is emitted once a write operation settles.
type TransactionEvent struct {
	BaseEvent
	Kind      string // "swap", "approve", "list_nft", ...
	Hash      string
	Wallet    string
	Simulated bool
	Err       error
}

// BalancesEvent carries a fresh balance snapshot keyed by token id.
type BalancesEvent struct {
	BaseEvent
	Wallet   string
	Balances map[string]string
}

// QuoteEvent carries a resolved quote and the input that produced it.
type QuoteEvent struct {
	BaseEvent
	Key       string
	AmountOut string
	Strategy  string
}

// MarketplaceEvent is emitted once a list, delist, buy or transfer settles.
type MarketplaceEvent struct {
	BaseEvent
	Action    string // "list_nft", "delist_nft", "buy_nft", "transfer_nft"
	NFT       string
	TokenID   string
	Account   string
	Hash      string
	Approvals []string
	Simulated bool
}
