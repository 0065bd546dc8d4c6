// internal/events/handler.go
package events

import (
	"context"

	"go.uber.org/zap"
)

// Группы типов, на которые подписываются потребители ядра целиком.
var (
	SessionTopics     = []EventType{SessionConnected, SessionChanged, SessionDisconnected, WrongNetwork}
	TransactionTopics = []EventType{TransactionConfirmed, TransactionFailed}
	MarketplaceTopics = []EventType{MarketplaceSettled}
	ReadTopics        = []EventType{BalancesRefreshed, QuoteUpdated}
)

// Handler reacts to core events. Handle runs on the bus worker and must not block.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// On builds a handler for one concrete payload, e.g. On(func(ctx, e *TransactionEvent) error).
// Events carrying any other payload are skipped.
func On[E Event](fn func(context.Context, E) error) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		e, ok := event.(E)
		if !ok {
			return nil
		}
		return fn(ctx, e)
	})
}

// Subscription is returned by Subscribe and SubscribeTopics.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id    string
	bus   *Bus
	topic EventType
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.topic)
}

// topicGroup снимает подписки на несколько типов разом.
type topicGroup []Subscription

func (g topicGroup) Unsubscribe() {
	for _, s := range g {
		s.Unsubscribe()
	}
}

// eventFields describes an event for the bus log without its payload values.
func eventFields(event Event) []zap.Field {
	fields := []zap.Field{zap.String("event_type", string(event.Type()))}
	switch e := event.(type) {
	case *SessionEvent:
		fields = append(fields, zap.String("wallet", e.Address), zap.Uint64("chain_id", e.ChainID))
	case *TransactionEvent:
		fields = append(fields, zap.String("kind", e.Kind), zap.String("tx_hash", e.Hash))
	case *MarketplaceEvent:
		fields = append(fields, zap.String("action", e.Action), zap.String("tx_hash", e.Hash))
	case *BalancesEvent:
		fields = append(fields, zap.String("wallet", e.Wallet))
	case *QuoteEvent:
		fields = append(fields, zap.String("strategy", e.Strategy))
	}
	return fields
}
