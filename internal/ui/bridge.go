package ui

import (
	"context"

	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/logger"
)

// BridgeEvents переводит события ядра в сообщения UI. Операции маркетплейса
// приходят в журнал как обычные транзакции. Возвращает функцию отписки.
func BridgeEvents(bus *events.Bus, sender *UpdateSender) func() {
	subs := []events.Subscription{
		bus.SubscribeTopics(events.SessionTopics, events.On(func(_ context.Context, e *events.SessionEvent) error {
			sender.Send(SessionMsg{
				Address:      e.Address,
				ChainID:      e.ChainID,
				WrongNetwork: e.Type() == events.WrongNetwork,
				Disconnected: e.Type() == events.SessionDisconnected,
			})
			return nil
		})),
		bus.SubscribeTopics(events.TransactionTopics, events.On(func(_ context.Context, e *events.TransactionEvent) error {
			sender.Send(TxMsg{Kind: e.Kind, Hash: e.Hash, Simulated: e.Simulated, Err: e.Err})
			return nil
		})),
		bus.SubscribeTopics(events.MarketplaceTopics, events.On(func(_ context.Context, e *events.MarketplaceEvent) error {
			sender.Send(TxMsg{Kind: e.Action, Hash: e.Hash, Simulated: e.Simulated})
			return nil
		})),
		bus.Subscribe(events.BalancesRefreshed, events.On(func(_ context.Context, e *events.BalancesEvent) error {
			sender.Send(BalancesMsg{Wallet: e.Wallet, Balances: e.Balances})
			return nil
		})),
	}
	return func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}
}

// BridgeLogs notifies the UI about every entry added to buf.
func BridgeLogs(buf *logger.LogBuffer, sender *UpdateSender) {
	buf.OnAdd(func(e logger.LogEntry) {
		sender.Send(LogMsg{Entry: e})
	})
}
