package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 8)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.SubscribeFunc(SessionChanged, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(SessionEvent).Address)
		if len(got) == 2 {
			close(done)
		}
		return nil
	})

	require.NoError(t, bus.Publish(SessionEvent{BaseEvent: NewBase(SessionChanged), Address: "0x1"}))
	require.NoError(t, bus.Publish(SessionEvent{BaseEvent: NewBase(SessionChanged), Address: "0x2"}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("events not delivered")
	}
	assert.Equal(t, []string{"0x1", "0x2"}, got)
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	boom := errors.New("boom")
	bus.SubscribeFunc(TransactionFailed, func(context.Context, Event) error { return boom })
	sub := bus.SubscribeFunc(TransactionFailed, func(context.Context, Event) error { return nil })

	err := bus.PublishSync(context.Background(), TransactionEvent{BaseEvent: NewBase(TransactionFailed)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, bus.Stats().HandlersPerType[TransactionFailed])

	sub.Unsubscribe()
	assert.Equal(t, 1, bus.Stats().HandlersPerType[TransactionFailed])
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.Publish(SessionEvent{BaseEvent: NewBase(SessionConnected)}))
	assert.NoError(t, bus.PublishSync(context.Background(), SessionEvent{BaseEvent: NewBase(SessionConnected)}))
}

func TestOnSkipsOtherPayloads(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var got []string
	sub := bus.SubscribeTopics(MarketplaceTopics, On(func(_ context.Context, e *MarketplaceEvent) error {
		got = append(got, e.Action+":"+e.Hash)
		return nil
	}))

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, &MarketplaceEvent{BaseEvent: NewBase(MarketplaceSettled), Action: "list_nft", Hash: "0xa1"}))
	// чужой payload под тем же типом не ломает обработчик
	require.NoError(t, bus.PublishSync(ctx, &TransactionEvent{BaseEvent: NewBase(MarketplaceSettled), Kind: "swap"}))
	assert.Equal(t, []string{"list_nft:0xa1"}, got)

	sub.Unsubscribe()
	assert.Empty(t, bus.Stats().HandlersPerType)
}

func TestSubscribeTopicsCoversEveryType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	seen := map[EventType]int{}
	sub := bus.SubscribeTopics(SessionTopics, On(func(_ context.Context, e *SessionEvent) error {
		seen[e.Type()]++
		return nil
	}))
	defer sub.Unsubscribe()

	for _, topic := range SessionTopics {
		require.NoError(t, bus.PublishSync(context.Background(), &SessionEvent{BaseEvent: NewBase(topic), Address: "0x1"}))
	}
	require.NoError(t, bus.PublishSync(context.Background(), &TransactionEvent{BaseEvent: NewBase(TransactionConfirmed)}))

	assert.Len(t, seen, len(SessionTopics))
	for _, topic := range SessionTopics {
		assert.Equal(t, 1, seen[topic], topic)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.SubscribeFunc(TransactionConfirmed, func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	event := &TransactionEvent{BaseEvent: NewBase(TransactionConfirmed), Kind: "swap"}
	require.NoError(t, bus.Publish(event))
	<-started
	require.NoError(t, bus.Publish(event))
	assert.ErrorIs(t, bus.Publish(event), ErrBusFull)

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.DroppedEvents)
	assert.Equal(t, uint64(1), stats.DroppedPerType[TransactionConfirmed])

	close(release)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(event), ErrBusClosed)
}
