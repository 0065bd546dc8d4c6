// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultBufferSize = 64

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event bus queue is full")
)

// Bus раздает события ядра (сессия, транзакции, маркетплейс, балансы)
// подписчикам. Publish кладет событие в очередь одного воркера, поэтому
// порядок доставки совпадает с порядком публикации; PublishSync вызывает
// обработчики в горутине отправителя.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[EventType]map[string]Handler
	dropped   map[EventType]uint64
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	eventChan chan Event
}

// Stats describes the bus state.
type Stats struct {
	BufferSize      int
	PendingEvents   int
	DroppedEvents   uint64
	DroppedPerType  map[EventType]uint64
	HandlersPerType map[EventType]int
}

// NewBus starts the delivery worker. bufferSize <= 0 selects the default.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:  make(map[EventType]map[string]Handler),
		dropped:   make(map[EventType]uint64),
		logger:    logger.Named("event_bus"),
		ctx:       ctx,
		cancel:    cancel,
		eventChan: make(chan Event, bufferSize),
	}

	bus.wg.Add(1)
	go bus.run()

	return bus
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(topic EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[string]Handler)
	}
	b.handlers[topic][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(topic)),
		zap.String("subscription_id", id))

	return &subscription{id: id, bus: b, topic: topic}
}

// SubscribeFunc subscribes a plain function.
func (b *Bus) SubscribeFunc(topic EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(topic, HandlerFunc(fn))
}

// SubscribeTopics registers one handler for every type in topics, e.g.
// SessionTopics. Unsubscribe on the result removes all of them.
func (b *Bus) SubscribeTopics(topics []EventType, handler Handler) Subscription {
	group := make(topicGroup, 0, len(topics))
	for _, topic := range topics {
		group = append(group, b.Subscribe(topic, handler))
	}
	return group
}

// Publish queues an event without blocking. A full queue drops the event
// and returns ErrBusFull. A nil bus accepts and drops everything.
func (b *Bus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	if b.ctx.Err() != nil {
		return ErrBusClosed
	}
	select {
	case b.eventChan <- event:
		return nil
	default:
		b.mu.Lock()
		b.dropped[event.Type()]++
		b.mu.Unlock()
		b.logger.Warn("Event queue full, dropping event", eventFields(event)...)
		return ErrBusFull
	}
}

// PublishSync delivers an event to all handlers on the calling goroutine and
// joins their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	subscribed := b.handlers[event.Type()]
	handlers := make([]Handler, 0, len(subscribed))
	ids := make([]string, 0, len(subscribed))
	for id, h := range subscribed {
		handlers = append(handlers, h)
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	var errs []error
	for i, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			fields := append(eventFields(event), zap.String("handler_id", ids[i]), zap.Error(err))
			b.logger.Error("Event handler failed", fields...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// дочищаем очередь, чтобы подтвержденные транзакции не потерялись
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			_ = b.PublishSync(b.ctx, event)
		}
	}
}

func (b *Bus) unsubscribe(id string, topic EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[topic]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, topic)
		}
	}
}

// Shutdown drains queued events and stops the worker.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Debug("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout", zap.Int("pending", len(b.eventChan)))
		return ctx.Err()
	}
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[EventType]int, len(b.handlers))
	for topic, handlers := range b.handlers {
		counts[topic] = len(handlers)
	}
	var total uint64
	dropped := make(map[EventType]uint64, len(b.dropped))
	for topic, n := range b.dropped {
		dropped[topic] = n
		total += n
	}
	return Stats{
		BufferSize:      cap(b.eventChan),
		PendingEvents:   len(b.eventChan),
		DroppedEvents:   total,
		DroppedPerType:  dropped,
		HandlersPerType: counts,
	}
}
