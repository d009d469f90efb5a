// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed = errors.New("event bus is shutting down")
	ErrBusFull   = errors.New("event channel full")
)

// Handler processes events of a specific type. Handle should not block.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription is returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ EventType
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}

// Bus is an in-memory event bus. Publish never blocks; events are delivered
// from a background goroutine until Shutdown.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[EventType]map[string]Handler
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventChan  chan Event
	bufferSize int
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:   make(map[EventType]map[string]Handler),
		logger:     logger.Named("event_bus"),
		ctx:        ctx,
		cancel:     cancel,
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
	}

	bus.wg.Add(1)
	go bus.processEvents()

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{id: id, bus: b, typ: eventType}
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for asynchronous delivery. A full buffer drops
// the event and returns ErrBusFull.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrBusFull
	}
}

// PublishSync delivers an event to all handlers of its type in the calling
// goroutine and joins their errors.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers[event.Type()]))
	for id, h := range b.handlers[event.Type()] {
		handlers[id] = h
	}
	b.mu.RUnlock()

	var errs []error
	for id, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", id),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("handler %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// drain what was queued before shutdown
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			b.wg.Add(1)
			go func(e Event) {
				defer b.wg.Done()
				if err := b.PublishSync(b.ctx, e); err != nil {
					b.logger.Error("Failed to process event",
						zap.String("event_type", string(e.Type())),
						zap.Error(err))
				}
			}(event)
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops accepting events, delivers the queued ones and waits for
// running handlers or ctx, whichever comes first.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	BufferSize      int
	PendingEvents   int
	HandlersPerType map[EventType]int
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Stats{
		BufferSize:      b.bufferSize,
		PendingEvents:   len(b.eventChan),
		HandlersPerType: make(map[EventType]int, len(b.handlers)),
	}
	for t, handlers := range b.handlers {
		s.HandlersPerType[t] = len(handlers)
	}
	return s
}
