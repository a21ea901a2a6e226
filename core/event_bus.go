package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// EventBus is an in-process typed handler registry. Handlers for a kind are
// invoked in registration order on the publishing goroutine.
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventKind][]busHandler
}

type busHandler struct {
	id      uint64
	handler EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: map[EventKind][]busHandler{}}
}

func (b *EventBus) Subscribe(kind EventKind, handler EventHandler) Subscription {
	if b == nil || handler == nil {
		return noopSubscription{}
	}
	kind = EventKind(strings.TrimSpace(string(kind)))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[EventKind][]busHandler{}
	}
	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], busHandler{id: id, handler: handler})
	return &busSubscription{bus: b, kind: kind, id: id}
}

// Publish runs every handler registered for the event kind. A failing handler
// does not stop the remaining ones; failures are joined into the result.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if b == nil {
		return fmt.Errorf("core: event bus is not configured")
	}
	if event == nil {
		return fmt.Errorf("core: event is required")
	}

	b.mu.RLock()
	registered := append([]busHandler(nil), b.handlers[event.Kind()]...)
	b.mu.RUnlock()

	var publishErr error
	for _, entry := range registered {
		if err := entry.handler(ctx, event); err != nil {
			publishErr = joinErrors(publishErr, err)
		}
	}
	return publishErr
}

// HandlerCount reports how many handlers are registered for kind.
func (b *EventBus) HandlerCount(kind EventKind) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

func (b *EventBus) remove(kind EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.handlers[kind]
	for i, entry := range current {
		if entry.id != id {
			continue
		}
		next := make([]busHandler, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, kind)
		} else {
			b.handlers[kind] = next
		}
		return
	}
}

type busSubscription struct {
	once sync.Once
	bus  *EventBus
	kind EventKind
	id   uint64
}

func (s *busSubscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.kind, s.id)
	})
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

var _ EventSubscriber = (*EventBus)(nil)
