package session

import (
	"sync"

	"github.com/google/uuid"

	"aromabridge/internal/models"
)

// MessageHandler receives every decoded inbound or synthesized message.
type MessageHandler func(models.Message)

// Bus broadcasts protocol messages to registered observers. Delivery is
// synchronous in registration order; subscribers must not rely on that
// ordering.
type Bus struct {
	mu    sync.Mutex
	order []string
	subs  map[string]MessageHandler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]MessageHandler)}
}

// Subscribe registers a handler and returns the token used to remove it.
func (b *Bus) Subscribe(h MessageHandler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()
	return id
}

// Unsubscribe removes the handler registered under id. Unknown ids are a
// no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers msg to every subscriber. Handlers run outside the bus
// lock so they may subscribe or unsubscribe reentrantly.
func (b *Bus) Publish(msg models.Message) {
	b.mu.Lock()
	handlers := make([]MessageHandler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}
