// Package event delivers resource commit events to subscribers, either
// within the process or across replicas through Redis pub/sub.
package event

import (
	"context"
	"slices"
	"sync"

	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/log"
)

// Bus is an in-process publisher/subscriber. Publish runs every handler
// synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]domain.EventHandler
	logger   log.Logger
}

var (
	_ domain.EventPublisher  = (*Bus)(nil)
	_ domain.EventSubscriber = (*Bus)(nil)
)

func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.Nop()
	}

	return &Bus{
		handlers: make(map[uint64]domain.EventHandler),
		logger:   logger,
	}
}

// Subscribe registers handler. The returned func removes it and is safe to
// call more than once.
func (b *Bus) Subscribe(handler domain.EventHandler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers evt to every current subscriber.
func (b *Bus) Publish(ctx context.Context, evt domain.ResourceChanged) error {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	handlers := make([]domain.EventHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	b.logger.Debug(ctx, "delivering resource change", log.Fields{
		"resource_id": evt.ResourceID,
		"op":          evt.Op,
		"subscribers": len(handlers),
	})

	for _, h := range handlers {
		h(ctx, evt)
	}

	return nil
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers)
}
