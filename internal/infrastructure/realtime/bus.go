// Package realtime carries unread events between API instances so that the
// instance holding a viewer's websocket can deliver events produced elsewhere.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"partshub/internal/domain/entity"
)

type Bus interface {
	Publish(ctx context.Context, event entity.UnreadEvent) error
	// StartForwarder delivers every published event to onEvent until ctx ends.
	StartForwarder(ctx context.Context, onEvent func(entity.UnreadEvent)) error
	Ping(ctx context.Context) error
	Close() error
}

type memoryBus struct {
	mu       sync.RWMutex
	handlers []func(entity.UnreadEvent)
}

// NewMemoryBus is the single-instance bus: Publish calls forwarders inline.
func NewMemoryBus() Bus {
	return &memoryBus{}
}

func (b *memoryBus) Publish(ctx context.Context, event entity.UnreadEvent) error {
	b.mu.RLock()
	handlers := append([]func(entity.UnreadEvent){}, b.handlers...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(entity.UnreadEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onEvent)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Ping(ctx context.Context) error { return nil }

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}

func encode(event entity.UnreadEvent) ([]byte, error) {
	return json.Marshal(event)
}

func decode(raw []byte) (entity.UnreadEvent, error) {
	var event entity.UnreadEvent
	err := json.Unmarshal(raw, &event)
	return event, err
}
