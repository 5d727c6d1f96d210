package bus

import (
	"context"
	"sync"

	"github.com/yungbote/brandpulse-backend/internal/realtime"
)

// MemoryBus delivers messages in-process. Used when no redis is configured.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   []func(realtime.SSEMessage)
	closed bool
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	subs := append([]func(realtime.SSEMessage){}, b.subs...)
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}
	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

func (b *MemoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return nil
	}
	b.mu.Lock()
	b.subs = append(b.subs, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
	return nil
}
