// Package dedup tracks processed webhook event ids.
package dedup

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
)

// Deduplicator answers whether an event id was already handled
type Deduplicator interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// MemorySet is a bounded set of ids. Once full, the oldest id is evicted.
type MemorySet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func NewMemorySet(capacity int) *MemorySet {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemorySet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (s *MemorySet) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok, nil
}

func (s *MemorySet) Mark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return nil
	}

	s.index[id] = s.order.PushBack(id)
	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
	return nil
}

func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Layered checks the in-process set before the durable store and
// writes through to both on Mark.
type Layered struct {
	memory  Deduplicator
	durable Deduplicator
	logger  *slog.Logger
}

func NewLayered(logger *slog.Logger, memory, durable Deduplicator) *Layered {
	return &Layered{memory: memory, durable: durable, logger: logger}
}

func (l *Layered) Seen(ctx context.Context, id string) (bool, error) {
	if ok, _ := l.memory.Seen(ctx, id); ok {
		return true, nil
	}

	ok, err := l.durable.Seen(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		// warm the fast path for redeliveries after a restart
		_ = l.memory.Mark(ctx, id)
	}
	return ok, nil
}

// Mark records id durably first. A durable failure is logged and the id is
// still kept in memory; handlers stay idempotent without it.
func (l *Layered) Mark(ctx context.Context, id string) error {
	if err := l.durable.Mark(ctx, id); err != nil {
		l.logger.Warn("Failed to persist processed event id",
			"event_id", id,
			"error", err,
		)
		_ = l.memory.Mark(ctx, id)
		return err
	}
	return l.memory.Mark(ctx, id)
}
