package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	expires time.Time
}

// MemoryStorage keeps counters in process. TTLs are judged by the clock it
// was built with.
type MemoryStorage struct {
	mu    sync.Mutex
	clock Clock
	data  map[string]memoryEntry
}

func NewMemoryStorage(clock Clock) *MemoryStorage {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryStorage{clock: clock, data: make(map[string]memoryEntry)}
}

func (m *MemoryStorage) Incr(_ context.Context, key string, ttl time.Duration) (int, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e, ok := m.data[key]
	if !ok || !now.Before(e.expires) {
		e = memoryEntry{expires: now.Add(ttl)}
	}
	e.count++
	m.data[key] = e
	return e.count, e.expires.Sub(now), nil
}

func (m *MemoryStorage) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok {
		e.expires = m.clock.Now().Add(ttl)
		m.data[key] = e
	}
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
