package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is a single-process CounterStore used in tests and as the
// documented degraded mode when Redis is unavailable at startup.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]memoryWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) Count(_ context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(s.now()) {
		return 0, 0, nil
	}
	return w.count, w.resetAt.Sub(s.now()), nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = memoryWindow{count: 0, resetAt: now.Add(window)}
	}
	w.count++
	s.windows[key] = w
	return w.count, nil
}

// SetClock overrides the time source for window-expiry tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
