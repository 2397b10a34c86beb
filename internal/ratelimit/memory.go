package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryStore is the in-process fixed-window store. A single coarse mutex
// guards the map; no I/O ever happens under the lock.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time

	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	stopSweep     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock replaces the store's time source, for deterministic tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithSweepInterval overrides the background eviction period.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

// NewMemoryStore creates a new in-memory fixed-window store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records:       make(map[string]*record),
		now:           time.Now,
		sweepInterval: time.Minute,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check applies the fixed-window rules for key. An expired record is
// replaced, not merged. Denied requests do not increment the counter, so a
// client hammering a closed window does not extend its own lockout.
func (s *MemoryStore) Check(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[key]
	if ok && !now.Before(rec.resetAt) {
		delete(s.records, key)
		ok = false
	}

	if !ok {
		resetAt := now.Add(window)
		s.records[key] = &record{count: 1, resetAt: resetAt}
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: resetAt}, nil
	}

	if rec.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: rec.resetAt}, nil
	}

	rec.count++
	return Result{Allowed: true, Remaining: limit - rec.count, ResetAt: rec.resetAt}, nil
}

// Start begins the background sweep that evicts expired records, bounding
// memory growth from clients that stop sending traffic mid-window.
func (s *MemoryStore) Start() error {
	s.sweepTicker = time.NewTicker(s.sweepInterval)
	go s.sweepLoop()
	return nil
}

// Stop terminates the background sweep.
func (s *MemoryStore) Stop() error {
	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}
	close(s.stopSweep)
	return nil
}

func (s *MemoryStore) sweepLoop() {
	for {
		select {
		case <-s.sweepTicker.C:
			s.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// Sweep removes every expired record. Exposed so tests can run eviction
// synchronously instead of waiting on the ticker.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, rec := range s.records {
		if !now.Before(rec.resetAt) {
			delete(s.records, key)
		}
	}
}

// Len reports the number of live records, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
