package otp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a map and sweeps each one with a timer once
// its TTL has passed. Entries are process-local and lost on restart, so
// every server instance has its own set of codes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	Entry
	timer *time.Timer
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
	}
}

// Put implements Store. Replacing an entry cancels the sweep of the old one
// so it cannot remove the newer code.
func (s *MemoryStore) Put(ctx context.Context, phone string, e Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[phone]; ok && old.timer != nil {
		old.timer.Stop()
	}

	me := &memoryEntry{Entry: e}
	if ttl > 0 {
		me.timer = time.AfterFunc(ttl, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			// a sweep that lost the race with Stop must not touch a newer entry
			if cur, ok := s.entries[phone]; ok && cur == me {
				delete(s.entries, phone)
			}
		})
	}
	s.entries[phone] = me
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, phone string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	me, ok := s.entries[phone]
	if !ok {
		return Entry{}, false, nil
	}
	return me.Entry, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if me, ok := s.entries[phone]; ok {
		if me.timer != nil {
			me.timer.Stop()
		}
		delete(s.entries, phone)
	}
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, me := range s.entries {
		if me.timer != nil {
			me.timer.Stop()
		}
	}
	s.entries = make(map[string]*memoryEntry)
	return nil
}
