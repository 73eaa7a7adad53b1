package entitlement

import (
	"context"
	"sync"
)

// MemoryStore keeps the entitlement record in process memory. Used by
// tests and as the fallback when durable storage is unavailable.
type MemoryStore struct {
	mu  sync.RWMutex
	rec Record
}

// NewMemoryStore creates a memory store seeded with defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rec: DefaultRecord()}
}

// NewMemoryStoreWith creates a memory store seeded with a specific record.
func NewMemoryStoreWith(rec Record) *MemoryStore {
	rec.ApplyDefaults()
	return &MemoryStore{rec: rec}
}

func (s *MemoryStore) Get(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.rec
	rec.UsedPages = append([]string(nil), s.rec.UsedPages...)
	return rec, nil
}

func (s *MemoryStore) Set(ctx context.Context, m Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.apply(&s.rec)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
