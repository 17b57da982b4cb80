package jobstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the descriptor in process memory. State does not survive
// a restart.
type MemoryStore struct {
	mu sync.Mutex
	d  *Descriptor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d == nil {
		return nil, ErrNoJob
	}
	cp := *s.d
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, d *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.d = &cp
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
