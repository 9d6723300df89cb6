package credstore

import (
	"context"
	"sync"

	"medigate/pkg/platform/sentinel"
)

// InMemoryKV keeps the initial implementation lightweight and testable. It
// intentionally favors clarity over performance.
type InMemoryKV struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewInMemoryKV() *InMemoryKV {
	return &InMemoryKV{records: make(map[string][]byte)}
}

func (s *InMemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *InMemoryKV) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = stored
	return nil
}

func (s *InMemoryKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
