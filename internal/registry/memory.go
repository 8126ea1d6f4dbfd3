package registry

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and as a scratch backend.
// Error fields inject failures for exercising error paths.
type MemoryStore struct {
	mu         sync.RWMutex
	embeddings map[string][]float32
	built      bool

	LoadError    error
	SaveAllError error
	UpsertError  error
}

// NewMemoryStore creates an empty, never-built memory store. Load returns
// ErrNotFound until the first SaveAll or Upsert.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{embeddings: make(map[string][]float32)}
}

// Seed marks the store as built and fills it with the given mapping.
func (s *MemoryStore) Seed(embeddings map[string][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.built = true
	s.embeddings = make(map[string][]float32, len(embeddings))
	for id, vec := range embeddings {
		s.embeddings[id] = append([]float32(nil), vec...)
	}
}

// Load returns a copy of the stored mapping.
func (s *MemoryStore) Load(ctx context.Context) (map[string][]float32, error) {
	if s.LoadError != nil {
		return nil, s.LoadError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.built {
		return nil, ErrNotFound
	}
	out := make(map[string][]float32, len(s.embeddings))
	for id, vec := range s.embeddings {
		out[id] = append([]float32(nil), vec...)
	}
	return out, nil
}

// SaveAll replaces the stored mapping.
func (s *MemoryStore) SaveAll(ctx context.Context, embeddings map[string][]float32) error {
	if s.SaveAllError != nil {
		return s.SaveAllError
	}
	s.Seed(embeddings)
	return nil
}

// Upsert inserts or replaces a single entry.
func (s *MemoryStore) Upsert(ctx context.Context, identity string, vector []float32) error {
	if s.UpsertError != nil {
		return s.UpsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.built = true
	s.embeddings[identity] = append([]float32(nil), vector...)
	return nil
}
