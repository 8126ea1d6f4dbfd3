package assets

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory asset store for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte // key -> data
	owners  map[string]string // key -> identity
	counter int

	PutError error
}

// NewMemoryStore creates an empty memory asset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		owners:  make(map[string]string),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, identity string, data []byte, ext string) (string, error) {
	if s.PutError != nil {
		return "", s.PutError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	key := fmt.Sprintf("%s/%s/%04d.%s", usersPrefix, identity, s.counter, ext)
	s.objects[key] = append([]byte(nil), data...)
	s.owners[key] = identity
	return key, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	delete(s.owners, key)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ObjectInfo
	for key, identity := range s.owners {
		out = append(out, ObjectInfo{Identity: identity, Key: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
