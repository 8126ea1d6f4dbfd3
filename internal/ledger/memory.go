package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process
// deployments. Both inserts are atomic check-and-set under one mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	unique  map[string]struct{} // sessionKey + "\x00" + identity
	latest  map[string]time.Time

	InsertError error
	ScanError   error
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		unique: make(map[string]struct{}),
		latest: make(map[string]time.Time),
	}
}

// InsertUnique implements Store.
func (s *MemoryStore) InsertUnique(ctx context.Context, rec Record) (bool, error) {
	if s.InsertError != nil {
		return false, s.InsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.SessionKey + "\x00" + rec.Identity
	if _, dup := s.unique[key]; dup {
		return false, nil
	}
	s.unique[key] = struct{}{}
	s.append(rec)
	return true, nil
}

// InsertAfter implements Store.
func (s *MemoryStore) InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error) {
	if s.InsertError != nil {
		return false, s.InsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.latest[rec.Identity]; ok && last.After(cutoff) {
		return false, nil
	}
	s.append(rec)
	return true, nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	if s.ScanError != nil {
		return nil, s.ScanError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) append(rec Record) {
	s.records = append(s.records, rec)
	if last, ok := s.latest[rec.Identity]; !ok || rec.Timestamp.After(last) {
		s.latest[rec.Identity] = rec.Timestamp
	}
}
