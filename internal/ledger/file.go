package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps attendance records in a single JSON file. Inserts are
// atomic check-and-set under one mutex, so dedup holds within a process;
// the file is rewritten via a temp file and rename so a crash never leaves
// a torn ledger behind. Meant for single-process deployments.
type FileStore struct {
	mu     sync.Mutex
	path   string
	loaded bool

	records []Record
	unique  map[string]struct{} // sessionKey + "\x00" + identity
	latest  map[string]time.Time
}

// NewFileStore creates a file-backed store. The file is read lazily on
// first use; a missing file is an empty ledger.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		unique: make(map[string]struct{}),
		latest: make(map[string]time.Time),
	}
}

// load reads the ledger file. Caller must hold the mutex.
func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read ledger %s: %w", s.path, err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode ledger %s: %w", s.path, err)
	}
	for _, rec := range records {
		s.index(rec)
	}
	s.loaded = true
	return nil
}

// persist rewrites the ledger file with the given records. Caller must
// hold the mutex.
func (s *FileStore) persist(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

func (s *FileStore) index(rec Record) {
	s.records = append(s.records, rec)
	s.unique[rec.SessionKey+"\x00"+rec.Identity] = struct{}{}
	if last, ok := s.latest[rec.Identity]; !ok || rec.Timestamp.After(last) {
		s.latest[rec.Identity] = rec.Timestamp
	}
}

// InsertUnique implements Store.
func (s *FileStore) InsertUnique(ctx context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}

	if _, dup := s.unique[rec.SessionKey+"\x00"+rec.Identity]; dup {
		return false, nil
	}
	// persist before indexing, a failed write must not suppress retries
	if err := s.persist(append(s.records, rec)); err != nil {
		return false, err
	}
	s.index(rec)
	return true, nil
}

// InsertAfter implements Store.
func (s *FileStore) InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}

	if last, ok := s.latest[rec.Identity]; ok && last.After(cutoff) {
		return false, nil
	}
	if err := s.persist(append(s.records, rec)); err != nil {
		return false, err
	}
	s.index(rec)
	return true, nil
}

// Scan implements Store.
func (s *FileStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
