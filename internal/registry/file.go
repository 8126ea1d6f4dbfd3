package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the embedding database in a single JSON file. Suited to
// single-node deployments and local development; writes go through a temp
// file + rename so a crash never leaves a half-written database.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store at path. The file is created on
// first write, not here; a missing file means ErrNotFound on Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the embedding database from disk.
func (s *FileStore) Load(ctx context.Context) (map[string][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings file: %w", err)
	}

	var embeddings map[string][]float32
	if err := json.Unmarshal(data, &embeddings); err != nil {
		return nil, fmt.Errorf("parse embeddings file: %w", err)
	}
	if embeddings == nil {
		embeddings = make(map[string][]float32)
	}
	return embeddings, nil
}

// SaveAll replaces the on-disk database atomically.
func (s *FileStore) SaveAll(ctx context.Context, embeddings map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(embeddings)
}

// Upsert rewrites the file with the single entry replaced.
func (s *FileStore) Upsert(ctx context.Context, identity string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embeddings := make(map[string][]float32)
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read embeddings file: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &embeddings); err != nil {
			return fmt.Errorf("parse embeddings file: %w", err)
		}
	}

	embeddings[identity] = vector
	return s.write(embeddings)
}

func (s *FileStore) write(embeddings map[string][]float32) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.Marshal(embeddings)
	if err != nil {
		return fmt.Errorf("encode embeddings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write embeddings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace embeddings file: %w", err)
	}
	return nil
}
