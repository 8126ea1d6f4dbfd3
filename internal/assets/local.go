package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// LocalStore keeps enrollment images on disk under
// <root>/users/<identity>/<uuid>.<ext>.
type LocalStore struct {
	root string
}

// NewLocalStore creates a directory-backed asset store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Put implements Store.
func (s *LocalStore) Put(ctx context.Context, identity string, data []byte, ext string) (string, error) {
	dir := filepath.Join(s.root, usersPrefix, identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}

	name := uuid.NewString() + "." + ext
	full := filepath.Join(dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write user image: %w", err)
	}
	return filepath.ToSlash(filepath.Join(usersPrefix, identity, name)), nil
}

// Get implements Store.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user image: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete user image: %w", err)
	}
	return nil
}

// List walks the users directory. A store that has never seen a Put returns
// an empty list.
func (s *LocalStore) List(ctx context.Context) ([]ObjectInfo, error) {
	base := filepath.Join(s.root, usersPrefix)
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list user directories: %w", err)
	}

	var out []ObjectInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		identity := entry.Name()
		files, err := os.ReadDir(filepath.Join(base, identity))
		if err != nil {
			return nil, fmt.Errorf("list images for %q: %w", identity, err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			out = append(out, ObjectInfo{
				Identity: identity,
				Key:      filepath.ToSlash(filepath.Join(usersPrefix, identity, f.Name())),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
