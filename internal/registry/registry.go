// Package registry owns the identity -> embedding vector mapping and its
// persistence. The matcher works from an immutable snapshot of this mapping;
// the registry itself persists every mutation immediately.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound means no embedding database has been persisted yet. An
	// empty-but-initialized registry loads as an empty map instead.
	ErrNotFound = errors.New("embedding database not found")

	// ErrEmptyResult means a bulk rebuild derived zero identities. Rebuilds
	// never silently replace the database with nothing.
	ErrEmptyResult = errors.New("no embeddings derived from source images")

	// ErrDimensionMismatch means a vector's length differs from the rest of
	// the registry. Mixed dimensions are data corruption, not a recognition
	// outcome.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Store persists the identity -> vector mapping. Implementations must make
// each call durable before returning; there is no write-behind.
type Store interface {
	// Load returns the full mapping, or ErrNotFound when nothing has ever
	// been persisted.
	Load(ctx context.Context) (map[string][]float32, error)
	// SaveAll replaces the entire mapping.
	SaveAll(ctx context.Context, embeddings map[string][]float32) error
	// Upsert inserts or replaces the single entry for identity.
	Upsert(ctx context.Context, identity string, vector []float32) error
}

// Sample is one candidate (identity, vector) pair for a bulk rebuild,
// typically derived from an enrollment image.
type Sample struct {
	Identity string
	Vector   []float32
}

// Registry validates vectors against a fixed dimension and delegates
// persistence to a Store.
type Registry struct {
	store Store
	dim   int // 0 means infer from the first vector seen
}

// New creates a registry over the given store. dim fixes the expected vector
// dimension; pass 0 to accept whatever dimension the first write establishes.
func New(store Store, dim int) *Registry {
	return &Registry{store: store, dim: dim}
}

// Load returns the current mapping from the backing store.
func (r *Registry) Load(ctx context.Context) (map[string][]float32, error) {
	embeddings, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	for id, vec := range embeddings {
		if err := r.checkDim(vec); err != nil {
			return nil, fmt.Errorf("stored vector for %q: %w", id, err)
		}
	}
	return embeddings, nil
}

// Upsert inserts or replaces the entry for identity. Re-enrolling an
// existing identity replaces its vector; the registry never holds more than
// one vector per identity.
func (r *Registry) Upsert(ctx context.Context, identity string, vector []float32) error {
	if identity == "" {
		return errors.New("identity must not be empty")
	}
	if err := r.checkDim(vector); err != nil {
		return err
	}
	if r.dim == 0 {
		// No configured dimension: enforce consistency with whatever is
		// already stored.
		existing, err := r.store.Load(ctx)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		for _, vec := range existing {
			if len(vec) != len(vector) {
				return fmt.Errorf("vector has %d dimensions, registry has %d: %w", len(vector), len(vec), ErrDimensionMismatch)
			}
			break
		}
	}
	return r.store.Upsert(ctx, identity, vector)
}

// RebuildAll replaces the whole mapping from bulk samples. Samples are
// processed in identity order and the first valid vector per identity wins,
// so repeated rebuilds from the same source produce the same database.
func (r *Registry) RebuildAll(ctx context.Context, samples []Sample) (map[string][]float32, error) {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Identity < sorted[j].Identity })

	embeddings := make(map[string][]float32)
	for _, s := range sorted {
		if s.Identity == "" || len(s.Vector) == 0 {
			continue
		}
		if _, ok := embeddings[s.Identity]; ok {
			continue
		}
		if err := r.checkDim(s.Vector); err != nil {
			return nil, fmt.Errorf("sample for %q: %w", s.Identity, err)
		}
		embeddings[s.Identity] = s.Vector
	}

	if len(embeddings) == 0 {
		return nil, ErrEmptyResult
	}

	if err := r.store.SaveAll(ctx, embeddings); err != nil {
		return nil, fmt.Errorf("persist rebuilt embeddings: %w", err)
	}
	return embeddings, nil
}

// Identities lists enrolled identities in sorted order. A registry that has
// never been built returns an empty list, not an error.
func (r *Registry) Identities(ctx context.Context) ([]string, error) {
	embeddings, err := r.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Registry) checkDim(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector: %w", ErrDimensionMismatch)
	}
	if r.dim != 0 && len(vector) != r.dim {
		return fmt.Errorf("vector has %d dimensions, expected %d: %w", len(vector), r.dim, ErrDimensionMismatch)
	}
	return nil
}
