package attend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sort"
	"sync/atomic"

	"github.com/kozaktomas/face-attendance/internal/assets"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

var (
	// ErrEmbeddingsUnavailable means the registry has never been built.
	ErrEmbeddingsUnavailable = errors.New("face embeddings not available")
	// ErrInvalidIdentity means the identity is empty after normalization.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// User describes a registered identity and its stored reference photos.
type User struct {
	Identity string `json:"user_id"`
	Photos   int    `json:"photos"`
}

// System ties the registry, matcher, ledger and asset store together.
// The matcher snapshot is swapped atomically, so recognition never
// observes a half-updated embedding set.
type System struct {
	registry  *registry.Registry
	ledger    *ledger.Ledger
	extractor extractor.Client
	assets    assets.Store
	threshold float64

	matcher atomic.Pointer[matcher.Matcher]
}

// New creates a recognition system. The matcher is built lazily on
// first use so the process can start before anyone is enrolled.
func New(reg *registry.Registry, led *ledger.Ledger, ext extractor.Client, store assets.Store, threshold float64) *System {
	return &System{
		registry:  reg,
		ledger:    led,
		extractor: ext,
		assets:    store,
		threshold: threshold,
	}
}

// ensureMatcher returns the current matcher snapshot, loading the
// registry on first call.
func (s *System) ensureMatcher(ctx context.Context) (*matcher.Matcher, error) {
	if m := s.matcher.Load(); m != nil {
		return m, nil
	}

	embeddings, err := s.registry.Load(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrEmbeddingsUnavailable
		}
		return nil, fmt.Errorf("could not load embeddings: %w", err)
	}

	m := matcher.New(embeddings, s.threshold)
	s.matcher.Store(m)
	return m, nil
}

// reloadMatcher rebuilds the matcher snapshot from the registry.
func (s *System) reloadMatcher(ctx context.Context) error {
	embeddings, err := s.registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not reload embeddings: %w", err)
	}
	s.matcher.Store(matcher.New(embeddings, s.threshold))
	return nil
}

// Recognize detects all faces in an image and matches each against the
// registry. Results keep the order of the detected faces.
func (s *System) Recognize(ctx context.Context, image []byte) ([]matcher.Result, error) {
	m, err := s.ensureMatcher(ctx)
	if err != nil {
		return nil, err
	}

	faces, err := s.extractor.DetectFaces(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("could not detect faces: %w", err)
	}

	queries := make([][]float32, len(faces))
	boxes := make([][]float64, len(faces))
	for i, face := range faces {
		queries[i] = face.Embedding
		boxes[i] = face.BBox
	}
	return m.MatchBatch(queries, boxes)
}

// RecognizeVector matches a single precomputed embedding.
func (s *System) RecognizeVector(ctx context.Context, vector []float32) (matcher.Result, error) {
	m, err := s.ensureMatcher(ctx)
	if err != nil {
		return matcher.Result{}, err
	}
	return m.Match(vector)
}

// Enroll registers a face photo under the given identity. The photo is
// stored in the asset store and its embedding replaces any previous
// embedding for the identity. Returns the normalized identity and the
// asset key of the stored photo.
func (s *System) Enroll(ctx context.Context, identity string, image []byte) (string, string, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return "", "", ErrInvalidIdentity
	}

	vector, err := s.extractor.EncodeFace(ctx, image)
	if err != nil {
		return "", "", fmt.Errorf("could not encode face: %w", err)
	}

	key, err := s.assets.Put(ctx, identity, image, "jpg")
	if err != nil {
		return "", "", fmt.Errorf("could not store photo: %w", err)
	}

	if err := s.registry.Upsert(ctx, identity, vector); err != nil {
		if delErr := s.assets.Delete(ctx, key); delErr != nil {
			log.Printf("could not roll back photo %s: %v", key, delErr)
		}
		return "", "", fmt.Errorf("could not store embedding: %w", err)
	}

	if err := s.reloadMatcher(ctx); err != nil {
		log.Printf("could not refresh matcher after enrolling %s: %v", identity, err)
	}
	return identity, key, nil
}

// RebuildIndex recomputes every embedding from the stored photos and
// replaces the registry content in one shot. One photo per identity is
// kept (the first in key order). Returns the number of identities
// indexed.
func (s *System) RebuildIndex(ctx context.Context) (int, error) {
	objects, err := s.assets.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not list photos: %w", err)
	}

	samples := make([]registry.Sample, 0, len(objects))
	for _, obj := range objects {
		data, err := s.assets.Get(ctx, obj.Key)
		if err != nil {
			return 0, fmt.Errorf("could not read photo %s: %w", obj.Key, err)
		}
		vector, err := s.extractor.EncodeFace(ctx, data)
		if err != nil {
			if errors.Is(err, extractor.ErrNoFace) {
				log.Printf("no face in %s, skipping", obj.Key)
				continue
			}
			return 0, fmt.Errorf("could not encode %s: %w", obj.Key, err)
		}
		samples = append(samples, registry.Sample{Identity: obj.Identity, Vector: vector})
	}

	embeddings, err := s.registry.RebuildAll(ctx, samples)
	if err != nil {
		return 0, fmt.Errorf("could not rebuild registry: %w", err)
	}
	s.matcher.Store(matcher.New(embeddings, s.threshold))
	return len(embeddings), nil
}

// LogAttendance records an attendance attempt for a recognized
// identity. Unknown results are never logged.
func (s *System) LogAttendance(ctx context.Context, result matcher.Result, source string) (bool, error) {
	if result.Identity == matcher.Unknown {
		return false, nil
	}
	return s.ledger.LogAttempt(ctx, result.Identity, source)
}

// QueryAttendance returns attendance records matching the filter,
// ordered by timestamp.
func (s *System) QueryAttendance(ctx context.Context, filter ledger.Filter) (iter.Seq[ledger.Record], error) {
	return s.ledger.Query(ctx, filter)
}

// LastEvent returns the most recent attendance record for an identity,
// or nil when none exists.
func (s *System) LastEvent(ctx context.Context, identity string) (*ledger.Record, error) {
	return s.ledger.LastEvent(ctx, NormalizeIdentity(identity))
}

// ListUsers returns every registered identity with its photo count.
func (s *System) ListUsers(ctx context.Context) ([]User, error) {
	identities, err := s.registry.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list identities: %w", err)
	}

	counts := map[string]int{}
	if objects, err := s.assets.List(ctx); err == nil {
		for _, obj := range objects {
			counts[obj.Identity]++
		}
	}

	users := make([]User, 0, len(identities))
	for _, id := range identities {
		users = append(users, User{Identity: id, Photos: counts[id]})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Identity < users[j].Identity })
	return users, nil
}

// Threshold reports the configured match threshold.
func (s *System) Threshold() float64 {
	return s.threshold
}
