// Package matcher decides identities from face embeddings by comparing
// a query vector against an immutable snapshot of enrolled vectors.
package matcher

import (
	"fmt"
	"math"
	"sort"
)

// Unknown is the identity reported when no enrolled vector is close enough.
const Unknown = "Unknown"

// emptyDistance is reported when the snapshot holds no vectors at all and
// no comparison is possible.
const emptyDistance = 1.0

// Result is the outcome of matching a single query vector.
type Result struct {
	Identity string    `json:"user_id"`
	Distance float64   `json:"distance"`
	BBox     []float64 `json:"bbox,omitempty"` // [x1, y1, x2, y2]
}

// Matcher holds a read-only snapshot of the registry taken at construction
// time. Enrollments after construction are not visible until a new Matcher
// is built from a fresh registry load.
type Matcher struct {
	ids       []string
	vectors   [][]float32
	dim       int
	threshold float64
}

// New builds a matcher snapshot from an identity->vector mapping. Identities
// are ordered lexicographically so argmin ties resolve the same way on every
// run. The threshold is a Euclidean (L2) distance; vectors produced under a
// different norm make it meaningless.
func New(embeddings map[string][]float32, threshold float64) *Matcher {
	ids := make([]string, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vectors := make([][]float32, len(ids))
	dim := 0
	for i, id := range ids {
		vectors[i] = embeddings[id]
		if dim == 0 {
			dim = len(vectors[i])
		}
	}

	return &Matcher{
		ids:       ids,
		vectors:   vectors,
		dim:       dim,
		threshold: threshold,
	}
}

// Size returns the number of identities in the snapshot.
func (m *Matcher) Size() int {
	return len(m.ids)
}

// Threshold returns the acceptance threshold the snapshot was built with.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match finds the enrolled identity closest to the query vector. The result
// carries the true minimum distance even when it exceeds the threshold, so
// callers can see how close the nearest candidate was.
func (m *Matcher) Match(query []float32) (Result, error) {
	if len(m.ids) == 0 {
		return Result{Identity: Unknown, Distance: emptyDistance}, nil
	}
	if len(query) != m.dim {
		return Result{}, fmt.Errorf("query vector has %d dimensions, snapshot has %d: %w", len(query), m.dim, ErrDimensionMismatch)
	}

	bestIdx := 0
	bestDist := EuclideanDistance(m.vectors[0], query)
	for i := 1; i < len(m.vectors); i++ {
		if d := EuclideanDistance(m.vectors[i], query); d < bestDist {
			bestIdx = i
			bestDist = d
		}
	}

	if bestDist <= m.threshold {
		return Result{Identity: m.ids[bestIdx], Distance: bestDist}, nil
	}
	return Result{Identity: Unknown, Distance: bestDist}, nil
}

// MatchBatch matches each query vector independently. Results are index
// aligned with boxes; boxes may be nil when callers have no source
// coordinates.
func (m *Matcher) MatchBatch(queries [][]float32, boxes [][]float64) ([]Result, error) {
	results := make([]Result, len(queries))
	for i, q := range queries {
		res, err := m.Match(q)
		if err != nil {
			return nil, fmt.Errorf("match face %d: %w", i, err)
		}
		if boxes != nil && i < len(boxes) {
			res.BBox = boxes[i]
		}
		results[i] = res
	}
	return results, nil
}

// EuclideanDistance computes the L2 distance between two vectors of equal
// length. Accumulates in float64 to avoid drift on long vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
