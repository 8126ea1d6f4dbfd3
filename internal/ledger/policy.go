package ledger

import (
	"context"
	"time"
)

// DefaultBucketLayout buckets by UTC calendar day, matching a one-entry-per
// -person-per-day deployment.
const DefaultBucketLayout = "20060102"

// recordKeyLayout is a fixed-width UTC layout so session keys derived from
// timestamps compare lexicographically in timestamp order.
const recordKeyLayout = "20060102T150405.000000000Z"

// Policy decides whether an attendance attempt becomes a record. The two
// implementations have different user-visible semantics — a rolling window
// versus a fixed bucket — and are selected by configuration, never mixed:
// an identity logged at 23:59 and again at 00:01 is two records under a
// daily bucket but one under a 5-minute cooldown.
type Policy interface {
	// Attempt persists rec unless it is a duplicate under the policy.
	// The timestamp on rec is set by the ledger; the policy derives the
	// session key.
	Attempt(ctx context.Context, store Store, rec Record) (bool, error)
}

// CalendarBucketPolicy allows one record per identity per fixed calendar
// bucket. The bucket is the record's timestamp formatted with Layout
// (default: UTC day). Dedup is an atomic conditional insert keyed by
// (bucket, identity).
type CalendarBucketPolicy struct {
	Layout string
}

// Attempt implements Policy.
func (p CalendarBucketPolicy) Attempt(ctx context.Context, store Store, rec Record) (bool, error) {
	layout := p.Layout
	if layout == "" {
		layout = DefaultBucketLayout
	}
	rec.SessionKey = rec.Timestamp.UTC().Format(layout)
	return store.InsertUnique(ctx, rec)
}

// CooldownPolicy suppresses duplicate records for an identity within a fixed
// trailing window from its last logged event, independent of calendar
// boundaries. Dedup is an atomic compare-and-set on the identity's latest
// event: the insert goes through only when the previous event is at least
// Window old.
type CooldownPolicy struct {
	Window time.Duration
}

// Attempt implements Policy.
func (p CooldownPolicy) Attempt(ctx context.Context, store Store, rec Record) (bool, error) {
	// Each record gets its own session key so the cooldown gate, not a key
	// collision, decides suppression.
	rec.SessionKey = rec.Timestamp.UTC().Format(recordKeyLayout)
	cutoff := rec.Timestamp.Add(-p.Window)
	return store.InsertAfter(ctx, rec, cutoff)
}
