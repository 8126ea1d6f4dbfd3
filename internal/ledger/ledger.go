// Package ledger records attendance events with at-most-one-record-per-
// identity-per-session-key semantics. Deduplication is enforced by an atomic
// conditional write in the backing store, never by read-then-write, so it
// stays correct when recognition events for the same identity arrive within
// milliseconds of each other.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"
)

var (
	// ErrEmptyIdentity rejects log attempts without an identity before any
	// state is touched.
	ErrEmptyIdentity = errors.New("identity must not be empty")

	// ErrOutsideSchedule is returned when a schedule is configured and the
	// attempt falls outside every allowed window.
	ErrOutsideSchedule = errors.New("attendance outside scheduled hours")
)

// Record is one attendance event.
type Record struct {
	Identity   string    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	SessionKey string    `json:"session_id"`
}

// Filter narrows a ledger query. Zero values mean unbounded; Start and End
// are inclusive.
type Filter struct {
	Identity string
	Start    time.Time
	End      time.Time
}

// Matches reports whether a record passes the filter.
func (f Filter) Matches(rec Record) bool {
	if f.Identity != "" && rec.Identity != f.Identity {
		return false
	}
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && rec.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Store persists attendance records. Both insert operations must be atomic
// conditional writes against the backing medium.
type Store interface {
	// InsertUnique persists rec iff no record exists for
	// (rec.SessionKey, rec.Identity). Returns false when one already does.
	InsertUnique(ctx context.Context, rec Record) (bool, error)
	// InsertAfter persists rec iff the identity's newest gate entry is at or
	// before cutoff, or absent. Returns false when a newer entry suppresses
	// the insert.
	InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error)
	// Scan returns records matching the filter, in no particular order.
	Scan(ctx context.Context, f Filter) ([]Record, error)
}

// Ledger applies a dedup policy and an optional class-hours schedule on top
// of a Store.
type Ledger struct {
	store    Store
	policy   Policy
	schedule *Schedule
	now      func() time.Time
}

// New creates a ledger with the given store and dedup policy.
func New(store Store, policy Policy) *Ledger {
	return &Ledger{store: store, policy: policy, now: time.Now}
}

// SetSchedule restricts logging to the schedule's windows. A nil schedule
// allows logging at any time.
func (l *Ledger) SetSchedule(s *Schedule) {
	l.schedule = s
}

// LogAttempt records attendance for identity unless the dedup policy
// suppresses it as a duplicate. Returns true when a new record was
// persisted, false on suppression.
func (l *Ledger) LogAttempt(ctx context.Context, identity, source string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}

	ts := l.now().UTC()
	if l.schedule != nil && !l.schedule.Allows(ts) {
		return false, ErrOutsideSchedule
	}

	rec := Record{Identity: identity, Timestamp: ts, Source: source}
	logged, err := l.policy.Attempt(ctx, l.store, rec)
	if err != nil {
		return false, fmt.Errorf("log attendance for %q: %w", identity, err)
	}
	return logged, nil
}

// Query returns matching records as a restartable sequence ordered by
// timestamp ascending. The scan happens once, up front; iterating the
// sequence multiple times replays the same snapshot.
func (l *Ledger) Query(ctx context.Context, f Filter) (iter.Seq[Record], error) {
	records, err := l.store.Scan(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return func(yield func(Record) bool) {
		for _, rec := range records {
			if !yield(rec) {
				return
			}
		}
	}, nil
}

// LastEvent returns the most recent record for identity, or nil when the
// identity has never been logged.
func (l *Ledger) LastEvent(ctx context.Context, identity string) (*Record, error) {
	records, err := l.store.Scan(ctx, Filter{Identity: identity})
	if err != nil {
		return nil, fmt.Errorf("last event for %q: %w", identity, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	last := records[0]
	for _, rec := range records[1:] {
		if rec.Timestamp.After(last.Timestamp) {
			last = rec
		}
	}
	return &last, nil
}
