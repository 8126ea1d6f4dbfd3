package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fixedClock pins the ledger's clock for deterministic session keys.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCalendarBucketDedup(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), CalendarBucketPolicy{})

	day1 := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	l.now = fixedClock(day1)

	logged, err := l.LogAttempt(ctx, "alice", "camera")
	if err != nil {
		t.Fatalf("first LogAttempt() error = %v", err)
	}
	if !logged {
		t.Error("first LogAttempt() = false, want true")
	}

	// Same day, hours later: suppressed.
	l.now = fixedClock(day1.Add(8 * time.Hour))
	logged, err = l.LogAttempt(ctx, "alice", "camera")
	if err != nil {
		t.Fatalf("second LogAttempt() error = %v", err)
	}
	if logged {
		t.Error("second LogAttempt() in same bucket = true, want false")
	}

	// Next day: the session key rolls over and logging works again.
	l.now = fixedClock(day1.Add(24 * time.Hour))
	logged, err = l.LogAttempt(ctx, "alice", "camera")
	if err != nil {
		t.Fatalf("third LogAttempt() error = %v", err)
	}
	if !logged {
		t.Error("LogAttempt() after bucket rollover = false, want true")
	}
}

func TestCalendarBucketIndependentIdentities(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), CalendarBucketPolicy{})
	l.now = fixedClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))

	for _, id := range []string{"alice", "bob"} {
		logged, err := l.LogAttempt(ctx, id, "camera")
		if err != nil {
			t.Fatalf("LogAttempt(%q) error = %v", id, err)
		}
		if !logged {
			t.Errorf("LogAttempt(%q) = false, want true", id)
		}
	}
}

func TestCooldownDedup(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), CooldownPolicy{Window: 5 * time.Minute})

	start := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{200 * time.Second, false},
		{301 * time.Second, true},
	}
	for _, step := range steps {
		l.now = fixedClock(start.Add(step.offset))
		logged, err := l.LogAttempt(ctx, "bob", "camera")
		if err != nil {
			t.Fatalf("LogAttempt() at +%v error = %v", step.offset, err)
		}
		if logged != step.want {
			t.Errorf("LogAttempt() at +%v = %v, want %v", step.offset, logged, step.want)
		}
	}
}

func TestPoliciesDivergeAtMidnight(t *testing.T) {
	// An identity logged at 23:59 and again at 00:01 is two records under a
	// daily bucket but a duplicate under a 5-minute cooldown. The policies
	// are interchangeable, not equivalent.
	ctx := context.Background()
	lateNight := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	pastMidnight := time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC)

	t.Run("calendar bucket logs both", func(t *testing.T) {
		l := New(NewMemoryStore(), CalendarBucketPolicy{})
		l.now = fixedClock(lateNight)
		if logged, _ := l.LogAttempt(ctx, "alice", "camera"); !logged {
			t.Fatal("first LogAttempt() = false, want true")
		}
		l.now = fixedClock(pastMidnight)
		if logged, _ := l.LogAttempt(ctx, "alice", "camera"); !logged {
			t.Error("LogAttempt() after midnight = false, want true under bucket policy")
		}
	})

	t.Run("cooldown suppresses the second", func(t *testing.T) {
		l := New(NewMemoryStore(), CooldownPolicy{Window: 5 * time.Minute})
		l.now = fixedClock(lateNight)
		if logged, _ := l.LogAttempt(ctx, "alice", "camera"); !logged {
			t.Fatal("first LogAttempt() = false, want true")
		}
		l.now = fixedClock(pastMidnight)
		if logged, _ := l.LogAttempt(ctx, "alice", "camera"); logged {
			t.Error("LogAttempt() after midnight = true, want false under cooldown policy")
		}
	})
}

func TestConcurrentAttemptsSingleWinner(t *testing.T) {
	ctx := context.Background()

	policies := map[string]Policy{
		"calendar": CalendarBucketPolicy{},
		"cooldown": CooldownPolicy{Window: 5 * time.Minute},
	}

	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			l := New(NewMemoryStore(), policy)
			l.now = fixedClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))

			const n = 32
			results := make([]bool, n)
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					logged, err := l.LogAttempt(ctx, "alice", "camera")
					if err != nil {
						t.Errorf("LogAttempt() error = %v", err)
						return
					}
					results[i] = logged
				}()
			}
			wg.Wait()

			winners := 0
			for _, logged := range results {
				if logged {
					winners++
				}
			}
			if winners != 1 {
				t.Errorf("%d concurrent attempts produced %d winners, want exactly 1", n, winners)
			}
		})
	}
}

func TestLogAttemptEmptyIdentity(t *testing.T) {
	l := New(NewMemoryStore(), CalendarBucketPolicy{})
	_, err := l.LogAttempt(context.Background(), "", "camera")
	if !errors.Is(err, ErrEmptyIdentity) {
		t.Errorf("LogAttempt(\"\") error = %v, want ErrEmptyIdentity", err)
	}
}

func TestLogAttemptOutsideSchedule(t *testing.T) {
	l := New(NewMemoryStore(), CalendarBucketPolicy{})
	l.SetSchedule(&Schedule{Windows: []Window{
		{Weekday: "Thursday", Start: "14:40", End: "18:40"},
	}})

	// 2024-03-15 is a Friday.
	l.now = fixedClock(time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC))
	_, err := l.LogAttempt(context.Background(), "alice", "camera")
	if !errors.Is(err, ErrOutsideSchedule) {
		t.Fatalf("LogAttempt() error = %v, want ErrOutsideSchedule", err)
	}

	// 2024-03-14 is a Thursday inside the window.
	l.now = fixedClock(time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC))
	logged, err := l.LogAttempt(context.Background(), "alice", "camera")
	if err != nil {
		t.Fatalf("LogAttempt() in window error = %v", err)
	}
	if !logged {
		t.Error("LogAttempt() in window = false, want true")
	}
}

func TestQueryOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store, CooldownPolicy{Window: time.Minute})

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	events := []struct {
		identity string
		offset   time.Duration
	}{
		{"carol", 10 * time.Minute},
		{"alice", 0},
		{"bob", 5 * time.Minute},
		{"alice", 20 * time.Minute},
	}
	for _, ev := range events {
		l.now = fixedClock(base.Add(ev.offset))
		if logged, err := l.LogAttempt(ctx, ev.identity, "test"); err != nil || !logged {
			t.Fatalf("LogAttempt(%q) = %v, %v", ev.identity, logged, err)
		}
	}

	t.Run("ascending order", func(t *testing.T) {
		seq, err := l.Query(ctx, Filter{})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		var prev time.Time
		count := 0
		for rec := range seq {
			if rec.Timestamp.Before(prev) {
				t.Errorf("records out of order: %v before %v", rec.Timestamp, prev)
			}
			prev = rec.Timestamp
			count++
		}
		if count != 4 {
			t.Errorf("Query() yielded %d records, want 4", count)
		}
	})

	t.Run("restartable", func(t *testing.T) {
		seq, err := l.Query(ctx, Filter{Identity: "alice"})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		first, second := 0, 0
		for range seq {
			first++
		}
		for range seq {
			second++
		}
		if first != 2 || second != 2 {
			t.Errorf("iterations yielded %d then %d records, want 2 and 2", first, second)
		}
	})

	t.Run("time range inclusive", func(t *testing.T) {
		seq, err := l.Query(ctx, Filter{
			Start: base.Add(5 * time.Minute),
			End:   base.Add(10 * time.Minute),
		})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		var got []string
		for rec := range seq {
			got = append(got, rec.Identity)
		}
		if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
			t.Errorf("Query() range = %v, want [bob carol]", got)
		}
	})
}

func TestLastEvent(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), CooldownPolicy{Window: time.Minute})

	rec, err := l.LastEvent(ctx, "ghost")
	if err != nil {
		t.Fatalf("LastEvent() error = %v", err)
	}
	if rec != nil {
		t.Errorf("LastEvent() for unknown identity = %+v, want nil", rec)
	}

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 2 * time.Minute, 4 * time.Minute} {
		l.now = fixedClock(base.Add(offset))
		if _, err := l.LogAttempt(ctx, "alice", "test"); err != nil {
			t.Fatalf("LogAttempt() error = %v", err)
		}
	}

	rec, err = l.LastEvent(ctx, "alice")
	if err != nil {
		t.Fatalf("LastEvent() error = %v", err)
	}
	if rec == nil {
		t.Fatal("LastEvent() = nil, want newest record")
	}
	if !rec.Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("LastEvent() timestamp = %v, want %v", rec.Timestamp, base.Add(4*time.Minute))
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	store := NewMemoryStore()
	store.InsertError = errors.New("table unavailable")
	l := New(store, CalendarBucketPolicy{})

	_, err := l.LogAttempt(context.Background(), "alice", "camera")
	if err == nil || !errors.Is(err, store.InsertError) {
		t.Errorf("LogAttempt() error = %v, want wrapped store error", err)
	}
}
