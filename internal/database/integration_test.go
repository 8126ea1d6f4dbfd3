//go:build integration

package database_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/registry"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*database.PostgresPool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := database.NewPostgresPool(dbURL, 5, 2)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestPostgresRegistryStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := registry.NewPostgresStore(pool.DB())
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	// empty table means never built
	if _, err := store.Load(ctx); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound on empty table, got %v", err)
	}

	vec := []float32{0.25, -1.5, 3.75}
	if err := store.Upsert(ctx, "alice", vec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	embeddings, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := embeddings["alice"]
	if !ok || len(got) != 3 {
		t.Fatalf("unexpected embeddings: %v", embeddings)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], vec[i])
		}
	}

	// replace on re-enroll
	if err := store.Upsert(ctx, "alice", []float32{1, 1, 1}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	embeddings, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(embeddings) != 1 || embeddings["alice"][0] != 1 {
		t.Errorf("re-enroll did not replace: %v", embeddings)
	}

	// SaveAll swaps the whole content
	err = store.SaveAll(ctx, map[string][]float32{
		"bob":  {2, 2, 2},
		"carl": {3, 3, 3},
	})
	if err != nil {
		t.Fatalf("save all: %v", err)
	}
	embeddings, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load after save all: %v", err)
	}
	if len(embeddings) != 2 {
		t.Errorf("expected 2 identities after rebuild, got %d", len(embeddings))
	}
	if _, stale := embeddings["alice"]; stale {
		t.Error("rebuild kept a stale identity")
	}
}

func TestPostgresLedgerStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := ledger.NewPostgresStore(pool.DB())
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	base := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	rec := ledger.Record{Identity: "alice", Timestamp: base, Source: "camera-1", SessionKey: "20260305"}

	ok, err := store.InsertUnique(ctx, rec)
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}

	// same (session, identity) pair is a duplicate
	dup := rec
	dup.Timestamp = base.Add(time.Minute)
	ok, err = store.InsertUnique(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if ok {
		t.Error("duplicate accepted")
	}

	// next session logs again
	next := rec
	next.SessionKey = "20260306"
	next.Timestamp = base.AddDate(0, 0, 1)
	ok, err = store.InsertUnique(ctx, next)
	if err != nil || !ok {
		t.Fatalf("next session insert: ok=%v err=%v", ok, err)
	}

	// cooldown gate
	cool := ledger.Record{Identity: "bob", Timestamp: base, SessionKey: "b1"}
	if ok, err := store.InsertAfter(ctx, cool, base.Add(-5*time.Minute)); err != nil || !ok {
		t.Fatalf("cooldown first insert: ok=%v err=%v", ok, err)
	}
	cool2 := ledger.Record{Identity: "bob", Timestamp: base.Add(time.Minute), SessionKey: "b2"}
	ok, err = store.InsertAfter(ctx, cool2, cool2.Timestamp.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("cooldown suppressed insert: %v", err)
	}
	if ok {
		t.Error("insert within cooldown accepted")
	}
	cool3 := ledger.Record{Identity: "bob", Timestamp: base.Add(10 * time.Minute), SessionKey: "b3"}
	if ok, err := store.InsertAfter(ctx, cool3, cool3.Timestamp.Add(-5*time.Minute)); err != nil || !ok {
		t.Fatalf("cooldown expired insert: ok=%v err=%v", ok, err)
	}

	records, err := store.Scan(ctx, ledger.Filter{Identity: "alice"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 alice records, got %d", len(records))
	}

	ranged, err := store.Scan(ctx, ledger.Filter{Start: base.Add(-time.Hour), End: base.Add(time.Hour)})
	if err != nil {
		t.Fatalf("range scan: %v", err)
	}
	for _, r := range ranged {
		if r.Timestamp.After(base.Add(time.Hour)) {
			t.Errorf("range scan leaked record at %v", r.Timestamp)
		}
	}
}
