package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// PostgresStore persists embeddings in a PostgreSQL table with a pgvector
// column. Embeddings are small (one row per identity), so loads read the
// whole table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the faces table and the vector extension if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS faces (
			face_id    TEXT PRIMARY KEY,
			embedding  vector NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure faces schema: %w", err)
		}
	}
	return nil
}

// Load reads all face rows. Zero rows means the registry was never built:
// rebuilds refuse to persist an empty database and identities cannot be
// deleted, so an empty table cannot be an initialized registry.
func (s *PostgresStore) Load(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT face_id, embedding FROM faces`)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	embeddings := make(map[string][]float32)
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan face row: %w", err)
		}
		embeddings[id] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face rows: %w", err)
	}

	if len(embeddings) == 0 {
		return nil, ErrNotFound
	}
	return embeddings, nil
}

// SaveAll replaces the table contents in a single transaction.
func (s *PostgresStore) SaveAll(ctx context.Context, embeddings map[string][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM faces`); err != nil {
		return fmt.Errorf("clear faces: %w", err)
	}

	now := time.Now().UTC()
	for id, vec := range embeddings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO faces (face_id, embedding, updated_at) VALUES ($1, $2, $3)`,
			id, pgvector.NewVector(vec), now,
		)
		if err != nil {
			return fmt.Errorf("insert face %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a single face row.
func (s *PostgresStore) Upsert(ctx context.Context, identity string, vector []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faces (face_id, embedding, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (face_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`, identity, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert face %q: %w", identity, err)
	}
	return nil
}
