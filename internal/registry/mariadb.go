package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// MariaDBStore persists embeddings in a MariaDB table. MariaDB has no
// vector column type, so vectors are stored as JSON arrays; the table is
// tiny (one row per identity) and always loaded whole, so the codec cost
// does not matter.
type MariaDBStore struct {
	db *sql.DB
}

// NewMariaDBStore creates a MariaDB-backed store.
func NewMariaDBStore(db *sql.DB) *MariaDBStore {
	return &MariaDBStore{db: db}
}

// EnsureSchema creates the faces table if missing.
func (s *MariaDBStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS faces (
			face_id    VARCHAR(255) PRIMARY KEY,
			embedding  TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("ensure faces schema: %w", err)
	}
	return nil
}

// Load reads all face rows. Zero rows means the registry was never built,
// for the same reason as the PostgreSQL store.
func (s *MariaDBStore) Load(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT face_id, embedding FROM faces`)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	embeddings := make(map[string][]float32)
	for rows.Next() {
		var id, encoded string
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, fmt.Errorf("scan face row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %q: %w", id, err)
		}
		embeddings[id] = vec
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
func (s *MariaDBStore) SaveAll(ctx context.Context, embeddings map[string][]float32) error {
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
		encoded, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("encode embedding for %q: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO faces (face_id, embedding, updated_at) VALUES (?, ?, ?)`,
			id, string(encoded), now,
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
func (s *MariaDBStore) Upsert(ctx context.Context, identity string, vector []float32) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding for %q: %w", identity, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO faces (face_id, embedding, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			embedding = VALUES(embedding),
			updated_at = VALUES(updated_at)
	`, identity, string(encoded))
	if err != nil {
		return fmt.Errorf("upsert face %q: %w", identity, err)
	}
	return nil
}
