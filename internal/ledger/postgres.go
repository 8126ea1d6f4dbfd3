package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists attendance in PostgreSQL. The attendance table's
// primary key (session_key, face_id) backs the calendar-bucket conditional
// insert; attendance_latest backs the cooldown compare-and-set.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the attendance tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attendance (
			session_key TEXT NOT NULL,
			face_id     TEXT NOT NULL,
			logged_at   TIMESTAMPTZ NOT NULL,
			source      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (session_key, face_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_latest (
			face_id   TEXT PRIMARY KEY,
			logged_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure attendance schema: %w", err)
		}
	}
	return nil
}

// InsertUnique relies on ON CONFLICT DO NOTHING against the primary key;
// zero affected rows means another writer already holds the slot.
func (s *PostgresStore) InsertUnique(ctx context.Context, rec Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (session_key, face_id, logged_at, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_key, face_id) DO NOTHING
	`, rec.SessionKey, rec.Identity, rec.Timestamp.UTC(), rec.Source)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert attendance rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertAfter claims the identity's row in attendance_latest with a guarded
// upsert — the UPDATE applies only when the stored event is at or before
// cutoff — and appends the record when the claim succeeds. Both statements
// run in one transaction.
func (s *PostgresStore) InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin attendance transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_latest (face_id, logged_at)
		VALUES ($1, $2)
		ON CONFLICT (face_id) DO UPDATE SET logged_at = EXCLUDED.logged_at
		WHERE attendance_latest.logged_at <= $3
	`, rec.Identity, rec.Timestamp.UTC(), cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("claim attendance gate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attendance gate rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance (session_key, face_id, logged_at, source)
		VALUES ($1, $2, $3, $4)
	`, rec.SessionKey, rec.Identity, rec.Timestamp.UTC(), rec.Source)
	if err != nil {
		return false, fmt.Errorf("insert attendance record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit attendance: %w", err)
	}
	return true, nil
}

// Scan pushes the filter down to SQL and orders by timestamp.
func (s *PostgresStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT session_key, face_id, logged_at, source FROM attendance`
	var conds []string
	var args []any
	if f.Identity != "" {
		args = append(args, f.Identity)
		conds = append(conds, fmt.Sprintf("face_id = $%d", len(args)))
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start.UTC())
		conds = append(conds, fmt.Sprintf("logged_at >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End.UTC())
		conds = append(conds, fmt.Sprintf("logged_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY logged_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionKey, &rec.Identity, &rec.Timestamp, &rec.Source); err != nil {
			return nil, fmt.Errorf("scan attendance row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance rows: %w", err)
	}
	return out, nil
}
