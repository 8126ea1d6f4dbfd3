package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MariaDBStore persists attendance in MariaDB/MySQL. Conditional semantics
// come from INSERT IGNORE against the composite primary key and a guarded
// ON DUPLICATE KEY UPDATE for the cooldown gate.
type MariaDBStore struct {
	db *sql.DB
}

// NewMariaDBStore creates a MariaDB-backed ledger store.
func NewMariaDBStore(db *sql.DB) *MariaDBStore {
	return &MariaDBStore{db: db}
}

// EnsureSchema creates the attendance tables if missing.
func (s *MariaDBStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attendance (
			session_key VARCHAR(64)  NOT NULL,
			face_id     VARCHAR(255) NOT NULL,
			logged_at   DATETIME(6)  NOT NULL,
			source      VARCHAR(64)  NOT NULL DEFAULT '',
			PRIMARY KEY (session_key, face_id)
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_latest (
			face_id   VARCHAR(255) NOT NULL PRIMARY KEY,
			logged_at DATETIME(6)  NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure attendance schema: %w", err)
		}
	}
	return nil
}

// InsertUnique uses INSERT IGNORE; zero affected rows means a duplicate.
func (s *MariaDBStore) InsertUnique(ctx context.Context, rec Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT IGNORE INTO attendance (session_key, face_id, logged_at, source)
		VALUES (?, ?, ?, ?)
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

// InsertAfter claims the gate row with a guarded upsert. MySQL reports 1
// affected row for an insert, 2 for an update that changed the row and 0
// when the IF left it untouched, so any nonzero count means the claim won.
func (s *MariaDBStore) InsertAfter(ctx context.Context, rec Record, cutoff time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin attendance transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_latest (face_id, logged_at)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			logged_at = IF(logged_at <= ?, VALUES(logged_at), logged_at)
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
		VALUES (?, ?, ?, ?)
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
func (s *MariaDBStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT session_key, face_id, logged_at, source FROM attendance`
	var conds []string
	var args []any
	if f.Identity != "" {
		conds = append(conds, "face_id = ?")
		args = append(args, f.Identity)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "logged_at >= ?")
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		conds = append(conds, "logged_at <= ?")
		args = append(args, f.End.UTC())
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
