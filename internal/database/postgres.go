// Package database provides connection pools for the SQL storage backends.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresPool manages a PostgreSQL connection pool.
type PostgresPool struct {
	db *sql.DB
}

// NewPostgresPool opens and verifies a PostgreSQL connection pool.
func NewPostgresPool(url string, maxOpen, maxIdle int) (*PostgresPool, error) {
	if url == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresPool{db: db}, nil
}

// DB returns the underlying sql.DB.
func (p *PostgresPool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *PostgresPool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
