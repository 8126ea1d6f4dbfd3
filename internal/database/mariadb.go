package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDBPool manages a MariaDB connection pool.
type MariaDBPool struct {
	db *sql.DB
}

// NewMariaDBPool opens and verifies a MariaDB connection pool.
func NewMariaDBPool(dsn string) (*MariaDBPool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &MariaDBPool{db: db}, nil
}

// DB returns the underlying sql.DB.
func (p *MariaDBPool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *MariaDBPool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
