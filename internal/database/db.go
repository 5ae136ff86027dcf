package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Querier is the subset of *sql.DB and *sql.Tx that repositories need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the connection pool for the end-user scoped database role.
type DB struct {
	*sql.DB
}

// AdminDB is the connection pool for the administrative role. It is only
// handed to the webhook reconciliation path.
type AdminDB struct {
	*sql.DB
}

// NewPostgresDB opens the end-user scoped pool.
func NewPostgresDB(dsn string) (*DB, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// NewAdminDB opens the administrative pool.
func NewAdminDB(dsn string) (*AdminDB, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}
	// Webhook traffic is low volume.
	db.SetMaxOpenConns(5)
	return &AdminDB{DB: db}, nil
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
