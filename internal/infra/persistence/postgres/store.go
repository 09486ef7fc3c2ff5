// Package postgres provides the Postgres backend for the raffle ledger. It
// shares the normalized schema and persistence hook with the SQLite backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"raffleledger/internal/infra/persistence/sqlbundle"
	"raffleledger/internal/infra/persistence/sqlstore"
	"raffleledger/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/raffleledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists the ledger to Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// verifies connectivity, applies the schema and hydrates state from the tables.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	st, err := sqlstore.Open(ctx, db, sqlbundle.DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st}, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
