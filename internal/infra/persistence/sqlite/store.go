// Package sqlite provides the embedded SQLite backend for the raffle ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"raffleledger/internal/infra/persistence/sqlbundle"
	"raffleledger/internal/infra/persistence/sqlstore"
	"raffleledger/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName  = "sqlite"
	defaultPath = "raffleledger.db"
	busyTimeout = 5000
)

// Store persists the ledger to a local SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating when needed) the SQLite database at path, applies
// the schema with foreign keys enforced and hydrates the in-memory engine.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	st, err := sqlstore.Open(ctx, db, sqlbundle.DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: st, path: path}, nil
}

// DSN builds the connection string for path with the pragmas the ledger relies on.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout))
	return "file:" + path + "?" + q.Encode()
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
