// Package engine wraps sqlx.DB with the database type, so storages can pick dialect-specific queries
// and locking. Sqlite and Postgres are supported.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // postgres driver loaded here
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Type is a type of database engine
type Type string

// enum of supported database engines
const (
	Unknown  Type = ""
	Sqlite   Type = "sqlite"
	Postgres Type = "postgres"
)

// SQL is a wrapper for sqlx.DB with type.
type SQL struct {
	sqlx.DB
	gid    string // instance id, allows several instances share the same database
	dbType Type
}

// RWLocker is a read-write locker interface
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// NoopLocker is a no-op locker for engines with their own concurrency control
type NoopLocker struct{}

// Lock is a no-op
func (NoopLocker) Lock() {}

// Unlock is a no-op
func (NoopLocker) Unlock() {}

// RLock is a no-op
func (NoopLocker) RLock() {}

// RUnlock is a no-op
func (NoopLocker) RUnlock() {}

// New makes a database engine from the connection url. Postgres urls start with postgres:// or
// postgresql://, everything else is a sqlite file (file:, file:// and sqlite:// prefixes stripped)
// or ":memory:".
func New(ctx context.Context, url, gid string) (*SQL, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgres(ctx, url, gid)
	case url == "":
		return nil, fmt.Errorf("empty database url")
	}
	file := url
	for _, prefix := range []string{"sqlite://", "file://", "file:"} {
		file = strings.TrimPrefix(file, prefix)
	}
	return NewSqlite(file, gid)
}

// NewSqlite makes a sqlite engine
func NewSqlite(file, gid string) (*SQL, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite %s: %w", file, err)
	}
	if file == ":memory:" {
		db.SetMaxOpenConns(1) // each connection gets its own in-memory database
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set sqlite pragma: %w", err)
	}
	return &SQL{DB: *db, gid: gid, dbType: Sqlite}, nil
}

// NewPostgres makes a postgres engine
func NewPostgres(ctx context.Context, url, gid string) (*SQL, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQL{DB: *db, gid: gid, dbType: Postgres}, nil
}

// GID returns the instance id
func (e *SQL) GID() string { return e.gid }

// Type returns the database engine type
func (e *SQL) Type() Type { return e.dbType }

// MakeLock makes a lock suitable for the engine. Sqlite needs serialized writes.
func (e *SQL) MakeLock() RWLocker {
	if e.dbType == Sqlite {
		return new(sync.RWMutex)
	}
	return &NoopLocker{}
}

// TableConfig describes a table to initialize
type TableConfig struct {
	Name          string
	CreateTable   DBCmd
	CreateIndexes DBCmd // optional, zero if no indexes
	QueriesMap    *QueryMap
}

// InitTable creates the table and its indexes in a transaction if the table doesn't exist yet.
// Queries are picked for the engine type.
func InitTable(ctx context.Context, db *SQL, cfg TableConfig) error {
	if db == nil {
		return fmt.Errorf("db connection is nil")
	}
	schema, err := cfg.QueriesMap.Pick(db.Type(), cfg.CreateTable)
	if err != nil {
		return fmt.Errorf("no schema for %s: %w", cfg.Name, err)
	}
	var indexes string
	if cfg.CreateIndexes != 0 {
		if indexes, err = cfg.QueriesMap.Pick(db.Type(), cfg.CreateIndexes); err != nil {
			return fmt.Errorf("no indexes for %s: %w", cfg.Name, err)
		}
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	exists, err := tableExists(ctx, tx, db.Type(), cfg.Name)
	if err != nil {
		return err
	}
	if !exists {
		if _, err = tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema for %s: %w", cfg.Name, err)
		}
	}
	if indexes != "" {
		if _, err = tx.ExecContext(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", cfg.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, tx *sqlx.Tx, dbType Type, table string) (bool, error) {
	var query string
	switch dbType {
	case Sqlite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	case Postgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	default:
		return false, fmt.Errorf("unsupported database type %q", dbType)
	}
	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind(query), table); err != nil {
		return false, fmt.Errorf("failed to check for %s table existence: %w", table, err)
	}
	return count > 0, nil
}
