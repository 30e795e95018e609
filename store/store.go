// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package store opens the relational backend the graph is persisted in and
// scopes transactions to a call chain. Concrete backends live in
// subpackages and self-register, so callers import one for its side effect:
//
//	import _ "github.com/sigil-dev/lineage/store/sqlite"
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Config selects and configures the storage backend.
type Config struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// Dialect captures the SQL differences between backends that the filter
// compiler and engine care about.
type Dialect interface {
	Name() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// ILike renders a case-insensitive LIKE between a column and an
	// already-rendered operand.
	ILike(column, operand string) string
	// Schema is the DDL creating the node and link tables.
	Schema() string
	// IsIntegrity reports whether err is a unique or foreign-key violation.
	IsIntegrity(err error) bool
}

// OpenFunc opens a backend's database handle for a DSN.
type OpenFunc func(dsn string) (*sql.DB, Dialect, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]OpenFunc{}
)

// RegisterBackend registers an open function for a named backend. Backend
// packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// DB is an open database with its dialect. One DB is shared across call
// chains; sessions are scoped per chain via Tx.
type DB struct {
	sql     *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// Option configures an opened DB.
type Option func(*DB)

// WithLogger sets the logger used for store-level debug logging.
func WithLogger(log *slog.Logger) Option {
	return func(db *DB) { db.log = log }
}

// Open connects to the backend named in cfg, defaulting to "sqlite".
func Open(cfg Config, opts ...Option) (*DB, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "sqlite"
	}

	backendsMu.RLock()
	open, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, linerr.Errorf(linerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	sqldb, dialect, err := open(cfg.DSN)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreOpenFailure, "opening "+backend+" database")
	}

	db := &DB{sql: sqldb, dialect: dialect, log: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Dialect returns the backend's dialect.
func (db *DB) Dialect() Dialect { return db.dialect }

// Close closes the underlying database connection.
func (db *DB) Close() error { return db.sql.Close() }

// Migrate creates the node and link tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, db.dialect.Schema()); err != nil {
		return linerr.Wrap(err, linerr.CodeStoreMigrateFailure, "creating graph schema")
	}
	return nil
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sessionKey struct{}

// Querier returns the transaction carried by ctx, or the bare connection
// when no session scope is open.
func (db *DB) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(sessionKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.sql
}

// InSession reports whether ctx already carries an open transaction.
func InSession(ctx context.Context) bool {
	_, ok := ctx.Value(sessionKey{}).(*sql.Tx)
	return ok
}

// Tx runs fn inside the call chain's session. A nested call that finds an
// open session joins it and leaves commit or rollback to the outermost
// scope. The outermost scope commits on clean return and rolls back when fn
// returns an error.
func (db *DB) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InSession(ctx) {
		return fn(ctx)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return linerr.Wrap(err, linerr.CodeStoreTxFailure, "beginning transaction")
	}

	if err := fn(context.WithValue(ctx, sessionKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return linerr.Wrap(err, linerr.CodeStoreTxFailure, "committing transaction")
	}
	return nil
}

// WrapExec classifies an execution error, tagging integrity violations so
// callers can tell a constraint conflict from an infrastructure failure.
func (db *DB) WrapExec(err error, msg string) error {
	if err == nil {
		return nil
	}
	if db.dialect.IsIntegrity(err) {
		return linerr.Wrap(err, linerr.CodeStoreIntegrityConflict, msg)
	}
	return linerr.Wrap(err, linerr.CodeStoreExecFailure, msg)
}
