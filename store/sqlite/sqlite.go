// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package sqlite registers the "sqlite" store backend.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/lineage/store"
)

func init() {
	store.RegisterBackend("sqlite", open)
}

func open(dsn string) (*sql.DB, store.Dialect, error) {
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	return db, Dialect{}, nil
}

// Dialect is the SQLite flavor of store.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) ILike(column, operand string) string {
	return fmt.Sprintf("lower(%s) LIKE lower(%s)", column, operand)
}

func (Dialect) IsIntegrity(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrConstraint
}

func (Dialect) Schema() string {
	return `
CREATE TABLE IF NOT EXISTS lineage_node (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	node_type  TEXT NOT NULL,
	artifact_serializer TEXT,
	artifact_data       BLOB,
	remote_storage      TEXT,
	remote_location     TEXT,
	model_type          TEXT,
	model_version       INTEGER
);

CREATE INDEX IF NOT EXISTS idx_lineage_node_type ON lineage_node(node_type);

CREATE TABLE IF NOT EXISTS lineage_link (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	source_id  TEXT NOT NULL REFERENCES lineage_node(id),
	target_id  TEXT NOT NULL REFERENCES lineage_node(id),
	label      TEXT,
	UNIQUE (source_id, target_id),
	UNIQUE (source_id, label)
);

CREATE INDEX IF NOT EXISTS idx_lineage_link_source ON lineage_link(source_id);
CREATE INDEX IF NOT EXISTS idx_lineage_link_target ON lineage_link(target_id);
CREATE INDEX IF NOT EXISTS idx_lineage_link_label  ON lineage_link(label);
`
}
