// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package postgres registers the "postgres" store backend on pgx.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sigil-dev/lineage/store"
)

func init() {
	store.RegisterBackend("postgres", open)
}

func open(dsn string) (*sql.DB, store.Dialect, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("pinging postgres db: %w", err)
	}

	return db, Dialect{}, nil
}

// Dialect is the PostgreSQL flavor of store.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Dialect) ILike(column, operand string) string {
	return fmt.Sprintf("%s ILIKE %s", column, operand)
}

func (Dialect) IsIntegrity(err error) bool {
	var perr *pgconn.PgError
	if !errors.As(err, &perr) {
		return false
	}
	// Class 23 is the integrity constraint violation class.
	return strings.HasPrefix(perr.Code, "23")
}

func (Dialect) Schema() string {
	return `
CREATE TABLE IF NOT EXISTS lineage_node (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	node_type  TEXT NOT NULL,
	artifact_serializer TEXT,
	artifact_data       BYTEA,
	remote_storage      TEXT,
	remote_location     TEXT,
	model_type          TEXT,
	model_version       BIGINT
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
