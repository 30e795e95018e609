// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/store"
	_ "github.com/sigil-dev/lineage/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Config{
		Backend: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "graph.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := store.Open(store.Config{Backend: "oracle"})
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeStoreBackendUnsupported))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

func TestTxCommitsOnCleanReturn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Tx(ctx, func(ctx context.Context) error {
		_, err := db.Querier(ctx).ExecContext(ctx,
			`INSERT INTO lineage_node (id, created_at, updated_at, node_type) VALUES (?, ?, ?, ?)`,
			"n-1", "2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z", "node")
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Querier(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM lineage_node`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.Tx(ctx, func(ctx context.Context) error {
		_, err := db.Querier(ctx).ExecContext(ctx,
			`INSERT INTO lineage_node (id, created_at, updated_at, node_type) VALUES (?, ?, ?, ?)`,
			"n-1", "2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z", "node")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Querier(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM lineage_node`).Scan(&n))
	assert.Equal(t, 0, n, "failed scope must leave no partial writes")
}

func TestTxNestedScopeJoinsOuterSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.Tx(ctx, func(outer context.Context) error {
		require.True(t, store.InSession(outer))
		return db.Tx(outer, func(inner context.Context) error {
			// Same session: the inner scope must not have opened its own tx.
			_, err := db.Querier(inner).ExecContext(inner,
				`INSERT INTO lineage_node (id, created_at, updated_at, node_type) VALUES (?, ?, ?, ?)`,
				"n-2", "2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z", "node")
			return err
		})
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Querier(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM lineage_node`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWrapExecTagsIntegrityViolation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	insert := func(ctx context.Context) error {
		_, err := db.Querier(ctx).ExecContext(ctx,
			`INSERT INTO lineage_node (id, created_at, updated_at, node_type) VALUES (?, ?, ?, ?)`,
			"n-dup", "2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z", "node")
		return err
	}
	require.NoError(t, insert(ctx))

	err := insert(ctx)
	require.Error(t, err)
	wrapped := db.WrapExec(err, "inserting node")
	assert.True(t, linerr.HasCode(wrapped, linerr.CodeStoreIntegrityConflict))
	assert.True(t, linerr.IsConflict(wrapped))
}
