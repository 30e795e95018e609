// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lineage/graph"
	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/serializer"
)

func TestLinkerPersistsScope(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	scope := graph.NewLinker(e)
	sctx, err := scope.Open(ctx)
	require.NoError(t, err)

	// The scope node is visible before anything is linked.
	ok, err := e.Exists(ctx, graph.TableNode,
		&graph.NodeFilter{ID: graph.Eq(scope.Node().ID)})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, scope.Link("answer", 42))
	require.NoError(t, scope.Close(sctx))

	got, err := graph.ReadOne(ctx, e, graph.Nodes,
		&graph.NodeFilter{ID: graph.Eq(scope.Node().ID)})
	require.NoError(t, err)
	require.Len(t, got.ChildLinks, 1)
	assert.Equal(t, "answer", got.ChildLinks[0].Label)

	art, err := graph.ReadOne(ctx, e, graph.Artifacts,
		&graph.NodeFilter{ChildOf: graph.IDs(scope.Node().ID)})
	require.NoError(t, err)
	assert.Equal(t, float64(42), art.Value)
}

func TestLinkerLinksQueueUntilClose(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	scope := graph.NewLinker(e)
	sctx, err := scope.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, scope.Link("pending", "value"))

	n, err := e.Count(ctx, graph.TableLink, &graph.LinkFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, scope.Close(sctx))

	n, err = e.Count(ctx, graph.TableLink, &graph.LinkFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLinkerRejectsDuplicateLabel(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	scope := graph.NewLinker(e)
	_, err := scope.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, scope.Link("metrics", "a"))
	err = scope.Link("metrics", "b")
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerLabelConflict))
}

func TestLinkerLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	scope := graph.NewLinker(e)
	sctx, err := scope.Open(ctx)
	require.NoError(t, err)

	_, err = scope.Open(ctx)
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerClosed))

	require.NoError(t, scope.Close(sctx))
	require.NoError(t, scope.Close(sctx))

	err = scope.Link("late", 1)
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerClosed))
}

func TestCurrentLinker(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := graph.FromContext(ctx)
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerInactive))

	scope := graph.NewLinker(e)
	sctx, err := scope.Open(ctx)
	require.NoError(t, err)

	cur, err := graph.FromContext(sctx)
	require.NoError(t, err)
	assert.Same(t, scope, cur)
}

func TestLinkerLinksNodesModelsAndValues(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	dep := graph.NewNode()
	require.NoError(t, e.Write(ctx, dep))

	scope := graph.NewLinker(e)
	sctx, err := scope.Open(ctx)
	require.NoError(t, err)

	require.NoError(t, scope.Link("dependency", dep))
	require.NoError(t, scope.Link("report", graph.NewMapModel(map[string]any{"ok": true})))
	require.NoError(t, scope.Link("note", "done"))

	err = scope.Link("edge", graph.NewLink(dep.ID, dep.ID, "self"))
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerAmbiguousSave))

	// Persistence options only apply to plain values.
	err = scope.Link("pinned", dep, graph.LinkSerializer(serializer.JSON{}))
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerAmbiguousSave))

	require.NoError(t, scope.Close(sctx))

	got, err := graph.ReadOne(ctx, e, graph.Nodes,
		&graph.NodeFilter{ID: graph.Eq(scope.Node().ID)})
	require.NoError(t, err)
	assert.Len(t, got.ChildLinks, 3)
}

func TestLinkedWrapsCallsInScopes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	step := graph.Linked("ingest", e, func(ctx context.Context, in string) (string, error) {
		return in + "-done", nil
	})

	// A wrapper call needs an open scope.
	_, err := step(ctx, "orphan")
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeLinkerInactive))

	outer := graph.NewLinker(e)
	octx, err := outer.Open(ctx)
	require.NoError(t, err)

	out, err := step(octx, "batch-a")
	require.NoError(t, err)
	assert.Equal(t, "batch-a-done", out)

	_, err = step(octx, "batch-b")
	require.NoError(t, err)

	require.NoError(t, outer.Close(octx))

	got, err := graph.ReadOne(ctx, e, graph.Nodes,
		&graph.NodeFilter{ID: graph.Eq(outer.Node().ID)})
	require.NoError(t, err)

	labels := make([]string, 0, len(got.ChildLinks))
	for _, l := range got.ChildLinks {
		labels = append(labels, l.Label)
	}
	assert.ElementsMatch(t, []string{"ingest#1", "ingest#2"}, labels)

	// Each call produced its own scope node linking its input and result.
	scopes, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{ChildOf: graph.IDs(outer.Node().ID)})
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	for _, scope := range scopes {
		inputs, err := graph.Read(ctx, e, graph.Artifacts,
			&graph.NodeFilter{ChildOf: graph.IDs(scope.ID), Label: graph.In("input", "return")})
		require.NoError(t, err)
		assert.Len(t, inputs, 2)
	}
}
