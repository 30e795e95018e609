// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lineage/graph"
	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/store"
	_ "github.com/sigil-dev/lineage/store/sqlite"
)

func newTestEngine(t *testing.T) *graph.Engine {
	t.Helper()
	db, err := store.Open(store.Config{
		Backend: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "graph.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	reg := graph.NewRegistry()
	require.NoError(t, graph.RegisterMapModel(reg))
	return graph.NewEngine(db, reg)
}

func TestWriteAndReadNode(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	parent := graph.NewNode()
	child := graph.NewNode()
	parent.ChildLinks = []*graph.Link{graph.NewLink(parent.ID, child.ID, "output")}

	require.NoError(t, e.Write(ctx, parent, child))

	got, err := graph.ReadOne(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(parent.ID)})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, got.ID)
	require.Len(t, got.ChildLinks, 1)
	assert.Equal(t, "output", got.ChildLinks[0].Label)
	assert.Equal(t, child.ID, got.ChildLinks[0].TargetID)
}

func TestWriteOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a := graph.NewNode()
	b := graph.NewNode()
	link := graph.NewLink(a.ID, b.ID, "depends_on")

	// The link is listed before either endpoint; rank ordering inserts the
	// nodes first.
	require.NoError(t, e.Write(ctx, link, a, b))

	n, err := e.Count(ctx, graph.TableLink, &graph.LinkFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestWriteRejectsDuplicateLabelPerSource(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a, b, c := graph.NewNode(), graph.NewNode(), graph.NewNode()
	l1 := graph.NewLink(a.ID, b.ID, "result")
	l2 := graph.NewLink(a.ID, c.ID, "result")

	err := e.Write(ctx, a, b, c, l1, l2)
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeStoreIntegrityConflict))

	// The failed transaction must leave nothing behind.
	n, err := e.Count(ctx, graph.TableNode, &graph.NodeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestWriteRejectsParallelEdges(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a, b := graph.NewNode(), graph.NewNode()
	l1 := graph.NewLink(a.ID, b.ID, "first")
	l2 := graph.NewLink(a.ID, b.ID, "second")

	err := e.Write(ctx, a, b, l1, l2)
	require.Error(t, err)
	assert.True(t, linerr.IsConflict(err))
}

func TestReadOneErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := graph.ReadOne(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(uuid.New())})
	require.Error(t, err)
	assert.True(t, linerr.IsNotFound(err))

	require.NoError(t, e.Write(ctx, graph.NewNode(), graph.NewNode()))
	_, err = graph.ReadOne(ctx, e, graph.Nodes, &graph.NodeFilter{})
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeGraphMultipleMatches))
}

func TestReadOneOrNone(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, ok, err := graph.ReadOneOrNone(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(uuid.New())})
	require.NoError(t, err)
	assert.False(t, ok)

	n := graph.NewNode()
	require.NoError(t, e.Write(ctx, n))

	got, ok, err := graph.ReadOneOrNone(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(n.ID)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, n.ID, got.ID)
}

func TestExistsAndCount(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	n := graph.NewNode()
	ok, err := e.Exists(ctx, graph.TableNode, &graph.NodeFilter{ID: graph.Eq(n.ID)})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.Write(ctx, n, graph.NewNode()))

	ok, err = e.Exists(ctx, graph.TableNode, &graph.NodeFilter{ID: graph.Eq(n.ID)})
	require.NoError(t, err)
	assert.True(t, ok)

	total, err := e.Count(ctx, graph.TableNode, &graph.NodeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

// writeChain persists a -> b -> c with labeled links and returns the nodes.
func writeChain(t *testing.T, e *graph.Engine) (a, b, c *graph.Node) {
	t.Helper()
	ctx := context.Background()

	a, b, c = graph.NewNode(), graph.NewNode(), graph.NewNode()
	require.NoError(t, e.Write(ctx, a, b, c,
		graph.NewLink(a.ID, b.ID, "step_one"),
		graph.NewLink(b.ID, c.ID, "step_two")))
	return a, b, c
}

func nodeIDs(nodes []*graph.Node) []uuid.UUID {
	out := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestStructuralQueries(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a, b, c := writeChain(t, e)

	descendants, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{DescendantOf: graph.IDs(a.ID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{b.ID, c.ID}, nodeIDs(descendants))

	ancestors, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{AncestorOf: graph.IDs(c.ID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, nodeIDs(ancestors))

	parents, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{ParentOf: graph.IDs(b.ID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID}, nodeIDs(parents))

	children, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{ChildOf: graph.IDs(b.ID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{c.ID}, nodeIDs(children))

	labeled, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{Label: graph.Eq("step_one")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{b.ID}, nodeIDs(labeled))
}

func TestStructuralQueriesSurviveCycles(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a, b := graph.NewNode(), graph.NewNode()
	require.NoError(t, e.Write(ctx, a, b,
		graph.NewLink(a.ID, b.ID, "forward"),
		graph.NewLink(b.ID, a.ID, "back")))

	descendants, err := graph.Read(ctx, e, graph.Nodes,
		&graph.NodeFilter{DescendantOf: graph.IDs(a.ID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, nodeIDs(descendants))
}

func TestDeleteRemovesDependentsFirst(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a, b, c := writeChain(t, e)

	require.NoError(t, graph.Delete(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(b.ID)}))

	ok, err := e.Exists(ctx, graph.TableNode, &graph.NodeFilter{ID: graph.Eq(b.ID)})
	require.NoError(t, err)
	assert.False(t, ok)

	// Both links touched b; neither may survive it.
	links, err := e.Count(ctx, graph.TableLink, &graph.LinkFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, links)

	remaining, err := graph.Read(ctx, e, graph.Nodes, &graph.NodeFilter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, c.ID}, nodeIDs(remaining))
}

func TestDeleteObjects(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a, b, _ := writeChain(t, e)

	require.NoError(t, e.DeleteObjects(ctx, a, b))

	remaining, err := e.Count(ctx, graph.TableNode, &graph.NodeFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, remaining)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	art := graph.NewArtifact("seven lakes")
	require.NoError(t, e.Write(ctx, art))

	got, err := graph.ReadOne(ctx, e, graph.Artifacts, &graph.NodeFilter{ID: graph.Eq(art.ID)})
	require.NoError(t, err)
	assert.Equal(t, "seven lakes", got.Value)
}

func TestRawBytesArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	payload := []byte{0x01, 0x02, 0xff}
	art := graph.NewArtifact(payload)
	require.NoError(t, e.Write(ctx, art))

	got, err := graph.ReadOne(ctx, e, graph.Artifacts, &graph.NodeFilter{ID: graph.Eq(art.ID)})
	require.NoError(t, err)
	assert.Equal(t, payload, got.Value)
	assert.Nil(t, got.Serializer)
}

func TestArtifactBaseExcludesPlainNodes(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.Write(ctx, graph.NewNode(), graph.NewArtifact("kept")))

	arts, err := graph.Read(ctx, e, graph.Artifacts, &graph.NodeFilter{})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "kept", arts[0].Value)
}

func TestAsyncReadAndWrite(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	n := graph.NewNode()
	_, err := e.WriteAsync(ctx, n).Await()
	require.NoError(t, err)

	got, err := graph.ReadOneAsync(ctx, e, graph.Nodes, &graph.NodeFilter{ID: graph.Eq(n.ID)}).Await()
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)

	all, err := graph.ReadAsync(ctx, e, graph.Nodes, &graph.NodeFilter{}).Await()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	ok, err := e.ExistsAsync(ctx, graph.TableNode, &graph.NodeFilter{ID: graph.Eq(n.ID)}).Await()
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := e.CountAsync(ctx, graph.TableNode, &graph.NodeFilter{}).Await()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = e.DeleteObjectsAsync(ctx, n).Await()
	require.NoError(t, err)

	count, err = e.Count(ctx, graph.TableNode, &graph.NodeFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestWriteNothingIsANoOp(t *testing.T) {
	require.NoError(t, newTestEngine(t).Write(context.Background()))
}
