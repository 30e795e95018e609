// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"

	"github.com/google/uuid"
)

// Node is a bare vertex of the provenance graph. Its identity is assigned
// client side on construction, so links between unsaved nodes can be built
// before anything is written.
type Node struct {
	ID uuid.UUID

	// Links queued for persistence alongside this node. Loaded nodes carry
	// the links that touched them at read time.
	ParentLinks []*Link
	ChildLinks  []*Link
}

// NewNode returns a node with a fresh identity.
func NewNode() *Node {
	return &Node{ID: uuid.New()}
}

func (n *Node) Table() string { return TableNode }

func (n *Node) FilterSelf() Filter {
	return &NodeFilter{ID: Eq(n.ID)}
}

// FilterRelated selects every link touching a matched node, in either
// direction.
func (n *Node) FilterRelated(where Filter) map[string]Filter {
	return nodeRelated(where)
}

func nodeRelated(where Filter) map[string]Filter {
	sel := Matching(where)
	return map[string]Filter{
		TableLink: Or(&LinkFilter{Source: sel}, &LinkFilter{Target: sel}),
	}
}

func (n *Node) DumpSelf(ctx context.Context, reg *Registry) (Record, error) {
	return &NodeRecord{ID: n.ID, Kind: KindNode}, nil
}

func (n *Node) DumpRelated(ctx context.Context, reg *Registry) ([]Record, error) {
	recs := make([]Record, 0, len(n.ParentLinks)+len(n.ChildLinks))
	for _, l := range n.ParentLinks {
		rec, err := l.DumpSelf(ctx, reg)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	for _, l := range n.ChildLinks {
		rec, err := l.DumpSelf(ctx, reg)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Nodes reads and deletes plain vertices. Any node kind matches; loaded
// values expose identity and adjacent links only.
var Nodes = ObjectType[*Node]{
	Name:    "node",
	Table:   TableNode,
	Related: nodeRelated,
	Load:    loadNodes,
}

func loadNodes(ctx context.Context, e *Engine, self []Record, related map[string][]Record) ([]*Node, error) {
	parents := map[uuid.UUID][]*Link{}
	children := map[uuid.UUID][]*Link{}
	for _, rec := range related[TableLink] {
		lr, ok := rec.(*LinkRecord)
		if !ok {
			continue
		}
		l := linkFromRecord(lr)
		parents[lr.TargetID] = append(parents[lr.TargetID], l)
		children[lr.SourceID] = append(children[lr.SourceID], l)
	}

	out := make([]*Node, 0, len(self))
	for _, rec := range self {
		nr, ok := rec.(*NodeRecord)
		if !ok {
			continue
		}
		out = append(out, &Node{
			ID:          nr.ID,
			ParentLinks: parents[nr.ID],
			ChildLinks:  children[nr.ID],
		})
	}
	return out, nil
}
