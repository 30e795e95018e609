// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeSelector designates a set of nodes for structural traversal, either
// by explicit id or by an arbitrary node-scope filter.
type NodeSelector struct {
	ids    []uuid.UUID
	filter Filter
}

// IDs selects nodes by identity.
func IDs(ids ...uuid.UUID) *NodeSelector {
	return &NodeSelector{ids: ids}
}

// OfNode selects a single node by identity.
func OfNode(id uuid.UUID) *NodeSelector { return IDs(id) }

// Matching selects every node a node-scope filter matches.
func Matching(f Filter) *NodeSelector {
	return &NodeSelector{filter: f}
}

// renderSet renders the selector as a parenthesized set usable after IN.
func (s *NodeSelector) renderSet(b *builder) (string, error) {
	if s.filter == nil {
		elems := make([]string, len(s.ids))
		for i, id := range s.ids {
			elems[i] = b.bind(id)
		}
		return "(" + strings.Join(elems, ", ") + ")", nil
	}

	inner, err := b.expr(s.filter.compile)
	if err != nil {
		return "", err
	}
	return "(SELECT lineage_node.id FROM lineage_node WHERE " + inner + ")", nil
}

// renderClosure renders the selector's reachability closure: the selected
// nodes plus everything reachable by walking links in the given direction.
// UNION deduplicates, so the recursion terminates on cyclic data.
func (s *NodeSelector) renderClosure(b *builder, down bool) (string, error) {
	seed, err := s.renderSet(b)
	if err != nil {
		return "", err
	}

	step := "SELECT l.target_id FROM lineage_link AS l JOIN reach AS r ON l.source_id = r.id"
	if !down {
		step = "SELECT l.source_id FROM lineage_link AS l JOIN reach AS r ON l.target_id = r.id"
	}

	return "(WITH RECURSIVE reach(id) AS (" +
		"SELECT lineage_node.id FROM lineage_node WHERE lineage_node.id IN " + seed +
		" UNION " + step +
		") SELECT id FROM reach WHERE id IS NOT NULL)", nil
}

// NodeTypeFilter constrains the node_type discriminator to a set of
// registered kinds. Subkinds of each named kind are included unless
// ExactOnly is set; abstract kinds always expand to their subkinds.
type NodeTypeFilter struct {
	Kinds     []string
	NotKinds  []string
	ExactOnly bool
}

func (f *NodeTypeFilter) String() string { return renderString(f) }

func (f *NodeTypeFilter) compile(b *builder) error {
	var parts []string

	emit := func(names []string, negate bool) error {
		if len(names) == 0 {
			return nil
		}
		discs, err := b.reg.Discriminators(names, f.ExactOnly)
		if err != nil {
			return err
		}
		cond := valueCond{op: opIn, set: anySlice(discs)}
		if negate {
			cond.op = opNotIn
		}
		part, err := compileCond(b, string(ColNodeType), cond)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	}

	if err := emit(f.Kinds, false); err != nil {
		return err
	}
	if err := emit(f.NotKinds, true); err != nil {
		return err
	}

	if len(parts) == 0 {
		b.write("1 = 1")
		return nil
	}
	writeJoined(b, parts, " AND ")
	return nil
}

// NodeFilter matches rows of the node table. Zero-valued fields contribute
// nothing; set fields combine conjunctively.
type NodeFilter struct {
	ID        ValueFilter[uuid.UUID]
	Type      *NodeTypeFilter
	CreatedAt ValueFilter[time.Time]
	UpdatedAt ValueFilter[time.Time]

	// Structural constraints, each one a selector over related nodes.
	ParentOf     *NodeSelector
	ChildOf      *NodeSelector
	DescendantOf *NodeSelector
	AncestorOf   *NodeSelector

	// Label matches nodes that are the target of a link carrying one of
	// these labels.
	Label ValueFilter[string]
}

func (f *NodeFilter) String() string { return renderString(f) }

func (f *NodeFilter) compile(b *builder) error {
	var parts []string

	add := func(sub Filter) error {
		part, err := b.expr(sub.compile)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	}

	if !f.ID.empty() {
		if err := add(f.ID.Against(ColNodeID)); err != nil {
			return err
		}
	}
	if f.Type != nil {
		if err := add(f.Type); err != nil {
			return err
		}
	}
	if !f.CreatedAt.empty() {
		if err := add(f.CreatedAt.Against(ColNodeCreatedAt)); err != nil {
			return err
		}
	}
	if !f.UpdatedAt.empty() {
		if err := add(f.UpdatedAt.Against(ColNodeUpdatedAt)); err != nil {
			return err
		}
	}

	// Upstream constraints share one link subquery, as do downstream ones.
	if f.ParentOf != nil || f.AncestorOf != nil {
		link := &LinkFilter{Target: f.ParentOf, Descendant: f.AncestorOf}
		part, err := linkMembership(b, "source_id", link)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}
	if f.ChildOf != nil || f.DescendantOf != nil {
		link := &LinkFilter{Source: f.ChildOf, Ancestor: f.DescendantOf}
		part, err := linkMembership(b, "target_id", link)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}

	if !f.Label.empty() {
		link := &LinkFilter{Label: f.Label}
		part, err := linkMembership(b, "target_id", link)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		b.write("1 = 1")
		return nil
	}
	writeJoined(b, parts, " AND ")
	return nil
}

// linkMembership renders "node id appears as <endpoint> of a link matching
// lf".
func linkMembership(b *builder, endpoint string, lf *LinkFilter) (string, error) {
	inner, err := b.expr(lf.compile)
	if err != nil {
		return "", err
	}
	return string(ColNodeID) + " IN (SELECT lineage_link." + endpoint +
		" FROM lineage_link WHERE " + inner + ")", nil
}

// LinkFilter matches rows of the link table. Ancestor and Descendant are
// reachability constraints over the node graph: Ancestor keeps links whose
// source lies in the downward closure of the selected nodes, Descendant
// keeps links whose target lies in their upward closure.
type LinkFilter struct {
	ID     ValueFilter[uuid.UUID]
	Source *NodeSelector
	Target *NodeSelector

	Ancestor   *NodeSelector
	Descendant *NodeSelector

	Label ValueFilter[string]
}

func (f *LinkFilter) String() string { return renderString(f) }

func (f *LinkFilter) compile(b *builder) error {
	var parts []string

	add := func(sub Filter) error {
		part, err := b.expr(sub.compile)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	}

	if !f.ID.empty() {
		if err := add(f.ID.Against(ColLinkID)); err != nil {
			return err
		}
	}

	endpoint := func(column string, sel *NodeSelector) error {
		set, err := sel.renderSet(b)
		if err != nil {
			return err
		}
		parts = append(parts, column+" IN "+set)
		return nil
	}
	if f.Source != nil {
		if err := endpoint(string(ColLinkSourceID), f.Source); err != nil {
			return err
		}
	}
	if f.Target != nil {
		if err := endpoint(string(ColLinkTargetID), f.Target); err != nil {
			return err
		}
	}

	closure := func(column string, sel *NodeSelector, down bool) error {
		set, err := sel.renderClosure(b, down)
		if err != nil {
			return err
		}
		parts = append(parts, column+" IN "+set)
		return nil
	}
	if f.Ancestor != nil {
		if err := closure(string(ColLinkSourceID), f.Ancestor, true); err != nil {
			return err
		}
	}
	if f.Descendant != nil {
		if err := closure(string(ColLinkTargetID), f.Descendant, false); err != nil {
			return err
		}
	}

	if !f.Label.empty() {
		if err := add(f.Label.Against(ColLinkLabel)); err != nil {
			return err
		}
	}

	if len(parts) == 0 {
		b.write("1 = 1")
		return nil
	}
	writeJoined(b, parts, " AND ")
	return nil
}

// ModelFilter matches the root records of persisted models. It narrows the
// node filter part to model records and adds predicates over the model type
// name and storage version.
type ModelFilter struct {
	Node NodeFilter

	TypeName ValueFilter[string]
	Version  ValueFilter[int64]
}

func (f *ModelFilter) String() string { return renderString(f) }

func (f *ModelFilter) compile(b *builder) error {
	parts := []string{}

	node := f.Node
	if node.Type == nil {
		node.Type = &NodeTypeFilter{Kinds: []string{KindModelArtifact}}
	}
	part, err := b.expr(node.compile)
	if err != nil {
		return err
	}
	if part != "1 = 1" {
		parts = append(parts, part)
	}

	if !f.TypeName.empty() {
		part, err := b.expr(f.TypeName.Against(ColNodeModelType).compile)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}
	if !f.Version.empty() {
		part, err := b.expr(f.Version.Against(ColNodeModelVersion).compile)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		b.write("1 = 1")
		return nil
	}
	writeJoined(b, parts, " AND ")
	return nil
}
