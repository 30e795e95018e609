// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"

	"github.com/google/uuid"
)

// Link is a directed edge from a source node to a target node. An empty
// Label persists as NULL; a non-empty label is unique per source, as is the
// (source, target) pair.
type Link struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	Label    string
}

// NewLink returns a labeled edge with a fresh identity. Pass an empty label
// for a purely structural edge.
func NewLink(source, target uuid.UUID, label string) *Link {
	return &Link{ID: uuid.New(), SourceID: source, TargetID: target, Label: label}
}

func (l *Link) Table() string { return TableLink }

func (l *Link) FilterSelf() Filter {
	return &LinkFilter{ID: Eq(l.ID)}
}

func (l *Link) FilterRelated(where Filter) map[string]Filter {
	return map[string]Filter{}
}

func (l *Link) DumpSelf(ctx context.Context, reg *Registry) (Record, error) {
	rec := &LinkRecord{ID: l.ID, SourceID: l.SourceID, TargetID: l.TargetID}
	if l.Label != "" {
		rec.Label = strptr(l.Label)
	}
	return rec, nil
}

func (l *Link) DumpRelated(ctx context.Context, reg *Registry) ([]Record, error) {
	return nil, nil
}

func linkFromRecord(rec *LinkRecord) *Link {
	l := &Link{ID: rec.ID, SourceID: rec.SourceID, TargetID: rec.TargetID}
	if rec.Label != nil {
		l.Label = *rec.Label
	}
	return l
}

// Links reads and deletes edges.
var Links = ObjectType[*Link]{
	Name:  "link",
	Table: TableLink,
	Load: func(ctx context.Context, e *Engine, self []Record, related map[string][]Record) ([]*Link, error) {
		out := make([]*Link, 0, len(self))
		for _, rec := range self {
			if lr, ok := rec.(*LinkRecord); ok {
				out = append(out, linkFromRecord(lr))
			}
		}
		return out, nil
	},
}
