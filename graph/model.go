// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/serializer"
	"github.com/sigil-dev/lineage/storage"
	"github.com/sigil-dev/lineage/task"
)

// Field is one named component of a model: its value plus optional
// persistence overrides. A Field whose value is itself a Model persists as
// a nested model under the same link label.
type Field struct {
	Value      any
	Serializer serializer.Serializer
	Storage    storage.Storage
}

// Model is a composite value persisted as a tree: one root record plus one
// labeled link and child record per field, recursively.
type Model interface {
	ModelID() uuid.UUID
	ModelName() string
	ModelVersion() int
	ModelData(ctx context.Context) (map[string]Field, error)
}

// ModelType registers a model name with its current storage version and
// its reconstruction hook. Init receives the version the data was written
// at; reshaping older field layouts to the current ones happens there.
type ModelType struct {
	Name    string
	Version int
	Init    func(id uuid.UUID, version int, fields map[string]any) (Model, error)
}

// modelMetadata is the payload of a model's root record.
type modelMetadata struct {
	LineageVersion int `json:"lineage_version"`
}

// AsObject adapts a model to the persistence engine's object protocol.
func AsObject(m Model) Object { return modelObject{m} }

type modelObject struct{ m Model }

func (o modelObject) Table() string { return TableNode }

func (o modelObject) FilterSelf() Filter {
	return &NodeFilter{ID: Eq(o.m.ModelID())}
}

// FilterRelated selects the model's whole subtree: every artifact below
// the matched roots and every link reachable from them.
func (o modelObject) FilterRelated(where Filter) map[string]Filter {
	return modelRelated(where)
}

func modelRelated(where Filter) map[string]Filter {
	sel := Matching(where)
	return map[string]Filter{
		TableNode: &NodeFilter{Type: artifactKinds(), DescendantOf: sel},
		TableLink: &LinkFilter{Ancestor: sel},
	}
}

func (o modelObject) DumpSelf(ctx context.Context, reg *Registry) (Record, error) {
	meta, err := json.Marshal(modelMetadata{LineageVersion: o.m.ModelVersion()})
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeGraphDumpFailure, "encoding model metadata")
	}

	version := int64(o.m.ModelVersion())
	return &NodeRecord{
		ID:           o.m.ModelID(),
		Kind:         KindModelArtifact,
		Serializer:   strptr("json"),
		Data:         meta,
		ModelType:    strptr(o.m.ModelName()),
		ModelVersion: &version,
	}, nil
}

// DumpRelated decomposes the model's fields into child records and their
// labeled links, recursing through nested models. Fields dump concurrently.
func (o modelObject) DumpRelated(ctx context.Context, reg *Registry) ([]Record, error) {
	data, err := o.m.ModelData(ctx)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeGraphDumpFailure,
			"collecting model fields", linerr.Field("model_type", o.m.ModelName()))
	}

	labels := make([]string, 0, len(data))
	for label := range data {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var batch task.Batch[[]Record]
	for _, label := range labels {
		label, field := label, data[label]
		batch.Add(func(ctx context.Context) ([]Record, error) {
			return o.dumpField(ctx, reg, label, field)
		})
	}
	groups, err := batch.Gather(ctx)
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, recs := range groups {
		out = append(out, recs...)
	}
	return out, nil
}

func (o modelObject) dumpField(ctx context.Context, reg *Registry, label string, field Field) ([]Record, error) {
	if child, ok := field.Value.(Model); ok {
		childObj := modelObject{child}
		self, err := childObj.DumpSelf(ctx, reg)
		if err != nil {
			return nil, err
		}
		related, err := childObj.DumpRelated(ctx, reg)
		if err != nil {
			return nil, err
		}
		link, err := NewLink(o.m.ModelID(), child.ModelID(), label).DumpSelf(ctx, reg)
		if err != nil {
			return nil, err
		}
		return append(append([]Record{self}, related...), link), nil
	}

	var opts []ArtifactOption
	if field.Serializer != nil {
		opts = append(opts, WithSerializer(field.Serializer))
	}
	if field.Storage != nil {
		opts = append(opts, WithStorage(field.Storage))
	}
	art := NewArtifact(field.Value, opts...)

	self, err := art.DumpSelf(ctx, reg)
	if err != nil {
		return nil, err
	}
	link, err := NewLink(o.m.ModelID(), art.ID, label).DumpSelf(ctx, reg)
	if err != nil {
		return nil, err
	}
	return []Record{self, link}, nil
}

// Models reads and deletes persisted models by their root records.
var Models = ObjectType[Model]{
	Name:    "model",
	Table:   TableNode,
	Base:    &NodeTypeFilter{Kinds: []string{KindModelArtifact}, ExactOnly: true},
	Related: modelRelated,
	Load:    loadModels,
}

func loadModels(ctx context.Context, e *Engine, self []Record, related map[string][]Record) ([]Model, error) {
	nodes := map[uuid.UUID]*NodeRecord{}
	for _, rec := range related[TableNode] {
		if nr, ok := rec.(*NodeRecord); ok {
			nodes[nr.ID] = nr
		}
	}
	for _, rec := range self {
		if nr, ok := rec.(*NodeRecord); ok {
			nodes[nr.ID] = nr
		}
	}

	children := map[uuid.UUID]map[string]uuid.UUID{}
	for _, rec := range related[TableLink] {
		lr, ok := rec.(*LinkRecord)
		if !ok || lr.Label == nil {
			continue
		}
		if children[lr.SourceID] == nil {
			children[lr.SourceID] = map[string]uuid.UUID{}
		}
		children[lr.SourceID][*lr.Label] = lr.TargetID
	}

	out := make([]Model, 0, len(self))
	for _, rec := range self {
		nr, ok := rec.(*NodeRecord)
		if !ok {
			continue
		}
		m, err := buildModel(ctx, e.Registry(), nr, nodes, children)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func buildModel(ctx context.Context, reg *Registry, rec *NodeRecord,
	nodes map[uuid.UUID]*NodeRecord, children map[uuid.UUID]map[string]uuid.UUID) (Model, error) {

	if rec.ModelType == nil || rec.ModelVersion == nil {
		return nil, linerr.New(linerr.CodeGraphLoadFailure,
			"model row is missing its type or version", linerr.FieldNodeID(rec.ID.String()))
	}
	mt, err := reg.ModelTypeByName(*rec.ModelType)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	for label, childID := range children[rec.ID] {
		child, ok := nodes[childID]
		if !ok {
			return nil, linerr.New(linerr.CodeGraphLoadFailure,
				"model field row was not fetched",
				linerr.FieldNodeID(childID.String()), linerr.FieldLabel(label))
		}
		if child.Kind == KindModelArtifact {
			sub, err := buildModel(ctx, reg, child, nodes, children)
			if err != nil {
				return nil, err
			}
			fields[label] = sub
			continue
		}
		art, err := artifactFromRecord(ctx, reg, child)
		if err != nil {
			return nil, err
		}
		fields[label] = art.Value
	}

	m, err := mt.Init(rec.ID, int(*rec.ModelVersion), fields)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeModelMigrateFailure,
			"reconstructing model", linerr.Field("model_type", mt.Name),
			linerr.Field("stored_version", *rec.ModelVersion))
	}
	return m, nil
}

// MapModel is the built-in schemaless model: a flat map of labeled values.
type MapModel struct {
	id     uuid.UUID
	values map[string]any
}

const mapModelName = "map"

// NewMapModel wraps a value map in a model with a fresh identity.
func NewMapModel(values map[string]any) *MapModel {
	if values == nil {
		values = map[string]any{}
	}
	return &MapModel{id: uuid.New(), values: values}
}

func (m *MapModel) ModelID() uuid.UUID { return m.id }

func (m *MapModel) ModelName() string { return mapModelName }

func (m *MapModel) ModelVersion() int { return 1 }

func (m *MapModel) ModelData(ctx context.Context) (map[string]Field, error) {
	out := make(map[string]Field, len(m.values))
	for label, value := range m.values {
		out[label] = Field{Value: value}
	}
	return out, nil
}

// Values returns the model's value map.
func (m *MapModel) Values() map[string]any { return m.values }

// RegisterMapModel registers the map model type on a registry.
func RegisterMapModel(reg *Registry) error {
	return reg.RegisterModel(ModelType{
		Name:    mapModelName,
		Version: 1,
		Init: func(id uuid.UUID, version int, fields map[string]any) (Model, error) {
			return &MapModel{id: id, values: fields}, nil
		},
	})
}
