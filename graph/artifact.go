// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/serializer"
	"github.com/sigil-dev/lineage/storage"
)

// Artifact is a node carrying a value. Without a storage backend the
// serialized bytes live inline in the database row; with one, the row keeps
// only the backend name and the location the bytes were written to.
type Artifact struct {
	ID    uuid.UUID
	Value any

	// Serializer overrides value-based serializer selection when set. Raw
	// []byte values persist as-is without one.
	Serializer serializer.Serializer

	// Storage, when set, makes this a remote artifact.
	Storage storage.Storage
}

// ArtifactOption configures a new artifact.
type ArtifactOption func(*Artifact)

// WithSerializer pins the serializer instead of selecting one by value.
func WithSerializer(s serializer.Serializer) ArtifactOption {
	return func(a *Artifact) { a.Serializer = s }
}

// WithStorage stores the serialized bytes in a blob backend instead of the
// database row.
func WithStorage(s storage.Storage) ArtifactOption {
	return func(a *Artifact) { a.Storage = s }
}

// NewArtifact wraps a value in an artifact with a fresh identity.
func NewArtifact(value any, opts ...ArtifactOption) *Artifact {
	a := &Artifact{ID: uuid.New(), Value: value}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Artifact) Table() string { return TableNode }

func (a *Artifact) FilterSelf() Filter {
	return &NodeFilter{ID: Eq(a.ID)}
}

func (a *Artifact) FilterRelated(where Filter) map[string]Filter {
	return nodeRelated(where)
}

func (a *Artifact) DumpSelf(ctx context.Context, reg *Registry) (Record, error) {
	rec := &NodeRecord{ID: a.ID, Kind: KindDatabaseArtifact}

	if a.Serializer == nil {
		if raw, ok := a.Value.([]byte); ok {
			// Raw bytes persist untagged and come back as bytes.
			rec.Data = raw
			return a.finishDump(ctx, rec)
		}
		if a.Value == nil {
			return a.finishDump(ctx, rec)
		}
		ser, data, err := reg.Serializers().Encode(a.Value)
		if err != nil {
			return nil, err
		}
		rec.Serializer = strptr(ser.Name())
		rec.Data = data
		return a.finishDump(ctx, rec)
	}

	data, err := a.Serializer.Serialize(a.Value)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeGraphDumpFailure,
			"serializing artifact value", linerr.FieldNodeID(a.ID.String()))
	}
	rec.Serializer = strptr(a.Serializer.Name())
	rec.Data = data
	return a.finishDump(ctx, rec)
}

// finishDump moves the serialized bytes out to the storage backend when the
// artifact is remote.
func (a *Artifact) finishDump(ctx context.Context, rec *NodeRecord) (Record, error) {
	if a.Storage == nil {
		return rec, nil
	}

	location, err := a.Storage.Create(ctx, rec.Data)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStorageFailure,
			"storing artifact value", linerr.FieldNodeID(a.ID.String()))
	}
	rec.Kind = KindRemoteArtifact
	rec.Data = nil
	rec.RemoteStorage = strptr(a.Storage.Name())
	rec.RemoteLocation = strptr(location)
	return rec, nil
}

func (a *Artifact) DumpRelated(ctx context.Context, reg *Registry) ([]Record, error) {
	return nil, nil
}

// artifactKinds matches every concrete artifact discriminator.
func artifactKinds() *NodeTypeFilter {
	return &NodeTypeFilter{Kinds: []string{KindArtifact}}
}

// Artifacts reads and deletes artifacts of any concrete artifact kind.
var Artifacts = ObjectType[*Artifact]{
	Name:    "artifact",
	Table:   TableNode,
	Base:    artifactKinds(),
	Related: nodeRelated,
	Load:    loadArtifacts,
}

func loadArtifacts(ctx context.Context, e *Engine, self []Record, related map[string][]Record) ([]*Artifact, error) {
	out := make([]*Artifact, 0, len(self))
	for _, rec := range self {
		nr, ok := rec.(*NodeRecord)
		if !ok {
			continue
		}
		a, err := artifactFromRecord(ctx, e.Registry(), nr)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// artifactFromRecord recovers an artifact's value: remote rows are fetched
// from their storage backend first, then bytes pass through the serializer
// the row was written with. Untagged rows yield raw bytes.
func artifactFromRecord(ctx context.Context, reg *Registry, rec *NodeRecord) (*Artifact, error) {
	a := &Artifact{ID: rec.ID}
	data := rec.Data

	if rec.Kind == KindRemoteArtifact {
		if rec.RemoteStorage == nil || rec.RemoteLocation == nil {
			return nil, linerr.New(linerr.CodeGraphLoadFailure,
				"remote artifact row is missing its storage reference", linerr.FieldNodeID(rec.ID.String()))
		}
		backend, err := reg.Storages().Lookup(*rec.RemoteStorage)
		if err != nil {
			return nil, err
		}
		if data, err = backend.Read(ctx, *rec.RemoteLocation); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeStorageFailure,
				"reading artifact value", linerr.FieldNodeID(rec.ID.String()))
		}
		a.Storage = backend
	}

	if rec.Serializer == nil {
		a.Value = data
		return a, nil
	}

	ser, err := reg.Serializers().Lookup(*rec.Serializer)
	if err != nil {
		return nil, err
	}
	value, err := ser.Deserialize(data)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeGraphLoadFailure,
			"deserializing artifact value", linerr.FieldNodeID(rec.ID.String()))
	}
	a.Serializer = ser
	a.Value = value
	return a, nil
}
