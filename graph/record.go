// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Record is one row bound for, or read from, a graph table.
type Record interface {
	Table() string
	RecordID() uuid.UUID
}

// NodeRecord is a row of the node table. One table carries every node
// kind; Kind discriminates, and the artifact and model columns are NULL on
// kinds that do not use them.
type NodeRecord struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	Kind      string

	Serializer *string
	Data       []byte

	RemoteStorage  *string
	RemoteLocation *string

	ModelType    *string
	ModelVersion *int64
}

func (*NodeRecord) Table() string { return TableNode }
func (r *NodeRecord) RecordID() uuid.UUID { return r.ID }

// LinkRecord is a row of the link table. A NULL label means the edge is
// structural only.
type LinkRecord struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	SourceID  uuid.UUID
	TargetID  uuid.UUID
	Label     *string
}

func (*LinkRecord) Table() string { return TableLink }
func (r *LinkRecord) RecordID() uuid.UUID { return r.ID }

const nodeColumns = "id, created_at, updated_at, node_type, artifact_serializer, artifact_data, " +
	"remote_storage, remote_location, model_type, model_version"

const linkColumns = "id, created_at, updated_at, source_id, target_id, label"

// scanNodeRecords materializes a heterogeneous node row set. Each distinct
// discriminator is resolved against the registry once per scan; an
// unregistered discriminator in stored data fails the whole read.
func scanNodeRecords(rows *sql.Rows, reg *Registry) ([]*NodeRecord, error) {
	defer rows.Close()

	resolved := map[string]bool{}
	var out []*NodeRecord

	for rows.Next() {
		var (
			id, created, updated, kind        string
			ser, remoteStorage, remoteLoc, mt sql.NullString
			data                              []byte
			mv                                sql.NullInt64
		)
		if err := rows.Scan(&id, &created, &updated, &kind, &ser, &data,
			&remoteStorage, &remoteLoc, &mt, &mv); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "scanning node row")
		}

		if !resolved[kind] {
			if _, err := reg.Resolve(TableNode, kind); err != nil {
				return nil, err
			}
			resolved[kind] = true
		}

		rec := &NodeRecord{Kind: kind, Data: data}
		var err error
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing node id")
		}
		if rec.CreatedAt, rec.UpdatedAt, err = parseTimestamps(created, updated); err != nil {
			return nil, err
		}
		rec.Serializer = nullable(ser)
		rec.RemoteStorage = nullable(remoteStorage)
		rec.RemoteLocation = nullable(remoteLoc)
		rec.ModelType = nullable(mt)
		if mv.Valid {
			v := mv.Int64
			rec.ModelVersion = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "iterating node rows")
	}
	return out, nil
}

func scanLinkRecords(rows *sql.Rows) ([]*LinkRecord, error) {
	defer rows.Close()

	var out []*LinkRecord
	for rows.Next() {
		var (
			id, created, updated, source, target string
			label                                sql.NullString
		)
		if err := rows.Scan(&id, &created, &updated, &source, &target, &label); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "scanning link row")
		}

		rec := &LinkRecord{Label: nullable(label)}
		var err error
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing link id")
		}
		if rec.SourceID, err = uuid.Parse(source); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing link source id")
		}
		if rec.TargetID, err = uuid.Parse(target); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing link target id")
		}
		if rec.CreatedAt, rec.UpdatedAt, err = parseTimestamps(created, updated); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "iterating link rows")
	}
	return out, nil
}

func parseTimestamps(created, updated string) (time.Time, time.Time, error) {
	c, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return time.Time{}, time.Time{}, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing created_at")
	}
	u, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return time.Time{}, time.Time{}, linerr.Wrap(err, linerr.CodeGraphLoadFailure, "parsing updated_at")
	}
	return c, u, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func strptr(s string) *string { return &s }
