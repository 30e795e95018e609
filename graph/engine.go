// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"time"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/store"
	"github.com/sigil-dev/lineage/task"
)

// Object is a graph value that knows how to persist and select itself.
// DumpSelf produces the object's own record; DumpRelated produces the
// records of its dependents, such as the links a node carries or the
// artifacts a model decomposes into.
type Object interface {
	Table() string
	FilterSelf() Filter
	FilterRelated(where Filter) map[string]Filter
	DumpSelf(ctx context.Context, reg *Registry) (Record, error)
	DumpRelated(ctx context.Context, reg *Registry) ([]Record, error)
}

// ObjectType describes how to query and materialize one graph value type.
// Read and Delete are driven entirely by these descriptors.
type ObjectType[G any] struct {
	Name  string
	Table string

	// Base, when set, is conjoined with every caller filter. Artifact and
	// model reads use it to stay inside their discriminator subset.
	Base Filter

	// Related maps a self filter to the filters selecting the records
	// loading or deleting the matched objects also needs, keyed by table.
	Related func(where Filter) map[string]Filter

	// Load reconstructs values from the fetched self and related records.
	Load func(ctx context.Context, e *Engine, self []Record, related map[string][]Record) ([]G, error)
}

// Engine executes graph reads and writes against one open store.
type Engine struct {
	db  *store.DB
	reg *Registry
	log *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// NewEngine binds a registry to an open store.
func NewEngine(db *store.DB, reg *Registry, opts ...EngineOption) *Engine {
	e := &Engine{db: db, reg: reg, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's type registry.
func (e *Engine) Registry() *Registry { return e.reg }

// DB returns the engine's store handle.
func (e *Engine) DB() *store.DB { return e.db }

// ReadRecords fetches the raw records of one table matching a filter,
// ordered by id for stable results.
func (e *Engine) ReadRecords(ctx context.Context, table string, where Filter) ([]Record, error) {
	cond, args, err := Compile(where, e.db.Dialect(), e.reg)
	if err != nil {
		return nil, err
	}

	var query string
	switch table {
	case TableNode:
		query = "SELECT " + nodeColumns + " FROM lineage_node WHERE " + cond + " ORDER BY id"
	case TableLink:
		query = "SELECT " + linkColumns + " FROM lineage_link WHERE " + cond + " ORDER BY id"
	default:
		return nil, linerr.Errorf(linerr.CodeGraphKindUnknown, "no graph table named %q", table)
	}

	rows, err := e.db.Querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "querying "+table, linerr.FieldTable(table))
	}

	if table == TableLink {
		recs, err := scanLinkRecords(rows)
		if err != nil {
			return nil, err
		}
		return asRecords(recs), nil
	}
	recs, err := scanNodeRecords(rows, e.reg)
	if err != nil {
		return nil, err
	}
	return asRecords(recs), nil
}

func asRecords[R Record](recs []R) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

// Exists reports whether any record of a table matches the filter.
func (e *Engine) Exists(ctx context.Context, table string, where Filter) (bool, error) {
	cond, args, err := Compile(where, e.db.Dialect(), e.reg)
	if err != nil {
		return false, err
	}

	query := "SELECT 1 FROM " + table + " WHERE " + cond + " LIMIT 1"
	var one int
	err = e.db.Querier(ctx).QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "checking existence in "+table)
	}
	return true, nil
}

// Count returns the number of records of a table matching the filter.
func (e *Engine) Count(ctx context.Context, table string, where Filter) (int64, error) {
	cond, args, err := Compile(where, e.db.Dialect(), e.reg)
	if err != nil {
		return 0, err
	}

	query := "SELECT count(*) FROM " + table + " WHERE " + cond
	var n int64
	if err := e.db.Querier(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "counting "+table)
	}
	return n, nil
}

// Read fetches every object of a type matching the filter, along with the
// related records its materialization needs. Related tables are fetched
// concurrently.
func Read[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) ([]G, error) {
	self := where
	if t.Base != nil {
		self = And(t.Base, where)
	}

	relFilters := map[string]Filter{}
	if t.Related != nil {
		relFilters = t.Related(self)
	}
	tables := make([]string, 0, len(relFilters))
	for table := range relFilters {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var selfRecs []Record
	related := map[string][]Record{}

	if store.InSession(ctx) {
		// A transaction pins one connection; fetch serially inside it.
		var err error
		if selfRecs, err = e.ReadRecords(ctx, t.Table, self); err != nil {
			return nil, err
		}
		for _, table := range tables {
			recs, err := e.ReadRecords(ctx, table, relFilters[table])
			if err != nil {
				return nil, err
			}
			related[table] = recs
		}
	} else {
		type fetched struct {
			table string
			recs  []Record
		}
		var batch task.Batch[fetched]
		batch.Add(func(ctx context.Context) (fetched, error) {
			recs, err := e.ReadRecords(ctx, t.Table, self)
			return fetched{table: "", recs: recs}, err
		})
		for _, table := range tables {
			table := table
			batch.Add(func(ctx context.Context) (fetched, error) {
				recs, err := e.ReadRecords(ctx, table, relFilters[table])
				return fetched{table: table, recs: recs}, err
			})
		}

		results, err := batch.Gather(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if r.table == "" {
				selfRecs = r.recs
				continue
			}
			related[r.table] = append(related[r.table], r.recs...)
		}
	}

	e.log.DebugContext(ctx, "graph read",
		slog.String("type", t.Name),
		slog.Int("records", len(selfRecs)),
		slog.String("filter", where.String()))

	return t.Load(ctx, e, selfRecs, related)
}

// ReadOne fetches exactly one object. Zero matches is a not-found error and
// several matches is a conflict; both carry the filter's rendering.
func ReadOne[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) (G, error) {
	var zero G
	objs, err := Read(ctx, e, t, where)
	if err != nil {
		return zero, err
	}
	switch len(objs) {
	case 0:
		return zero, linerr.New(linerr.CodeGraphNotFound,
			"no "+t.Name+" found", linerr.FieldFilter(where))
	case 1:
		return objs[0], nil
	default:
		return zero, linerr.New(linerr.CodeGraphMultipleMatches,
			"filter matched several of "+t.Name, linerr.FieldFilter(where), linerr.Field("matches", len(objs)))
	}
}

// ReadOneOrNone is ReadOne with zero matches reported as absence instead of
// an error.
func ReadOneOrNone[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) (G, bool, error) {
	var zero G
	objs, err := Read(ctx, e, t, where)
	if err != nil {
		return zero, false, err
	}
	switch len(objs) {
	case 0:
		return zero, false, nil
	case 1:
		return objs[0], true, nil
	default:
		return zero, false, linerr.New(linerr.CodeGraphMultipleMatches,
			"filter matched several of "+t.Name, linerr.FieldFilter(where), linerr.Field("matches", len(objs)))
	}
}

// Write persists objects and their dependents in one transaction. Objects
// are dumped concurrently; the resulting records are inserted grouped by
// foreign-key rank, referenced tables first, so insertion order between
// objects never matters.
func (e *Engine) Write(ctx context.Context, objs ...Object) error {
	if len(objs) == 0 {
		return nil
	}

	var batch task.Batch[[]Record]
	for _, o := range objs {
		o := o
		batch.Add(func(ctx context.Context) ([]Record, error) {
			rec, err := o.DumpSelf(ctx, e.reg)
			if err != nil {
				return nil, err
			}
			return []Record{rec}, nil
		})
		batch.Add(func(ctx context.Context) ([]Record, error) {
			return o.DumpRelated(ctx, e.reg)
		})
	}
	dumped, err := batch.Gather(ctx)
	if err != nil {
		return err
	}

	byRank := map[int][]Record{}
	total := 0
	for _, recs := range dumped {
		for _, rec := range recs {
			rank := e.reg.DependencyRank(rec.Table())
			byRank[rank] = append(byRank[rank], rec)
			total++
		}
	}
	ranks := make([]int, 0, len(byRank))
	for rank := range byRank {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)

	now := time.Now().UTC()
	err = e.db.Tx(ctx, func(ctx context.Context) error {
		q := e.db.Querier(ctx)
		for _, rank := range ranks {
			for _, rec := range byRank[rank] {
				if err := e.insertRecord(ctx, q, rec, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.DebugContext(ctx, "graph write",
		slog.Int("objects", len(objs)), slog.Int("records", total))
	return nil
}

func (e *Engine) insertRecord(ctx context.Context, q store.Querier, rec Record, now time.Time) error {
	created, updated := recordTimes(rec, now)
	stamp := func(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

	var (
		query string
		args  []any
	)
	switch r := rec.(type) {
	case *NodeRecord:
		query = "INSERT INTO lineage_node (" + nodeColumns + ") VALUES " + e.placeholders(10)
		args = []any{r.ID.String(), stamp(created), stamp(updated), r.Kind,
			r.Serializer, r.Data, r.RemoteStorage, r.RemoteLocation, r.ModelType, r.ModelVersion}
	case *LinkRecord:
		query = "INSERT INTO lineage_link (" + linkColumns + ") VALUES " + e.placeholders(6)
		args = []any{r.ID.String(), stamp(created), stamp(updated),
			r.SourceID.String(), r.TargetID.String(), r.Label}
	default:
		return linerr.Errorf(linerr.CodeGraphDumpFailure, "unsupported record type %T", rec)
	}

	_, err := q.ExecContext(ctx, query, args...)
	return linerr.With(
		e.db.WrapExec(err, "inserting "+rec.Table()+" record"),
		linerr.FieldTable(rec.Table()), linerr.FieldNodeID(rec.RecordID().String()))
}

func recordTimes(rec Record, now time.Time) (time.Time, time.Time) {
	switch r := rec.(type) {
	case *NodeRecord:
		if !r.CreatedAt.IsZero() {
			return r.CreatedAt, now
		}
	case *LinkRecord:
		if !r.CreatedAt.IsZero() {
			return r.CreatedAt, now
		}
	}
	return now, now
}

func (e *Engine) placeholders(n int) string {
	d := e.db.Dialect()
	out := "("
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += d.Placeholder(i)
	}
	return out + ")"
}

// Delete removes every object of a type matching the filter, dependents
// first. Related tables are deleted in descending foreign-key rank and the
// primary table last, so referencing rows never outlive their referents.
func Delete[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) error {
	self := where
	if t.Base != nil {
		self = And(t.Base, where)
	}

	relFilters := map[string]Filter{}
	if t.Related != nil {
		relFilters = t.Related(self)
	}
	tables := make([]string, 0, len(relFilters))
	for table := range relFilters {
		tables = append(tables, table)
	}
	sort.Slice(tables, func(i, j int) bool {
		ri, rj := e.reg.DependencyRank(tables[i]), e.reg.DependencyRank(tables[j])
		if ri != rj {
			return ri > rj
		}
		return tables[i] < tables[j]
	})

	return e.db.Tx(ctx, func(ctx context.Context) error {
		// Resolve every target id while the tables are intact. Structural
		// filters walk the link table, so deleting links first would empty
		// the closures the node filters still need.
		resolved := make(map[string][]any, len(tables))
		for _, table := range tables {
			ids, err := e.resolveIDs(ctx, table, relFilters[table])
			if err != nil {
				return err
			}
			resolved[table] = ids
		}
		primary, err := e.resolveIDs(ctx, t.Table, self)
		if err != nil {
			return err
		}

		for _, table := range tables {
			if err := e.deleteIDs(ctx, table, resolved[table]); err != nil {
				return err
			}
		}
		return e.deleteIDs(ctx, t.Table, primary)
	})
}

// DeleteObjects removes specific objects. Objects of the same table are
// deleted through one disjunctive filter each.
func (e *Engine) DeleteObjects(ctx context.Context, objs ...Object) error {
	if len(objs) == 0 {
		return nil
	}

	grouped := map[string][]Object{}
	var tables []string
	for _, o := range objs {
		if _, ok := grouped[o.Table()]; !ok {
			tables = append(tables, o.Table())
		}
		grouped[o.Table()] = append(grouped[o.Table()], o)
	}
	sort.Slice(tables, func(i, j int) bool {
		ri, rj := e.reg.DependencyRank(tables[i]), e.reg.DependencyRank(tables[j])
		if ri != rj {
			return ri > rj
		}
		return tables[i] < tables[j]
	})

	type deletion struct {
		relTables []string
		resolved  map[string][]any
		primary   []any
	}

	return e.db.Tx(ctx, func(ctx context.Context) error {
		// Same as Delete: resolve every group's targets before removing
		// anything, so related node filters still see the links they
		// traverse.
		deletions := make([]deletion, 0, len(tables))
		for _, table := range tables {
			group := grouped[table]

			selves := make([]Filter, 0, len(group))
			related := map[string][]Filter{}
			for _, o := range group {
				self := o.FilterSelf()
				selves = append(selves, self)
				for relTable, rel := range o.FilterRelated(self) {
					related[relTable] = append(related[relTable], rel)
				}
			}

			relTables := make([]string, 0, len(related))
			for relTable := range related {
				relTables = append(relTables, relTable)
			}
			sort.Slice(relTables, func(i, j int) bool {
				ri, rj := e.reg.DependencyRank(relTables[i]), e.reg.DependencyRank(relTables[j])
				if ri != rj {
					return ri > rj
				}
				return relTables[i] < relTables[j]
			})

			d := deletion{relTables: relTables, resolved: map[string][]any{}}
			for _, relTable := range relTables {
				ids, err := e.resolveIDs(ctx, relTable, Or(related[relTable]...))
				if err != nil {
					return err
				}
				d.resolved[relTable] = ids
			}
			primary, err := e.resolveIDs(ctx, table, Or(selves...))
			if err != nil {
				return err
			}
			d.primary = primary
			deletions = append(deletions, d)
		}

		for i, table := range tables {
			d := deletions[i]
			for _, relTable := range d.relTables {
				if err := e.deleteIDs(ctx, relTable, d.resolved[relTable]); err != nil {
					return err
				}
			}
			if err := e.deleteIDs(ctx, table, d.primary); err != nil {
				return err
			}
		}
		return nil
	})
}

// resolveIDs materializes the ids a filter matches right now.
func (e *Engine) resolveIDs(ctx context.Context, table string, where Filter) ([]any, error) {
	cond, args, err := Compile(where, e.db.Dialect(), e.reg)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Querier(ctx).QueryContext(ctx, "SELECT id FROM "+table+" WHERE "+cond, args...)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "resolving ids in "+table, linerr.FieldTable(table))
	}
	defer rows.Close()

	var ids []any
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "scanning id from "+table)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStoreQueryFailure, "resolving ids in "+table)
	}
	return ids, nil
}

func (e *Engine) deleteIDs(ctx context.Context, table string, ids []any) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := e.db.Querier(ctx).ExecContext(ctx,
		"DELETE FROM "+table+" WHERE id IN "+e.placeholders(len(ids)), ids...)
	return e.db.WrapExec(err, "deleting from "+table)
}

// ReadAsync starts Read on its own goroutine and returns a future.
func ReadAsync[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) *task.Future[[]G] {
	return task.Go(ctx, func(ctx context.Context) ([]G, error) {
		return Read(ctx, e, t, where)
	})
}

// ReadOneAsync starts ReadOne on its own goroutine and returns a future.
func ReadOneAsync[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) *task.Future[G] {
	return task.Go(ctx, func(ctx context.Context) (G, error) {
		return ReadOne(ctx, e, t, where)
	})
}

// ExistsAsync starts Exists on its own goroutine and returns a future.
func (e *Engine) ExistsAsync(ctx context.Context, table string, where Filter) *task.Future[bool] {
	return task.Go(ctx, func(ctx context.Context) (bool, error) {
		return e.Exists(ctx, table, where)
	})
}

// CountAsync starts Count on its own goroutine and returns a future.
func (e *Engine) CountAsync(ctx context.Context, table string, where Filter) *task.Future[int64] {
	return task.Go(ctx, func(ctx context.Context) (int64, error) {
		return e.Count(ctx, table, where)
	})
}

// WriteAsync starts Write on its own goroutine and returns a future.
func (e *Engine) WriteAsync(ctx context.Context, objs ...Object) *task.Future[struct{}] {
	return task.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.Write(ctx, objs...)
	})
}

// DeleteAsync starts Delete on its own goroutine and returns a future.
func DeleteAsync[G any](ctx context.Context, e *Engine, t ObjectType[G], where Filter) *task.Future[struct{}] {
	return task.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, Delete(ctx, e, t, where)
	})
}

// DeleteObjectsAsync starts DeleteObjects on its own goroutine and returns
// a future.
func (e *Engine) DeleteObjectsAsync(ctx context.Context, objs ...Object) *task.Future[struct{}] {
	return task.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.DeleteObjects(ctx, objs...)
	})
}
