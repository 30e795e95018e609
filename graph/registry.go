// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package graph is the provenance graph core: the polymorphic record model,
// the filter algebra that compiles structural and value predicates to SQL,
// the dependency-ordered persistence engine, and the Linker scope that
// records a call graph of produced and consumed values as code runs.
package graph

import (
	"sort"
	"sync"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/serializer"
	"github.com/sigil-dev/lineage/storage"
)

// Physical tables.
const (
	TableNode = "lineage_node"
	TableLink = "lineage_link"
)

// Builtin kind names. The discriminator of a node kind is stored in the
// node_type column.
const (
	KindNode             = "node"
	KindLink             = "link"
	KindArtifact         = "artifact" // abstract, groups the artifact kinds
	KindDatabaseArtifact = "database_artifact"
	KindRemoteArtifact   = "remote_artifact"
	KindModelArtifact    = "model_artifact"
)

// Kind maps a logical record type to its physical identity.
type Kind struct {
	Name          string
	Table         string
	Discriminator string
	Abstract      bool
	// Parent names the kind this one specializes, for subkind expansion.
	Parent string
	// References lists tables referenced by outgoing foreign keys, used to
	// compute the dependency rank.
	References []string
}

type tableDisc struct{ table, disc string }

// Registry maps logical kinds, model types, serializers, and storage
// backends to their persisted identities. One Registry is built at startup
// and injected into the engine; tests construct a fresh one per test.
type Registry struct {
	mu       sync.RWMutex
	kinds    map[string]Kind
	byDisc   map[tableDisc]string
	children map[string][]string
	rank     map[string]int

	models map[string]ModelType

	serializers *serializer.Registry
	storages    *storage.Registry
}

// NewRegistry returns a registry with the builtin graph kinds and builtin
// serializers registered, and an empty storage registry.
func NewRegistry() *Registry {
	r := &Registry{
		kinds:       map[string]Kind{},
		byDisc:      map[tableDisc]string{},
		children:    map[string][]string{},
		rank:        map[string]int{},
		models:      map[string]ModelType{},
		serializers: serializer.Builtins(),
		storages:    storage.NewRegistry(),
	}

	builtin := []Kind{
		{Name: KindNode, Table: TableNode, Discriminator: "node"},
		{Name: KindLink, Table: TableLink, Discriminator: "link", References: []string{TableNode}},
		{Name: KindArtifact, Table: TableNode, Abstract: true, Parent: KindNode},
		{Name: KindDatabaseArtifact, Table: TableNode, Discriminator: "database_artifact", Parent: KindArtifact},
		{Name: KindRemoteArtifact, Table: TableNode, Discriminator: "remote_artifact", Parent: KindArtifact},
		{Name: KindModelArtifact, Table: TableNode, Discriminator: "model_artifact", Parent: KindDatabaseArtifact},
	}
	for _, k := range builtin {
		if err := r.RegisterKind(k); err != nil {
			panic(err) // unreachable: builtin kinds are consistent
		}
	}
	return r
}

// RegisterKind registers a logical kind. Registering a second kind for the
// same (table, discriminator) pair fails, as does a non-abstract kind
// without a discriminator.
func (r *Registry) RegisterKind(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if k.Name == "" || k.Table == "" {
		return linerr.New(linerr.CodeGraphKindInvalid, "kind requires a name and a table", linerr.FieldKind(k.Name))
	}
	if !k.Abstract && k.Discriminator == "" {
		return linerr.New(linerr.CodeGraphKindInvalid, "non-abstract kind requires a discriminator", linerr.FieldKind(k.Name))
	}
	if _, ok := r.kinds[k.Name]; ok {
		return linerr.Errorf(linerr.CodeGraphKindConflict, "kind %q already registered", k.Name)
	}
	if !k.Abstract {
		key := tableDisc{k.Table, k.Discriminator}
		if prev, ok := r.byDisc[key]; ok {
			return linerr.Errorf(linerr.CodeGraphKindConflict,
				"discriminator %q on table %q already registered by kind %q", k.Discriminator, k.Table, prev)
		}
		r.byDisc[key] = k.Name
	}

	r.kinds[k.Name] = k
	if k.Parent != "" {
		r.children[k.Parent] = append(r.children[k.Parent], k.Name)
	}
	r.recomputeRanks()
	return nil
}

// recomputeRanks reruns the foreign-key rank fixpoint over every registered
// table. Callers hold r.mu.
func (r *Registry) recomputeRanks() {
	refs := map[string]map[string]bool{}
	for _, k := range r.kinds {
		if refs[k.Table] == nil {
			refs[k.Table] = map[string]bool{}
		}
		for _, ref := range k.References {
			if ref != k.Table {
				refs[k.Table][ref] = true
			}
		}
	}

	rank := map[string]int{}
	for changed := true; changed; {
		changed = false
		for table, out := range refs {
			next := 0
			for ref := range out {
				if other, ok := rank[ref]; ok && other+1 > next {
					next = other + 1
				} else if !ok && 1 > next {
					next = 1
				}
			}
			if rank[table] != next {
				rank[table] = next
				changed = true
			}
			if _, ok := rank[table]; !ok {
				rank[table] = next
				changed = true
			}
		}
	}
	r.rank = rank
}

// Kind returns a registered kind by name.
func (r *Registry) Kind(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, linerr.Errorf(linerr.CodeGraphKindUnknown, "no kind named %q", name)
	}
	return k, nil
}

// Resolve returns the concrete kind persisted under a discriminator value.
// Used when reconstructing heterogeneous row sets.
func (r *Registry) Resolve(table, discriminator string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.byDisc[tableDisc{table, discriminator}]
	if !ok {
		return Kind{}, linerr.Errorf(linerr.CodeGraphKindUnknown,
			"no kind registered for discriminator %q on table %q", discriminator, table)
	}
	return r.kinds[name], nil
}

// DependencyRank is the total order the engine writes and deletes tables
// in: a table referencing another ranks strictly above it.
func (r *Registry) DependencyRank(table string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rank[table]
}

// Discriminators expands kind names to the concrete discriminator values
// they cover, including every registered subkind unless exactOnly is set.
// Abstract kinds contribute their subkinds only.
func (r *Registry) Discriminators(names []string, exactOnly bool) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []string

	var walk func(name string) error
	walk = func(name string) error {
		k, ok := r.kinds[name]
		if !ok {
			return linerr.Errorf(linerr.CodeGraphKindUnknown, "no kind named %q", name)
		}
		if !k.Abstract && !seen[k.Discriminator] {
			seen[k.Discriminator] = true
			out = append(out, k.Discriminator)
		}
		if exactOnly && !k.Abstract {
			return nil
		}
		for _, child := range r.children[name] {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, name := range names {
		if err := walk(name); err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// RegisterModel registers a model type by name. Duplicate names fail.
func (r *Registry) RegisterModel(mt ModelType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mt.Name == "" || mt.Init == nil {
		return linerr.New(linerr.CodeGraphKindInvalid, "model type requires a name and an init hook")
	}
	if _, ok := r.models[mt.Name]; ok {
		return linerr.Errorf(linerr.CodeModelTypeConflict, "model type %q already registered", mt.Name)
	}
	r.models[mt.Name] = mt
	return nil
}

// ModelTypeByName resolves a registered model type. Failure at load time is
// a data-integrity error.
func (r *Registry) ModelTypeByName(name string) (ModelType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mt, ok := r.models[name]
	if !ok {
		return ModelType{}, linerr.Errorf(linerr.CodeModelTypeUnknown, "model type %q is not registered", name)
	}
	return mt, nil
}

// Serializers returns the serializer registry.
func (r *Registry) Serializers() *serializer.Registry { return r.serializers }

// Storages returns the storage registry.
func (r *Registry) Storages() *storage.Registry { return r.storages }
