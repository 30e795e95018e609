// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package storage holds artifact bytes outside the relational store. The
// graph core treats backends as opaque except for the location string
// returned by Create, which is persisted alongside the artifact row.
package storage

import (
	"context"
	"sync"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Storage is a key-based blob store.
//
// Name must be globally unique and stable: it is persisted on every remote
// artifact row and used to recover the backend at load time.
type Storage interface {
	Name() string
	Create(ctx context.Context, data []byte) (location string, err error)
	Read(ctx context.Context, location string) ([]byte, error)
	Update(ctx context.Context, location string, data []byte) error
	Delete(ctx context.Context, location string) error
	Exists(ctx context.Context, location string) (bool, error)
}

// Registry maps storage names to backends. Tests construct a fresh Registry
// per test.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Storage
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Storage{}}
}

// Register adds a backend. Re-registering an already-used name fails.
func (r *Registry) Register(s Storage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[s.Name()]; ok {
		return linerr.Errorf(linerr.CodeStorageConflict, "storage %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	return nil
}

// Lookup resolves a backend by name. Failure is a data-integrity error: the
// name was recorded at write time and must remain resolvable.
func (r *Registry) Lookup(name string) (Storage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, linerr.Errorf(linerr.CodeStorageUnknown, "no storage named %q", name)
	}
	return s, nil
}
