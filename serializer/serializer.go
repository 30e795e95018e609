// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

// Package serializer converts typed values to and from bytes. Serializers
// are looked up by name at artifact-load time, so a name recorded at write
// time must remain resolvable for the life of the data.
package serializer

import (
	"sync"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Serializer converts a value to and from bytes.
//
// Name must be globally unique and stable across versions: it is persisted
// alongside every artifact row that used it. A serializer that needs a new
// name should be registered as a new serializer and the old one deprecated.
type Serializer interface {
	Name() string
	Serializable(value any) bool
	Serialize(value any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// Registry maps serializer names to implementations. Tests construct a
// fresh Registry per test to avoid cross-test leakage.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Serializer
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Serializer{}}
}

// Builtins returns a registry with every serializer in this package
// registered.
func Builtins() *Registry {
	r := NewRegistry()
	// Registration order matters to ForValue and Encode: specific
	// serializers first, JSON as the catch-all ahead of YAML.
	for _, s := range []Serializer{Raw{}, Text{}, Time{}, JSON{}, YAML{}} {
		if err := r.Register(s); err != nil {
			panic(err) // unreachable: builtin names are distinct
		}
	}
	return r
}

// Register adds a serializer. Re-registering an already-used name fails.
func (r *Registry) Register(s Serializer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[s.Name()]; ok {
		return linerr.Errorf(linerr.CodeSerializerConflict, "serializer %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Lookup resolves a serializer by name. Failure is a data-integrity error:
// the name was recorded at write time and must remain resolvable.
func (r *Registry) Lookup(name string) (Serializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil, linerr.Errorf(linerr.CodeSerializerUnknown, "no serializer named %q", name)
	}
	return s, nil
}

// ForValue returns the first registered serializer, in registration order,
// that reports the value as serializable.
func (r *Registry) ForValue(value any) (Serializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if s := r.byName[name]; s.Serializable(value) {
			return s, nil
		}
	}
	return nil, linerr.Errorf(linerr.CodeSerializerUnsupported, "no registered serializer accepts %T", value)
}

// Encode selects a serializer and returns its bytes in one pass. Candidates
// are tried in registration order and the first successful Serialize wins,
// so selecting never encodes the value twice. Serialize rejecting a value it
// cannot take is part of the Serializer contract.
func (r *Registry) Encode(value any) (Serializer, []byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		s := r.byName[name]
		data, err := s.Serialize(value)
		if err != nil {
			continue
		}
		return s, data, nil
	}
	return nil, nil, linerr.Errorf(linerr.CodeSerializerUnsupported, "no registered serializer accepts %T", value)
}
