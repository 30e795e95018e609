// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package storage

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Memory is an in-process backend, mainly for tests.
type Memory struct {
	name string

	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory(name string) *Memory {
	return &Memory{name: name, blobs: map[string][]byte{}}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Create(ctx context.Context, data []byte) (string, error) {
	id := uuid.New()
	key := hex.EncodeToString(id[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (m *Memory) Read(ctx context.Context, location string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[location]
	if !ok {
		return nil, linerr.Errorf(linerr.CodeStorageFailure, "no data at location %q", location)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Update(ctx context.Context, location string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[location]; !ok {
		return linerr.Errorf(linerr.CodeStorageFailure, "no data at location %q", location)
	}
	m.blobs[location] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[location]; !ok {
		return linerr.Errorf(linerr.CodeStorageFailure, "no data at location %q", location)
	}
	delete(m.blobs, location)
	return nil
}

func (m *Memory) Exists(ctx context.Context, location string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[location]
	return ok, nil
}
