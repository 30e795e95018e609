// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// FileSystem stores artifact bytes as files under a directory. Locations
// are opaque hex keys, never caller-supplied paths.
type FileSystem struct {
	name string
	dir  string
}

// NewFileSystem creates a filesystem backend rooted at dir. The directory
// is created if it does not exist.
func NewFileSystem(name, dir string) (*FileSystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStorageFailure, "creating storage directory", linerr.Field("dir", dir))
	}
	return &FileSystem{name: name, dir: dir}, nil
}

func (f *FileSystem) Name() string { return f.name }

func (f *FileSystem) Create(ctx context.Context, data []byte) (string, error) {
	id := uuid.New()
	key := hex.EncodeToString(id[:])
	if err := os.WriteFile(filepath.Join(f.dir, key), data, 0o644); err != nil {
		return "", linerr.Wrap(err, linerr.CodeStorageFailure, "writing artifact data", linerr.Field("location", key))
	}
	return key, nil
}

func (f *FileSystem) Read(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, location))
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeStorageFailure, "reading artifact data", linerr.Field("location", location))
	}
	return data, nil
}

func (f *FileSystem) Update(ctx context.Context, location string, data []byte) error {
	if err := os.WriteFile(filepath.Join(f.dir, location), data, 0o644); err != nil {
		return linerr.Wrap(err, linerr.CodeStorageFailure, "updating artifact data", linerr.Field("location", location))
	}
	return nil
}

func (f *FileSystem) Delete(ctx context.Context, location string) error {
	if err := os.Remove(filepath.Join(f.dir, location)); err != nil {
		return linerr.Wrap(err, linerr.CodeStorageFailure, "deleting artifact data", linerr.Field("location", location))
	}
	return nil
}

func (f *FileSystem) Exists(ctx context.Context, location string) (bool, error) {
	_, err := os.Stat(filepath.Join(f.dir, location))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, linerr.Wrap(err, linerr.CodeStorageFailure, "checking artifact data", linerr.Field("location", location))
	}
	return true, nil
}
