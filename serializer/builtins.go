// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package serializer

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

// Raw passes []byte values through untouched.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Serializable(value any) bool {
	_, ok := value.([]byte)
	return ok
}

func (Raw) Serialize(value any) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, linerr.Errorf(linerr.CodeSerializerUnsupported, "raw serializer requires []byte, got %T", value)
	}
	return b, nil
}

func (Raw) Deserialize(data []byte) (any, error) { return data, nil }

// Text stores string values as UTF-8 bytes.
type Text struct{}

func (Text) Name() string { return "text" }

func (Text) Serializable(value any) bool {
	_, ok := value.(string)
	return ok
}

func (Text) Serialize(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, linerr.Errorf(linerr.CodeSerializerUnsupported, "text serializer requires string, got %T", value)
	}
	return []byte(s), nil
}

func (Text) Deserialize(data []byte) (any, error) { return string(data), nil }

// Time stores time.Time values as RFC 3339 with nanoseconds, in UTC.
type Time struct{}

func (Time) Name() string { return "time" }

func (Time) Serializable(value any) bool {
	_, ok := value.(time.Time)
	return ok
}

func (Time) Serialize(value any) ([]byte, error) {
	ts, ok := value.(time.Time)
	if !ok {
		return nil, linerr.Errorf(linerr.CodeSerializerUnsupported, "time serializer requires time.Time, got %T", value)
	}
	return []byte(ts.UTC().Format(time.RFC3339Nano)), nil
}

func (Time) Deserialize(data []byte) (any, error) {
	ts, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeSerializerFailure, "parsing stored timestamp")
	}
	return ts, nil
}

// JSON is the default serializer for structured values. encoding/json emits
// map keys sorted, so equal values always produce identical bytes.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Serializable(value any) bool {
	_, err := json.Marshal(value)
	return err == nil
}

func (JSON) Serialize(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeSerializerFailure, "encoding json value")
	}
	return b, nil
}

func (JSON) Deserialize(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeSerializerFailure, "decoding json value")
	}
	return v, nil
}

// YAML serializes structured values as YAML documents.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Serializable(value any) bool {
	_, err := yaml.Marshal(value)
	return err == nil
}

func (YAML) Serialize(value any) ([]byte, error) {
	b, err := yaml.Marshal(value)
	if err != nil {
		return nil, linerr.Wrap(err, linerr.CodeSerializerFailure, "encoding yaml value")
	}
	return b, nil
}

func (YAML) Deserialize(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, linerr.Wrap(err, linerr.CodeSerializerFailure, "decoding yaml value")
	}
	return v, nil
}
