// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreOpenFailure        Code = "store.open.failure"
	CodeStoreMigrateFailure     Code = "store.migrate.failure"
	CodeStoreQueryFailure       Code = "store.query.failure"
	CodeStoreExecFailure        Code = "store.exec.failure"
	CodeStoreTxFailure          Code = "store.tx.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreIntegrityConflict  Code = "store.integrity.conflict"

	CodeGraphNotFound        Code = "graph.read.not_found"
	CodeGraphMultipleMatches Code = "graph.read.multiple_matches"
	CodeGraphLoadFailure     Code = "graph.load.failure"
	CodeGraphDumpFailure     Code = "graph.dump.failure"
	CodeGraphKindUnknown     Code = "graph.kind.not_found"
	CodeGraphKindConflict    Code = "graph.kind.register.conflict"
	CodeGraphKindInvalid     Code = "graph.kind.register.invalid_input"
	CodeFilterUnbound        Code = "graph.filter.compile.invalid_input"

	CodeModelTypeUnknown    Code = "graph.model.type.not_found"
	CodeModelTypeConflict   Code = "graph.model.register.conflict"
	CodeModelMigrateFailure Code = "graph.model.migrate.failure"

	CodeLinkerInactive      Code = "linker.scope.not_found"
	CodeLinkerClosed        Code = "linker.scope.invalid_input"
	CodeLinkerLabelConflict Code = "linker.label.conflict"
	CodeLinkerAmbiguousSave Code = "linker.link.invalid_input"

	CodeSerializerUnknown     Code = "serializer.lookup.not_found"
	CodeSerializerConflict    Code = "serializer.register.conflict"
	CodeSerializerUnsupported Code = "serializer.value.invalid_input"
	CodeSerializerFailure     Code = "serializer.codec.failure"

	CodeStorageUnknown  Code = "storage.lookup.not_found"
	CodeStorageConflict Code = "storage.register.conflict"
	CodeStorageFailure  Code = "storage.io.failure"

	CodeConfigLoadFailure Code = "config.load.failure"
	CodeConfigInvalid     Code = "config.validate.invalid_value"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldNodeID(value any) Attr { return Field("node_id", value) }

func FieldLabel(value string) Attr { return Field("label", value) }

func FieldKind(value string) Attr { return Field("kind", value) }

func FieldTable(value string) Attr { return Field("table", value) }

func FieldFilter(value fmt.Stringer) Attr { return Field("filter", value.String()) }

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(string(code)).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(string(code)).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(string(code)).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeStoreQueryFailure
	}

	return oops.Code(string(code)).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	r := reason(CodeOf(err))
	return r == "conflict" || r == "multiple_matches"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "unsupported"
}

// Join combines several errors into one aggregate. Nil elements are skipped;
// all non-nil errors remain reachable via errors.As and Unwrap() []error.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
