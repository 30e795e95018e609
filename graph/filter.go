// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/store"
)

// Column is a fully qualified column a value filter binds to.
type Column string

const (
	ColNodeID           Column = "lineage_node.id"
	ColNodeCreatedAt    Column = "lineage_node.created_at"
	ColNodeUpdatedAt    Column = "lineage_node.updated_at"
	ColNodeType         Column = "lineage_node.node_type"
	ColNodeSerializer   Column = "lineage_node.artifact_serializer"
	ColNodeModelType    Column = "lineage_node.model_type"
	ColNodeModelVersion Column = "lineage_node.model_version"

	ColLinkID        Column = "lineage_link.id"
	ColLinkCreatedAt Column = "lineage_link.created_at"
	ColLinkSourceID  Column = "lineage_link.source_id"
	ColLinkTargetID  Column = "lineage_link.target_id"
	ColLinkLabel     Column = "lineage_link.label"
)

// Filter is a condition tree that compiles to a SQL predicate. Compilation
// depends only on the filter's structure and the target dialect, never on
// database state.
type Filter interface {
	fmt.Stringer
	compile(b *builder) error
}

// builder accumulates the SQL text and bound arguments of one compilation.
// In literal mode operands are inlined instead of bound, which gives every
// filter a deterministic String() form usable as a map key.
type builder struct {
	dialect store.Dialect
	reg     *Registry
	sb      strings.Builder
	args    []any
	literal bool
}

// Compile renders a filter against a dialect, returning the predicate text
// and its bound arguments in placeholder order.
func Compile(f Filter, d store.Dialect, reg *Registry) (string, []any, error) {
	b := &builder{dialect: d, reg: reg}
	if err := f.compile(b); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func (b *builder) write(s string) { b.sb.WriteString(s) }

// expr compiles a sub-filter into its own text buffer while threading the
// shared argument list through, so argument order matches placeholder order.
func (b *builder) expr(f func(*builder) error) (string, error) {
	sub := &builder{dialect: b.dialect, reg: b.reg, args: b.args, literal: b.literal}
	if err := f(sub); err != nil {
		return "", err
	}
	b.args = sub.args
	return sub.sb.String(), nil
}

// bind renders one operand: a placeholder in normal mode, an escaped SQL
// literal in literal mode.
func (b *builder) bind(v any) string {
	v = normalizeOperand(v)
	if b.literal {
		return sqlLiteral(v)
	}
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// normalizeOperand maps Go values onto the wire representation both
// dialects store: uuids and times become their canonical strings.
func normalizeOperand(v any) any {
	switch t := v.(type) {
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func sqlLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case []byte:
		return "X'" + hex.EncodeToString(t) + "'"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// renderString is the shared String() implementation: literal mode against
// a neutral dialect so the output is stable across backends.
func renderString(f Filter) string {
	b := &builder{dialect: literalDialect{}, reg: stringRegistry, literal: true}
	if err := f.compile(b); err != nil {
		return "<invalid filter: " + err.Error() + ">"
	}
	return b.sb.String()
}

// stringRegistry backs String() rendering only; real compilations use the
// engine's registry.
var stringRegistry = NewRegistry()

type literalDialect struct{}

func (literalDialect) Name() string { return "literal" }
func (literalDialect) Placeholder(int) string { return "?" }
func (literalDialect) ILike(column, operand string) string {
	return "lower(" + column + ") LIKE lower(" + operand + ")"
}
func (literalDialect) Schema() string { return "" }
func (literalDialect) IsIntegrity(error) bool { return false }

type valueOp string

const (
	opGt    valueOp = ">"
	opGe    valueOp = ">="
	opLt    valueOp = "<"
	opLe    valueOp = "<="
	opNe    valueOp = "!="
	opEq    valueOp = "="
	opIn    valueOp = "IN"
	opNotIn valueOp = "NOT IN"
	opLike  valueOp = "LIKE"
	opILike valueOp = "ILIKE"
	opIs    valueOp = "IS"
	opIsNot valueOp = "IS NOT"
)

type valueCond struct {
	op      valueOp
	operand any   // scalar operands
	set     []any // IN / NOT IN operands
}

// ValueFilter is a conjunction of comparisons against one column. The zero
// value matches everything and contributes no SQL. A value filter that is
// not bound to a column fails compilation.
type ValueFilter[T any] struct {
	column Column
	conds  []valueCond
}

// Value returns an empty, unbound value filter.
func Value[T any]() ValueFilter[T] { return ValueFilter[T]{} }

// Eq is shorthand for Value[T]().Eq(v).
func Eq[T any](v T) ValueFilter[T] { return Value[T]().Eq(v) }

// In is shorthand for Value[T]().In(vs...).
func In[T any](vs ...T) ValueFilter[T] { return Value[T]().In(vs...) }

func (f ValueFilter[T]) with(c valueCond) ValueFilter[T] {
	conds := make([]valueCond, len(f.conds), len(f.conds)+1)
	copy(conds, f.conds)
	return ValueFilter[T]{column: f.column, conds: append(conds, c)}
}

func (f ValueFilter[T]) Gt(v T) ValueFilter[T] { return f.with(valueCond{op: opGt, operand: v}) }
func (f ValueFilter[T]) Ge(v T) ValueFilter[T] { return f.with(valueCond{op: opGe, operand: v}) }
func (f ValueFilter[T]) Lt(v T) ValueFilter[T] { return f.with(valueCond{op: opLt, operand: v}) }
func (f ValueFilter[T]) Le(v T) ValueFilter[T] { return f.with(valueCond{op: opLe, operand: v}) }
func (f ValueFilter[T]) Ne(v T) ValueFilter[T] { return f.with(valueCond{op: opNe, operand: v}) }
func (f ValueFilter[T]) Eq(v T) ValueFilter[T] { return f.with(valueCond{op: opEq, operand: v}) }

func (f ValueFilter[T]) In(vs ...T) ValueFilter[T] {
	return f.with(valueCond{op: opIn, set: anySlice(vs)})
}

func (f ValueFilter[T]) NotIn(vs ...T) ValueFilter[T] {
	return f.with(valueCond{op: opNotIn, set: anySlice(vs)})
}

// Like matches against a SQL pattern with % and _ wildcards.
func (f ValueFilter[T]) Like(pattern string) ValueFilter[T] {
	return f.with(valueCond{op: opLike, operand: pattern})
}

// ILike is the case-insensitive form of Like; rendering is per dialect.
func (f ValueFilter[T]) ILike(pattern string) ValueFilter[T] {
	return f.with(valueCond{op: opILike, operand: pattern})
}

// Is compares identity against NULL or a boolean. The operand is inlined.
func (f ValueFilter[T]) Is(v any) ValueFilter[T] { return f.with(valueCond{op: opIs, operand: v}) }

func (f ValueFilter[T]) IsNot(v any) ValueFilter[T] {
	return f.with(valueCond{op: opIsNot, operand: v})
}

// Against binds the filter to a column. Structural filters call this when
// they embed a value filter into a larger predicate.
func (f ValueFilter[T]) Against(col Column) ValueFilter[T] {
	return ValueFilter[T]{column: col, conds: f.conds}
}

func (f ValueFilter[T]) empty() bool { return len(f.conds) == 0 }

func (f ValueFilter[T]) String() string { return renderString(f) }

func (f ValueFilter[T]) compile(b *builder) error {
	if f.empty() {
		b.write("1 = 1")
		return nil
	}
	if f.column == "" {
		return linerr.New(linerr.CodeFilterUnbound, "value filter is not bound to a column")
	}

	parts := make([]string, 0, len(f.conds))
	for _, c := range f.conds {
		part, err := compileCond(b, string(f.column), c)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}
	writeJoined(b, parts, " AND ")
	return nil
}

func compileCond(b *builder, column string, c valueCond) (string, error) {
	switch c.op {
	case opIn, opNotIn:
		if len(c.set) == 0 {
			// IN over the empty set is vacuously false.
			if c.op == opIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		elems := make([]string, len(c.set))
		for i, v := range c.set {
			elems[i] = b.bind(v)
		}
		return column + " " + string(c.op) + " (" + strings.Join(elems, ", ") + ")", nil
	case opILike:
		return b.dialect.ILike(column, b.bind(c.operand)), nil
	case opIs, opIsNot:
		// IS takes NULL or a boolean literal, never a placeholder.
		switch c.operand.(type) {
		case nil, bool:
			return column + " " + string(c.op) + " " + sqlLiteral(c.operand), nil
		default:
			return "", linerr.Errorf(linerr.CodeFilterUnbound,
				"IS comparison takes NULL or a boolean, got %T", c.operand)
		}
	default:
		return column + " " + string(c.op) + " " + b.bind(c.operand), nil
	}
}

func writeJoined(b *builder, parts []string, sep string) {
	if len(parts) == 1 {
		b.write(parts[0])
		return
	}
	b.write("(")
	b.write(strings.Join(parts, sep))
	b.write(")")
}

func anySlice[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// MultiFilter combines sub-filters with a single boolean operator. And and
// Or flatten nested combinators of the same operator on construction, so
// association order never changes the compiled SQL.
type MultiFilter struct {
	Op      string // "and" or "or"
	Filters []Filter
}

// And combines filters conjunctively. Nil filters are dropped; a single
// survivor is returned unwrapped.
func And(fs ...Filter) Filter { return combine("and", fs) }

// Or combines filters disjunctively.
func Or(fs ...Filter) Filter { return combine("or", fs) }

func combine(op string, fs []Filter) Filter {
	flat := make([]Filter, 0, len(fs))
	for _, f := range fs {
		if f == nil {
			continue
		}
		if mf, ok := f.(*MultiFilter); ok && mf.Op == op {
			flat = append(flat, mf.Filters...)
			continue
		}
		flat = append(flat, f)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &MultiFilter{Op: op, Filters: flat}
}

func (f *MultiFilter) String() string { return renderString(f) }

func (f *MultiFilter) compile(b *builder) error {
	if len(f.Filters) == 0 {
		if f.Op == "or" {
			b.write("1 = 0")
		} else {
			b.write("1 = 1")
		}
		return nil
	}

	sep := " AND "
	if f.Op == "or" {
		sep = " OR "
	}

	parts := make([]string, 0, len(f.Filters))
	for _, sub := range f.Filters {
		part, err := b.expr(sub.compile)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}
	writeJoined(b, parts, sep)
	return nil
}
