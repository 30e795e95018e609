// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	linerr "github.com/sigil-dev/lineage/pkg/errors"
	"github.com/sigil-dev/lineage/serializer"
	"github.com/sigil-dev/lineage/storage"
)

type linkerKey struct{}

// FromContext returns the linker scope carried by ctx.
func FromContext(ctx context.Context) (*Linker, error) {
	l, ok := ctx.Value(linkerKey{}).(*Linker)
	if !ok {
		return nil, linerr.New(linerr.CodeLinkerInactive, "no linker scope is open on this context")
	}
	return l, nil
}

// Linker records values produced within one scope of execution as labeled
// children of a scope node. Opening a scope persists the node immediately;
// linked values queue and persist together when the scope closes, so a
// failed scope leaves the node but none of its children behind.
type Linker struct {
	engine *Engine
	node   *Node
	label  string

	mu     sync.Mutex
	opened bool
	closed bool
	labels map[string]bool
	queue  []Object
	links  []*Link
}

// LinkerOption configures a new linker.
type LinkerOption func(*Linker)

// WithNode attaches the scope to an existing node instead of a fresh one.
func WithNode(n *Node) LinkerOption {
	return func(l *Linker) { l.node = n }
}

// WithScopeLabel queues a link from the enclosing scope's node to this one
// under the given label when the scope opens nested.
func WithScopeLabel(label string) LinkerOption {
	return func(l *Linker) { l.label = label }
}

// NewLinker creates a scope around a fresh node.
func NewLinker(e *Engine, opts ...LinkerOption) *Linker {
	l := &Linker{engine: e, node: NewNode(), labels: map[string]bool{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Node returns the scope's node.
func (l *Linker) Node() *Node { return l.node }

// Open persists the scope node and returns a context carrying the scope.
// When opened inside another scope and a scope label is set, a link from
// the enclosing node queues on the parent. A linker opens at most once.
func (l *Linker) Open(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, linerr.New(linerr.CodeLinkerClosed, "linker scope is already closed")
	}
	if l.opened {
		l.mu.Unlock()
		return nil, linerr.New(linerr.CodeLinkerClosed, "linker scope is already open")
	}
	l.opened = true
	l.mu.Unlock()

	if l.label != "" {
		if parent, err := FromContext(ctx); err == nil {
			if err := parent.Link(l.label, l.node); err != nil {
				return nil, err
			}
		}
	}

	if err := l.engine.Write(ctx, l.node); err != nil {
		return nil, err
	}
	return context.WithValue(ctx, linkerKey{}, l), nil
}

// LinkOption overrides how a linked plain value is persisted.
type LinkOption func(*Artifact)

// LinkSerializer pins the serializer of the wrapping artifact.
func LinkSerializer(s serializer.Serializer) LinkOption {
	return func(a *Artifact) { a.Serializer = s }
}

// LinkStorage stores the wrapping artifact's bytes in a blob backend.
func LinkStorage(s storage.Storage) LinkOption {
	return func(a *Artifact) { a.Storage = s }
}

// Link queues value as a labeled child of the scope node. A *Node, an
// *Artifact, or a Model links by its own identity and takes no options;
// any other value is wrapped in an artifact built with the options given.
// Reusing a label within one scope fails immediately.
func (l *Linker) Link(label string, value any, opts ...LinkOption) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return linerr.New(linerr.CodeLinkerClosed, "linker scope is already closed")
	}
	if label == "" {
		return linerr.New(linerr.CodeLinkerAmbiguousSave, "link label must not be empty")
	}
	if l.labels[label] {
		return linerr.New(linerr.CodeLinkerLabelConflict,
			"label already linked in this scope", linerr.FieldLabel(label))
	}

	switch v := value.(type) {
	case *Node, *Artifact, Model:
		if len(opts) > 0 {
			return linerr.New(linerr.CodeLinkerAmbiguousSave,
				"persistence options do not apply to a value that is already a graph object",
				linerr.FieldLabel(label))
		}
		switch v := v.(type) {
		case *Node:
			l.links = append(l.links, NewLink(l.node.ID, v.ID, label))
		case *Artifact:
			l.queue = append(l.queue, v)
			l.links = append(l.links, NewLink(l.node.ID, v.ID, label))
		case Model:
			l.queue = append(l.queue, AsObject(v))
			l.links = append(l.links, NewLink(l.node.ID, v.ModelID(), label))
		}
	case Object:
		return linerr.New(linerr.CodeLinkerAmbiguousSave,
			"cannot link a value of this persistence type", linerr.FieldLabel(label))
	default:
		art := NewArtifact(value)
		for _, opt := range opts {
			opt(art)
		}
		l.queue = append(l.queue, art)
		l.links = append(l.links, NewLink(l.node.ID, art.ID, label))
	}

	l.labels[label] = true
	return nil
}

// Close persists everything linked during the scope in one transaction.
// Closing an already-closed scope is a no-op, so Close is defer-safe.
func (l *Linker) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	objs := make([]Object, 0, len(l.queue)+len(l.links))
	objs = append(objs, l.queue...)
	for _, link := range l.links {
		objs = append(objs, link)
	}
	l.mu.Unlock()

	return l.engine.Write(ctx, objs...)
}

// LinkedFunc is a unit of work that runs inside its own linker scope.
type LinkedFunc[I, O any] func(ctx context.Context, in I) (O, error)

// Linked wraps fn so every call runs in a child scope hanging off the
// enclosing one, labeled name#n with n counting calls to this wrapper.
// The input links into the child scope as "input" and the result as
// "return"; the scope closes when fn returns, successfully or not. Calling
// the wrapper without an open scope on ctx fails.
func Linked[I, O any](name string, e *Engine, fn LinkedFunc[I, O]) LinkedFunc[I, O] {
	var calls atomic.Int64
	return func(ctx context.Context, in I) (O, error) {
		var zero O

		if _, err := FromContext(ctx); err != nil {
			return zero, err
		}

		label := fmt.Sprintf("%s#%d", name, calls.Add(1))
		scope := NewLinker(e, WithScopeLabel(label))

		ctx, err := scope.Open(ctx)
		if err != nil {
			return zero, err
		}
		defer func() { _ = scope.Close(ctx) }()

		if err := scope.Link("input", in); err != nil {
			return zero, err
		}

		out, err := fn(ctx, in)
		if err != nil {
			return zero, err
		}
		if err := scope.Link("return", out); err != nil {
			return zero, err
		}
		if err := scope.Close(ctx); err != nil {
			return zero, err
		}
		return out, nil
	}
}
