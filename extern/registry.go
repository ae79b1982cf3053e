// Package extern implements the extern registry: the dispatch table that
// maps method calls the expression stepper cannot reduce on its own
// (register access, hashing, checksums, clone/resubmit/recirculate, packet
// marking) to Go handlers.
package extern

import (
	"fmt"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// Key identifies an extern method: Receiver is the extern object's type
// name ("packet_in", "Checksum16", "Register") or "*" for a free function
// ("mark_to_drop", "hash"); Method is the method name.
type Key struct {
	Receiver string
	Method   string
}

func (k Key) String() string {
	if k.Receiver == "*" {
		return k.Method
	}
	return fmt.Sprintf("%s.%s", k.Receiver, k.Method)
}

// Handler implements one extern method. It receives the unevaluated
// receiver expression (nil for free functions) and the evaluated
// arguments, and mutates st directly
// for any side effect (register writes, clone-session bookkeeping, the
// recirculation counter). A non-void extern returns its result value;
// void externs return nil.
type Handler func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error)

// Registry is a name-keyed extern dispatch table: Register records a
// handler, Lookup consults this registry and falls back to a parent
// registry (the core extern set) if this one — typically a target's own
// extern set — has no entry.
type Registry struct {
	fns    map[Key]Handler
	parent *Registry
}

// NewRegistry returns an empty registry chained to parent. A nil parent
// means this is the root (core) registry.
func NewRegistry(parent *Registry) *Registry {
	return &Registry{fns: make(map[Key]Handler), parent: parent}
}

// Register records fn as the handler for key, overwriting any existing
// handler already registered under the same key in this registry (not in
// its parent).
func (r *Registry) Register(key Key, fn Handler) {
	r.fns[key] = fn
}

// Lookup returns the handler for key, consulting the parent registry if
// this one has no entry, and whether one was found anywhere in the chain.
func (r *Registry) Lookup(key Key) (Handler, bool) {
	if fn, ok := r.fns[key]; ok {
		return fn, true
	}
	if r.parent != nil {
		return r.parent.Lookup(key)
	}
	return nil, false
}

// ErrUnknownExtern is the error a caller should surface as a
// TestgenUnimplemented condition when no handler is registered for a
// MethodCallExpression's receiver/method pair.
type ErrUnknownExtern struct {
	Key Key
}

func (e *ErrUnknownExtern) Error() string {
	return fmt.Sprintf("extern: no handler registered for %s", e.Key)
}
