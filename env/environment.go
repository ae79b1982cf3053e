// Package env implements the symbolic environment: a flat, copy-on-write
// map from state references to symbolic values.
package env

import (
	"fmt"

	"github.com/benbjohnson/immutable"

	"github.com/pplgen/testgen/ir"
)

// Environment is a persistent map from ir.Ref to ir.Expr. Forking an
// Environment never aliases mutable sub-structures: the underlying
// immutable.SortedMap shares unmodified tree nodes between the parent and
// the child, but any write in either one builds fresh nodes rather than
// mutating shared ones.
type Environment struct {
	m *immutable.SortedMap[ir.Ref, ir.Expr]
}

// New returns an empty Environment.
func New() *Environment {
	return &Environment{m: immutable.NewSortedMap[ir.Ref, ir.Expr](refComparer{})}
}

// Get returns the value bound to ref and whether it was present.
func (e *Environment) Get(ref ir.Ref) (ir.Expr, bool) {
	return e.m.Get(ref)
}

// MustGet returns the value bound to ref, panicking if it is not present.
// Callers use this once a PathExpression has already been validated against
// the program's declarations — a miss at that point is an implementation
// bug, not a program-level condition.
func (e *Environment) MustGet(ref ir.Ref) ir.Expr {
	v, ok := e.m.Get(ref)
	if !ok {
		panic(fmt.Sprintf("env: unbound reference %q", ref))
	}
	return v
}

// Exists reports whether ref is bound.
func (e *Environment) Exists(ref ir.Ref) bool {
	_, ok := e.m.Get(ref)
	return ok
}

// Set returns a new Environment with ref bound to value. The receiver is
// unmodified.
func (e *Environment) Set(ref ir.Ref, value ir.Expr) *Environment {
	return &Environment{m: e.m.Set(ref, value)}
}

// Delete returns a new Environment with ref unbound. The receiver is
// unmodified.
func (e *Environment) Delete(ref ir.Ref) *Environment {
	return &Environment{m: e.m.Delete(ref)}
}

// HasTaint reports whether the value bound to ref is, or transitively
// contains, a taint sentinel. Unbound refs are not tainted.
func (e *Environment) HasTaint(ref ir.Ref) bool {
	v, ok := e.m.Get(ref)
	return ok && ir.IsTainted(v)
}

// Fork returns a copy-on-write snapshot of the environment, suitable for
// handing to a child execution state. Because Environment is already
// persistent, Fork is just a shallow copy of the wrapper — the shared map
// is never mutated by either side afterward.
func (e *Environment) Fork() *Environment {
	return &Environment{m: e.m}
}

// Refs returns every bound reference with the given prefix, in path order.
// Used to flatten a struct- or header-typed location into its leaf fields.
func (e *Environment) Refs(prefix ir.Ref) []ir.Ref {
	var refs []ir.Ref
	itr := e.m.Iterator()
	for !itr.Done() {
		ref, _, _ := itr.Next()
		if ref.HasPrefix(prefix) {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Len returns the number of bound references.
func (e *Environment) Len() int { return e.m.Len() }

type refComparer struct{}

func (refComparer) Compare(a, b ir.Ref) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
