// Package solver defines the boundary between the core and an SMT backend.
// The core never link-depends on a specific solver implementation; see
// package z3 for the one concrete implementation this repository ships.
package solver

import (
	"context"
	"errors"

	"github.com/pplgen/testgen/ir"
)

// Verdict is the three-valued result of a satisfiability query: SAT, UNSAT,
// or TIMEOUT/UNKNOWN. Go has no built-in option type, so this is the
// idiomatic substitute for a query that may legitimately come back with no
// definite answer: a concrete enum plus an error return, rather than a
// sentinel panic for "no answer".
type Verdict int

const (
	UNSAT Verdict = iota
	SAT
	TIMEOUT
)

func (v Verdict) String() string {
	switch v {
	case SAT:
		return "sat"
	case UNSAT:
		return "unsat"
	case TIMEOUT:
		return "timeout"
	default:
		return "unknown"
	}
}

// ErrCanceled is returned when ctx is done before the solver produces an
// answer.
var ErrCanceled = errors.New("solver: canceled")

// Model maps a FreeVariable's name to the concrete value the solver chose
// for it, as a fixed-width big-endian byte string.
type Model map[string][]byte

// Solver checks satisfiability of a conjunction of boolean-typed
// constraints and, on SAT, can produce a concrete model.
type Solver interface {
	// CheckSat reports whether constraints (implicitly ANDed) are
	// satisfiable.
	CheckSat(ctx context.Context, constraints []ir.Expr) (Verdict, error)
	// Model returns a concrete assignment for the free variables in the
	// most recent satisfiable CheckSat call. Calling it without a prior
	// SAT result is a programming error.
	Model() (Model, error)
	// Close releases any resources (solver context, native handles)
	// held by the implementation.
	Close() error
}
