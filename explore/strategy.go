// Package explore implements the exploration strategies that drive the
// stepper to completion: a reference linear-enumeration strategy, and a
// family of searcher-backed strategies (DFS, BFS, random) built on a
// common Searcher interface for alternative traversal orders.
package explore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/solver"
	"github.com/pplgen/testgen/state"
)

// StepFunc advances one execution state by one unit of work, the shape
// stepper.Stepper.Step and table.Stepper.Step (once composed by target) both
// have — explore depends on neither package directly, only on this shape,
// so a test can drive a strategy with a hand-written StepFunc.
type StepFunc func(st *state.ExecutionState) ([]state.Branch, error)

// TestCallback receives a terminal state's path constraint and the state
// itself, and reports whether enough tests have now been produced — the
// boundary across which model extraction and test serialization (outside
// this core) take over.
type TestCallback func(pathConstraint []ir.Expr, terminal *state.ExecutionState) bool

// Options configures a Strategy run: the knobs that affect the core
// directly (serialization-only settings like the test-object format are not
// this package's concern and live elsewhere).
type Options struct {
	MaxTests   int
	MaxBound   int
	Seed       int64
	Permissive bool
}

// Strategy produces feasible terminal states paired with their path
// constraints. Every implementation must honor this contract regardless of
// its internal search order.
type Strategy interface {
	Run(ctx context.Context, initial *state.ExecutionState, step StepFunc, sv solver.Solver, cb TestCallback, opts Options) error
}

// ErrPathUnfeasible marks a path dropped because its guard was a literal
// false or its accumulated path constraint was UNSAT — returned by the
// internal feasibility check, never out of Run (an unfeasible path is a
// routine pruning outcome, not a failure).
var ErrPathUnfeasible = errors.New("explore: path is unfeasible")

// ErrSolverTimeout marks a path dropped because the solver could not
// decide it within its configured budget. checkFeasible treats a timeout
// as UNSAT for pruning purposes but logs a warning first, since unlike a
// genuine UNSAT it means the path's feasibility was never actually
// determined.
var ErrSolverTimeout = errors.New("explore: solver timed out")

// permissiveUnimplemented reports whether err is a stepper UnimplementedError
// raised under permissive mode — the one kind of stepping error explore
// itself is allowed to interpret, by duck-typing on the two fields every
// package that raises one of these agrees to expose, rather than importing
// package stepper (which would make every Strategy implementation drag in
// the whole evaluator just to classify an error).
func permissiveUnimplemented(err error) bool {
	type permissiveError interface {
		error
		Unimplemented() bool
		IsPermissive() bool
	}
	var pe permissiveError
	if errors.As(err, &pe) {
		return pe.Unimplemented() && pe.IsPermissive()
	}
	return false
}

// checkFeasible commits branch's guard (if any) to its next state's path
// constraint and asks sv whether the accumulated path is still
// satisfiable. A literal-false guard is rejected before ever reaching the
// solver, matching LinearEnumeration::mapBranch's own shortcut.
func checkFeasible(ctx context.Context, sv solver.Solver, branch state.Branch) error {
	if branch.Guard != nil {
		if ir.IsConstantFalse(branch.Guard) {
			return ErrPathUnfeasible
		}
		if !ir.IsConstantTrue(branch.Guard) {
			branch.Next.AddConstraint(branch.Guard)
		}
	}
	verdict, err := sv.CheckSat(ctx, branch.Next.PathConstraint)
	if err != nil {
		return fmt.Errorf("explore: solver: %w", err)
	}
	switch verdict {
	case solver.SAT:
		return nil
	case solver.TIMEOUT:
		logrus.WithField("constraint-count", len(branch.Next.PathConstraint)).
			Warn("explore: solver timed out, treating path as unfeasible")
		return ErrSolverTimeout
	default:
		return ErrPathUnfeasible
	}
}
