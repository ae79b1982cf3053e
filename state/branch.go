package state

import "github.com/pplgen/testgen/ir"

// Branch pairs a successor state with the guard that must hold for that
// successor to be reachable. Guard is nil when a step has exactly one
// deterministic successor (no fork): the caller should not add it to
// Next's PathConstraint in that case. It lives in this package, rather than
// in stepper or table (both of which produce it), so that stepper and table
// can each depend on it without depending on each other.
type Branch struct {
	Guard ir.Expr
	Next  *ExecutionState
}
