// Package stepper implements the small-step expression and statement
// evaluator: given the top of an execution state's continuation, it
// produces the set of successor branches, each a candidate guard paired
// with a next state, one command at a time over a direct-style
// statement/expression tree.
package stepper

import (
	"github.com/sirupsen/logrus"

	"github.com/pplgen/testgen/extern"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// TableStepFunc applies a table declaration, delegating table-specific
// branch synthesis to package table without stepper importing it; the two
// share only package state, and the caller wires table's Step into
// Stepper.TableStep.
type TableStepFunc func(st *state.ExecutionState, table *ir.TableDecl, then ir.Stmt) ([]state.Branch, error)

// Stepper holds everything Step needs beyond the execution state itself:
// the program's declarations, the extern dispatch chain, the target's
// notion of an uninitialized value, and the table-stepping callback.
type Stepper struct {
	Decls   *ir.DeclTable
	Externs *extern.Registry

	// Uninitialized returns the target-specific "uninitialized" value for
	// t: taint under a permissive target, a declared default otherwise.
	Uninitialized func(t ir.Type) ir.Expr

	// TableStep resolves a table declaration into hit/miss branches. Left
	// nil in tests that never apply a table.
	TableStep TableStepFunc

	// MaxPacketBits bounds any runtime-computed advance/extract length,
	// per the Execution State invariant that input-packet size is bounded
	// by a target-specific maximum.
	MaxPacketBits uint

	// MaxAdvanceCandidates bounds how many concrete byte-aligned widths a
	// symbolic advance(x) case-splits into (see evalSymbolicAdvance); 0
	// means the default of 256.
	MaxAdvanceCandidates uint

	// Permissive controls whether an UnimplementedError is raised as a
	// warning (branch dropped) or a hard failure.
	Permissive bool

	Log *logrus.Entry
}

func (s *Stepper) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// exprResult is the unit evalExpr threads through a recursive evaluation:
// a successor state that has not yet committed Guard to its own
// PathConstraint (the caller — ultimately Step's return to the exploration
// strategy — decides whether to commit it, after checking satisfiability),
// the value produced so far, and the accumulated guard of every fork taken
// getting here.
type exprResult struct {
	St    *state.ExecutionState
	Value ir.Expr
	Guard ir.Expr
}

// andGuard conjoins two possibly-nil guards.
func andGuard(a, b ir.Expr) ir.Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return ir.NewBinaryExpr(ir.LAND, a, b)
}

// Step pops the top command of st's continuation and returns the branches
// it produces. It returns nil, nil when st is already terminal
// (IsTerminal()); a live state also yields no branches when assume()
// prunes its only path.
func (s *Stepper) Step(st *state.ExecutionState) ([]state.Branch, error) {
	if st.IsTerminal() {
		return nil, nil
	}
	cmd, _ := st.PopCommand()
	switch c := cmd.(type) {
	case state.ApplyCommand:
		return s.stepApply(st, c)
	case state.ReturnCommand:
		s.log().WithField("value", c.Value).Debug("[step] return")
		return []state.Branch{{Next: st}}, nil
	case state.ExceptionCommand:
		return s.stepException(st, c)
	case state.StmtCommand:
		return s.stepStmtCommand(st, c.Stmt)
	case state.CopyCommand:
		return s.stepCopy(st, c)
	case state.HookCommand:
		return c.Fn(st)
	default:
		return nil, bugCheck("unhandled command kind %T", cmd)
	}
}

// stepCopy performs a pipeline block's copy-in or copy-out boundary. Both
// directions are deterministic (no fork, no guard) — the parameter
// directions alone decide what moves where.
func (s *Stepper) stepCopy(st *state.ExecutionState, c state.CopyCommand) ([]state.Branch, error) {
	switch c.Dir {
	case state.CopyIn:
		s.CopyIn(st, c.Params, c.CallerScope, c.CalleeScope)
	case state.CopyOut:
		s.CopyOut(st, c.Params, c.CallerScope, c.CalleeScope)
	default:
		return nil, bugCheck("copy: unknown direction %d", c.Dir)
	}
	return []state.Branch{{Next: st}}, nil
}

func (s *Stepper) stepException(st *state.ExecutionState, c state.ExceptionCommand) ([]state.Branch, error) {
	st.Properties.Set(propException, c.Kind)
	if c.Msg != "" {
		st.Properties.Set(propExceptionMsg, c.Msg)
	}
	st.LogEvent(exceptionEvent(c))
	// PPL exceptional control flow unwinds to the nearest catch frame; this
	// core models no catch-frame distinction between parser/pipeline
	// blocks, so it unwinds all the way — the state becomes terminal, and
	// the exception kind it carries is read back from Properties by the
	// test callback.
	st.Continuation = nil
	return []state.Branch{{Next: st}}, nil
}

// stepStmtCommand dispatches a single statement. BlockStatement is an
// administrative step: it flattens into the continuation and returns
// immediately without otherwise touching st.
func (s *Stepper) stepStmtCommand(st *state.ExecutionState, stmt ir.Stmt) ([]state.Branch, error) {
	switch stmt := stmt.(type) {
	case *ir.BlockStatement:
		for i := len(stmt.Stmts) - 1; i >= 0; i-- {
			st.PushCommand(state.StmtCommand{Stmt: stmt.Stmts[i]})
		}
		return []state.Branch{{Next: st}}, nil
	case *ir.AssignmentStatement:
		return s.stepAssignment(st, stmt)
	case *ir.MethodCallStatement:
		if stmt.Call.ReceiverType == "table" {
			st.PushCommand(state.ApplyCommand{DeclName: stmt.Call.Method})
			return []state.Branch{{Next: st}}, nil
		}
		results, err := s.evalExpr(st, stmt.Call)
		if err != nil {
			return nil, err
		}
		return toBranches(results), nil
	case *ir.ExitStatement:
		st.LogEvent(genericEvent("exit"))
		st.Continuation = nil
		return []state.Branch{{Next: st}}, nil
	case *ir.IfStatement:
		return s.stepIf(st, stmt)
	default:
		return nil, bugCheck("unhandled statement kind %T", stmt)
	}
}

func (s *Stepper) stepAssignment(st *state.ExecutionState, stmt *ir.AssignmentStatement) ([]state.Branch, error) {
	results, err := s.evalExpr(st, stmt.RHS)
	if err != nil {
		return nil, err
	}
	ref, err := refOf(stmt.LHS)
	if err != nil {
		return nil, err
	}
	var branches []state.Branch
	for _, r := range results {
		r.St.Environment = r.St.Environment.Set(ref, r.Value)
		branches = append(branches, state.Branch{Guard: r.Guard, Next: r.St})
	}
	return branches, nil
}

func (s *Stepper) stepIf(st *state.ExecutionState, stmt *ir.IfStatement) ([]state.Branch, error) {
	condResults, err := s.evalExpr(st, stmt.Cond)
	if err != nil {
		return nil, err
	}
	var branches []state.Branch
	for _, cr := range condResults {
		splits, err := splitBool(cr.St, cr.Value)
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			next := sp.St
			if sp.Value {
				next.PushCommand(state.StmtCommand{Stmt: stmt.Then})
			} else if stmt.Else != nil {
				next.PushCommand(state.StmtCommand{Stmt: stmt.Else})
			}
			branches = append(branches, state.Branch{Guard: andGuard(cr.Guard, sp.Guard), Next: next})
		}
	}
	return branches, nil
}

func (s *Stepper) stepApply(st *state.ExecutionState, c state.ApplyCommand) ([]state.Branch, error) {
	id, ok := s.Decls.Lookup(c.DeclName)
	if !ok {
		return nil, bugCheck("apply: unknown declaration %q", c.DeclName)
	}
	decl, err := s.Decls.Get(id)
	if err != nil {
		return nil, bugCheck("apply: %v", err)
	}
	switch decl.Kind {
	case ir.DeclAction:
		if c.Then != nil {
			st.PushCommand(state.StmtCommand{Stmt: c.Then})
		}
		st.PushCommand(state.StmtCommand{Stmt: &ir.BlockStatement{Stmts: decl.Action.Body}})
		return []state.Branch{{Next: st}}, nil
	case ir.DeclTableDef:
		if s.TableStep == nil {
			return nil, bugCheck("apply: table %q applied but no TableStep is wired", c.DeclName)
		}
		return s.TableStep(st, decl.Table, c.Then)
	default:
		return nil, bugCheck("apply: declaration %q is neither an action nor a table", c.DeclName)
	}
}

// toBranches converts exprResults whose value is discarded (statement
// context) into Branches.
func toBranches(results []exprResult) []state.Branch {
	branches := make([]state.Branch, len(results))
	for i, r := range results {
		branches[i] = state.Branch{Guard: r.Guard, Next: r.St}
	}
	return branches
}

// boolSplit is the result of resolving a boolean-valued expression into
// the branches it forces: one if the value was already constant, two
// (true then false) if it required a fork.
type boolSplit struct {
	St    *state.ExecutionState
	Value bool
	Guard ir.Expr
}

// splitBool resolves cond (already evaluated to symbolic-normal form)
// into its boolSplit branches. A tainted condition is reported as
// Unimplemented: a tainted value driving a non-conservative fork must not
// silently pick a side.
func splitBool(st *state.ExecutionState, cond ir.Expr) ([]boolSplit, error) {
	if ir.IsTainted(cond) {
		return nil, unimplemented(true, "boolean fork on a tainted condition")
	}
	if ir.IsConstantTrue(cond) {
		return []boolSplit{{St: st, Value: true}}, nil
	}
	if ir.IsConstantFalse(cond) {
		return []boolSplit{{St: st, Value: false}}, nil
	}
	return []boolSplit{
		{St: st.Clone(), Value: true, Guard: cond},
		{St: st.Clone(), Value: false, Guard: ir.NewUnaryExpr(ir.LNOT, cond)},
	}, nil
}

// refOf recovers the state reference an lvalue expression denotes. Only
// PathExpression and Member chains rooted in one are valid lvalues; PPL's
// midend is assumed to have already rejected anything else.
func refOf(expr ir.Expr) (ir.Ref, error) {
	switch e := expr.(type) {
	case *ir.PathExpression:
		return e.Ref, nil
	case *ir.Member:
		base, err := refOf(e.Base)
		if err != nil {
			return "", err
		}
		return base.Field(e.Field), nil
	default:
		return "", bugCheck("refOf: %T is not an lvalue", expr)
	}
}
