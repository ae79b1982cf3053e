// Package z3 implements solver.Solver against libz3 via cgo: direct C API
// calls rather than a vendored pure-Go driver.
package z3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/solver"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure Solver implements solver.Solver.
var _ solver.Solver = (*Solver)(nil)

// Solver is a solver.Solver backed by an embedded Z3 context. The PPL
// domain never needs SMT array theory: the packet buffer is pure bitvector
// concatenation, and register indexing is modeled as a chain of ir.MuxExpr
// rather than Z3_mk_select/Z3_mk_store — so this package never builds an
// array sort.
type Solver struct {
	ctx   *Context
	stats Stats

	lastVars  map[string]ir.Type
	lastModel C.Z3_model
	haveModel bool
}

// NewSolver returns a new Solver with a fresh Z3 context.
func NewSolver() *Solver {
	return &Solver{ctx: NewContext()}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns solve-call counters.
func (s *Solver) Stats() Stats { return s.stats }

// CheckSat asserts constraints into a fresh Z3 solver instance and checks
// satisfiability.
func (s *Solver) CheckSat(ctx context.Context, constraints []ir.Expr) (solver.Verdict, error) {
	start := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		return solver.TIMEOUT, solver.ErrCanceled
	}

	z3solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return solver.TIMEOUT, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, z3solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, z3solver)

	s.lastVars = make(map[string]ir.Type)
	s.haveModel = false

	for _, constraint := range constraints {
		collectFreeVars(constraint, s.lastVars)

		ast, err := s.ctx.toAST(constraint)
		if err != nil {
			return solver.TIMEOUT, err
		}
		C.Z3_solver_assert(s.ctx.raw, z3solver, ast)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return solver.TIMEOUT, err
		}
	}

	ret := C.Z3_solver_check(s.ctx.raw, z3solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return solver.TIMEOUT, err
	}

	switch ret {
	case C.Z3_L_FALSE:
		return solver.UNSAT, nil
	case C.Z3_L_UNDEF:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, z3solver))
		if strings.Contains(reason, "timeout") || strings.Contains(reason, "canceled") || strings.Contains(reason, "resource") {
			return solver.TIMEOUT, nil
		}
		return solver.TIMEOUT, fmt.Errorf("z3: %s", reason)
	}

	if len(s.lastVars) > 0 {
		model := C.Z3_solver_get_model(s.ctx.raw, z3solver)
		if err := s.ctx.err("Z3_solver_get_model"); err != nil {
			return solver.SAT, err
		}
		C.Z3_model_inc_ref(s.ctx.raw, model)
		s.lastModel = model
		s.haveModel = true
	}
	return solver.SAT, nil
}

// Model returns the concrete assignment the most recent SAT CheckSat call
// produced for every free variable appearing in its constraints.
func (s *Solver) Model() (solver.Model, error) {
	if !s.haveModel {
		return solver.Model{}, nil
	}
	defer C.Z3_model_dec_ref(s.ctx.raw, s.lastModel)
	s.haveModel = false

	out := make(solver.Model, len(s.lastVars))
	for name, typ := range s.lastVars {
		width := ir.TypeWidth(typ)
		ast, err := s.ctx.makeFreeVarConst(name, width)
		if err != nil {
			return nil, err
		}

		var evaluated C.Z3_ast
		ok := C.Z3_model_eval(s.ctx.raw, s.lastModel, ast, C.bool(true), &evaluated)
		if !bool(ok) {
			continue
		}
		if err := s.ctx.err("Z3_model_eval"); err != nil {
			return nil, err
		}

		value, err := s.ctx.numeralToBytes(evaluated, width)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// collectFreeVars walks expr recording every FreeVariable and
// ConcolicVariable leaf's name and type into vars. A ConcolicVariable is
// solved as if it were a FreeVariable: the caller recomputes its real value
// from Inputs after the solve, outside this package.
func collectFreeVars(expr ir.Expr, vars map[string]ir.Type) {
	ir.Walk(expr, func(e ir.Expr) bool {
		switch e := e.(type) {
		case *ir.FreeVariable:
			vars[e.Name] = e.Typ
		case *ir.ConcolicVariable:
			vars[e.Name] = e.Typ
		}
		return true
	})
}

// Context wraps a Z3 context used to build and evaluate terms.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a fresh Z3 context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// Error represents an error returned by the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Message, e.Code)
}

// Stats records per-solver-instance solve counters.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}

func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("z3: "+format, args...))
	}
}
