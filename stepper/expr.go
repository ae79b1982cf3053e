package stepper

import (
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// evalExpr reduces expr to symbolic-normal form against st, returning one
// exprResult per branch a fork inside expr forced. It uses Go's own call
// stack as the evaluation stack: rather than reifying every
// partially-evaluated sub-expression as a separate heap-allocated
// continuation command, each recursive call here holds the place of one
// sub-expression directly — the result it returns substitutes straight
// into the caller's rebuild of the parent node. One evalExpr call can
// still fan out into many successor states (one per combination of forks
// taken along the way); Step's caller decides, per exprResult.Guard,
// whether to commit it to the state's PathConstraint.
func (s *Stepper) evalExpr(st *state.ExecutionState, expr ir.Expr) ([]exprResult, error) {
	switch e := expr.(type) {
	case *ir.Constant, *ir.BoolLiteral, *ir.StringLiteral, *ir.FreeVariable,
		*ir.TaintExpression, *ir.TypeNameExpression, *ir.ConcolicVariable:
		return []exprResult{{St: st, Value: e}}, nil

	case *ir.PathExpression:
		v, err := s.resolvePath(st, e.Ref, e.Typ)
		if err != nil {
			return nil, err
		}
		return []exprResult{{St: st, Value: v}}, nil

	case *ir.Member:
		return s.evalMember(st, e)

	case *ir.BinaryExpr:
		return s.evalBinary(st, e)

	case *ir.UnaryExpr:
		return mapUnary(s, st, e)

	case *ir.CastExpr:
		results, err := s.evalExpr(st, e.Src)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Value = ir.NewCastExpr(results[i].Value, e.Target)
		}
		return results, nil

	case *ir.ConcatExpr:
		return s.evalSeq2(st, e.MSB, e.LSB, func(msb, lsb ir.Expr) ir.Expr {
			return ir.NewConcatExpr(msb, lsb)
		})

	case *ir.ExtractExpr:
		results, err := s.evalExpr(st, e.X)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Value = ir.NewExtractExpr(results[i].Value, e.Offset, e.Width)
		}
		return results, nil

	case *ir.SliceExpr:
		results, err := s.evalExpr(st, e.X)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Value = ir.NewSliceExpr(results[i].Value, e.Hi, e.Lo)
		}
		return results, nil

	case *ir.MuxExpr:
		return s.evalMux(st, e)

	case *ir.MethodCallExpression:
		return s.evalMethodCall(st, e)

	case *ir.StructExpression:
		return s.evalStruct(st, e)

	default:
		return nil, bugCheck("evalExpr: unhandled expr kind %T", expr)
	}
}

// evalSeq2 evaluates a then b left-to-right, threading forks from a into
// the evaluation of b, and combines their values with combine.
func (s *Stepper) evalSeq2(st *state.ExecutionState, a, b ir.Expr, combine func(a, b ir.Expr) ir.Expr) ([]exprResult, error) {
	aResults, err := s.evalExpr(st, a)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, ar := range aResults {
		bResults, err := s.evalExpr(ar.St, b)
		if err != nil {
			return nil, err
		}
		for _, br := range bResults {
			out = append(out, exprResult{
				St:    br.St,
				Value: combine(ar.Value, br.Value),
				Guard: andGuard(ar.Guard, br.Guard),
			})
		}
	}
	return out, nil
}

func mapUnary(s *Stepper, st *state.ExecutionState, e *ir.UnaryExpr) ([]exprResult, error) {
	results, err := s.evalExpr(st, e.X)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Value = ir.NewUnaryExpr(e.Op, results[i].Value)
	}
	return results, nil
}

func (s *Stepper) evalBinary(st *state.ExecutionState, e *ir.BinaryExpr) ([]exprResult, error) {
	if e.Op == ir.LAND || e.Op == ir.LOR {
		return s.evalShortCircuit(st, e)
	}
	return s.evalSeq2(st, e.LHS, e.RHS, func(lhs, rhs ir.Expr) ir.Expr {
		return ir.NewBinaryExpr(e.Op, lhs, rhs)
	})
}

// evalShortCircuit implements the fork && and || both require: for &&,
// LHS -> {(LHS, step RHS), (¬LHS, Return false)}, mirrored for ||.
func (s *Stepper) evalShortCircuit(st *state.ExecutionState, e *ir.BinaryExpr) ([]exprResult, error) {
	lhsResults, err := s.evalExpr(st, e.LHS)
	if err != nil {
		return nil, err
	}
	shortCircuitsOn := e.Op == ir.LOR // || short-circuits when LHS is true

	var out []exprResult
	for _, lr := range lhsResults {
		if ir.IsConstant(lr.Value) {
			truth := ir.IsConstantTrue(lr.Value)
			if truth == shortCircuitsOn {
				out = append(out, exprResult{St: lr.St, Value: lr.Value, Guard: lr.Guard})
				continue
			}
			rhsResults, err := s.evalExpr(lr.St, e.RHS)
			if err != nil {
				return nil, err
			}
			for _, rr := range rhsResults {
				out = append(out, exprResult{St: rr.St, Value: rr.Value, Guard: andGuard(lr.Guard, rr.Guard)})
			}
			continue
		}
		splits, err := splitBool(lr.St, lr.Value)
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			combinedGuard := andGuard(lr.Guard, sp.Guard)
			if sp.Value == shortCircuitsOn {
				out = append(out, exprResult{St: sp.St, Value: ir.NewBool(shortCircuitsOn), Guard: combinedGuard})
				continue
			}
			rhsResults, err := s.evalExpr(sp.St, e.RHS)
			if err != nil {
				return nil, err
			}
			for _, rr := range rhsResults {
				out = append(out, exprResult{St: rr.St, Value: rr.Value, Guard: andGuard(combinedGuard, rr.Guard)})
			}
		}
	}
	return out, nil
}

func (s *Stepper) evalMux(st *state.ExecutionState, e *ir.MuxExpr) ([]exprResult, error) {
	condResults, err := s.evalExpr(st, e.Cond)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, cr := range condResults {
		splits, err := splitBool(cr.St, cr.Value)
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			branch := e.FalseVal
			if sp.Value {
				branch = e.TrueVal
			}
			branchResults, err := s.evalExpr(sp.St, branch)
			if err != nil {
				return nil, err
			}
			combinedGuard := andGuard(cr.Guard, sp.Guard)
			for _, br := range branchResults {
				out = append(out, exprResult{St: br.St, Value: br.Value, Guard: andGuard(combinedGuard, br.Guard)})
			}
		}
	}
	return out, nil
}

func (s *Stepper) evalStruct(st *state.ExecutionState, e *ir.StructExpression) ([]exprResult, error) {
	results := []exprResult{{St: st, Value: nil}}
	values := make([][]ir.Expr, 1)
	for _, field := range e.Fields {
		var next []exprResult
		var nextValues [][]ir.Expr
		for i, r := range results {
			fieldResults, err := s.evalExpr(r.St, field)
			if err != nil {
				return nil, err
			}
			for _, fr := range fieldResults {
				next = append(next, exprResult{St: fr.St, Guard: andGuard(r.Guard, fr.Guard)})
				nextValues = append(nextValues, append(append([]ir.Expr{}, values[i]...), fr.Value))
			}
		}
		results, values = next, nextValues
	}
	out := make([]exprResult, len(results))
	for i, r := range results {
		out[i] = exprResult{St: r.St, Guard: r.Guard, Value: ir.NewStructExpression(e.Typ, values[i])}
	}
	return out, nil
}
