package stepper

import (
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// validRef returns the ref a header's implicit validity bit is bound
// under. It is not one of the header's declared fields (ir.StructType's
// Fields never include it); it lives alongside them under a reserved leaf
// name no PPL identifier can collide with.
func validRef(ref ir.Ref) ir.Ref { return ref.Field("$valid") }

// resolvePath reads the value bound at ref, recursing into struct-typed
// refs to reassemble a StructExpression from their flattened leaf
// bindings, the way GetFlatFields/AssignmentStatement (which only ever
// writes leaves) requires reads to reassemble on the way back up.
func (s *Stepper) resolvePath(st *state.ExecutionState, ref ir.Ref, typ ir.Type) (ir.Expr, error) {
	if st2, ok := typ.(*ir.StructType); ok {
		fields := make([]ir.Expr, len(st2.Fields))
		for i, f := range st2.Fields {
			v, err := s.resolvePath(st, ref.Field(f.Name), f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		return ir.NewStructExpression(st2, fields), nil
	}
	return s.resolveLeaf(st, ref, typ)
}

// resolveLeaf reads a non-aggregate ref, applying the validity-gating
// invariant: reading a field of an invalid header yields taint (or, when
// validity is itself symbolic, a Mux between the stored value and taint,
// so the solver — not the stepper — decides which of the two a concrete
// test actually observes).
func (s *Stepper) resolveLeaf(st *state.ExecutionState, ref ir.Ref, typ ir.Type) (ir.Expr, error) {
	v, ok := st.Environment.Get(ref)
	if !ok {
		v = s.uninitialized(typ)
	}
	parent, ok := ref.Parent()
	if !ok {
		return v, nil
	}
	validVal, ok := st.Environment.Get(validRef(parent))
	if !ok {
		return v, nil
	}
	if ir.IsConstantFalse(validVal) {
		return ir.NewTaintExpression(typ), nil
	}
	if ir.IsConstantTrue(validVal) {
		return v, nil
	}
	return ir.NewMuxExpr(validVal, v, ir.NewTaintExpression(typ)), nil
}

func (s *Stepper) uninitialized(typ ir.Type) ir.Expr {
	if s.Uninitialized != nil {
		return s.Uninitialized(typ)
	}
	return ir.NewTaintExpression(typ)
}

func (s *Stepper) evalMember(st *state.ExecutionState, e *ir.Member) ([]exprResult, error) {
	if baseRef, err := refOf(e.Base); err == nil {
		v, err := s.resolvePath(st, baseRef.Field(e.Field), e.Typ)
		if err != nil {
			return nil, err
		}
		return []exprResult{{St: st, Value: v}}, nil
	}

	baseResults, err := s.evalExpr(st, e.Base)
	if err != nil {
		return nil, err
	}
	out := make([]exprResult, len(baseResults))
	for i, br := range baseResults {
		se, ok := br.Value.(*ir.StructExpression)
		if !ok {
			return nil, bugCheck("evalMember: base did not reduce to a struct or a reference: %T", br.Value)
		}
		idx := fieldIndex(se.Typ, e.Field)
		if idx < 0 {
			return nil, bugCheck("evalMember: %s has no field %q", se.Typ.Name, e.Field)
		}
		out[i] = exprResult{St: br.St, Value: se.Fields[idx], Guard: br.Guard}
	}
	return out, nil
}

func fieldIndex(t *ir.StructType, name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
