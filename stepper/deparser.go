package stepper

import (
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

func (s *Stepper) evalPacketOut(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	switch e.Method {
	case "emit":
		return s.evalEmit(st, e)
	default:
		return nil, unimplemented(s.Permissive, "packet_out.%s", e.Method)
	}
}

// evalEmit implements emit(hdr). A plain struct (no validity bit) is
// always serialized; a header forks on its validity bit, appending its
// flattened bits to EmitBuffer only on the valid branch — an invalid
// header contributes nothing to the wire, not a don't-care run of zero
// bits.
func (s *Stepper) evalEmit(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	if len(e.Args) != 1 {
		return nil, bugCheck("packet_out.emit: want exactly one argument, got %d", len(e.Args))
	}
	hdrRef, err := refOf(e.Args[0])
	if err != nil {
		return nil, err
	}
	typ := e.Args[0].Type()

	hst, ok := typ.(*ir.StructType)
	if !ok || !hst.HasValidBit {
		bits, err := s.flattenForEmit(st, hdrRef, typ)
		if err != nil {
			return nil, err
		}
		st.AppendToEmitBuffer(bits)
		return []exprResult{{St: st}}, nil
	}

	validVal, ok := st.Environment.Get(validRef(hdrRef))
	if !ok {
		validVal = ir.NewBool(false)
	}
	splits, err := splitBool(st, validVal)
	if err != nil {
		return nil, err
	}
	out := make([]exprResult, 0, len(splits))
	for _, sp := range splits {
		if sp.Value {
			bits, err := s.flattenForEmit(sp.St, hdrRef, typ)
			if err != nil {
				return nil, err
			}
			sp.St.AppendToEmitBuffer(bits)
		}
		out = append(out, exprResult{St: sp.St, Guard: sp.Guard})
	}
	return out, nil
}

// flattenForEmit reassembles ref's leaf fields into a single concatenated
// bitvector in declaration order, normalizing bool fields to bit<1> and
// signed fields to their unsigned bit pattern the way the wire format
// requires.
func (s *Stepper) flattenForEmit(st *state.ExecutionState, ref ir.Ref, typ ir.Type) (ir.Expr, error) {
	if st2, ok := typ.(*ir.StructType); ok {
		var bits ir.Expr
		for _, f := range st2.Fields {
			fb, err := s.flattenForEmit(st, ref.Field(f.Name), f.Type)
			if err != nil {
				return nil, err
			}
			if bits == nil {
				bits = fb
			} else {
				bits = ir.NewConcatExpr(bits, fb)
			}
		}
		return bits, nil
	}
	v, err := s.resolveLeaf(st, ref, typ)
	if err != nil {
		return nil, err
	}
	return normalizeForEmit(v), nil
}

func normalizeForEmit(v ir.Expr) ir.Expr {
	switch t := v.Type().(type) {
	case ir.BoolType:
		return ir.NewCastExpr(v, ir.BitsType{Width: 1})
	case ir.BitsType:
		if t.Signed {
			return ir.NewCastExpr(v, ir.BitsType{Width: t.Width})
		}
	}
	return v
}
