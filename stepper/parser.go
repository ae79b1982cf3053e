package stepper

import (
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// packetLenWidth is the width of the free variable standing in for the real
// (concrete) length of the packet under test, in bits. It is independent of
// MaxPacketBits, which only bounds how large a symbolic PacketBuffer the
// state is seeded with; the real packet can be shorter, and every
// extract/advance/lookahead guards against that.
const packetLenWidth = 32

const propPacketLen = "core.packet_len"

// packetLenVar returns the free variable standing for the packet's real
// length, creating it on first use so every parser primitive against the
// same state shares one variable.
func (s *Stepper) packetLenVar(st *state.ExecutionState) ir.Expr {
	if v, ok := st.Properties.Get(propPacketLen); ok {
		return v.(ir.Expr)
	}
	v := ir.NewFreeVariable("packet_len", ir.BitsType{Width: packetLenWidth})
	st.Properties.Set(propPacketLen, v)
	return v
}

// advanceGuard returns the guard under which advancing the cursor by width
// more bits, from the given starting cursor, still fits inside the real
// packet.
func (s *Stepper) advanceGuard(st *state.ExecutionState, cursor, width uint) ir.Expr {
	budget := ir.NewConstant(uint64(cursor)+uint64(width), packetLenWidth)
	return ir.NewBinaryExpr(ir.ULE, budget, s.packetLenVar(st))
}

// headerWidth returns the total bit width of typ, recursing into nested
// structs, and false if typ contains a varbit field anywhere (fixed-width
// extraction does not apply).
func headerWidth(typ ir.Type) (uint, bool) {
	switch t := typ.(type) {
	case *ir.StructType:
		var total uint
		for _, f := range t.Fields {
			w, ok := headerWidth(f.Type)
			if !ok {
				return 0, false
			}
			total += w
		}
		return total, true
	case ir.VarbitType:
		return 0, false
	default:
		return ir.TypeWidth(typ), true
	}
}

// writeFields decomposes bits (total width == headerWidth(typ)) into typ's
// leaf fields and binds each one under ref, the inverse of resolvePath's
// reassembly.
func (s *Stepper) writeFields(st *state.ExecutionState, ref ir.Ref, typ ir.Type, bits ir.Expr) {
	st2, ok := typ.(*ir.StructType)
	if !ok {
		st.Environment = st.Environment.Set(ref, bits)
		return
	}
	offset := ir.TypeWidth(bits.Type())
	for _, f := range st2.Fields {
		w, _ := headerWidth(f.Type)
		offset -= w
		s.writeFields(st, ref.Field(f.Name), f.Type, ir.NewExtractExpr(bits, offset, w))
	}
}

func (s *Stepper) evalPacketIn(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	switch e.Method {
	case "extract":
		return s.evalExtract(st, e)
	case "advance":
		return s.evalAdvance(st, e)
	case "lookahead":
		return s.evalLookahead(st, e)
	default:
		return nil, unimplemented(s.Permissive, "packet_in.%s", e.Method)
	}
}

// evalExtract implements extract(hdr): compute the guard under which the
// real packet is long enough to supply the header's full width, fork into
// a branch that consumes the bits, writes every leaf field, and marks the
// header valid, and a branch that raises ExceptionPacketTooShort.
func (s *Stepper) evalExtract(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	if len(e.Args) == 0 {
		return nil, bugCheck("packet_in.extract: missing header argument")
	}
	if len(e.Args) > 1 {
		return nil, unimplemented(s.Permissive, "packet_in.extract with an explicit varbit length argument")
	}
	hdrRef, err := refOf(e.Args[0])
	if err != nil {
		return nil, err
	}
	typ := e.Args[0].Type()
	width, ok := headerWidth(typ)
	if !ok {
		return nil, unimplemented(s.Permissive, "packet_in.extract of a varbit-typed header")
	}

	okGuard := s.advanceGuard(st, st.Cursor, width)

	okSt := st.Clone()
	bits, err := okSt.SlicePacketBuffer(width)
	if err != nil {
		return nil, bugCheck("extract: %v", err)
	}
	s.writeFields(okSt, hdrRef, typ, bits)
	if hst, ok := typ.(*ir.StructType); ok && hst.HasValidBit {
		okSt.Environment = okSt.Environment.Set(validRef(hdrRef), ir.NewBool(true))
	}

	failSt := st.Clone()
	failSt.PushCommand(state.ExceptionCommand{Kind: state.ExceptionPacketTooShort})

	return []exprResult{
		{St: okSt, Guard: okGuard},
		{St: failSt, Guard: ir.NewUnaryExpr(ir.LNOT, okGuard)},
	}, nil
}

// evalAdvance implements advance(bits). A constant width takes the direct
// path: one guard deciding whether the real packet is long enough. A
// runtime-computed width cannot be sliced directly — ExtractExpr's width is
// fixed at IR-construction time — so it case-splits into one branch per
// concrete byte-aligned candidate width the symbol could take, each guarded
// by equality with that candidate, mirroring how a varint-length advance is
// actually resolved against a concrete test input.
func (s *Stepper) evalAdvance(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	if len(e.Args) != 1 {
		return nil, bugCheck("packet_in.advance: want exactly one argument, got %d", len(e.Args))
	}
	argResults, err := s.evalArgs(st, e.Args)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, ar := range argResults {
		if ir.IsTainted(ar.Values[0]) {
			return nil, unimplemented(s.Permissive, "packet_in.advance by a tainted width")
		}
		if c, ok := ar.Values[0].(*ir.Constant); ok {
			branches, err := s.advanceByWidth(ar.St, ar.Guard, nil, uint(c.Value))
			if err != nil {
				return nil, err
			}
			out = append(out, branches...)
			continue
		}
		branches, err := s.evalSymbolicAdvance(ar)
		if err != nil {
			return nil, err
		}
		out = append(out, branches...)
	}
	return out, nil
}

// advanceByWidth forks st on whether the real packet has width more bits
// available past the cursor, conjoining eq (the equality guard pinning a
// symbolic width to this concrete candidate, nil for the already-constant
// case) into both branches' guards.
func (s *Stepper) advanceByWidth(st *state.ExecutionState, guard, eq ir.Expr, width uint) ([]exprResult, error) {
	okGuard := s.advanceGuard(st, st.Cursor, width)

	okSt := st.Clone()
	if _, err := okSt.SlicePacketBuffer(width); err != nil {
		return nil, bugCheck("advance: %v", err)
	}
	failSt := st.Clone()
	failSt.PushCommand(state.ExceptionCommand{Kind: state.ExceptionPacketTooShort})

	return []exprResult{
		{St: okSt, Guard: andGuard(guard, andGuard(eq, okGuard))},
		{St: failSt, Guard: andGuard(guard, andGuard(eq, ir.NewUnaryExpr(ir.LNOT, okGuard)))},
	}, nil
}

func (s *Stepper) maxAdvanceCandidates() uint64 {
	if s.MaxAdvanceCandidates == 0 {
		return 256
	}
	return uint64(s.MaxAdvanceCandidates)
}

func (s *Stepper) evalSymbolicAdvance(ar argResult) ([]exprResult, error) {
	widthExpr := ar.Values[0]
	w := ir.TypeWidth(widthExpr.Type())
	upperBound := uint64(1)<<w - 1
	if uint64(s.MaxPacketBits) < upperBound {
		upperBound = uint64(s.MaxPacketBits)
	}
	candidates := upperBound/8 + 1
	if candidates > s.maxAdvanceCandidates() {
		candidates = s.maxAdvanceCandidates()
		ar.St.LogEvent(genericEvent("advance: symbolic width case-split truncated at MaxAdvanceCandidates"))
	}

	var out []exprResult
	for i := uint64(0); i < candidates; i++ {
		candidate := i * 8
		eq := ir.NewBinaryExpr(ir.EQ, widthExpr, ir.NewConstant(candidate, w))
		branches, err := s.advanceByWidth(ar.St, ar.Guard, eq, uint(candidate))
		if err != nil {
			return nil, err
		}
		out = append(out, branches...)
	}
	return out, nil
}

// evalLookahead implements lookahead<T>(): like extract, but it peeks
// rather than consumes, and returns the peeked value instead of writing
// fields.
func (s *Stepper) evalLookahead(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	width, ok := headerWidth(e.Typ)
	if !ok {
		return nil, unimplemented(s.Permissive, "packet_in.lookahead with a varbit type parameter")
	}
	okGuard := s.advanceGuard(st, st.Cursor, width)

	okSt := st.Clone()
	bits, err := okSt.PeekPacketBuffer(width)
	if err != nil {
		return nil, bugCheck("lookahead: %v", err)
	}

	failSt := st.Clone()
	failSt.PushCommand(state.ExceptionCommand{Kind: state.ExceptionPacketTooShort})

	return []exprResult{
		{St: okSt, Value: bits, Guard: okGuard},
		{St: failSt, Guard: ir.NewUnaryExpr(ir.LNOT, okGuard)},
	}, nil
}
