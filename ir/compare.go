package ir

// CompareExpr returns an integer comparing two expressions: 0 if a==b, -1 if
// a<b, +1 if a>b, under an arbitrary but total and deterministic ordering.
// Used by Equal and by the smart constructors' same-operand folds (x == x,
// a Mux with equal branches).
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	}
	if a != nil && b == nil {
		return 1
	}
	if a == nil && b == nil {
		return 0
	}

	if ak, bk := exprKind(a), exprKind(b); ak != bk {
		if ak < bk {
			return -1
		}
		return 1
	}

	switch a := a.(type) {
	case *Constant:
		return compareConstant(a, b.(*Constant))
	case *BoolLiteral:
		return compareBool(a, b.(*BoolLiteral))
	case *StringLiteral:
		return compareString(a.Value, b.(*StringLiteral).Value)
	case *FreeVariable:
		return compareString(a.Name, b.(*FreeVariable).Name)
	case *BinaryExpr:
		return compareBinary(a, b.(*BinaryExpr))
	case *UnaryExpr:
		return compareUnary(a, b.(*UnaryExpr))
	case *CastExpr:
		return compareCast(a, b.(*CastExpr))
	case *ConcatExpr:
		return cmp2(CompareExpr(a.MSB, b.(*ConcatExpr).MSB), func() int { return CompareExpr(a.LSB, b.(*ConcatExpr).LSB) })
	case *ExtractExpr:
		return compareExtract(a, b.(*ExtractExpr))
	case *SliceExpr:
		return compareSlice(a, b.(*SliceExpr))
	case *MuxExpr:
		return compareMux(a, b.(*MuxExpr))
	case *PathExpression:
		return compareString(string(a.Ref), string(b.(*PathExpression).Ref))
	case *Member:
		return cmp2(CompareExpr(a.Base, b.(*Member).Base), func() int { return compareString(a.Field, b.(*Member).Field) })
	case *MethodCallExpression:
		return compareMethodCall(a, b.(*MethodCallExpression))
	case *StructExpression:
		return compareStruct(a, b.(*StructExpression))
	case *TypeNameExpression:
		return compareString(a.Name, b.(*TypeNameExpression).Name)
	case *TaintExpression:
		return 0 // all taints of comparable kind are interchangeable
	case *ConcolicVariable:
		return compareString(a.Name, b.(*ConcolicVariable).Name)
	default:
		panic("ir: unreachable expr kind in CompareExpr")
	}
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool { return CompareExpr(a, b) == 0 }

func cmp2(first int, second func() int) int {
	if first != 0 {
		return first
	}
	return second()
}

func compareString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func compareConstant(a, b *Constant) int {
	if a.Typ.Width != b.Typ.Width {
		return intCmp(int(a.Typ.Width), int(b.Typ.Width))
	}
	return intCmp64(a.Value, b.Value)
}

func compareBool(a, b *BoolLiteral) int {
	if a.Value == b.Value {
		return 0
	}
	if !a.Value {
		return -1
	}
	return 1
}

func compareBinary(a, b *BinaryExpr) int {
	if a.Op != b.Op {
		return intCmp(int(a.Op), int(b.Op))
	}
	return cmp2(CompareExpr(a.LHS, b.LHS), func() int { return CompareExpr(a.RHS, b.RHS) })
}

func compareUnary(a, b *UnaryExpr) int {
	if a.Op != b.Op {
		return intCmp(int(a.Op), int(b.Op))
	}
	return CompareExpr(a.X, b.X)
}

func compareCast(a, b *CastExpr) int {
	if a.Target.Signed != b.Target.Signed {
		if !a.Target.Signed {
			return -1
		}
		return 1
	}
	if a.Target.Width != b.Target.Width {
		return intCmp(int(a.Target.Width), int(b.Target.Width))
	}
	return CompareExpr(a.Src, b.Src)
}

func compareExtract(a, b *ExtractExpr) int {
	if a.Offset != b.Offset {
		return intCmp(int(a.Offset), int(b.Offset))
	}
	if a.Width != b.Width {
		return intCmp(int(a.Width), int(b.Width))
	}
	return CompareExpr(a.X, b.X)
}

func compareSlice(a, b *SliceExpr) int {
	if a.Hi != b.Hi {
		return intCmp(int(a.Hi), int(b.Hi))
	}
	if a.Lo != b.Lo {
		return intCmp(int(a.Lo), int(b.Lo))
	}
	return CompareExpr(a.X, b.X)
}

func compareMux(a, b *MuxExpr) int {
	if cmp := CompareExpr(a.Cond, b.Cond); cmp != 0 {
		return cmp
	}
	if cmp := CompareExpr(a.TrueVal, b.TrueVal); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.FalseVal, b.FalseVal)
}

func compareMethodCall(a, b *MethodCallExpression) int {
	if cmp := compareString(a.ReceiverType, b.ReceiverType); cmp != 0 {
		return cmp
	}
	if cmp := CompareExpr(a.Receiver, b.Receiver); cmp != 0 {
		return cmp
	}
	if cmp := compareString(a.Method, b.Method); cmp != 0 {
		return cmp
	}
	if len(a.Args) != len(b.Args) {
		return intCmp(len(a.Args), len(b.Args))
	}
	for i := range a.Args {
		if cmp := CompareExpr(a.Args[i], b.Args[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareStruct(a, b *StructExpression) int {
	if cmp := compareString(a.Typ.Name, b.Typ.Name); cmp != 0 {
		return cmp
	}
	if len(a.Fields) != len(b.Fields) {
		return intCmp(len(a.Fields), len(b.Fields))
	}
	for i := range a.Fields {
		if cmp := CompareExpr(a.Fields[i], b.Fields[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func intCmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func intCmp64(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// exprKind returns a numeric tag for expr's dynamic type, used only to
// order unlike kinds against each other in CompareExpr.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *Constant:
		return 1
	case *BoolLiteral:
		return 2
	case *StringLiteral:
		return 3
	case *FreeVariable:
		return 4
	case *BinaryExpr:
		return 5
	case *UnaryExpr:
		return 6
	case *CastExpr:
		return 7
	case *ConcatExpr:
		return 8
	case *ExtractExpr:
		return 9
	case *SliceExpr:
		return 10
	case *MuxExpr:
		return 11
	case *PathExpression:
		return 12
	case *Member:
		return 13
	case *MethodCallExpression:
		return 14
	case *StructExpression:
		return 15
	case *TypeNameExpression:
		return 16
	case *TaintExpression:
		return 17
	case *ConcolicVariable:
		return 18
	default:
		panic("ir: unreachable expr kind")
	}
}
