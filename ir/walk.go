package ir

// Walk visits expr and every sub-expression in pre-order, calling fn on
// each. When fn returns false for a node, Walk does not descend into that
// node's children; its siblings are still visited. A caller that wants an
// early exit across the whole tree, like IsTainted, makes fn keep
// returning false once it has its answer.
func Walk(expr Expr, fn func(Expr) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *Constant, *BoolLiteral, *StringLiteral, *FreeVariable, *TaintExpression, *TypeNameExpression:
		// leaves
	case *BinaryExpr:
		Walk(e.LHS, fn)
		Walk(e.RHS, fn)
	case *UnaryExpr:
		Walk(e.X, fn)
	case *CastExpr:
		Walk(e.Src, fn)
	case *ConcatExpr:
		Walk(e.MSB, fn)
		Walk(e.LSB, fn)
	case *ExtractExpr:
		Walk(e.X, fn)
	case *SliceExpr:
		Walk(e.X, fn)
	case *MuxExpr:
		Walk(e.Cond, fn)
		Walk(e.TrueVal, fn)
		Walk(e.FalseVal, fn)
	case *PathExpression:
		// leaf: Ref is resolved by the environment, not walked into
	case *Member:
		Walk(e.Base, fn)
	case *MethodCallExpression:
		Walk(e.Receiver, fn)
		for _, a := range e.Args {
			Walk(a, fn)
		}
	case *StructExpression:
		for _, f := range e.Fields {
			Walk(f, fn)
		}
	case *ConcolicVariable:
		for _, in := range e.Inputs {
			Walk(in, fn)
		}
	default:
		panic("ir: unreachable expr kind in Walk")
	}
}

// ExprVisitor rewrites an expression tree. Visit is called for every node
// RewriteExpr reaches; returning descend == false substitutes replacement
// for the node (RewriteExpr does not descend into it), returning
// descend == true ignores replacement and continues into the node's
// children.
type ExprVisitor interface {
	Visit(expr Expr) (replacement Expr, descend bool)
}

// RewriteExpr applies v to expr and its children, rebuilding parent nodes
// whose children changed, and returns a new tree rather than mutating
// struct fields in place, since ir.Expr values are shared across forked
// execution states and must never be mutated after construction.
func RewriteExpr(v ExprVisitor, expr Expr) Expr {
	if replacement, descend := v.Visit(expr); !descend {
		return replacement
	}

	switch e := expr.(type) {
	case *Constant, *BoolLiteral, *StringLiteral, *FreeVariable, *TaintExpression, *TypeNameExpression, *PathExpression:
		return expr
	case *BinaryExpr:
		lhs, rhs := RewriteExpr(v, e.LHS), RewriteExpr(v, e.RHS)
		if lhs == e.LHS && rhs == e.RHS {
			return e
		}
		return NewBinaryExpr(e.Op, lhs, rhs)
	case *UnaryExpr:
		x := RewriteExpr(v, e.X)
		if x == e.X {
			return e
		}
		return NewUnaryExpr(e.Op, x)
	case *CastExpr:
		src := RewriteExpr(v, e.Src)
		if src == e.Src {
			return e
		}
		return NewCastExpr(src, e.Target)
	case *ConcatExpr:
		msb, lsb := RewriteExpr(v, e.MSB), RewriteExpr(v, e.LSB)
		if msb == e.MSB && lsb == e.LSB {
			return e
		}
		return NewConcatExpr(msb, lsb)
	case *ExtractExpr:
		x := RewriteExpr(v, e.X)
		if x == e.X {
			return e
		}
		return NewExtractExpr(x, e.Offset, e.Width)
	case *SliceExpr:
		x := RewriteExpr(v, e.X)
		if x == e.X {
			return e
		}
		return NewSliceExpr(x, e.Hi, e.Lo)
	case *MuxExpr:
		cond, t, f := RewriteExpr(v, e.Cond), RewriteExpr(v, e.TrueVal), RewriteExpr(v, e.FalseVal)
		if cond == e.Cond && t == e.TrueVal && f == e.FalseVal {
			return e
		}
		return NewMuxExpr(cond, t, f)
	case *Member:
		base := RewriteExpr(v, e.Base)
		if base == e.Base {
			return e
		}
		return NewMember(base, e.Field, e.Typ)
	case *MethodCallExpression:
		receiver := e.Receiver
		changed := false
		if e.Receiver != nil {
			receiver = RewriteExpr(v, e.Receiver)
			changed = receiver != e.Receiver
		}
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = RewriteExpr(v, a)
			changed = changed || args[i] != a
		}
		if !changed {
			return e
		}
		return NewMethodCallExpression(receiver, e.ReceiverType, e.Method, args, e.Typ)
	case *StructExpression:
		changed := false
		fields := make([]Expr, len(e.Fields))
		for i, f := range e.Fields {
			fields[i] = RewriteExpr(v, f)
			changed = changed || fields[i] != f
		}
		if !changed {
			return e
		}
		return NewStructExpression(e.Typ, fields)
	case *ConcolicVariable:
		changed := false
		inputs := make([]Expr, len(e.Inputs))
		for i, in := range e.Inputs {
			inputs[i] = RewriteExpr(v, in)
			changed = changed || inputs[i] != in
		}
		if !changed {
			return e
		}
		return NewConcolicVariable(e.Name, e.Algorithm, inputs, e.Typ)
	default:
		panic("ir: unreachable expr kind in RewriteExpr")
	}
}

// Substitute returns expr with every PathExpression matching ref replaced
// by value. The stepper does not call it: it rebuilds each parent node
// directly from its evaluated sub-expressions.
func Substitute(expr Expr, ref Ref, value Expr) Expr {
	return RewriteExpr(substituteVisitor{ref: ref, value: value}, expr)
}

type substituteVisitor struct {
	ref   Ref
	value Expr
}

func (v substituteVisitor) Visit(expr Expr) (Expr, bool) {
	if p, ok := expr.(*PathExpression); ok && p.Ref == v.ref {
		return v.value, false
	}
	return nil, true
}
