package z3

import (
	"fmt"
	"math/big"
	"unsafe"

	"github.com/pplgen/testgen/ir"
)

/*
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// toAST lowers expr to a Z3 term. Only the kinds that can legitimately
// reach a path constraint are handled; every other ir.Expr kind is a bug
// upstream (the stepper must resolve PathExpression/Member/MethodCall/
// StructExpression/TypeNameExpression away, and must replace a
// TaintExpression with a fresh FreeVariable, before ever adding an
// expression to ExecutionState.PathConstraint).
func (ctx *Context) toAST(expr ir.Expr) (C.Z3_ast, error) {
	switch e := expr.(type) {
	case *ir.Constant:
		return ctx.makeBitvec(e.Value, e.Typ.Width)
	case *ir.BoolLiteral:
		if e.Value {
			return C.Z3_mk_true(ctx.raw), nil
		}
		return C.Z3_mk_false(ctx.raw), nil
	case *ir.FreeVariable:
		return ctx.makeFreeVarConst(e.Name, ir.TypeWidth(e.Typ))
	case *ir.ConcolicVariable:
		return ctx.makeFreeVarConst(e.Name, ir.TypeWidth(e.Typ))
	case *ir.BinaryExpr:
		return ctx.toBinaryAST(e)
	case *ir.UnaryExpr:
		return ctx.toUnaryAST(e)
	case *ir.CastExpr:
		return ctx.toCastAST(e)
	case *ir.ConcatExpr:
		return ctx.toConcatAST(e)
	case *ir.ExtractExpr:
		return ctx.toExtractAST(e)
	case *ir.SliceExpr:
		return ctx.toAST(ir.NewExtractExpr(e.X, e.Lo, e.Hi-e.Lo+1))
	case *ir.MuxExpr:
		return ctx.toMuxAST(e)
	default:
		return nil, fmt.Errorf("z3: expression of kind %T can never reach the solver", expr)
	}
}

func (ctx *Context) isBool(t ir.Type) bool {
	_, ok := t.(ir.BoolType)
	return ok
}

func (ctx *Context) makeBVSort(width uint) C.Z3_sort {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
}

func (ctx *Context) makeBitvec(value uint64, width uint) (C.Z3_ast, error) {
	sort := ctx.makeBVSort(width)
	ast := C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), sort)
	return ast, ctx.err("Z3_mk_unsigned_int64")
}

// makeFreeVarConst rebuilds the same deterministic named constant for a
// free variable every time it is called with the same name and width, so
// Model() can re-derive the AST to evaluate without needing to keep the
// original tree around.
func (ctx *Context) makeFreeVarConst(name string, width uint) (C.Z3_ast, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(ctx.raw, cname)
	sort := ctx.makeBVSort(width)
	ast := C.Z3_mk_const(ctx.raw, symbol, sort)
	return ast, ctx.err("Z3_mk_const")
}

func (ctx *Context) toUnaryAST(e *ir.UnaryExpr) (C.Z3_ast, error) {
	x, err := ctx.toAST(e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ir.NEG:
		ast := C.Z3_mk_bvneg(ctx.raw, x)
		return ast, ctx.err("Z3_mk_bvneg")
	case ir.NOT:
		ast := C.Z3_mk_bvnot(ctx.raw, x)
		return ast, ctx.err("Z3_mk_bvnot")
	case ir.LNOT:
		ast := C.Z3_mk_not(ctx.raw, x)
		return ast, ctx.err("Z3_mk_not")
	default:
		assert(false, "unreachable unary op %d", e.Op)
		return nil, nil
	}
}

func (ctx *Context) toCastAST(e *ir.CastExpr) (C.Z3_ast, error) {
	x, err := ctx.toAST(e.Src)
	if err != nil {
		return nil, err
	}
	targetWidth := e.Target.Width

	if ctx.isBool(e.Src.Type()) {
		one, err := ctx.makeBitvec(1, targetWidth)
		if err != nil {
			return nil, err
		}
		zero, err := ctx.makeBitvec(0, targetWidth)
		if err != nil {
			return nil, err
		}
		ast := C.Z3_mk_ite(ctx.raw, x, one, zero)
		return ast, ctx.err("Z3_mk_ite")
	}

	srcWidth := ir.TypeWidth(e.Src.Type())
	switch {
	case targetWidth == srcWidth:
		return x, nil
	case targetWidth > srcWidth:
		if bt, ok := e.Src.Type().(ir.BitsType); ok && bt.Signed {
			ast := C.Z3_mk_sign_ext(ctx.raw, C.uint(targetWidth-srcWidth), x)
			return ast, ctx.err("Z3_mk_sign_ext")
		}
		ast := C.Z3_mk_zero_ext(ctx.raw, C.uint(targetWidth-srcWidth), x)
		return ast, ctx.err("Z3_mk_zero_ext")
	default:
		ast := C.Z3_mk_extract(ctx.raw, C.uint(targetWidth-1), 0, x)
		return ast, ctx.err("Z3_mk_extract")
	}
}

func (ctx *Context) toConcatAST(e *ir.ConcatExpr) (C.Z3_ast, error) {
	msb, err := ctx.toAST(e.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := ctx.toAST(e.LSB)
	if err != nil {
		return nil, err
	}
	ast := C.Z3_mk_concat(ctx.raw, msb, lsb)
	return ast, ctx.err("Z3_mk_concat")
}

func (ctx *Context) toExtractAST(e *ir.ExtractExpr) (C.Z3_ast, error) {
	x, err := ctx.toAST(e.X)
	if err != nil {
		return nil, err
	}
	hi := e.Offset + e.Width - 1
	lo := e.Offset
	if e.Width == 1 {
		bit := C.Z3_mk_extract(ctx.raw, C.uint(hi), C.uint(lo), x)
		if err := ctx.err("Z3_mk_extract"); err != nil {
			return nil, err
		}
		one, err := ctx.makeBitvec(1, 1)
		if err != nil {
			return nil, err
		}
		ast := C.Z3_mk_eq(ctx.raw, bit, one)
		return ast, ctx.err("Z3_mk_eq")
	}
	ast := C.Z3_mk_extract(ctx.raw, C.uint(hi), C.uint(lo), x)
	return ast, ctx.err("Z3_mk_extract")
}

func (ctx *Context) toMuxAST(e *ir.MuxExpr) (C.Z3_ast, error) {
	cond, err := ctx.toAST(e.Cond)
	if err != nil {
		return nil, err
	}
	t, err := ctx.toAST(e.TrueVal)
	if err != nil {
		return nil, err
	}
	f, err := ctx.toAST(e.FalseVal)
	if err != nil {
		return nil, err
	}
	ast := C.Z3_mk_ite(ctx.raw, cond, t, f)
	return ast, ctx.err("Z3_mk_ite")
}

// toBinaryAST dispatches every BinaryOp through one switch rather than a
// per-op wrapper function for each: every case is already a one-liner, so
// the extra indirection would buy nothing.
func (ctx *Context) toBinaryAST(e *ir.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(e.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(e.RHS)
	if err != nil {
		return nil, err
	}

	var ast C.Z3_ast
	var op string
	switch e.Op {
	case ir.ADD:
		ast, op = C.Z3_mk_bvadd(ctx.raw, lhs, rhs), "Z3_mk_bvadd"
	case ir.SUB:
		ast, op = C.Z3_mk_bvsub(ctx.raw, lhs, rhs), "Z3_mk_bvsub"
	case ir.MUL:
		ast, op = C.Z3_mk_bvmul(ctx.raw, lhs, rhs), "Z3_mk_bvmul"
	case ir.UDIV:
		ast, op = C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), "Z3_mk_bvudiv"
	case ir.SDIV:
		ast, op = C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), "Z3_mk_bvsdiv"
	case ir.UREM:
		ast, op = C.Z3_mk_bvurem(ctx.raw, lhs, rhs), "Z3_mk_bvurem"
	case ir.SREM:
		ast, op = C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), "Z3_mk_bvsrem"
	case ir.AND:
		ast, op = C.Z3_mk_bvand(ctx.raw, lhs, rhs), "Z3_mk_bvand"
	case ir.OR:
		ast, op = C.Z3_mk_bvor(ctx.raw, lhs, rhs), "Z3_mk_bvor"
	case ir.XOR:
		ast, op = C.Z3_mk_bvxor(ctx.raw, lhs, rhs), "Z3_mk_bvxor"
	case ir.SHL:
		ast, op = C.Z3_mk_bvshl(ctx.raw, lhs, rhs), "Z3_mk_bvshl"
	case ir.LSHR:
		ast, op = C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), "Z3_mk_bvlshr"
	case ir.ASHR:
		ast, op = C.Z3_mk_bvashr(ctx.raw, lhs, rhs), "Z3_mk_bvashr"
	case ir.EQ:
		ast, op = C.Z3_mk_eq(ctx.raw, lhs, rhs), "Z3_mk_eq"
	case ir.NE:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		ast, op = C.Z3_mk_not(ctx.raw, eq), "Z3_mk_not"
	case ir.ULT:
		ast, op = C.Z3_mk_bvult(ctx.raw, lhs, rhs), "Z3_mk_bvult"
	case ir.ULE:
		ast, op = C.Z3_mk_bvule(ctx.raw, lhs, rhs), "Z3_mk_bvule"
	case ir.UGT:
		ast, op = C.Z3_mk_bvugt(ctx.raw, lhs, rhs), "Z3_mk_bvugt"
	case ir.UGE:
		ast, op = C.Z3_mk_bvuge(ctx.raw, lhs, rhs), "Z3_mk_bvuge"
	case ir.SLT:
		ast, op = C.Z3_mk_bvslt(ctx.raw, lhs, rhs), "Z3_mk_bvslt"
	case ir.SLE:
		ast, op = C.Z3_mk_bvsle(ctx.raw, lhs, rhs), "Z3_mk_bvsle"
	case ir.SGT:
		ast, op = C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), "Z3_mk_bvsgt"
	case ir.SGE:
		ast, op = C.Z3_mk_bvsge(ctx.raw, lhs, rhs), "Z3_mk_bvsge"
	case ir.LAND:
		args := []C.Z3_ast{lhs, rhs}
		ast, op = C.Z3_mk_and(ctx.raw, 2, &args[0]), "Z3_mk_and"
	case ir.LOR:
		args := []C.Z3_ast{lhs, rhs}
		ast, op = C.Z3_mk_or(ctx.raw, 2, &args[0]), "Z3_mk_or"
	default:
		assert(false, "unreachable binary op %d", e.Op)
	}
	return ast, ctx.err(op)
}

// numeralToBytes renders a Z3 numeral AST as a fixed-width big-endian byte
// string. Going through the decimal string form rather than
// Z3_get_numeral_uint64 keeps this correct for widths above 64 bits (the
// packet buffer's own FreeVariable can be arbitrarily wide).
func (ctx *Context) numeralToBytes(ast C.Z3_ast, width uint) ([]byte, error) {
	cstr := C.Z3_get_numeral_string(ctx.raw, ast)
	if err := ctx.err("Z3_get_numeral_string"); err != nil {
		return nil, err
	}
	s := C.GoString(cstr)

	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("z3: could not parse numeral %q", s)
	}

	size := (width + 7) / 8
	out := make([]byte, size)
	value.FillBytes(out)
	return out, nil
}
