package z3_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/solver"
	"github.com/pplgen/testgen/z3"
)

func mustCloseSolver(t *testing.T, s *z3.Solver) {
	t.Helper()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func u8(v int8) uint64   { return uint64(uint8(v)) }
func u16(v int16) uint64 { return uint64(uint16(v)) }
func u32(v int32) uint64 { return uint64(uint32(v)) }

func checkSat(t *testing.T, s *z3.Solver, constraints ...ir.Expr) solver.Verdict {
	t.Helper()
	v, err := s.CheckSat(context.Background(), constraints)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestSolver_CheckSat_Constant(t *testing.T) {
	t.Run("True", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		if v := checkSat(t, s, ir.NewBool(true)); v != solver.SAT {
			t.Fatalf("got %v, want sat", v)
		}
	})
	t.Run("False", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		if v := checkSat(t, s, ir.NewBool(false)); v != solver.UNSAT {
			t.Fatalf("got %v, want unsat", v)
		}
	})
}

func TestSolver_CheckSat_FreeVariableModel(t *testing.T) {
	s := z3.NewSolver()
	defer mustCloseSolver(t, s)

	x := ir.NewFreeVariable("x", ir.BitsType{Width: 8})
	constraint := ir.NewBinaryExpr(ir.EQ, x, ir.NewConstant(10, 8))

	if v := checkSat(t, s, constraint); v != solver.SAT {
		t.Fatalf("got %v, want sat", v)
	}
	model, err := s.Model()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(model["x"], []byte{10}); diff != "" {
		t.Fatal(diff)
	}
}

func TestSolver_CheckSat_Extract(t *testing.T) {
	t.Run("BitSet", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		expr := &ir.ExtractExpr{X: ir.NewConstant(0x04, 64), Offset: 2, Width: 1}
		if v := checkSat(t, s, expr); v != solver.SAT {
			t.Fatalf("got %v, want sat", v)
		}
	})
	t.Run("BitClear", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		expr := &ir.ExtractExpr{X: ir.NewConstant(0x04, 64), Offset: 6, Width: 1}
		if v := checkSat(t, s, expr); v != solver.UNSAT {
			t.Fatalf("got %v, want unsat", v)
		}
	})
}

func TestSolver_CheckSat_Cast(t *testing.T) {
	t.Run("SignExtend", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		src := ir.NewSignedConstant(u16(-200), 16)
		cast := &ir.CastExpr{Src: src, Target: ir.BitsType{Width: 32, Signed: true}}
		want := ir.NewSignedConstant(u32(-200), 32)
		if v := checkSat(t, s, ir.NewBinaryExpr(ir.EQ, cast, want)); v != solver.SAT {
			t.Fatalf("got %v, want sat", v)
		}
	})
	t.Run("BoolToBits", func(t *testing.T) {
		s := z3.NewSolver()
		defer mustCloseSolver(t, s)
		cast := &ir.CastExpr{Src: ir.NewBool(true), Target: ir.BitsType{Width: 16}}
		if v := checkSat(t, s, ir.NewBinaryExpr(ir.EQ, cast, ir.NewConstant(1, 16))); v != solver.SAT {
			t.Fatalf("got %v, want sat", v)
		}
	})
}

func TestSolver_CheckSat_BinaryOps(t *testing.T) {
	tests := []struct {
		name string
		expr ir.Expr
		want solver.Verdict
	}{
		{"ADD", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.ADD, ir.NewConstant(1000, 16), ir.NewConstant(200, 16)), ir.NewConstant(1200, 16)), solver.SAT},
		{"SUB", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.SUB, ir.NewConstant(1000, 16), ir.NewConstant(200, 16)), ir.NewConstant(800, 16)), solver.SAT},
		{"MUL", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.MUL, ir.NewConstant(30, 16), ir.NewConstant(200, 16)), ir.NewConstant(6000, 16)), solver.SAT},
		{"UDIV", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.UDIV, ir.NewConstant(5000, 16), ir.NewConstant(30, 16)), ir.NewConstant(166, 16)), solver.SAT},
		{"UREM", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.UREM, ir.NewConstant(5000, 16), ir.NewConstant(30, 16)), ir.NewConstant(20, 16)), solver.SAT},
		{"AND", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.AND, ir.NewConstant(0x0FF0, 16), ir.NewConstant(0xFF00, 16)), ir.NewConstant(0x0F00, 16)), solver.SAT},
		{"OR", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.OR, ir.NewConstant(0x0FF0, 16), ir.NewConstant(0xFF00, 16)), ir.NewConstant(0xFFF0, 16)), solver.SAT},
		{"XOR", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.XOR, ir.NewConstant(0x0FF0, 16), ir.NewConstant(0xFF00, 16)), ir.NewConstant(0xF0F0, 16)), solver.SAT},
		{"SHL", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.SHL, ir.NewConstant(0x0FF0, 16), ir.NewConstant(4, 16)), ir.NewConstant(0xFF00, 16)), solver.SAT},
		{"LSHR", ir.NewBinaryExpr(ir.EQ, ir.NewBinaryExpr(ir.LSHR, ir.NewConstant(0x0FF0, 16), ir.NewConstant(4, 16)), ir.NewConstant(0x00FF, 16)), solver.SAT},
		{"ULT", ir.NewBinaryExpr(ir.ULT, ir.NewConstant(9, 32), ir.NewConstant(10, 32)), solver.SAT},
		{"ULE_equal", ir.NewBinaryExpr(ir.ULE, ir.NewConstant(10, 32), ir.NewConstant(10, 32)), solver.SAT},
		{"SLT", ir.NewBinaryExpr(ir.SLT, ir.NewSignedConstant(u8(-16), 8), ir.NewConstant(0, 8)), solver.SAT},
		{"EQ_unsat", ir.NewBinaryExpr(ir.EQ, ir.NewConstant(10, 32), ir.NewConstant(11, 32)), solver.UNSAT},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := z3.NewSolver()
			defer mustCloseSolver(t, s)
			if v := checkSat(t, s, tc.expr); v != tc.want {
				t.Fatalf("got %v, want %v", v, tc.want)
			}
		})
	}
}

func TestSolver_CheckSat_Mux(t *testing.T) {
	s := z3.NewSolver()
	defer mustCloseSolver(t, s)

	idx := ir.NewFreeVariable("idx", ir.BitsType{Width: 8})
	mux := &ir.MuxExpr{
		Cond:     ir.NewBinaryExpr(ir.EQ, idx, ir.NewConstant(1, 8)),
		TrueVal:  ir.NewConstant(42, 8),
		FalseVal: ir.NewConstant(0, 8),
	}
	constraint := ir.NewBinaryExpr(ir.EQ, mux, ir.NewConstant(42, 8))

	if v := checkSat(t, s, constraint); v != solver.SAT {
		t.Fatalf("got %v, want sat", v)
	}
	model, err := s.Model()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(model["idx"], []byte{1}); diff != "" {
		t.Fatal(diff)
	}
}

func TestSolver_CheckSat_PathConstraintConjunction(t *testing.T) {
	s := z3.NewSolver()
	defer mustCloseSolver(t, s)

	x := ir.NewFreeVariable("x", ir.BitsType{Width: 8})
	if v := checkSat(t, s,
		ir.NewBinaryExpr(ir.UGT, x, ir.NewConstant(10, 8)),
		ir.NewBinaryExpr(ir.ULT, x, ir.NewConstant(12, 8)),
	); v != solver.SAT {
		t.Fatalf("got %v, want sat", v)
	}
	model, err := s.Model()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(model["x"], []byte{11}); diff != "" {
		t.Fatal(diff)
	}
}
