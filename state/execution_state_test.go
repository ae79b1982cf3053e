package state_test

import (
	"testing"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

func newTestState() *state.ExecutionState {
	return state.New(ir.NewFreeVariable("pkt", ir.BitsType{Width: 64}))
}

func TestExecutionState_Fork_SharesEnvironmentNotConstraints(t *testing.T) {
	s := newTestState()
	s.Environment = s.Environment.Set("hdr.valid", ir.NewBool(true))
	s.AddConstraint(ir.NewBool(true))

	child := s.Fork(ir.NewBool(true))
	child.Environment = child.Environment.Set("hdr.valid", ir.NewBool(false))

	if len(s.PathConstraint) != 1 {
		t.Fatalf("parent constraints mutated: %v", s.PathConstraint)
	}
	if len(child.PathConstraint) != 2 {
		t.Fatalf("child should have 2 constraints, got %d", len(child.PathConstraint))
	}

	v, _ := s.Environment.Get("hdr.valid")
	if !ir.IsConstantTrue(v) {
		t.Fatal("parent environment should not see child's write")
	}
}

func TestExecutionState_AddConstraint_SplitsAnd(t *testing.T) {
	s := newTestState()
	a := ir.NewFreeVariable("a", ir.BoolType{})
	b := ir.NewFreeVariable("b", ir.BoolType{})
	s.AddConstraint(ir.NewBinaryExpr(ir.LAND, a, b))

	if len(s.PathConstraint) != 2 {
		t.Fatalf("expected AND to split into 2 constraints, got %d", len(s.PathConstraint))
	}
}

func TestExecutionState_SlicePacketBuffer(t *testing.T) {
	s := newTestState()
	field, err := s.SlicePacketBuffer(8)
	if err != nil {
		t.Fatal(err)
	}
	if ir.TypeWidth(field.Type()) != 8 {
		t.Fatalf("got width %d, want 8", ir.TypeWidth(field.Type()))
	}
	if s.Cursor != 8 {
		t.Fatalf("cursor = %d, want 8", s.Cursor)
	}
	if ir.TypeWidth(s.PacketBuffer.Type()) != 56 {
		t.Fatalf("remaining buffer width = %d, want 56", ir.TypeWidth(s.PacketBuffer.Type()))
	}
}

func TestExecutionState_SlicePacketBuffer_Underflow(t *testing.T) {
	s := newTestState()
	if _, err := s.SlicePacketBuffer(65); err != state.ErrBufferUnderflow {
		t.Fatalf("got %v, want ErrBufferUnderflow", err)
	}
}

func TestExecutionState_PopBody_FlattensBlock(t *testing.T) {
	s := newTestState()
	inner := &ir.ExitStatement{}
	block := &ir.BlockStatement{Stmts: []ir.Stmt{inner, &ir.ExitStatement{}}}
	s.PushCommand(state.StmtCommand{Stmt: block})

	stmt, ok := s.PopBody()
	if !ok || stmt != inner {
		t.Fatalf("expected to unwrap first statement of block, got %v, %v", stmt, ok)
	}
	if len(s.Continuation) != 1 {
		t.Fatalf("expected 1 remaining command, got %d", len(s.Continuation))
	}
}
