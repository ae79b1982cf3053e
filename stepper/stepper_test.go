package stepper_test

import (
	"testing"

	"github.com/pplgen/testgen/extern"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
	"github.com/pplgen/testgen/stepper"
)

func newTestState(packetWidth uint) *state.ExecutionState {
	return state.New(ir.NewFreeVariable("pkt", ir.BitsType{Width: packetWidth}))
}

var headerH = &ir.StructType{
	Name:        "H",
	HasValidBit: true,
	Fields:      []ir.Field{{Name: "v", Type: ir.BitsType{Width: 8}}},
}

// Scenario 1: a parser that extracts an 8-bit header then accepts produces
// a feasible-extract branch with h bound and valid, and a too-short branch
// whose exception is recorded once stepped again.
func TestStep_SimpleParse(t *testing.T) {
	st := newTestState(64)
	call := ir.NewMethodCallExpression(nil, "packet_in", "extract",
		[]ir.Expr{ir.NewPathExpression("hdr.h", headerH)}, ir.VoidType{})
	st.PushCommand(state.StmtCommand{Stmt: &ir.MethodCallStatement{Call: call}})

	s := &stepper.Stepper{}
	branches, err := s.Step(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 2 {
		t.Fatalf("got %d branches, want 2", len(branches))
	}

	var sawOK, sawShort bool
	for _, b := range branches {
		v, ok := b.Next.Environment.Get("hdr.h.v")
		if ok {
			sawOK = true
			if ir.TypeWidth(v.Type()) != 8 {
				t.Fatalf("h.v width = %d, want 8", ir.TypeWidth(v.Type()))
			}
			valid, ok := b.Next.Environment.Get("hdr.h.$valid")
			if !ok || !ir.IsConstantTrue(valid) {
				t.Fatal("extracted header should be marked valid")
			}
			continue
		}
		next, err := s.Step(b.Next)
		if err != nil {
			t.Fatal(err)
		}
		if len(next) != 1 {
			t.Fatalf("exception step produced %d branches, want 1", len(next))
		}
		if !next[0].Next.IsTerminal() {
			t.Fatal("a raised exception should unwind to a terminal state")
		}
		sawShort = true
	}
	if !sawOK || !sawShort {
		t.Fatal("expected one successful-extract branch and one packet-too-short branch")
	}
}

// Scenario 2: advance(x) with x an 8-bit symbol case-splits into one
// success/failure pair per byte-aligned candidate width x could take.
func TestStep_AdvanceWithRuntimeExpression(t *testing.T) {
	st := newTestState(64)
	x := ir.NewFreeVariable("x", ir.BitsType{Width: 8})
	call := ir.NewMethodCallExpression(nil, "packet_in", "advance", []ir.Expr{x}, ir.VoidType{})
	st.PushCommand(state.StmtCommand{Stmt: &ir.MethodCallStatement{Call: call}})

	s := &stepper.Stepper{MaxPacketBits: 64}
	branches, err := s.Step(st)
	if err != nil {
		t.Fatal(err)
	}
	// candidates 0, 8, ..., 64 => 9 candidates, success+failure each.
	if len(branches) != 18 {
		t.Fatalf("got %d branches, want 18", len(branches))
	}
	for _, b := range branches {
		if b.Guard == nil {
			t.Fatal("every advance branch should carry a guard")
		}
	}
}

// Scenario 3: verify(false, error.MyErr) has exactly one feasible
// terminal, carrying the named error.
func TestStep_VerifyConstantFalse(t *testing.T) {
	st := newTestState(64)
	call := ir.NewMethodCallExpression(nil, "*", "verify", []ir.Expr{
		ir.NewBool(false),
		ir.NewTypeNameExpression("MyErr", ir.ErrorType{Name: "error"}),
	}, ir.VoidType{})
	st.PushCommand(state.StmtCommand{Stmt: &ir.MethodCallStatement{Call: call}})

	s := &stepper.Stepper{}
	branches, err := s.Step(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 1 {
		t.Fatalf("got %d branches, want exactly 1 feasible terminal", len(branches))
	}
	next, err := s.Step(branches[0].Next)
	if err != nil {
		t.Fatal(err)
	}
	if !next[0].Next.IsTerminal() {
		t.Fatal("verify(false, ...) should unwind to a terminal state")
	}
	kind, _ := next[0].Next.Properties.Get("core.exception")
	if kind != state.ExceptionReject {
		t.Fatalf("exception kind = %v, want ExceptionReject", kind)
	}
	msg, _ := next[0].Next.Properties.Get("core.exception_msg")
	if msg != "MyErr" {
		t.Fatalf("exception msg = %v, want MyErr", msg)
	}
}

// Scenario 4: verify(tainted, error.MyErr) does not fork or raise an
// exception — it marks the parser-error property tainted and continues
// along the single existing path, since verify is the primitive the
// parser uses to signal an error without ever aborting on unconstrained
// input.
func TestStep_VerifyTaintedCondition(t *testing.T) {
	st := newTestState(64)
	cond := ir.NewTaintExpression(ir.BoolType{})
	call := ir.NewMethodCallExpression(nil, "*", "verify", []ir.Expr{
		cond,
		ir.NewTypeNameExpression("MyErr", ir.ErrorType{Name: "error"}),
	}, ir.VoidType{})
	st.PushCommand(state.StmtCommand{Stmt: &ir.MethodCallStatement{Call: call}})

	s := &stepper.Stepper{}
	branches, err := s.Step(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 1 {
		t.Fatalf("got %d branches, want exactly 1 (a tainted verify must not fork)", len(branches))
	}
	next := branches[0].Next
	if _, ok := next.Properties.Get("core.exception"); ok {
		t.Fatal("a tainted verify must not raise an exception")
	}
	perr, ok := next.Properties.Get("core.parser_error")
	if !ok || !ir.IsTainted(perr.(ir.Expr)) {
		t.Fatalf("core.parser_error = %v, want a tainted expression", perr)
	}
}

// Scenario 5: writing V at index I then reading back at I yields r == V
// under the Mux-chain register model, without any residual symbolic guard
// once the index is a concrete constant.
func TestStep_RegisterReadAfterWrite(t *testing.T) {
	st := newTestState(64)
	reg := ir.NewPathExpression("reg", ir.BitsType{Width: 32})
	index := ir.NewConstant(3, 8)
	value := ir.NewConstant(0xABCD, 32)

	write := &ir.MethodCallStatement{Call: ir.NewMethodCallExpression(reg, "Register", "write",
		[]ir.Expr{index, value}, ir.VoidType{})}
	read := &ir.AssignmentStatement{
		LHS: ir.NewPathExpression("r", ir.BitsType{Width: 32}),
		RHS: ir.NewMethodCallExpression(reg, "Register", "read", []ir.Expr{index}, ir.BitsType{Width: 32}),
	}
	st.PushCommand(state.StmtCommand{Stmt: &ir.BlockStatement{Stmts: []ir.Stmt{write, read}}})

	s := &stepper.Stepper{Externs: extern.NewBMv2Registry(extern.NewRegistry(nil))}
	for !st.IsTerminal() {
		branches, err := s.Step(st)
		if err != nil {
			t.Fatal(err)
		}
		if len(branches) != 1 {
			t.Fatalf("unexpected fork while evaluating a register round-trip: %d branches", len(branches))
		}
		st = branches[0].Next
	}

	r, ok := st.Environment.Get("r")
	if !ok {
		t.Fatal("r was never bound")
	}
	c, ok := r.(*ir.Constant)
	if !ok {
		t.Fatalf("r = %v (%T), want a reduced Constant", r, r)
	}
	if c.Value != 0xABCD {
		t.Fatalf("r = %d, want %d", c.Value, 0xABCD)
	}
}
