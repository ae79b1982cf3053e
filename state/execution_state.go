// Package state implements the execution state: the mutable-by-fork bundle
// of symbolic environment, packet buffers, path constraints, trace, and
// continuation stack that a stepper advances one command at a time.
package state

import (
	"bytes"
	"fmt"

	"github.com/pplgen/testgen/env"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/trace"
)

// ExecutionState represents a single path under exploration.
type ExecutionState struct {
	id int

	Environment *env.Environment

	// PacketBuffer is the remaining not-yet-consumed input, an
	// expression of type bits built by concatenation; Cursor counts the
	// bits already extracted from InputPacket, kept in lockstep with
	// PacketBuffer shrinking from the front.
	PacketBuffer ir.Expr
	// EmitBuffer accumulates deparser output, also a concatenation.
	EmitBuffer ir.Expr
	// InputPacket is the free bitvector the whole run was seeded with;
	// PacketBuffer is always a suffix of it.
	InputPacket ir.Expr
	Cursor      uint

	// PathConstraint is the append-only list of guards collected along
	// this path. AddConstraint splits logical AND conjunctions into
	// independent entries, so the solver sees a flat conjunction list
	// rather than nested ANDs.
	PathConstraint []ir.Expr

	Trace []trace.Event

	Properties  *Properties
	TestObjects *TestObjectStore

	// Continuation is the stack of remaining work; its last element is
	// the next Command a stepper will process. It is never empty while
	// the state is running — the terminal command for the outermost
	// block is always a ReturnCommand or ExceptionCommand, never an
	// implicit fallthrough.
	Continuation []Command
}

// New returns a fresh, empty execution state seeded with the given input
// packet (typically a FreeVariable sized by the target's max-packet-bits).
func New(inputPacket ir.Expr) *ExecutionState {
	return &ExecutionState{
		Environment:  env.New(),
		PacketBuffer: inputPacket,
		InputPacket:  inputPacket,
		Properties:   NewProperties(),
		TestObjects:  NewTestObjectStore(),
	}
}

// ID returns an identifier assigned by the exploration strategy that owns
// this state (0 until assigned).
func (s *ExecutionState) ID() int { return s.id }

// SetID assigns this state's identifier. Called once by the exploration
// strategy that mints it.
func (s *ExecutionState) SetID(id int) { s.id = id }

// Clone returns a copy of the state, deep-copying every mutable
// sub-structure (continuation, constraints, trace, properties, test-object
// store) while sharing the Environment and all ir.Expr values, which are
// themselves immutable once constructed: share the IR, copy the
// bookkeeping.
func (s *ExecutionState) Clone() *ExecutionState {
	continuation := make([]Command, len(s.Continuation))
	copy(continuation, s.Continuation)

	constraints := make([]ir.Expr, len(s.PathConstraint))
	copy(constraints, s.PathConstraint)

	tr := make([]trace.Event, len(s.Trace))
	copy(tr, s.Trace)

	return &ExecutionState{
		Environment:    s.Environment.Fork(),
		PacketBuffer:   s.PacketBuffer,
		EmitBuffer:     s.EmitBuffer,
		InputPacket:    s.InputPacket,
		Cursor:         s.Cursor,
		PathConstraint: constraints,
		Trace:          tr,
		Properties:     s.Properties.Clone(),
		TestObjects:    s.TestObjects.Clone(),
		Continuation:   continuation,
	}
}

// Fork returns a child copy of the state with an additional path
// constraint. A nil constraint forks without narrowing the path, for
// callers that only need an independent mutable copy (e.g. to try a
// recovery branch before committing to it).
func (s *ExecutionState) Fork(constraint ir.Expr) *ExecutionState {
	child := s.Clone()
	if constraint != nil {
		child.AddConstraint(constraint)
	}
	return child
}

// AddConstraint appends expr to PathConstraint, splitting a top-level
// logical AND into independent entries so the solver always sees a flat
// conjunction.
func (s *ExecutionState) AddConstraint(expr ir.Expr) {
	if ir.IsConstantFalse(expr) {
		panic("state: invalid false constraint")
	}
	if b, ok := expr.(*ir.BinaryExpr); ok && b.Op == ir.LAND {
		s.AddConstraint(b.LHS)
		s.AddConstraint(b.RHS)
		return
	}
	s.PathConstraint = append(s.PathConstraint, expr)
}

// LogEvent appends ev to the trace.
func (s *ExecutionState) LogEvent(ev trace.Event) {
	s.Trace = append(s.Trace, ev)
}

// PushCommand pushes cmd onto the continuation stack.
func (s *ExecutionState) PushCommand(cmd Command) {
	s.Continuation = append(s.Continuation, cmd)
}

// PopCommand removes and returns the top of the continuation stack, and
// whether one existed.
func (s *ExecutionState) PopCommand() (Command, bool) {
	if len(s.Continuation) == 0 {
		return nil, false
	}
	n := len(s.Continuation) - 1
	cmd := s.Continuation[n]
	s.Continuation = s.Continuation[:n]
	return cmd, true
}

// PeekCommand returns the top of the continuation stack without removing
// it, and whether one existed.
func (s *ExecutionState) PeekCommand() (Command, bool) {
	if len(s.Continuation) == 0 {
		return nil, false
	}
	return s.Continuation[len(s.Continuation)-1], true
}

// PopBody pops the current StmtCommand and, if its statement is a
// BlockStatement, pushes its children in reverse order so the first
// statement of the block becomes the new top of stack. Used whenever a
// stepper descends from a compound statement into its body.
func (s *ExecutionState) PopBody() (ir.Stmt, bool) {
	cmd, ok := s.PopCommand()
	if !ok {
		return nil, false
	}
	sc, ok := cmd.(StmtCommand)
	if !ok {
		s.PushCommand(cmd)
		return nil, false
	}
	if block, ok := sc.Stmt.(*ir.BlockStatement); ok {
		for i := len(block.Stmts) - 1; i >= 0; i-- {
			s.PushCommand(StmtCommand{Stmt: block.Stmts[i]})
		}
		return s.PopBody()
	}
	return sc.Stmt, true
}

// ReplaceTopBody replaces the top-of-stack StmtCommand's statement with
// stmt, leaving the rest of the continuation untouched. Used by the
// stepper to rewrite a partially-evaluated statement (e.g. an assignment
// whose RHS just finished reducing) without popping and re-pushing the
// surrounding block.
func (s *ExecutionState) ReplaceTopBody(stmt ir.Stmt) {
	n := len(s.Continuation)
	if n == 0 {
		s.PushCommand(StmtCommand{Stmt: stmt})
		return
	}
	s.Continuation[n-1] = StmtCommand{Stmt: stmt}
}

// SlicePacketBuffer removes and returns the leading n bits of PacketBuffer,
// advancing Cursor. It returns an error if fewer than n bits remain.
func (s *ExecutionState) SlicePacketBuffer(n uint) (ir.Expr, error) {
	if s.PacketBuffer == nil || ir.TypeWidth(s.PacketBuffer.Type()) < n {
		return nil, ErrBufferUnderflow
	}
	total := ir.TypeWidth(s.PacketBuffer.Type())
	field := ir.NewExtractExpr(s.PacketBuffer, total-n, n)
	if total == n {
		s.PacketBuffer = nil
	} else {
		s.PacketBuffer = ir.NewExtractExpr(s.PacketBuffer, 0, total-n)
	}
	s.Cursor += n
	return field, nil
}

// PeekPacketBuffer returns the leading n bits of PacketBuffer without
// consuming them (lookahead). It returns an error if fewer than n bits
// remain.
func (s *ExecutionState) PeekPacketBuffer(n uint) (ir.Expr, error) {
	if s.PacketBuffer == nil || ir.TypeWidth(s.PacketBuffer.Type()) < n {
		return nil, ErrBufferUnderflow
	}
	total := ir.TypeWidth(s.PacketBuffer.Type())
	return ir.NewExtractExpr(s.PacketBuffer, total-n, n), nil
}

// PrependToPacketBuffer pushes bits back onto the front of PacketBuffer,
// reversing a SlicePacketBuffer (used by instrumented advance failures that
// need to restore the cursor before forking a PacketTooShort branch).
func (s *ExecutionState) PrependToPacketBuffer(bits ir.Expr) {
	if s.PacketBuffer == nil {
		s.PacketBuffer = bits
	} else {
		s.PacketBuffer = ir.NewConcatExpr(bits, s.PacketBuffer)
	}
	s.Cursor -= ir.TypeWidth(bits.Type())
}

// AppendToPacketBuffer appends bits to the tail of PacketBuffer. Used when
// re-queuing bits a parser decided not to consume after all (rare; kept for
// symmetry with PrependToPacketBuffer and exercised by recirculation, which
// re-seeds PacketBuffer from the preserved field list).
func (s *ExecutionState) AppendToPacketBuffer(bits ir.Expr) {
	if s.PacketBuffer == nil {
		s.PacketBuffer = bits
		return
	}
	s.PacketBuffer = ir.NewConcatExpr(s.PacketBuffer, bits)
}

// AppendToEmitBuffer appends bits to the tail of EmitBuffer.
func (s *ExecutionState) AppendToEmitBuffer(bits ir.Expr) {
	if s.EmitBuffer == nil {
		s.EmitBuffer = bits
		return
	}
	s.EmitBuffer = ir.NewConcatExpr(s.EmitBuffer, bits)
}

// ResetEmitBuffer clears EmitBuffer, used once a recirculation pass has
// consumed it (the v1model deparser is the single block that ever builds
// one; a recirculated pass re-deparsers from scratch into a fresh buffer).
func (s *ExecutionState) ResetEmitBuffer() {
	s.EmitBuffer = nil
}

// GetFlatFields returns every leaf (non-struct) field ref bound under
// prefix, in the order they were declared — used to serialize a
// struct/header-typed location field by field, e.g. for emit() or for
// constructing a StructExpression's flattened form.
func (s *ExecutionState) GetFlatFields(prefix ir.Ref, typ ir.Type) []ir.Ref {
	st, ok := typ.(*ir.StructType)
	if !ok {
		return []ir.Ref{prefix}
	}
	var refs []ir.Ref
	for _, f := range st.Fields {
		refs = append(refs, s.GetFlatFields(prefix.Field(f.Name), f.Type)...)
	}
	return refs
}

// IsTerminal reports whether the state has no remaining work: a stepper has
// popped every command off the continuation (the final one was a
// ReturnCommand or an ExceptionCommand that unwound past the bottom of the
// stack).
func (s *ExecutionState) IsTerminal() bool {
	return len(s.Continuation) == 0
}

// Dump returns a human-readable rendering of the state's constraints,
// trace, and test-object store — used by the inspect CLI subcommand and
// by test failure messages.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "state #%d\n", s.id)
	fmt.Fprintf(&buf, "cursor: %d bits\n", s.Cursor)
	fmt.Fprintf(&buf, "constraints:\n")
	for _, c := range s.PathConstraint {
		fmt.Fprintf(&buf, "  %s\n", c)
	}
	fmt.Fprintf(&buf, "trace:\n")
	for _, ev := range s.Trace {
		fmt.Fprintf(&buf, "  %s\n", ev)
	}
	fmt.Fprintf(&buf, "test objects:\n")
	for k, v := range s.TestObjects.All() {
		fmt.Fprintf(&buf, "  %s = %v\n", k, v)
	}
	return buf.String()
}
