package state

import "github.com/pplgen/testgen/ir"

// Command is a unit of work on the continuation stack. The stack is never
// empty while a state is still running: its last entry is always the next
// thing stepper.Step will process, playing the role a program counter
// would over a flat instruction list, but realized here over a
// direct-style IR tree instead.
type Command interface {
	command()
}

func (StmtCommand) command()      {}
func (ReturnCommand) command()    {}
func (ExceptionCommand) command() {}
func (ApplyCommand) command()     {}
func (CopyCommand) command()      {}

// StmtCommand steps a single statement.
type StmtCommand struct {
	Stmt ir.Stmt
}

// ReturnCommand pops the enclosing block, optionally carrying a value for a
// caller that expects one.
type ReturnCommand struct {
	Value ir.Expr
}

// ExceptionKind names a PPL control-flow exception. These are distinct from
// the error.* enumeration program code can read — an ExceptionCommand
// unwinds the continuation stack, whereas a PPL-level error value is just
// an ordinary Expr assigned somewhere.
type ExceptionKind int

const (
	ExceptionReject ExceptionKind = iota
	ExceptionPacketTooShort
	ExceptionDrop
	ExceptionAbort
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionReject:
		return "reject"
	case ExceptionPacketTooShort:
		return "packet_too_short"
	case ExceptionDrop:
		return "drop"
	case ExceptionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ExceptionCommand unwinds the continuation stack up to the nearest
// exception boundary (or to the bottom, terminating the state) carrying
// Kind. PPL's reject/drop/abort control flow is modeled this way rather
// than as a Go error, since it is ordinary, expected program behaviour, not
// an implementation-level failure.
type ExceptionCommand struct {
	Kind ExceptionKind
	Msg  string
}

// ApplyCommand applies a declared table or action by name, continuing with
// Then once resolved. The table stepper and the expression stepper share
// this command so that a MethodCallExpression invoking an action and a
// direct table.apply() both flow through the same continuation machinery.
type ApplyCommand struct {
	DeclName string
	Then     ir.Stmt
}

// CopyDirection selects which half of a parameter copy a CopyCommand
// performs.
type CopyDirection int

const (
	CopyIn CopyDirection = iota
	CopyOut
)

// CopyCommand drives a pipeline block's parameter-passing boundary through
// the same continuation stack ordinary statements run on, treating
// copy-in/copy-out as commands rather than plain Go calls made outside the
// stepping loop, so they interleave correctly with whatever else is
// already queued (e.g. a CopyOut that must run after a block's body has
// finished, not before).
type CopyCommand struct {
	Dir         CopyDirection
	Params      []ir.Param
	CallerScope ir.Ref
	CalleeScope ir.Ref
}

func (HookCommand) command() {}

// HookCommand invokes Fn directly when popped. It is the escape hatch that
// lets a caller outside this package — package target's pipeline driver,
// which needs to decide whether to re-enter the whole pipeline after a
// recirculate() call, something only it knows how to do — participate in
// ordinary stepping without this package needing to know anything about
// pipelines or targets. Continuation is guaranteed empty immediately after
// Fn runs unless Fn itself pushes more work, which is exactly how a
// recirculation retry re-enters the pipeline: IsTerminal() only reports
// true once Fn has had its say.
type HookCommand struct {
	Fn func(st *ExecutionState) ([]Branch, error)
}
