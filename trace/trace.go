// Package trace records the human-readable event log an execution state
// accumulates as it steps, independent of the path constraints collected
// for the solver. It backs the "generate a readable trace of what this
// terminal state did" side of the external contract.
package trace

import (
	"fmt"

	"github.com/pplgen/testgen/ir"
)

// Kind identifies the category of a trace Event.
type Kind int

const (
	// Extract records a parser extract/advance/lookahead operation.
	Extract Kind = iota
	// Emit records a deparser emit operation.
	Emit
	// TableApply records a table hit or miss.
	TableApply
	// Expression records an arbitrary evaluated expression, for
	// diagnostics (verify conditions, extern calls).
	Expression
	// Generic records a free-form message, the trace equivalent of a
	// log line, for events with no more specific Kind.
	Generic
)

func (k Kind) String() string {
	switch k {
	case Extract:
		return "extract"
	case Emit:
		return "emit"
	case TableApply:
		return "table"
	case Expression:
		return "expr"
	case Generic:
		return "generic"
	default:
		return "unknown"
	}
}

// Event is a single entry in an execution state's trace.
type Event struct {
	Kind    Kind
	Label   string // field ref, table name, or free-form description
	Value   ir.Expr
	Message string
}

// ExtractEvent returns an Event recording a parser extraction into ref.
func ExtractEvent(ref ir.Ref, value ir.Expr) Event {
	return Event{Kind: Extract, Label: string(ref), Value: value}
}

// EmitEvent returns an Event recording a deparser emit of a header.
func EmitEvent(ref ir.Ref, valid ir.Expr) Event {
	return Event{Kind: Emit, Label: string(ref), Value: valid}
}

// TableEvent returns an Event recording a table apply outcome.
func TableEvent(table string, hit bool) Event {
	msg := "miss"
	if hit {
		msg = "hit"
	}
	return Event{Kind: TableApply, Label: table, Message: msg}
}

// String renders the event for human-readable dumps (cmd/ppltestgen
// inspect, test failure messages).
func (e Event) String() string {
	if e.Value != nil {
		return fmt.Sprintf("[%s] %s = %s", e.Kind, e.Label, e.Value)
	}
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Label, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Label)
}
