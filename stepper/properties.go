package stepper

import (
	"fmt"

	"github.com/pplgen/testgen/state"
	"github.com/pplgen/testgen/trace"
)

// Property keys the stepper itself owns, distinct from the ones
// extern/bmv2.go coordinates through (those are target-specific; these are
// core-language bookkeeping every target shares).
const (
	propException        = "core.exception"
	propExceptionMsg      = "core.exception_msg"
	propParserError       = "core.parser_error"
	propInUndefinedState  = "core.in_undefined_state"
)

func genericEvent(msg string) trace.Event {
	return trace.Event{Kind: trace.Generic, Message: msg}
}

func exceptionEvent(c state.ExceptionCommand) trace.Event {
	msg := c.Kind.String()
	if c.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, c.Msg)
	}
	return trace.Event{Kind: trace.Generic, Label: "exception", Message: msg}
}
