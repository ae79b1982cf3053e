package stepper

import (
	"fmt"

	"github.com/pplgen/testgen/extern"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// evalMethodCall dispatches a MethodCallExpression. isValid/setValid/
// setInvalid are core-language header operations handled directly against
// the $valid convention; packet_in/packet_out methods delegate to the
// parser/deparser helpers; verify/assert/assume are core free functions
// with their own control-flow semantics; everything else goes through the
// extern registry.
func (s *Stepper) evalMethodCall(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	switch e.Method {
	case "isValid":
		return s.evalIsValid(st, e)
	case "setValid":
		return s.evalSetValidity(st, e, true)
	case "setInvalid":
		return s.evalSetValidity(st, e, false)
	}

	switch e.ReceiverType {
	case "packet_in":
		return s.evalPacketIn(st, e)
	case "packet_out":
		return s.evalPacketOut(st, e)
	case "table":
		return nil, unimplemented(s.Permissive, "table %q applied from an expression context rather than as a statement", e.Method)
	}

	if e.ReceiverType == "*" {
		switch e.Method {
		case "verify":
			return s.evalVerify(st, e)
		case "assert":
			return s.evalAssert(st, e)
		case "assume":
			return s.evalAssume(st, e)
		}
	}

	return s.evalExternCall(st, e)
}

func (s *Stepper) evalIsValid(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	ref, err := refOf(e.Receiver)
	if err != nil {
		return nil, err
	}
	v, ok := st.Environment.Get(validRef(ref))
	if !ok {
		v = ir.NewBool(false)
	}
	return []exprResult{{St: st, Value: v}}, nil
}

func (s *Stepper) evalSetValidity(st *state.ExecutionState, e *ir.MethodCallExpression, valid bool) ([]exprResult, error) {
	ref, err := refOf(e.Receiver)
	if err != nil {
		return nil, err
	}
	st.Environment = st.Environment.Set(validRef(ref), ir.NewBool(valid))
	return []exprResult{{St: st}}, nil
}

// argResult is the argument-list analogue of exprResult: a successor state,
// the fully evaluated positional argument values, and the accumulated
// guard of every fork any argument expression forced.
type argResult struct {
	St     *state.ExecutionState
	Values []ir.Expr
	Guard  ir.Expr
}

func (s *Stepper) evalArgs(st *state.ExecutionState, args []ir.Expr) ([]argResult, error) {
	results := []argResult{{St: st}}
	for _, a := range args {
		var next []argResult
		for _, r := range results {
			ars, err := s.evalExpr(r.St, a)
			if err != nil {
				return nil, err
			}
			for _, ar := range ars {
				next = append(next, argResult{
					St:     ar.St,
					Values: append(append([]ir.Expr{}, r.Values...), ar.Value),
					Guard:  andGuard(r.Guard, ar.Guard),
				})
			}
		}
		results = next
	}
	return results, nil
}

// evalExternCall evaluates e.Args and dispatches to the registered
// extern.Handler for e's receiver/method pair. The receiver expression is
// passed through unevaluated: an extern instance (Register, Checksum16,
// Counter, Meter) is never a bound environment value, only an opaque
// declared name the handler recovers from the raw PathExpression itself
// (see extern.registerInstanceName), so evaluating it first would just
// destroy the information the handler needs.
func (s *Stepper) evalExternCall(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	key := extern.Key{Receiver: e.ReceiverType, Method: e.Method}
	handler, ok := s.Externs.Lookup(key)
	if !ok {
		return nil, unimplemented(s.Permissive, "no extern handler registered for %s", key)
	}
	argResults, err := s.evalArgs(st, e.Args)
	if err != nil {
		return nil, err
	}
	out := make([]exprResult, len(argResults))
	for i, ar := range argResults {
		var receiver ir.Expr
		if e.ReceiverType != "*" {
			receiver = e.Receiver
		}
		value, err := handler(ar.St, receiver, ar.Values)
		if err != nil {
			return nil, err
		}
		out[i] = exprResult{St: ar.St, Value: value, Guard: ar.Guard}
	}
	return out, nil
}

// describeError renders a PPL error literal (a TypeNameExpression naming
// one of the error.* enumerators) for an exception's trace message.
func describeError(e ir.Expr) string {
	if tn, ok := e.(*ir.TypeNameExpression); ok {
		return tn.Name
	}
	return fmt.Sprintf("%v", e)
}

// evalVerify implements the core verify(bool check, error toSignal)
// primitive: on the false branch it raises toSignal as a reject exception
// carrying the named error, rather than returning a value. A tainted
// check is not forked like an ordinary boolean condition — verify is the
// one primitive the parser uses to surface an error without ever
// aborting the run on unconstrained input, so a tainted check instead
// taints the parser-error property and continues along the single
// existing path.
func (s *Stepper) evalVerify(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	argResults, err := s.evalArgs(st, e.Args)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, ar := range argResults {
		if ir.IsTainted(ar.Values[0]) {
			ar.St.Properties.Set(propParserError, ir.NewTaintExpression(ar.Values[1].Type()))
			out = append(out, exprResult{St: ar.St, Guard: ar.Guard})
			continue
		}
		splits, err := splitBool(ar.St, ar.Values[0])
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			guard := andGuard(ar.Guard, sp.Guard)
			if !sp.Value {
				sp.St.Properties.Set(propParserError, ar.Values[1])
				sp.St.PushCommand(state.ExceptionCommand{Kind: state.ExceptionReject, Msg: describeError(ar.Values[1])})
			}
			out = append(out, exprResult{St: sp.St, Guard: guard})
		}
	}
	return out, nil
}

// evalAssert implements the core assert(bool check) debugging primitive.
// Under strict mode a false check is a program defect and aborts the run;
// under permissive mode (the default exploration mode) it is logged and
// treated as a no-op, since a debugging assertion firing mid-exploration
// should not itself prevent generating the test that found it.
func (s *Stepper) evalAssert(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	argResults, err := s.evalArgs(st, e.Args)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, ar := range argResults {
		splits, err := splitBool(ar.St, ar.Values[0])
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			guard := andGuard(ar.Guard, sp.Guard)
			if !sp.Value {
				if s.Permissive {
					sp.St.LogEvent(genericEvent("assert failed (permissive, continuing)"))
				} else {
					sp.St.PushCommand(state.ExceptionCommand{Kind: state.ExceptionAbort, Msg: "assert"})
				}
			}
			out = append(out, exprResult{St: sp.St, Guard: guard})
		}
	}
	return out, nil
}

// evalAssume implements the core assume(bool check) primitive: rather than
// forking into a surviving and a failing branch, the false branch is
// pruned outright and never appears in the result — assume narrows the
// path, it does not raise an exception along it.
func (s *Stepper) evalAssume(st *state.ExecutionState, e *ir.MethodCallExpression) ([]exprResult, error) {
	argResults, err := s.evalArgs(st, e.Args)
	if err != nil {
		return nil, err
	}
	var out []exprResult
	for _, ar := range argResults {
		splits, err := splitBool(ar.St, ar.Values[0])
		if err != nil {
			return nil, err
		}
		for _, sp := range splits {
			if !sp.Value {
				continue
			}
			out = append(out, exprResult{St: sp.St, Guard: andGuard(ar.Guard, sp.Guard)})
		}
	}
	return out, nil
}
