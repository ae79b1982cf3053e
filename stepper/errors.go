package stepper

import "fmt"

// UnimplementedError is raised when the stepper hits a feature it cannot
// reduce: a tainted value driving a non-conservative fork (tainted advance
// size, tainted emit validity), or an extern with no registered handler.
// Permissive marks whether the caller should warn-and-drop the branch
// (explore runs under permissive mode) or fail the run outright.
type UnimplementedError struct {
	Reason     string
	Permissive bool
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("stepper: unimplemented: %s", e.Reason)
}

// Unimplemented and IsPermissive let package explore classify this error
// without importing package stepper — explore duck-types on this exact
// two-method shape rather than a type assertion to *UnimplementedError.
func (e *UnimplementedError) Unimplemented() bool { return true }
func (e *UnimplementedError) IsPermissive() bool  { return e.Permissive }

// BugCheck indicates an implementation defect: wrong arity, a missing
// declaration, an impossible IR shape. It is always fatal.
type BugCheck struct {
	Msg string
}

func (e *BugCheck) Error() string { return fmt.Sprintf("stepper: bug: %s", e.Msg) }

func bugCheck(format string, args ...interface{}) error {
	return &BugCheck{Msg: fmt.Sprintf(format, args...)}
}

func unimplemented(permissive bool, format string, args ...interface{}) error {
	return &UnimplementedError{Reason: fmt.Sprintf(format, args...), Permissive: permissive}
}
