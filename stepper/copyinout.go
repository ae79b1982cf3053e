package stepper

import (
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// CopyIn binds calleeScope's parameters from callerScope according to
// params' declared directions, the way entering a pipeline block or
// calling an action with in/out/inout parameters works: DirIn and DirInOut
// parameters copy the caller's current value in; a DirOut parameter starts
// from scratch at an uninitialized value, since the callee must not be able
// to observe whatever the caller's storage happened to hold before the
// call — that would leak information across a boundary the direction
// annotation says is write-only.
func (s *Stepper) CopyIn(st *state.ExecutionState, params []ir.Param, callerScope, calleeScope ir.Ref) {
	for _, p := range params {
		dst := calleeScope.Field(p.Name)
		switch p.Dir {
		case ir.DirIn, ir.DirInOut:
			copyRef(st, dst, callerScope.Field(p.Name), p.Type)
		case ir.DirOut:
			s.initUndefined(st, dst, p.Type)
		}
	}
}

// CopyOut copies calleeScope's DirOut and DirInOut parameters back into
// callerScope once the call returns. DirIn parameters are never copied
// back — the callee was never entitled to mutate the caller's view of
// them in the first place.
func (s *Stepper) CopyOut(st *state.ExecutionState, params []ir.Param, callerScope, calleeScope ir.Ref) {
	for _, p := range params {
		if p.Dir == ir.DirOut || p.Dir == ir.DirInOut {
			copyRef(st, callerScope.Field(p.Name), calleeScope.Field(p.Name), p.Type)
		}
	}
}

// copyRef copies every leaf binding (and, for a header, the validity bit)
// under src to the corresponding location under dst.
func copyRef(st *state.ExecutionState, dst, src ir.Ref, typ ir.Type) {
	if t, ok := typ.(*ir.StructType); ok {
		for _, f := range t.Fields {
			copyRef(st, dst.Field(f.Name), src.Field(f.Name), f.Type)
		}
		if t.HasValidBit {
			if v, ok := st.Environment.Get(validRef(src)); ok {
				st.Environment = st.Environment.Set(validRef(dst), v)
			}
		}
		return
	}
	if v, ok := st.Environment.Get(src); ok {
		st.Environment = st.Environment.Set(dst, v)
	}
}

// InitUninitialized binds ref (recursively, for a struct) to typ's
// target-specific uninitialized value. It is the exported form of
// initUndefined, for a caller outside this package (the pipeline driver
// in package target) that needs to seed a persistent parameter scope
// before any block has run — CopyIn's own DirOut case and Recirculate's
// metadata masking both already go through the unexported form for the
// same reason, mid-run.
func (s *Stepper) InitUninitialized(st *state.ExecutionState, ref ir.Ref, typ ir.Type) {
	s.initUndefined(st, ref, typ)
}

// initUndefined binds ref (recursively, for a struct) to the target's
// uninitialized value for its type, and records — via propInUndefinedState
// — that this run touched at least one undefined location.
func (s *Stepper) initUndefined(st *state.ExecutionState, ref ir.Ref, typ ir.Type) {
	if t, ok := typ.(*ir.StructType); ok {
		for _, f := range t.Fields {
			s.initUndefined(st, ref.Field(f.Name), f.Type)
		}
		if t.HasValidBit {
			st.Environment = st.Environment.Set(validRef(ref), ir.NewBool(false))
		}
		return
	}
	st.Environment = st.Environment.Set(ref, s.uninitialized(typ))
	st.Properties.Set(propInUndefinedState, true)
}
