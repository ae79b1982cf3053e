package stepper

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/pplgen/testgen/extern"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// CheckRecirculate reports whether recirculate() was called along st since
// the last Recirculate/ResetRecirculateRequest. The pipeline orchestration
// deciding when to consult this (after the deparser, before deciding
// whether to re-run the parser) lives outside this package; stepper only
// owns the mechanics of actually performing the recirculation.
func (s *Stepper) CheckRecirculate(st *state.ExecutionState) bool {
	return extern.RecirculateRequested(st)
}

// Recirculate re-seeds PacketBuffer, clears EmitBuffer and the cursor, and
// resets every metadata field the last recirculate()/resubmit() call's
// field-list argument did not mark for preservation back to an
// uninitialized value — mirroring the v1model contract that only
// explicitly preserved metadata survives a recirculate pass, everything
// else starts over as if freshly parsed. A recirculate() restarts from
// the packet this pass just emitted; a resubmit() instead discards that
// output and restarts from the original input, the one point where the
// two calls' otherwise identical FSM paths diverge.
func (s *Stepper) Recirculate(st *state.ExecutionState, metaRef ir.Ref, metaType ir.Type) {
	if extern.ResubmitRequested(st) {
		st.PacketBuffer = st.InputPacket
	} else {
		st.PacketBuffer = st.EmitBuffer
	}
	st.Cursor = 0
	st.ResetEmitBuffer()
	s.maskMetadata(st, metaRef, metaType, extern.RecirculateFieldMask(st))
	extern.ResetRecirculateRequest(st)
}

// ResetCloneMetadata resets every ingress-local metadata field a pending
// clone() call's field-list argument did not mark for preservation,
// mirroring Recirculate's own masking but applied to a clone's freshly
// forked state rather than a pipeline pass that re-enters from the top.
func (s *Stepper) ResetCloneMetadata(st *state.ExecutionState, metaRef ir.Ref, metaType ir.Type) {
	s.maskMetadata(st, metaRef, metaType, extern.CloneFieldMask(st))
}

func (s *Stepper) maskMetadata(st *state.ExecutionState, ref ir.Ref, typ ir.Type, mask *bitset.BitSet) {
	t, ok := typ.(*ir.StructType)
	if !ok {
		return
	}
	for i, f := range t.Fields {
		if mask.Test(uint(i)) {
			continue
		}
		s.initUndefined(st, ref.Field(f.Name), f.Type)
	}
}
