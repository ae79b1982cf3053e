package state

import "errors"

// ErrBufferUnderflow is returned by SlicePacketBuffer/PeekPacketBuffer when
// fewer than the requested bits remain in PacketBuffer. PacketBuffer is
// always sized to the target's max-packet-bits at state creation, so this
// indicates the stepper asked for more bits than the architecture allows
// anywhere on this path — an implementation bug in the caller, not a
// PPL-program-level "packet too short" (that condition is represented by
// state.ExceptionPacketTooShort and decided by a solver-visible guard over
// the cursor and a packet-length free variable, computed in package
// stepper, long before the buffer could actually run dry).
var ErrBufferUnderflow = errors.New("state: packet buffer underflow")
