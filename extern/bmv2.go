package extern

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// Property keys bmv2-style externs coordinate through. These are not PPL
// program variables; they live in ExecutionState.Properties.
const (
	propDrop = "bmv2.drop"

	// propRecirculateCount is the per-state counter every recirc/resubmit/
	// clone(E2E) path shares and checks RecirculateBound against.
	propRecirculateCount = "bmv2.recirculate_count"
	// propRecirculateActive marks that a recirculate() or resubmit() call
	// along this pass is pending a check_recirculate hook at deparser
	// tail; stepper.CheckRecirculate reads this, not the mask below.
	propRecirculateActive = "bmv2.recirculate_active"
	// propRecirculateMask is the field-list preservation mask the pending
	// recirculate()/resubmit() call was given.
	propRecirculateMask = "bmv2.recirculate_index"
	// propRecirculateResetPkt distinguishes resubmit from recirculate at
	// the check_recirculate hook: resubmit discards whatever the pass
	// just deparsed and restarts from the original input, recirculate
	// restarts from the computed output.
	propRecirculateResetPkt = "bmv2.recirculate_reset_pkt"

	// propCloneActive marks a pending clone()/clone3() fork to be acted
	// on by the check_recirculate hook, the same deparser-tail chokepoint
	// recirculate/resubmit re-enter through.
	propCloneActive       = "bmv2.clone_active"
	propCloneSession      = "bmv2.clone_session"
	propCloneInstanceType = "bmv2.clone_instance_type"
	propCloneMask         = "bmv2.clone_index"

	propChecksumError = "bmv2.checksum_error"
)

// RecirculateBound is the maximum number of times a single path may
// recirculate. The core treats this as monotonic and non-decreasing across
// a run — resolving the "does recirculate_count ever reset" open question
// in favour of "no, it only ever counts up" — so that a bounded exploration
// strategy is guaranteed to terminate even on programs with an unconditional
// recirculate in a loop-free pipeline. clone(E2E) shares this same counter,
// since it re-enters the egress pipeline exactly like a recirculated pass
// does; clone(I2E) does not, since it forks rather than re-entering.
const RecirculateBound = 1

// NewBMv2Registry returns the target extern registry modeling the
// bmv2-style v1model architecture's externs, chained to core for
// random(). RegisterSize sizes newly created registers absent more
// specific information from a target.Info.
func NewBMv2Registry(core *Registry) *Registry {
	r := NewRegistry(core)

	registerHandlers(r, RegisterSize, func(t ir.Type) ir.Expr { return zeroOf(t) })

	r.Register(Key{Receiver: "*", Method: "mark_to_drop"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		st.Properties.Set(propDrop, true)
		return nil, nil
	})

	resubmitHandler := func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		if err := bumpRecirculateCount(st); err != nil {
			return nil, err
		}
		st.Properties.Set(propRecirculateActive, true)
		st.Properties.Set(propRecirculateResetPkt, true)
		st.Properties.Set(propRecirculateMask, fieldListMask(lastArg(args)))
		return nil, nil
	}
	r.Register(Key{Receiver: "*", Method: "resubmit"}, resubmitHandler)
	r.Register(Key{Receiver: "*", Method: "resubmit_preserving_field_list"}, resubmitHandler)

	cloneHandler := func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		instanceType := "I2E"
		if len(args) > 0 {
			if tn, ok := args[0].(*ir.TypeNameExpression); ok {
				instanceType = tn.Name
			}
		}
		tag := "INGRESS_CLONE"
		if instanceType == "E2E" {
			tag = "EGRESS_CLONE"
			// Only clone(E2E) re-enters the egress pipeline the way a
			// recirculated pass does, so only it is bound by
			// RecirculateBound; clone(I2E) forks instead and never
			// re-enters anything.
			if err := bumpRecirculateCount(st); err != nil {
				return nil, err
			}
		}
		st.Properties.Set(propCloneActive, true)
		st.Properties.Set(propCloneInstanceType, tag)
		if len(args) > 1 {
			st.Properties.Set(propCloneSession, args[1])
		}
		st.Properties.Set(propCloneMask, fieldListMask(lastArg(args[min(len(args), 2):])))
		return nil, nil
	}
	r.Register(Key{Receiver: "*", Method: "clone"}, cloneHandler)
	r.Register(Key{Receiver: "*", Method: "clone3"}, cloneHandler)
	r.Register(Key{Receiver: "*", Method: "clone_preserving_field_list"}, cloneHandler)

	recirculateHandler := func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		if err := bumpRecirculateCount(st); err != nil {
			return nil, err
		}
		st.Properties.Set(propRecirculateActive, true)
		st.Properties.Set(propRecirculateMask, fieldListMask(lastArg(args)))
		return nil, nil
	}
	r.Register(Key{Receiver: "*", Method: "recirculate"}, recirculateHandler)
	r.Register(Key{Receiver: "*", Method: "recirculate_preserving_field_list"}, recirculateHandler)

	r.Register(Key{Receiver: "*", Method: "hash"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		width := ir.TypeWidth(args[0].Type())
		return ir.NewConcolicVariable(fmt.Sprintf("hash_%d", len(st.Trace)), "hash", args, ir.BitsType{Width: width}), nil
	})

	r.Register(Key{Receiver: "Checksum16", Method: "get"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		return ir.NewConcolicVariable(fmt.Sprintf("checksum_%d", len(st.Trace)), "csum16", args, ir.BitsType{Width: 16}), nil
	})

	// verify_checksum(condition, data, checksum, algo) installs a
	// ConcolicVariable over (algo, data) the same way Checksum16.get does,
	// then records whether it disagrees with the supplied checksum as
	// propChecksumError — mirroring mark_to_drop's own choice to model a
	// target-metadata side effect as a Properties flag rather than a
	// direct write into a field the caller never named.
	verifyChecksumHandler := func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		if len(args) < 4 {
			return nil, fmt.Errorf("extern: verify_checksum expects (condition, data, checksum, algo), got %d args", len(args))
		}
		data, checksum, algo := args[1], args[2], args[3]
		computed := ir.NewConcolicVariable(fmt.Sprintf("checksum_%d", len(st.Trace)), "verify_checksum",
			[]ir.Expr{algo, data}, ir.BitsType{Width: ir.TypeWidth(checksum.Type())})
		st.Properties.Set(propChecksumError, ir.NewBinaryExpr(ir.NE, computed, checksum))
		return nil, nil
	}
	r.Register(Key{Receiver: "*", Method: "verify_checksum"}, verifyChecksumHandler)
	r.Register(Key{Receiver: "*", Method: "verify_checksum_with_payload"}, verifyChecksumHandler)

	// update_checksum(condition, data, checksum, algo) installs the same
	// ConcolicVariable, but checksum is inout rather than something a
	// mismatch is judged against; the handler has no addressable
	// reference to write it back through (unlike an assignment's LHS, a
	// void extern call's in/out argument never reaches the handler as
	// anything but its evaluated value), so the computed checksum is
	// recorded as a test object for the serializer to surface instead.
	updateChecksumHandler := func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		if len(args) < 4 {
			return nil, fmt.Errorf("extern: update_checksum expects (condition, data, checksum, algo), got %d args", len(args))
		}
		data, checksum, algo := args[1], args[2], args[3]
		computed := ir.NewConcolicVariable(fmt.Sprintf("checksum_%d", len(st.Trace)), "update_checksum",
			[]ir.Expr{algo, data}, ir.BitsType{Width: ir.TypeWidth(checksum.Type())})
		st.TestObjects.Set(state.TestObjectKey{Category: "checksum", Name: fmt.Sprintf("checksum_%d", len(st.Trace))},
			&ChecksumValue{Algorithm: algo, Data: data, Value: computed})
		return nil, nil
	}
	r.Register(Key{Receiver: "*", Method: "update_checksum"}, updateChecksumHandler)
	r.Register(Key{Receiver: "*", Method: "update_checksum_with_payload"}, updateChecksumHandler)

	r.Register(Key{Receiver: "*", Method: "digest"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		st.TestObjects.Set(state.TestObjectKey{Category: "digest", Name: fmt.Sprintf("digest_%d", len(st.Trace))}, &DigestValue{Fields: args})
		return nil, nil
	})

	r.Register(Key{Receiver: "Counter", Method: "count"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		return nil, nil
	})
	r.Register(Key{Receiver: "Meter", Method: "execute_meter"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		width := ir.TypeWidth(args[len(args)-1].Type())
		return ir.NewFreeVariable(fmt.Sprintf("meter_%d", len(st.Trace)), ir.BitsType{Width: width}), nil
	})

	return r
}

// bumpRecirculateCount enforces RecirculateBound against the shared
// per-state counter every recirculate/resubmit/clone(E2E) call draws
// from, incrementing it on success.
func bumpRecirculateCount(st *state.ExecutionState) error {
	count := st.Properties.GetInt(propRecirculateCount)
	if count >= RecirculateBound {
		return fmt.Errorf("extern: recirculate bound of %d exceeded", RecirculateBound)
	}
	st.Properties.Set(propRecirculateCount, count+1)
	return nil
}

// lastArg returns the last element of args, or nil if args is empty — the
// field-list argument to a _preserving_field_list variant is always
// trailing, and the bare variant simply has no such argument at all.
func lastArg(args []ir.Expr) ir.Expr {
	if len(args) == 0 {
		return nil
	}
	return args[len(args)-1]
}

// DigestValue records a digest() call's field list as a test object so the
// serializer can render it as a control-plane-observable message.
type DigestValue struct {
	Fields []ir.Expr
}

func (*DigestValue) TestObjectCategory() string { return "digest" }

// ChecksumValue records an update_checksum() call's inputs and the
// ConcolicVariable computed for its (inout) checksum argument, since the
// handler itself has no addressable reference to write the value back
// through.
type ChecksumValue struct {
	Algorithm ir.Expr
	Data      ir.Expr
	Value     ir.Expr
}

func (*ChecksumValue) TestObjectCategory() string { return "checksum" }

// fieldListMask builds the preservation bitset for a recirculate()-style
// field-list argument: each bit records whether the corresponding
// metadata field (by position in a StructExpression) survives the
// recirculation. Using a bitset.BitSet rather than a []bool mirrors the
// rest of the corpus's fixed-universe-membership idiom and keeps the mask
// cheap to copy into a forked state's Properties. A nil fieldList (the
// bare, non-preserving variant of any of these externs) preserves
// nothing.
func fieldListMask(fieldList ir.Expr) *bitset.BitSet {
	se, ok := fieldList.(*ir.StructExpression)
	if !ok {
		return bitset.New(0)
	}
	mask := bitset.New(uint(len(se.Fields)))
	for i, f := range se.Fields {
		if !ir.IsTainted(f) {
			mask.Set(uint(i))
		}
	}
	return mask
}

// DropRequested reports whether mark_to_drop has been called along st.
func DropRequested(st *state.ExecutionState) bool { return st.Properties.GetBool(propDrop) }

// RecirculateRequested reports whether a recirculate() or resubmit() call
// is pending a check_recirculate hook along st.
func RecirculateRequested(st *state.ExecutionState) bool {
	return st.Properties.GetBool(propRecirculateActive)
}

// ResubmitRequested reports whether the pending recirculation request was
// a resubmit (restart from the original input) rather than a recirculate
// (restart from the just-deparsed output).
func ResubmitRequested(st *state.ExecutionState) bool {
	return st.Properties.GetBool(propRecirculateResetPkt)
}

// RecirculateFieldMask returns the preservation mask the pending
// recirculate()/resubmit() call was given, or an empty mask if it was
// called with no field-list argument.
func RecirculateFieldMask(st *state.ExecutionState) *bitset.BitSet {
	if v, ok := st.Properties.Get(propRecirculateMask); ok {
		return v.(*bitset.BitSet)
	}
	return bitset.New(0)
}

// ResetRecirculateRequest clears every per-pass recirculate()/resubmit()
// request flag, called once package stepper's recirculation hook has
// acted on it — the cumulative RecirculateCount is left untouched, since
// RecirculateBound is checked against the run's total count, not the
// per-pass flags.
func ResetRecirculateRequest(st *state.ExecutionState) {
	st.Properties.Delete(propRecirculateActive)
	st.Properties.Delete(propRecirculateMask)
	st.Properties.Delete(propRecirculateResetPkt)
}

// CloneRequested reports whether a clone()/clone3() call is pending a
// check_recirculate hook along st.
func CloneRequested(st *state.ExecutionState) bool {
	return st.Properties.GetBool(propCloneActive)
}

// CloneInstanceType returns the instance-type tag ("INGRESS_CLONE" or
// "EGRESS_CLONE") the pending clone() call was given.
func CloneInstanceType(st *state.ExecutionState) string {
	if v, ok := st.Properties.Get(propCloneInstanceType); ok {
		return v.(string)
	}
	return ""
}

// CloneSession returns the session argument the pending clone() call was
// given, or nil if none.
func CloneSession(st *state.ExecutionState) ir.Expr {
	if v, ok := st.Properties.Get(propCloneSession); ok {
		return v.(ir.Expr)
	}
	return nil
}

// CloneFieldMask returns the preservation mask the pending clone() call
// was given, or an empty mask if it was called with no field-list
// argument.
func CloneFieldMask(st *state.ExecutionState) *bitset.BitSet {
	if v, ok := st.Properties.Get(propCloneMask); ok {
		return v.(*bitset.BitSet)
	}
	return bitset.New(0)
}

// ResetCloneRequest clears every clone() request tag, called on the
// branch that continues unchanged after a clone fork — the clone never
// happened along this branch, so nothing about it should linger.
func ResetCloneRequest(st *state.ExecutionState) {
	st.Properties.Delete(propCloneActive)
	st.Properties.Delete(propCloneSession)
	st.Properties.Delete(propCloneInstanceType)
	st.Properties.Delete(propCloneMask)
}

// MarkCloneFinalized clears only the pending-fork flag, called on the
// branch that is the clone itself — its instance-type, session, and mask
// tags stay in Properties for the test serializer to read back.
func MarkCloneFinalized(st *state.ExecutionState) {
	st.Properties.Delete(propCloneActive)
}

// ChecksumMismatch returns the mismatch condition verify_checksum's last
// call recorded, or nil if verify_checksum was never called along st.
func ChecksumMismatch(st *state.ExecutionState) ir.Expr {
	if v, ok := st.Properties.Get(propChecksumError); ok {
		return v.(ir.Expr)
	}
	return nil
}

// zeroOf returns the canonical zero value of t, used to seed a freshly
// created register's cells.
func zeroOf(t ir.Type) ir.Expr {
	switch t := t.(type) {
	case ir.BitsType:
		return ir.NewConstant(0, t.Width)
	case ir.BoolType:
		return ir.NewBool(false)
	default:
		return ir.NewConstant(0, ir.TypeWidth(t))
	}
}
