package extern_test

import (
	"testing"

	"github.com/pplgen/testgen/extern"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

func newTestState() *state.ExecutionState {
	return state.New(ir.NewFreeVariable("pkt", ir.BitsType{Width: 64}))
}

func TestRegistry_ParentFallback(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)

	if _, ok := bmv2.Lookup(extern.Key{Receiver: "*", Method: "random"}); !ok {
		t.Fatal("expected bmv2 registry to fall back to core for random()")
	}
	if _, ok := bmv2.Lookup(extern.Key{Receiver: "*", Method: "mark_to_drop"}); !ok {
		t.Fatal("expected bmv2 registry to have its own mark_to_drop")
	}
}

func TestRegisterReadWrite_MuxChain(t *testing.T) {
	rv := extern.NewRegisterValue("r", 4, ir.NewConstant(0, 8))
	idx := ir.NewFreeVariable("i", ir.BitsType{Width: 8})
	extern.RegisterWrite(rv, ir.NewConstant(2, 8), ir.NewConstant(42, 8))

	got := extern.RegisterRead(rv, idx)
	if _, ok := got.(*ir.MuxExpr); !ok {
		t.Fatalf("expected a Mux chain, got %T", got)
	}
}

func TestMarkToDrop_SetsProperty(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()

	if _, err := extern.Dispatch(bmv2, st, extern.Key{Receiver: "*", Method: "mark_to_drop"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !st.Properties.GetBool("bmv2.drop") {
		t.Fatal("expected drop property to be set")
	}
}

func TestRecirculate_EnforcesBound(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "recirculate"}

	if _, err := extern.Dispatch(bmv2, st, key, nil, []ir.Expr{ir.NewConstant(0, 8)}); err != nil {
		t.Fatal(err)
	}
	if _, err := extern.Dispatch(bmv2, st, key, nil, []ir.Expr{ir.NewConstant(0, 8)}); err == nil {
		t.Fatal("expected second recirculate to exceed the bound")
	}
}

func TestRandom_LoEqualsHi_ReturnsConcreteValue(t *testing.T) {
	core := extern.NewCoreRegistry()
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "random"}

	got, err := extern.Dispatch(core, st, key, nil, []ir.Expr{ir.NewConstant(7, 8), ir.NewConstant(7, 8)})
	if err != nil {
		t.Fatal(err)
	}
	c, ok := got.(*ir.Constant)
	if !ok || c.Value != 7 {
		t.Fatalf("got %v, want constant 7", got)
	}
}

func TestRandom_LoLessThanHi_ReturnsTaint(t *testing.T) {
	core := extern.NewCoreRegistry()
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "random"}

	got, err := extern.Dispatch(core, st, key, nil, []ir.Expr{ir.NewConstant(0, 8), ir.NewConstant(255, 8)})
	if err != nil {
		t.Fatal(err)
	}
	if !ir.IsTainted(got) {
		t.Fatalf("got %v, want a tainted value", got)
	}
}

func TestRandom_LoGreaterThanHi_IsAnError(t *testing.T) {
	core := extern.NewCoreRegistry()
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "random"}

	if _, err := extern.Dispatch(core, st, key, nil, []ir.Expr{ir.NewConstant(9, 8), ir.NewConstant(1, 8)}); err == nil {
		t.Fatal("expected lo > hi to be rejected")
	}
}

func TestBMv2Registry_PreservingFieldListAliases(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)

	for _, method := range []string{
		"clone_preserving_field_list",
		"resubmit_preserving_field_list",
		"recirculate_preserving_field_list",
		"verify_checksum_with_payload",
		"update_checksum_with_payload",
	} {
		if _, ok := bmv2.Lookup(extern.Key{Receiver: "*", Method: method}); !ok {
			t.Fatalf("expected bmv2 registry to register %s", method)
		}
	}
}

func TestResubmit_SharesRecirculateBoundAndResetsPacketOnOriginalInput(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()

	if _, err := extern.Dispatch(bmv2, st, extern.Key{Receiver: "*", Method: "resubmit"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !extern.RecirculateRequested(st) {
		t.Fatal("expected resubmit to set a pending recirculation request")
	}
	if !extern.ResubmitRequested(st) {
		t.Fatal("expected resubmit to mark itself distinct from a plain recirculate")
	}

	key := extern.Key{Receiver: "*", Method: "recirculate"}
	if _, err := extern.Dispatch(bmv2, st, key, nil, []ir.Expr{ir.NewConstant(0, 8)}); err == nil {
		t.Fatal("expected a second recirc-path call to exceed the shared bound")
	}
}

func TestClone_I2EDoesNotConsumeRecirculateBound(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()
	cloneKey := extern.Key{Receiver: "*", Method: "clone"}
	args := []ir.Expr{ir.NewTypeNameExpression("I2E", ir.BitsType{Width: 8}), ir.NewConstant(5, 32)}

	if _, err := extern.Dispatch(bmv2, st, cloneKey, nil, args); err != nil {
		t.Fatal(err)
	}
	if !extern.CloneRequested(st) {
		t.Fatal("expected clone() to set a pending clone request")
	}
	if extern.CloneInstanceType(st) != "INGRESS_CLONE" {
		t.Fatalf("instance type = %q, want INGRESS_CLONE", extern.CloneInstanceType(st))
	}

	recircKey := extern.Key{Receiver: "*", Method: "recirculate"}
	if _, err := extern.Dispatch(bmv2, st, recircKey, nil, []ir.Expr{ir.NewConstant(0, 8)}); err != nil {
		t.Fatalf("clone(I2E) should not have touched the shared recirculate bound: %v", err)
	}
}

func TestClone_E2ESharesRecirculateBound(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()
	cloneKey := extern.Key{Receiver: "*", Method: "clone"}
	args := []ir.Expr{ir.NewTypeNameExpression("E2E", ir.BitsType{Width: 8}), ir.NewConstant(5, 32)}

	if _, err := extern.Dispatch(bmv2, st, cloneKey, nil, args); err != nil {
		t.Fatal(err)
	}
	if extern.CloneInstanceType(st) != "EGRESS_CLONE" {
		t.Fatalf("instance type = %q, want EGRESS_CLONE", extern.CloneInstanceType(st))
	}

	recircKey := extern.Key{Receiver: "*", Method: "recirculate"}
	if _, err := extern.Dispatch(bmv2, st, recircKey, nil, []ir.Expr{ir.NewConstant(0, 8)}); err == nil {
		t.Fatal("expected clone(E2E) to have already consumed the shared recirculate bound")
	}
}

func TestVerifyChecksum_InstallsConcolicVariableAndRecordsMismatch(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "verify_checksum"}
	args := []ir.Expr{
		ir.NewBool(true),
		ir.NewFreeVariable("data", ir.BitsType{Width: 32}),
		ir.NewFreeVariable("csum", ir.BitsType{Width: 16}),
		ir.NewTypeNameExpression("csum16", ir.BitsType{Width: 8}),
	}

	if _, err := extern.Dispatch(bmv2, st, key, nil, args); err != nil {
		t.Fatal(err)
	}
	mismatch := extern.ChecksumMismatch(st)
	if mismatch == nil {
		t.Fatal("expected verify_checksum to record a mismatch condition")
	}
	if _, ok := mismatch.(*ir.BinaryExpr); !ok {
		t.Fatalf("mismatch condition = %T, want a BinaryExpr", mismatch)
	}
}

func TestUpdateChecksum_RecordsChecksumTestObject(t *testing.T) {
	core := extern.NewCoreRegistry()
	bmv2 := extern.NewBMv2Registry(core)
	st := newTestState()
	key := extern.Key{Receiver: "*", Method: "update_checksum"}
	args := []ir.Expr{
		ir.NewBool(true),
		ir.NewFreeVariable("data", ir.BitsType{Width: 32}),
		ir.NewFreeVariable("csum", ir.BitsType{Width: 16}),
		ir.NewTypeNameExpression("csum16", ir.BitsType{Width: 8}),
	}

	if _, err := extern.Dispatch(bmv2, st, key, nil, args); err != nil {
		t.Fatal(err)
	}
	found := false
	for k, obj := range st.TestObjects.All() {
		if k.Category == "checksum" {
			found = true
			if _, ok := obj.(*extern.ChecksumValue); !ok {
				t.Fatalf("test object %v = %T, want *extern.ChecksumValue", k, obj)
			}
		}
	}
	if !found {
		t.Fatal("expected update_checksum to record a checksum test object")
	}
}

func TestDispatch_UnknownExtern(t *testing.T) {
	core := extern.NewCoreRegistry()
	st := newTestState()
	_, err := extern.Dispatch(core, st, extern.Key{Receiver: "*", Method: "nope"}, nil, nil)
	if _, ok := err.(*extern.ErrUnknownExtern); !ok {
		t.Fatalf("got %v, want ErrUnknownExtern", err)
	}
}
