package env_test

import (
	"testing"

	"github.com/pplgen/testgen/env"
	"github.com/pplgen/testgen/ir"
)

func TestEnvironment_SetGet(t *testing.T) {
	e := env.New()
	ref := ir.Ref("hdr.eth.dstAddr")
	e2 := e.Set(ref, ir.NewConstant(1, 48))

	if e.Exists(ref) {
		t.Fatal("receiver should be unmodified")
	}
	v, ok := e2.Get(ref)
	if !ok || !ir.Equal(v, ir.NewConstant(1, 48)) {
		t.Fatalf("got %v, %v", v, ok)
	}
}

func TestEnvironment_Fork(t *testing.T) {
	ref := ir.Ref("meta.port")
	e := env.New().Set(ref, ir.NewConstant(9, 9))
	child := e.Fork().Set(ref, ir.NewConstant(1, 9))

	v, _ := e.Get(ref)
	if !ir.Equal(v, ir.NewConstant(9, 9)) {
		t.Fatalf("parent mutated: got %v", v)
	}
	v, _ = child.Get(ref)
	if !ir.Equal(v, ir.NewConstant(1, 9)) {
		t.Fatalf("child not updated: got %v", v)
	}
}

func TestEnvironment_HasTaint(t *testing.T) {
	ref := ir.Ref("hdr.ipv4.ttl")
	e := env.New().Set(ref, ir.NewTaintExpression(ir.BitsType{Width: 8}))
	if !e.HasTaint(ref) {
		t.Fatal("expected taint")
	}
	if e.HasTaint("hdr.ipv4.version") {
		t.Fatal("unbound ref should not be tainted")
	}
}

func TestEnvironment_Refs(t *testing.T) {
	e := env.New().
		Set("hdr.eth.dstAddr", ir.NewConstant(0, 48)).
		Set("hdr.eth.srcAddr", ir.NewConstant(0, 48)).
		Set("hdr.ipv4.ttl", ir.NewConstant(64, 8))

	refs := e.Refs("hdr.eth")
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2: %v", len(refs), refs)
	}
}
