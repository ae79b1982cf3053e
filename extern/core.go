package extern

import (
	"fmt"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// NewCoreRegistry returns the extern registry for externs defined by the
// PPL core library itself, independent of any target: currently just
// random(), which every target's v1-style architecture re-exposes
// unchanged. Target-specific registries (bmv2-style mark_to_drop,
// registers, checksums, clone/resubmit/recirculate) chain to this one as
// their parent.
func NewCoreRegistry() *Registry {
	r := NewRegistry(nil)
	r.Register(Key{Receiver: "*", Method: "random"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		lo, hi := args[0], args[1]
		loConst, loOK := lo.(*ir.Constant)
		hiConst, hiOK := hi.(*ir.Constant)
		if loOK && hiOK {
			if loConst.Value > hiConst.Value {
				return nil, fmt.Errorf("extern: random: lo %d exceeds hi %d", loConst.Value, hiConst.Value)
			}
			if loConst.Value == hiConst.Value {
				return hi, nil
			}
		}
		// The DUT's PRNG is not modeled: any value that could fall strictly
		// between lo and hi is observably undefined, so the result is
		// taint rather than a solver-satisfiable free variable.
		return ir.NewTaintExpression(hi.Type()), nil
	})
	return r
}

// Dispatch resolves key in r and invokes its handler, returning
// ErrUnknownExtern if no handler exists anywhere in r's parent chain.
func Dispatch(r *Registry, st *state.ExecutionState, key Key, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
	fn, ok := r.Lookup(key)
	if !ok {
		return nil, &ErrUnknownExtern{Key: key}
	}
	return fn(st, receiver, args)
}
