package extern

import (
	"fmt"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
)

// RegisterValue is the test object recording a register instance's final
// contents: one symbolic cell per declared slot. Reads and writes never
// touch SMT array theory — a register's size is known statically at
// declaration time, so indexing it is just a chain of MuxExpr guards over
// the (symbolic) index, exactly the "Mux-style lookup by index" the
// register contract calls for.
type RegisterValue struct {
	Name  string
	Cells []ir.Expr
}

func (*RegisterValue) TestObjectCategory() string { return "register" }

// NewRegisterValue returns a RegisterValue with size cells initialized to
// init.
func NewRegisterValue(name string, size int, init ir.Expr) *RegisterValue {
	cells := make([]ir.Expr, size)
	for i := range cells {
		cells[i] = init
	}
	return &RegisterValue{Name: name, Cells: cells}
}

func registerKey(name string) state.TestObjectKey {
	return state.TestObjectKey{Category: "register", Name: name}
}

// registerOf returns the RegisterValue for name, creating and storing one
// sized to size with initial value init on first access.
func registerOf(st *state.ExecutionState, name string, size int, init ir.Expr) *RegisterValue {
	key := registerKey(name)
	if obj, ok := st.TestObjects.Get(key); ok {
		return obj.(*RegisterValue)
	}
	rv := NewRegisterValue(name, size, init)
	st.TestObjects.Set(key, rv)
	return rv
}

// RegisterRead returns a MuxExpr chain selecting Cells[index], defaulting
// to Cells[len-1] once index runs past every guarded case (index is always
// masked into range by the caller's declared width in well-typed PPL
// programs; this default just picks a deterministic fallback rather than
// leaving an unreachable hole).
func RegisterRead(rv *RegisterValue, index ir.Expr) ir.Expr {
	if len(rv.Cells) == 0 {
		panic(fmt.Sprintf("extern: register %q has no cells", rv.Name))
	}
	result := rv.Cells[len(rv.Cells)-1]
	for i := len(rv.Cells) - 2; i >= 0; i-- {
		guard := ir.NewBinaryExpr(ir.EQ, index, ir.NewConstant(uint64(i), ir.TypeWidth(index.Type())))
		result = ir.NewMuxExpr(guard, rv.Cells[i], result)
	}
	return result
}

// RegisterWrite updates every cell of rv whose index equals index to value,
// via the same Mux-chain technique: cell i becomes
// Mux(index == i, value, cell i).
func RegisterWrite(rv *RegisterValue, index, value ir.Expr) {
	for i := range rv.Cells {
		guard := ir.NewBinaryExpr(ir.EQ, index, ir.NewConstant(uint64(i), ir.TypeWidth(index.Type())))
		rv.Cells[i] = ir.NewMuxExpr(guard, value, rv.Cells[i])
	}
}

// RegisterSize is the default number of slots used when a register's
// declared size cannot be recovered at the call site; callers that know
// the declared size should prefer passing it explicitly through a richer
// binding (left as a target.Info concern, not this package's).
const RegisterSize = 16

// registerHandlers installs register.read / register.write on r. size and
// zero determine the shape of newly created RegisterValue instances; a
// richer target wires these per-instance from its own declarations instead
// of this shared default.
func registerHandlers(r *Registry, size int, zero func(ir.Type) ir.Expr) {
	r.Register(Key{Receiver: "Register", Method: "read"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		name := registerInstanceName(receiver)
		index := args[0]
		rv := registerOf(st, name, size, zero(index.Type()))
		return RegisterRead(rv, index), nil
	})
	r.Register(Key{Receiver: "Register", Method: "write"}, func(st *state.ExecutionState, receiver ir.Expr, args []ir.Expr) (ir.Expr, error) {
		name := registerInstanceName(receiver)
		index, value := args[0], args[1]
		rv := registerOf(st, name, size, zero(value.Type()))
		rv = &RegisterValue{Name: rv.Name, Cells: append([]ir.Expr(nil), rv.Cells...)}
		RegisterWrite(rv, index, value)
		st.TestObjects.Set(registerKey(name), rv)
		return nil, nil
	})
}

// registerInstanceName recovers the declared instance name of a register
// extern object from its receiver expression, which is always a
// PathExpression pointing at the declared instance.
func registerInstanceName(receiver ir.Expr) string {
	if p, ok := receiver.(*ir.PathExpression); ok {
		return string(p.Ref)
	}
	return fmt.Sprintf("%v", receiver)
}
