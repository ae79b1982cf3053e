package table_test

import (
	"testing"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
	"github.com/pplgen/testgen/table"
)

func newTestState() *state.ExecutionState {
	return state.New(ir.NewFreeVariable("pkt", ir.BitsType{Width: 64}))
}

func newDecls(t *testing.T) (*ir.DeclTable, ir.DeclID, ir.DeclID, ir.DeclID) {
	decls := ir.NewDeclTable()
	a1 := decls.Add(ir.Decl{Kind: ir.DeclAction, Name: "a1", Action: &ir.ActionDecl{Name: "a1"}})
	a2 := decls.Add(ir.Decl{Kind: ir.DeclAction, Name: "a2", Action: &ir.ActionDecl{Name: "a2"}})
	def := decls.Add(ir.Decl{Kind: ir.DeclAction, Name: "NoAction", Action: &ir.ActionDecl{Name: "NoAction"}})
	return decls, a1, a2, def
}

// Scenario 5: a table with one exact key and two actions produces three
// terminals — one hit per action, each with a fresh zombie for the key, and
// a miss executing the default action.
func TestStep_OneExactKeyTwoActions(t *testing.T) {
	decls, a1, a2, def := newDecls(t)
	key := ir.NewPathExpression("hdr.h.k", ir.BitsType{Width: 8})
	tbl := &ir.TableDecl{
		Name:          "t",
		Keys:          []ir.TableKey{{Field: key, Kind: ir.MatchExact}},
		Actions:       []ir.DeclID{a1, a2},
		DefaultAction: def,
	}

	st := newTestState()
	s := &table.Stepper{Decls: decls}
	branches, err := s.Step(st, tbl, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 3 {
		t.Fatalf("got %d branches, want 3 (hit a1, hit a2, miss)", len(branches))
	}

	var hits, misses int
	seenZombies := map[string]bool{}
	for _, b := range branches {
		hit, _ := b.Next.Properties.Get("table.t.hit")
		if hit == true {
			hits++
			bin, ok := b.Guard.(*ir.BinaryExpr)
			if !ok || bin.Op != ir.EQ {
				t.Fatalf("hit guard = %v, want a top-level equality", b.Guard)
			}
			z, ok := bin.RHS.(*ir.FreeVariable)
			if !ok {
				t.Fatalf("hit guard rhs = %T, want a zombie FreeVariable", bin.RHS)
			}
			if seenZombies[z.Name] {
				t.Fatalf("zombie %q reused across hit branches", z.Name)
			}
			seenZombies[z.Name] = true
			continue
		}
		misses++
		if b.Guard == nil {
			t.Fatal("miss branch should carry the conjoined negation of every hit condition")
		}
	}
	if hits != 2 || misses != 1 {
		t.Fatalf("got %d hits and %d misses, want 2 and 1", hits, misses)
	}
}

// A table whose only key is tainted must default without ever forking into
// a hit branch, since no solver query over a tainted condition is useful.
func TestStep_TaintedKeyDefaults(t *testing.T) {
	decls, a1, _, def := newDecls(t)
	key := ir.NewTaintExpression(ir.BitsType{Width: 8})
	tbl := &ir.TableDecl{
		Name:          "t",
		Keys:          []ir.TableKey{{Field: key, Kind: ir.MatchExact}},
		Actions:       []ir.DeclID{a1},
		DefaultAction: def,
	}

	st := newTestState()
	s := &table.Stepper{Decls: decls}
	branches, err := s.Step(st, tbl, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 1 {
		t.Fatalf("got %d branches, want exactly 1 (default only)", len(branches))
	}
	if branches[0].Guard != nil {
		t.Fatalf("defaulting-on-taint branch should carry no guard, got %v", branches[0].Guard)
	}
	hit, _ := branches[0].Next.Properties.Get("table.t.hit")
	if hit == true {
		t.Fatal("a tainted-key table should never report a hit")
	}
}

// Constant entries are matched in declaration order, which is their
// implicit priority: the second entry's guard must exclude the first's.
func TestStep_ConstEntriesPriorityOrder(t *testing.T) {
	decls, a1, a2, def := newDecls(t)
	key := ir.NewPathExpression("hdr.h.k", ir.BitsType{Width: 8})
	tbl := &ir.TableDecl{
		Name: "t",
		Keys: []ir.TableKey{{Field: key, Kind: ir.MatchExact}},
		ConstEntries: []ir.ConstEntry{
			{Values: []ir.Expr{ir.NewConstant(1, 8)}, Action: a1},
			{Values: []ir.Expr{ir.NewConstant(1, 8)}, Action: a2},
		},
		DefaultAction: def,
	}

	st := newTestState()
	s := &table.Stepper{Decls: decls}
	branches, err := s.Step(st, tbl, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(branches) != 3 {
		t.Fatalf("got %d branches, want 3 (entry 0, entry 1, miss)", len(branches))
	}
	// Entry 1 matches the same literal as entry 0, so its guard must be
	// unsatisfiable on its own: entry 0's priority shadows it entirely.
	second := branches[1].Guard
	if _, ok := second.(*ir.UnaryExpr); !ok {
		if and, ok := second.(*ir.BinaryExpr); !ok || and.Op != ir.LAND {
			t.Fatalf("entry 1 guard = %v, want a conjunction with entry 0's negation", second)
		}
	}
}
