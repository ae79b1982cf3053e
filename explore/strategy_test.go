package explore_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/pplgen/testgen/explore"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/solver"
	"github.com/pplgen/testgen/state"
)

// alwaysSatSolver treats every query as satisfiable, so tests can exercise
// a Strategy's traversal logic without a real SMT backend.
type alwaysSatSolver struct{}

func (alwaysSatSolver) CheckSat(ctx context.Context, constraints []ir.Expr) (solver.Verdict, error) {
	return solver.SAT, nil
}
func (alwaysSatSolver) Model() (solver.Model, error) { return solver.Model{}, nil }
func (alwaysSatSolver) Close() error                 { return nil }

// forksOnce returns a StepFunc that forks every fresh state into two
// terminal children exactly once (tagged via a Properties flag so the
// children, once stepped again, come back with an empty continuation).
func forksOnce() explore.StepFunc {
	return func(st *state.ExecutionState) ([]state.Branch, error) {
		if st.Properties.GetBool("forked") {
			return nil, nil
		}
		left := st.Clone()
		left.Properties.Set("forked", true)
		left.Continuation = nil
		right := st.Clone()
		right.Properties.Set("forked", true)
		right.Continuation = nil

		v := ir.NewFreeVariable("x", ir.BitsType{Width: 8})
		guard := ir.NewBinaryExpr(ir.EQ, v, ir.NewConstant(0, 8))
		return []state.Branch{
			{Guard: guard, Next: left},
			{Guard: ir.NewUnaryExpr(ir.LNOT, guard), Next: right},
		}, nil
	}
}

func newRootState() *state.ExecutionState {
	root := state.New(ir.NewFreeVariable("pkt", ir.BitsType{Width: 8}))
	root.Continuation = []state.Command{&state.ReturnCommand{}}
	return root
}

func TestLinearEnumeration_VisitsBothBranches(t *testing.T) {
	root := newRootState()
	seen := 0
	strategy := explore.LinearEnumeration{}
	err := strategy.Run(context.Background(), root, forksOnce(), alwaysSatSolver{}, func(pc []ir.Expr, terminal *state.ExecutionState) bool {
		seen++
		return false
	}, explore.Options{Seed: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

func TestLinearEnumeration_StopsAtMaxTests(t *testing.T) {
	root := newRootState()
	seen := 0
	strategy := explore.LinearEnumeration{}
	err := strategy.Run(context.Background(), root, forksOnce(), alwaysSatSolver{}, func(pc []ir.Expr, terminal *state.ExecutionState) bool {
		seen++
		return false
	}, explore.Options{Seed: 1, MaxTests: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
}

func TestSearcherStrategy_DFSVisitsBothBranches(t *testing.T) {
	root := newRootState()
	seen := 0
	strategy := &explore.SearcherStrategy{Searcher: explore.NewDFSSearcher()}
	err := strategy.Run(context.Background(), root, forksOnce(), alwaysSatSolver{}, func(pc []ir.Expr, terminal *state.ExecutionState) bool {
		seen++
		return false
	}, explore.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

func TestSearcherStrategy_BFSVisitsBothBranches(t *testing.T) {
	root := newRootState()
	seen := 0
	strategy := &explore.SearcherStrategy{Searcher: explore.NewBFSSearcher()}
	err := strategy.Run(context.Background(), root, forksOnce(), alwaysSatSolver{}, func(pc []ir.Expr, terminal *state.ExecutionState) bool {
		seen++
		return false
	}, explore.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

func TestDFSSearcher_LIFOOrder(t *testing.T) {
	a := state.New(ir.NewConstant(0, 8))
	b := state.New(ir.NewConstant(0, 8))
	s := explore.NewDFSSearcher()
	s.AddState(a)
	s.AddState(b)
	if got := s.SelectState(); got != b {
		t.Fatalf("SelectState() = %p, want most recently added %p", got, b)
	}
	if got := s.SelectState(); got != a {
		t.Fatalf("SelectState() = %p, want %p", got, a)
	}
	if got := s.SelectState(); got != nil {
		t.Fatalf("SelectState() = %v, want nil on empty frontier", got)
	}
}

func TestBFSSearcher_FIFOOrder(t *testing.T) {
	a := state.New(ir.NewConstant(0, 8))
	b := state.New(ir.NewConstant(0, 8))
	s := explore.NewBFSSearcher()
	s.AddState(a)
	s.AddState(b)
	if got := s.SelectState(); got != a {
		t.Fatalf("SelectState() = %p, want earliest added %p", got, a)
	}
	if got := s.SelectState(); got != b {
		t.Fatalf("SelectState() = %p, want %p", got, b)
	}
}

func TestMultiSearcher_RoundRobinsAndBroadcasts(t *testing.T) {
	dfs := explore.NewDFSSearcher()
	bfs := explore.NewBFSSearcher()
	multi := explore.NewMultiSearcher(dfs, bfs)

	a := state.New(ir.NewConstant(0, 8))
	multi.AddState(a)

	if got := dfs.SelectState(); got != a {
		t.Fatalf("dfs did not receive the broadcast state")
	}
	if got := bfs.SelectState(); got != a {
		t.Fatalf("bfs did not receive the broadcast state")
	}

	// Round-robin: the first SelectState goes to dfs (most recent), the
	// second to bfs (earliest).
	b := state.New(ir.NewConstant(0, 8))
	multi.AddState(a)
	multi.AddState(b)
	if got := multi.SelectState(); got != b {
		t.Fatalf("first SelectState() = %p, want dfs's most recent %p", got, b)
	}
	if got := multi.SelectState(); got != a {
		t.Fatalf("second SelectState() = %p, want bfs's earliest %p", got, a)
	}
}

func TestRandomSearcher_DrainsFrontier(t *testing.T) {
	s := explore.NewRandomSearcher(rand.New(rand.NewSource(7)))
	for i := 0; i < 5; i++ {
		s.AddState(state.New(ir.NewConstant(0, 8)))
	}
	count := 0
	for s.SelectState() != nil {
		count++
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}
