package explore

import (
	"context"
	"math/rand"

	"github.com/pplgen/testgen/solver"
	"github.com/pplgen/testgen/state"
)

// Searcher represents a strategy for picking the next execution state to
// advance out of a frontier of not-yet-finished states, picked one at a
// time. DFSSearcher/BFSSearcher/RandomSearcher/MultiSearcher below are
// independent scheduling policies over the same frontier shape.
type Searcher interface {
	// SelectState returns the next state to advance, or nil if the
	// frontier is empty.
	SelectState() *state.ExecutionState

	// AddState adds a newly-forked state to the frontier.
	AddState(st *state.ExecutionState)
}

var _ Searcher = (*DFSSearcher)(nil)
var _ Searcher = (*BFSSearcher)(nil)
var _ Searcher = (*RandomSearcher)(nil)
var _ Searcher = (*MultiSearcher)(nil)

// DFSSearcher always advances the most recently added state first.
type DFSSearcher struct {
	states []*state.ExecutionState
}

func NewDFSSearcher() *DFSSearcher { return &DFSSearcher{} }

func (s *DFSSearcher) SelectState() *state.ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	st := s.states[len(s.states)-1]
	s.states = s.states[:len(s.states)-1]
	return st
}

func (s *DFSSearcher) AddState(st *state.ExecutionState) {
	s.states = append(s.states, st)
}

// BFSSearcher always advances the earliest added state first.
type BFSSearcher struct {
	states []*state.ExecutionState
}

func NewBFSSearcher() *BFSSearcher { return &BFSSearcher{} }

func (s *BFSSearcher) SelectState() *state.ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	st := s.states[0]
	s.states = s.states[1:]
	return st
}

func (s *BFSSearcher) AddState(st *state.ExecutionState) {
	s.states = append(s.states, st)
}

// RandomSearcher advances a uniformly-chosen state from the frontier.
type RandomSearcher struct {
	states []*state.ExecutionState
	rnd    *rand.Rand
}

func NewRandomSearcher(rnd *rand.Rand) *RandomSearcher {
	return &RandomSearcher{rnd: rnd}
}

func (s *RandomSearcher) SelectState() *state.ExecutionState {
	if len(s.states) == 0 {
		return nil
	}
	i := s.rnd.Intn(len(s.states))
	st := s.states[i]
	s.states = append(s.states[:i], s.states[i+1:]...)
	return st
}

func (s *RandomSearcher) AddState(st *state.ExecutionState) {
	s.states = append(s.states, st)
}

// MultiSearcher round-robins across a fixed set of searchers, feeding every
// new state to all of them, combining independent scheduling strategies
// into one.
type MultiSearcher struct {
	searchers []Searcher
	index     int
}

func NewMultiSearcher(searchers ...Searcher) *MultiSearcher {
	return &MultiSearcher{searchers: searchers}
}

func (s *MultiSearcher) SelectState() *state.ExecutionState {
	if len(s.searchers) == 0 {
		return nil
	}
	searcher := s.searchers[s.index]
	if s.index++; s.index >= len(s.searchers) {
		s.index = 0
	}
	return searcher.SelectState()
}

func (s *MultiSearcher) AddState(st *state.ExecutionState) {
	for _, searcher := range s.searchers {
		searcher.AddState(st)
	}
}

// SearcherStrategy is a Strategy built from a Searcher: it advances
// whichever state the searcher selects, running it straight through
// non-forking steps and only returning control to the searcher once the
// state forks, raises an exception, or terminates.
type SearcherStrategy struct {
	Searcher Searcher
}

func (s *SearcherStrategy) Run(ctx context.Context, initial *state.ExecutionState, step StepFunc, sv solver.Solver, cb TestCallback, opts Options) error {
	s.Searcher.AddState(initial)
	testsProduced := 0

	for {
		st := s.Searcher.SelectState()
		if st == nil {
			return nil
		}

		for {
			if st.IsTerminal() {
				done := cb(st.PathConstraint, st)
				testsProduced++
				if done || (opts.MaxTests > 0 && testsProduced >= opts.MaxTests) {
					return nil
				}
				break
			}

			branches, err := step(st)
			if err != nil {
				if opts.Permissive && permissiveUnimplemented(err) {
					break
				}
				return err
			}

			if len(branches) == 1 && branches[0].Guard == nil {
				st = branches[0].Next
				continue
			}

			for _, b := range branches {
				if err := checkFeasible(ctx, sv, b); err != nil {
					if err == ErrPathUnfeasible || err == ErrSolverTimeout {
						continue
					}
					return err
				}
				s.Searcher.AddState(b.Next)
			}
			break
		}
	}
}
