package explore

import (
	"context"
	"math/rand"

	"github.com/pplgen/testgen/solver"
	"github.com/pplgen/testgen/state"
)

// LinearEnumeration is the reference exploration strategy: eagerly walk
// the whole reachable branch tree up to MaxBound terminal branches
// (mapBranch), dropping infeasible ones as they're found, then repeatedly
// pick a feasible branch at random (ties broken by insertion order, since
// a Go slice index pick is already stable) until the pool is empty or
// MaxTests terminal states have been produced.
type LinearEnumeration struct{}

func (LinearEnumeration) Run(ctx context.Context, initial *state.ExecutionState, step StepFunc, sv solver.Solver, cb TestCallback, opts Options) error {
	maxBound := opts.MaxBound
	if maxBound <= 0 {
		maxBound = 1 << 20
	}

	le := &linearEnumerationRun{
		ctx:        ctx,
		step:       step,
		sv:         sv,
		maxBound:   maxBound,
		permissive: opts.Permissive,
		rnd:        rand.New(rand.NewSource(opts.Seed)),
	}

	initialBranches, err := step(initial)
	if err != nil {
		return err
	}
	for _, b := range initialBranches {
		if err := le.mapBranch(b); err != nil {
			return err
		}
	}

	testsProduced := 0
	for len(le.pool) > 0 {
		idx := le.rnd.Intn(len(le.pool))
		branch := le.pool[idx]
		le.pool = append(le.pool[:idx], le.pool[idx+1:]...)

		done := cb(branch.Next.PathConstraint, branch.Next)
		testsProduced++
		if done {
			return nil
		}
		if opts.MaxTests > 0 && testsProduced >= opts.MaxTests {
			return nil
		}
	}
	return nil
}

// linearEnumerationRun holds the per-invocation mutable state mapBranch
// accumulates into, kept off the (stateless, reusable) LinearEnumeration
// value itself.
type linearEnumerationRun struct {
	ctx        context.Context
	step       StepFunc
	sv         solver.Solver
	maxBound   int
	permissive bool
	rnd        *rand.Rand
	pool       []state.Branch
}

// mapBranch checks feasibility, and either files branch away as an
// explored terminal or steps it further and recurses over its successors.
func (le *linearEnumerationRun) mapBranch(branch state.Branch) error {
	if len(le.pool) >= le.maxBound {
		return nil
	}

	if err := checkFeasible(le.ctx, le.sv, branch); err != nil {
		// Both ErrPathUnfeasible and ErrSolverTimeout mean "do not explore
		// this branch further" (checkFeasible already logged the timeout
		// case); only a genuine solver error should abort the whole run.
		if err == ErrPathUnfeasible || err == ErrSolverTimeout {
			return nil
		}
		return err
	}

	if branch.Next.IsTerminal() {
		le.pool = append(le.pool, branch)
		return nil
	}

	successors, err := le.step(branch.Next)
	if err != nil {
		if le.permissive && permissiveUnimplemented(err) {
			return nil
		}
		return err
	}
	for _, successor := range successors {
		if err := le.mapBranch(successor); err != nil {
			return err
		}
	}
	return nil
}
