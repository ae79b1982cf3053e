package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pplgen/testgen/explore"
	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/state"
	"github.com/pplgen/testgen/target"
	"github.com/pplgen/testgen/z3"
)

var generateCmd = &cobra.Command{
	Use:   "generate <program>",
	Short: "Symbolically execute a program and report its terminal states.",
	Long: "generate loads the named program (see `ppltestgen generate --help` for\n" +
		"the registered names), drives it to every feasible terminal state via\n" +
		"the chosen exploration strategy, and prints a summary of each one's\n" +
		"path constraint and test-object store.",
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	fs := generateCmd.Flags()
	fs.Int("max-tests", 0, "stop after this many terminal states (0 = unbounded)")
	fs.Int("max-bound", 0, "cap on terminal states LinearEnumeration maps before sampling (0 = default)")
	fs.Bool("permissive", true, "treat an unimplemented feature as a prunable branch instead of a hard failure")
	fs.Int64("seed", 1, "seed for the pseudo-random choices the strategy makes")
	fs.String("backend", "linear", "exploration strategy: linear, dfs, bfs, random")
	fs.Uint("max-packet-bits", 1500*8, "upper bound on the symbolic input packet's width, in bits")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	programName := args[0]
	opts, err := generateOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	log := logrus.WithField("program", programName)

	decls, err := target.LoadProgram(programName)
	if err != nil {
		return err
	}

	info, err := target.NewBMv2Info(decls, opts.maxPacketBits, opts.Permissive)
	if err != nil {
		return fmt.Errorf("ppltestgen: %w", err)
	}
	stp := info.NewStepper(opts.Options)

	inputPacket := ir.NewFreeVariable("pkt", ir.BitsType{Width: opts.maxPacketBits})
	initial, err := target.BuildInitialState(info, stp, inputPacket)
	if err != nil {
		return fmt.Errorf("ppltestgen: %w", err)
	}

	sv := z3.NewSolver()
	defer sv.Close()

	strategy, err := newStrategy(opts.backend, opts.Options.Seed)
	if err != nil {
		return err
	}

	testsFound := 0
	cb := func(pathConstraint []ir.Expr, terminal *state.ExecutionState) bool {
		testsFound++
		printTerminal(cmd, testsFound, pathConstraint, terminal)
		return false
	}

	exploreOpts := explore.Options{
		MaxTests:   opts.Options.MaxTests,
		MaxBound:   opts.Options.MaxBound,
		Seed:       opts.Options.Seed,
		Permissive: opts.Options.Permissive,
	}
	log.WithFields(logrus.Fields{"backend": opts.backend, "seed": opts.Options.Seed}).Info("[begin]")
	if err := strategy.Run(context.Background(), initial, stp.Step, sv, cb, exploreOpts); err != nil {
		return fmt.Errorf("ppltestgen: %w", err)
	}
	log.WithField("tests", testsFound).Info("[end]")
	return nil
}

// generateOptions bundles the target.Options (copied field by field into
// the strategies' explore.Options in runGenerate) with the two flags (program loading's max-packet-bits, and the backend
// selector) that sit outside that struct.
type generateOptions struct {
	target.Options
	maxPacketBits uint
	backend       string
}

func generateOptionsFromFlags(cmd *cobra.Command) (generateOptions, error) {
	maxTests, err := cmd.Flags().GetInt("max-tests")
	if err != nil {
		return generateOptions{}, err
	}
	maxBound, err := cmd.Flags().GetInt("max-bound")
	if err != nil {
		return generateOptions{}, err
	}
	permissive, err := cmd.Flags().GetBool("permissive")
	if err != nil {
		return generateOptions{}, err
	}
	seed, err := cmd.Flags().GetInt64("seed")
	if err != nil {
		return generateOptions{}, err
	}
	backend, err := cmd.Flags().GetString("backend")
	if err != nil {
		return generateOptions{}, err
	}
	maxPacketBits, err := cmd.Flags().GetUint("max-packet-bits")
	if err != nil {
		return generateOptions{}, err
	}
	return generateOptions{
		Options: target.Options{
			MaxTests:   maxTests,
			MaxBound:   maxBound,
			Permissive: permissive,
			Seed:       seed,
		},
		maxPacketBits: maxPacketBits,
		backend:       backend,
	}, nil
}

// newStrategy maps the --backend flag onto an explore.Strategy: DFS, BFS,
// and random searcher-backed alternatives to the reference
// LinearEnumeration policy.
func newStrategy(backend string, seed int64) (explore.Strategy, error) {
	switch strings.ToLower(backend) {
	case "", "linear":
		return explore.LinearEnumeration{}, nil
	case "dfs":
		return &explore.SearcherStrategy{Searcher: explore.NewDFSSearcher()}, nil
	case "bfs":
		return &explore.SearcherStrategy{Searcher: explore.NewBFSSearcher()}, nil
	case "random":
		return &explore.SearcherStrategy{Searcher: explore.NewRandomSearcher(rand.New(rand.NewSource(seed)))}, nil
	default:
		return nil, fmt.Errorf("ppltestgen: unknown --backend %q (want linear, dfs, bfs, or random)", backend)
	}
}

// printTerminal renders one terminal state as a numbered header followed
// by the state's own Dump(), which already carries the constraints,
// trace, and test-object store. This is explicitly a demonstration
// rendering, not a serializer for any real target's test format — this
// core never emits one.
func printTerminal(cmd *cobra.Command, n int, _ []ir.Expr, terminal *state.ExecutionState) {
	fmt.Fprintf(cmd.OutOrStdout(), "=== test #%d ===\n%s\n", n, terminal.Dump())
}
