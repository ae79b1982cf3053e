package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pplgen/testgen/ir"
	"github.com/pplgen/testgen/target"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <program>",
	Short: "Dump a single execution state, stepping along its first branch.",
	Long: "inspect drives the named program's initial state forward, always\n" +
		"taking the first branch a fork offers, and dumps the state reached\n" +
		"after --steps steps (or at the first terminal state, whichever comes\n" +
		"first) — a debugging aid for one path, as opposed to `generate`'s full\n" +
		"exploration of every feasible one.",
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	fs := inspectCmd.Flags()
	fs.Int("steps", 1<<20, "stop after this many steps even if no terminal state was reached")
	fs.Bool("permissive", true, "treat an unimplemented feature as a prunable branch instead of a hard failure")
	fs.Uint("max-packet-bits", 1500*8, "upper bound on the symbolic input packet's width, in bits")
}

func runInspect(cmd *cobra.Command, args []string) error {
	programName := args[0]
	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	permissive, err := cmd.Flags().GetBool("permissive")
	if err != nil {
		return err
	}
	maxPacketBits, err := cmd.Flags().GetUint("max-packet-bits")
	if err != nil {
		return err
	}

	decls, err := target.LoadProgram(programName)
	if err != nil {
		return err
	}
	info, err := target.NewBMv2Info(decls, maxPacketBits, permissive)
	if err != nil {
		return fmt.Errorf("ppltestgen: %w", err)
	}
	stp := info.NewStepper(target.Options{Permissive: permissive})

	inputPacket := ir.NewFreeVariable("pkt", ir.BitsType{Width: maxPacketBits})
	st, err := target.BuildInitialState(info, stp, inputPacket)
	if err != nil {
		return fmt.Errorf("ppltestgen: %w", err)
	}

	taken := 0
	for taken < steps && !st.IsTerminal() {
		branches, err := stp.Step(st)
		if err != nil {
			return fmt.Errorf("ppltestgen: step %d: %w", taken, err)
		}
		if len(branches) == 0 {
			break
		}
		st = branches[0].Next
		taken++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stepped %d time(s), terminal=%v\n", taken, st.IsTerminal())
	fmt.Fprint(cmd.OutOrStdout(), st.Dump())
	return nil
}
