// Command ppltestgen drives symbolic execution of a PPL program to
// terminal states and reports the path constraints and test-object
// stores those terminal states carry. Subcommands are organized as a
// github.com/spf13/cobra command tree.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ppltestgen",
	Short: "Symbolic test generator for BMv2 v1model PPL programs.",
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	rootCmd.AddCommand(generateCmd, inspectCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
