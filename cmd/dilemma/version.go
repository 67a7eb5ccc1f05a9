package main

import (
	"fmt"

	"github.com/Harshitk-cp/dilemma/internal/buildconfig"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dilemma %s (%s)\n", buildconfig.Version(), buildconfig.Commit())
	},
}
