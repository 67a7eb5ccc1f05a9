package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/Harshitk-cp/dilemma/internal/cases"
	"github.com/spf13/cobra"
)

var validateOnly bool

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "List the loadable cases and report invalid case files",
	Args:  cobra.NoArgs,
	RunE:  runCases,
}

func init() {
	casesCmd.Flags().BoolVar(&validateOnly, "validate", false, "only report invalid files; exit non-zero if any")
}

func runCases(cmd *cobra.Command, args []string) error {
	loaded, errs := cases.LoadDir(resolvedCasesDir())
	if loaded == nil {
		return errs[0]
	}
	out := cmd.OutOrStdout()

	if !validateOnly {
		ids := make([]string, 0, len(loaded))
		for id := range loaded {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDECISIONS\tTITLE")
		for _, id := range ids {
			c := loaded[id]
			fmt.Fprintf(tw, "%s\t%d\t%s\n", c.CaseID, len(c.DecisionPoints), c.Title)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, err := range errs {
		fmt.Fprintln(cmd.ErrOrStderr(), "invalid:", err)
	}
	if validateOnly && len(errs) > 0 {
		return fmt.Errorf("%d invalid case file(s)", len(errs))
	}
	return nil
}
