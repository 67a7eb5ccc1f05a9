package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var analysisCmd = &cobra.Command{
	Use:   "analysis <session-id>",
	Short: "Print the analysis of a completed session",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalysis,
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session id: %w", err)
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	sess, err := e.svc.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}
	a, err := e.svc.ComposeAnalysis(cmd.Context(), sess)
	if err != nil {
		return err
	}
	printAnalysis(cmd.OutOrStdout(), a)
	return nil
}
