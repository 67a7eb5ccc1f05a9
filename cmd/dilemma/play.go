package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	playCaseID    string
	playSessionID string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Walk through a case interactively",
	Long: `Starts a new session for --case, or resumes --session, and prompts for
one option per decision point. The final analysis is printed once every
decision has been made.`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVar(&playCaseID, "case", "", "case id to start")
	playCmd.Flags().StringVar(&playSessionID, "session", "", "session id to resume")
}

func runPlay(cmd *cobra.Command, args []string) error {
	if (playCaseID == "") == (playSessionID == "") {
		return errors.New("exactly one of --case or --session is required")
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	var sess *domain.ExplorationSession
	if playSessionID != "" {
		id, err := uuid.Parse(playSessionID)
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if sess, err = e.svc.GetSession(ctx, id); err != nil {
			return err
		}
	} else {
		if sess, err = e.svc.Start(ctx, playCaseID, "cli"); err != nil {
			return err
		}
	}

	return play(ctx, e.svc, sess, cmd.InOrStdin(), cmd.OutOrStdout())
}

// play drives one session to completion using lines read from in.
func play(ctx context.Context, svc *service.ExplorationService, sess *domain.ExplorationSession, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s\nsession %s\n\n%s\n", sess.Snapshot.Title, sess.ID, sess.Snapshot.OpeningNarrative)

	scanner := bufio.NewScanner(in)
	for {
		dp, err := svc.CurrentDecision(ctx, sess)
		if err != nil {
			return err
		}
		if dp == nil {
			break
		}

		index := sess.CurrentDecisionIndex
		fmt.Fprintf(out, "\n[%d/%d] %s\n", index+1, sess.TotalDecisions(), dp.Question)
		if dp.Context != "" {
			fmt.Fprintln(out, dp.Context)
		}
		for i, o := range dp.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o.Label)
		}

		started := time.Now()
		option, err := promptOption(scanner, out, len(dp.Options))
		if err != nil {
			return err
		}
		elapsed := int(time.Since(started).Seconds())

		res, err := svc.SubmitChoice(ctx, sess, service.SubmitChoiceInput{
			DecisionIndex:  &index,
			OptionIndex:    option,
			ElapsedSeconds: &elapsed,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\n%s\n", res.Narrative)
		if res.ReferenceLabel != nil {
			fmt.Fprintf(out, "The board's resolution: %s\n", *res.ReferenceLabel)
		}

		if sess, err = svc.GetSession(ctx, sess.ID); err != nil {
			return err
		}
	}

	a, err := svc.ComposeAnalysis(ctx, sess)
	if err != nil {
		return err
	}
	printAnalysis(out, a)
	return nil
}

func promptOption(scanner *bufio.Scanner, out io.Writer, n int) (int, error) {
	for {
		fmt.Fprintf(out, "choose 1-%d: ", n)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		v, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && v >= 1 && v <= n {
			return v - 1, nil
		}
		fmt.Fprintln(out, "not a valid option")
	}
}

func printAnalysis(out io.Writer, a *domain.Analysis) {
	fmt.Fprintf(out, "\nAnalysis: %d of %d choices matched the reference resolution (%.0f%%)\n",
		a.MatchCount, a.TotalChoices, a.MatchPercentage)
	for _, c := range a.Comparisons {
		var mark string
		switch {
		case c.MatchesReference == nil:
			mark = "-"
		case *c.MatchesReference:
			mark = "="
		default:
			mark = "x"
		}
		fmt.Fprintf(out, " %s %s\n     you: %s\n", mark, c.Question, c.ChosenLabel)
		if c.ReferenceLabel != nil && (c.MatchesReference == nil || !*c.MatchesReference) {
			fmt.Fprintf(out, "     board: %s\n", *c.ReferenceLabel)
		}
	}
	fmt.Fprintf(out, "\n%s\n", a.Narrative)
}
