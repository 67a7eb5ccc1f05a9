package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/cases"
	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"github.com/Harshitk-cp/dilemma/internal/service"
	"github.com/Harshitk-cp/dilemma/internal/store/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const playCase = `
id: disclosure
title: The Undisclosed Conflict
opening_narrative: An engineer is asked to evaluate a rival's bid.
decision_points:
  - question: Do you disclose the conflict?
    options:
      - {label: Disclose it, reference: true}
      - {label: Stay silent}
  - question: Do you finish the review?
    options:
      - {label: Recuse yourself}
      - {label: Finish with a note, reference: true}
`

func newPlayService(t *testing.T, lc domain.LLMClient) *service.ExplorationService {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "disclosure.yaml"), []byte(playCase), 0o644))

	provider, err := cases.NewProvider(dir, zap.NewNop())
	require.NoError(t, err)
	st, err := local.NewSessionStore(filepath.Join(dir, "play.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return service.NewExplorationService(st, provider, lc, time.Second, zap.NewNop())
}

func TestPlay(t *testing.T) {
	svc := newPlayService(t, nil)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "cli")
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("9\nfoo\n1\n1\n")
	require.NoError(t, play(ctx, svc, sess, in, &out))

	text := out.String()
	assert.Contains(t, text, "The Undisclosed Conflict")
	assert.Contains(t, text, "not a valid option")
	assert.Contains(t, text, "You chose to Disclose it. The situation continues to develop.")
	assert.Contains(t, text, "The board's resolution: Finish with a note")
	assert.Contains(t, text, "1 of 2 choices matched")
	assert.Contains(t, text, "Your choices aligned with the reference resolution 1 out of 2 times.")

	choices, err := svc.ListChoices(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, choices, 2)
}

func TestPlay_Resume(t *testing.T) {
	svc := newPlayService(t, nil)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "cli")
	require.NoError(t, err)
	require.Error(t, play(ctx, svc, sess, strings.NewReader("2\n"), io.Discard))

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.CurrentDecisionIndex)

	var out bytes.Buffer
	require.NoError(t, play(ctx, svc, sess, strings.NewReader("2\n"), &out))
	assert.Contains(t, out.String(), "[2/2]")
	assert.Contains(t, out.String(), "1 of 2 choices matched")
}

func TestPlay_MockProvider(t *testing.T) {
	lc, err := llm.NewClient(llm.ProviderMock, "", "")
	require.NoError(t, err)
	svc := newPlayService(t, lc)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "cli")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, play(ctx, svc, sess, strings.NewReader("1\n2\n"), &out))
	assert.Contains(t, out.String(), "The situation continues to unfold as others react to your decision.")

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	a, err := svc.ComposeAnalysis(ctx, sess)
	require.NoError(t, err)

	assert.True(t, a.Generated)
	assert.Equal(t, llm.MockAnalysisResponse, a.Narrative)
	assert.NotContains(t, a.Narrative, "fluents_initiated")
	assert.Equal(t, 100.0, a.MatchPercentage)
}
