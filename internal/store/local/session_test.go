package local

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := NewSessionStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSession(t *testing.T, s *SessionStore, decisions int) *domain.ExplorationSession {
	t.Helper()
	snapshot := domain.CaseSnapshot{Title: "Case 1", OpeningNarrative: "An engineer discovers a defect."}
	for i := 0; i < decisions; i++ {
		snapshot.DecisionPoints = append(snapshot.DecisionPoints, domain.DecisionPoint{
			ID:       uuid.NewString(),
			Question: "What now?",
			Options:  []domain.Option{{Label: "A", IsReference: true}, {Label: "B"}},
		})
	}
	sess := &domain.ExplorationSession{
		CaseID:        "case-1",
		UserID:        "user-1",
		Status:        domain.SessionInProgress,
		ActiveFluents: domain.NewFluentSet("defect_known"),
		Snapshot:      snapshot,
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func commitFor(sess *domain.ExplorationSession, index int, total int) domain.ChoiceCommit {
	next := *sess
	next.CurrentDecisionIndex = index + 1
	next.ActiveFluents = sess.ActiveFluents.Union(domain.NewFluentSet("step_done"))
	next.LastActivityAt = time.Now().UTC()
	if next.CurrentDecisionIndex == total {
		now := time.Now().UTC()
		next.Status = domain.SessionCompleted
		next.CompletedAt = &now
	}
	matches := true
	ref := 0
	refLabel := "A"
	elapsed := 12
	return domain.ChoiceCommit{
		Session: &next,
		Choice: &domain.Choice{
			SessionID:            sess.ID,
			DecisionPointIndex:   index,
			DecisionPointID:      "dp",
			ChosenOptionIndex:    0,
			ChosenOptionLabel:    "A",
			ReferenceOptionIndex: &ref,
			ReferenceOptionLabel: &refLabel,
			MatchesReference:     &matches,
			Narrative:            "You chose A.",
			Delta:                domain.FluentDelta{Initiated: domain.NewFluentSet("step_done")},
			ElapsedSeconds:       &elapsed,
		},
		ExpectedIndex: index,
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	s := tempStore(t)
	sess := newSession(t, s, 2)

	require.NotEqual(t, uuid.Nil, sess.ID)

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "case-1", got.CaseID)
	assert.Equal(t, domain.SessionInProgress, got.Status)
	assert.Equal(t, 0, got.CurrentDecisionIndex)
	assert.True(t, got.ActiveFluents.Equal(domain.NewFluentSet("defect_known")))
	assert.Len(t, got.Snapshot.DecisionPoints, 2)
	assert.True(t, got.Snapshot.DecisionPoints[0].Options[0].IsReference)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.FinalAnalysis)
}

func TestSessionStore_GetSession_NotFound(t *testing.T) {
	s := tempStore(t)
	_, err := s.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionStore_CommitChoice(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 1)

	commit := commitFor(sess, 0, 1)
	require.NoError(t, s.CommitChoice(ctx, commit))
	assert.NotEqual(t, uuid.Nil, commit.Choice.ID)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentDecisionIndex)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.ActiveFluents.Contains("step_done"))

	choice, err := s.GetChoice(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "You chose A.", choice.Narrative)
	require.NotNil(t, choice.MatchesReference)
	assert.True(t, *choice.MatchesReference)
	require.NotNil(t, choice.ElapsedSeconds)
	assert.Equal(t, 12, *choice.ElapsedSeconds)
	assert.True(t, choice.Delta.Initiated.Contains("step_done"))
}

func TestSessionStore_CommitChoice_DuplicateIndex(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 3)

	require.NoError(t, s.CommitChoice(ctx, commitFor(sess, 0, 3)))

	err := s.CommitChoice(ctx, commitFor(sess, 0, 3))
	assert.ErrorIs(t, err, store.ErrConflict)

	choices, err := s.ListChoices(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, choices, 1)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentDecisionIndex)
}

func TestSessionStore_CommitChoice_StaleIndexRollsBack(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 3)

	// Session is at index 0; a commit for index 1 expecting index 1 must not apply.
	err := s.CommitChoice(ctx, commitFor(sess, 1, 3))
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.GetChoice(ctx, sess.ID, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionStore_CommitChoice_Concurrent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 2)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.CommitChoice(ctx, commitFor(sess, 0, 2))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentDecisionIndex)
}

func TestSessionStore_ListChoicesOrdered(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 3)

	for i := 0; i < 3; i++ {
		commit := commitFor(sess, i, 3)
		require.NoError(t, s.CommitChoice(ctx, commit))
		sess = commit.Session
	}

	choices, err := s.ListChoices(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, choices, 3)
	for i, c := range choices {
		assert.Equal(t, i, c.DecisionPointIndex)
	}
}

func TestSessionStore_MarkCompleted(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 1)

	require.NoError(t, s.MarkCompleted(ctx, sess.ID, time.Now()))
	require.NoError(t, s.MarkCompleted(ctx, sess.ID, time.Now()))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	assert.Equal(t, 0, got.CurrentDecisionIndex)

	assert.ErrorIs(t, s.MarkCompleted(ctx, uuid.New(), time.Now()), store.ErrNotFound)
}

func TestSessionStore_SaveFinalAnalysisOnce(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	sess := newSession(t, s, 1)

	analysis := &domain.Analysis{MatchCount: 1, TotalChoices: 1, MatchPercentage: 100, Narrative: "first"}

	// Not completed yet.
	assert.ErrorIs(t, s.SaveFinalAnalysis(ctx, sess.ID, analysis), store.ErrConflict)

	require.NoError(t, s.CommitChoice(ctx, commitFor(sess, 0, 1)))
	require.NoError(t, s.SaveFinalAnalysis(ctx, sess.ID, analysis))

	second := &domain.Analysis{Narrative: "second"}
	assert.ErrorIs(t, s.SaveFinalAnalysis(ctx, sess.ID, second), store.ErrConflict)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FinalAnalysis)
	assert.Equal(t, "first", got.FinalAnalysis.Narrative)
	assert.Equal(t, 100.0, got.FinalAnalysis.MatchPercentage)
}
