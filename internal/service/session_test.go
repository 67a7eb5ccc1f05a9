package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, lc domain.LLMClient, cs ...*domain.CaseData) (*ExplorationService, *mockSessionStore) {
	t.Helper()
	if len(cs) == 0 {
		cs = []*domain.CaseData{twoStepCase()}
	}
	ss := newMockSessionStore()
	return NewExplorationService(ss, newTestProvider(cs...), lc, time.Second, zap.NewNop()), ss
}

func intPtr(i int) *int { return &i }

var fluentSetComparer = cmp.Comparer(func(a, b domain.FluentSet) bool { return a.Equal(b) })

func TestStart(t *testing.T) {
	svc, ss := newTestService(t, llm.NewMockClient())

	sess, err := svc.Start(context.Background(), "disclosure", "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, domain.SessionInProgress, sess.Status)
	assert.Equal(t, 0, sess.CurrentDecisionIndex)
	assert.Equal(t, []string{"bid_pending", "conflict_hidden"}, sess.ActiveFluents.Items())
	assert.True(t, sess.TerminatedFluents.IsEmpty())
	assert.Equal(t, 2, sess.TotalDecisions())
	assert.Nil(t, sess.CompletedAt)

	stored, err := ss.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Undisclosed Conflict", stored.Snapshot.Title)
}

func TestStart_Errors(t *testing.T) {
	empty := &domain.CaseData{CaseID: "empty", Title: "Nothing to decide"}
	svc, _ := newTestService(t, llm.NewMockClient(), twoStepCase(), empty)

	_, err := svc.Start(context.Background(), "empty", "")
	assert.ErrorIs(t, err, ErrNotEligible)

	_, err = svc.Start(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestGetSession_NotFound(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient())
	_, err := svc.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmitChoice_FullWalkthrough(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Responses = []string{
		`{"narrative":"You disclose. The client is grateful.","fluents_initiated":["conflict_disclosed"],"fluents_terminated":["conflict_hidden"]}`,
		`{"narrative":"You finish and attach a note.","fluents_initiated":["review_done"],"fluents_terminated":["bid_pending"]}`,
	}
	svc, ss := newTestService(t, mock)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	dp, err := svc.CurrentDecision(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, dp)
	assert.Equal(t, "d1", dp.ID)

	res, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 0, ElapsedSeconds: intPtr(30)})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.False(t, res.Completed)
	assert.Equal(t, "You disclose. The client is grateful.", res.Narrative)
	require.NotNil(t, res.ReferenceLabel)
	assert.Equal(t, "Disclose it", *res.ReferenceLabel)
	require.NotNil(t, res.Choice.MatchesReference)
	assert.True(t, *res.Choice.MatchesReference)
	assert.True(t, res.Choice.NarrativeGenerated)
	assert.Equal(t, []string{"bid_pending", "conflict_disclosed"}, res.ActiveFluents.Items())

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.CurrentDecisionIndex)
	assert.Equal(t, []string{"conflict_hidden"}, sess.TerminatedFluents.Items())
	assert.Equal(t, domain.SessionInProgress, sess.Status)

	res, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 2})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	require.NotNil(t, res.Choice.MatchesReference)
	assert.False(t, *res.Choice.MatchesReference)

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, sess.Status)
	assert.Equal(t, 2, sess.CurrentDecisionIndex)
	require.NotNil(t, sess.CompletedAt)
	assert.Equal(t, ss.choiceCount(sess.ID), sess.CurrentDecisionIndex)

	dp, err = svc.CurrentDecision(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, dp)

	_, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 0})
	assert.ErrorIs(t, err, ErrSessionAlreadyComplete)
}

func TestSubmitChoice_Idempotent(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = `{"narrative":"Done.","fluents_initiated":["x"],"fluents_terminated":["conflict_hidden"]}`
	svc, ss := newTestService(t, mock)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)
	stale := *sess

	first, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 1})
	require.NoError(t, err)
	afterFirst, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	// A retry built from the same pre-submission view of the session.
	second, err := svc.SubmitChoice(ctx, &stale, SubmitChoiceInput{OptionIndex: 1})
	require.NoError(t, err)
	afterSecond, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, 1, mock.Calls(), "replay must not call the generator")
	assert.Equal(t, 1, ss.choiceCount(sess.ID))

	if diff := cmp.Diff(first.Choice, second.Choice, fluentSetComparer); diff != "" {
		t.Errorf("choice differs on replay (-first +second):\n%s", diff)
	}
	assert.Equal(t, afterFirst.CurrentDecisionIndex, afterSecond.CurrentDecisionIndex)
	assert.True(t, afterFirst.ActiveFluents.Equal(afterSecond.ActiveFluents))
	assert.True(t, afterFirst.TerminatedFluents.Equal(afterSecond.TerminatedFluents))
	assert.True(t, first.ActiveFluents.Equal(second.ActiveFluents))
}

func TestSubmitChoice_ExplicitDecisionIndex(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	_, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(1), OptionIndex: 0})
	assert.ErrorIs(t, err, ErrOutOfOrderChoice)

	_, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(-1), OptionIndex: 0})
	assert.ErrorIs(t, err, ErrInvalidChoice)

	first, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(0), OptionIndex: 2})
	require.NoError(t, err)

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)

	// Index 0 is now in the past; a different option still replays the first answer.
	replay, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(0), OptionIndex: 0})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Choice.ID, replay.Choice.ID)
	assert.Equal(t, 2, replay.Choice.ChosenOptionIndex)

	_, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(1), OptionIndex: 1})
	require.NoError(t, err)
	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, sess.IsCompleted())

	// Replays still work on a completed session.
	replay, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{DecisionIndex: intPtr(1), OptionIndex: 1})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.True(t, replay.Completed)
}

func TestSubmitChoice_OutOfRange(t *testing.T) {
	twoOptions := &domain.CaseData{
		CaseID: "small",
		DecisionPoints: []domain.DecisionPoint{{
			ID:       "only",
			Question: "Which?",
			Options:  []domain.Option{{Label: "A", IsReference: true}, {Label: "B"}},
		}},
	}
	mock := llm.NewMockClient()
	svc, ss := newTestService(t, mock, twoOptions)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "small", "")
	require.NoError(t, err)

	for _, idx := range []int{7, 2, -1} {
		_, err = svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: idx})
		assert.ErrorIs(t, err, ErrInvalidChoice, "option %d", idx)
	}

	stored, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentDecisionIndex)
	assert.Equal(t, 0, ss.choiceCount(sess.ID))
	assert.Equal(t, 0, mock.Calls())
}

func TestSubmitChoice_NoReferenceOption(t *testing.T) {
	c := twoStepCase()
	c.DecisionPoints[0].Options[0].IsReference = false
	svc, _ := newTestService(t, llm.NewMockClient(), c)
	ctx := context.Background()

	sess, err := svc.Start(ctx, c.CaseID, "")
	require.NoError(t, err)

	res, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 0})
	require.NoError(t, err)
	assert.Nil(t, res.Choice.MatchesReference)
	assert.Nil(t, res.Choice.ReferenceOptionIndex)
	assert.Nil(t, res.ReferenceLabel)
}

func TestSubmitChoice_GenerationOutage(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Err = errors.New("503 service unavailable")
	svc, ss := newTestService(t, mock)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sess, err = svc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		res, err := svc.SubmitChoice(ctx, sess, SubmitChoiceInput{OptionIndex: 0})
		require.NoError(t, err)
		assert.False(t, res.Choice.NarrativeGenerated)
		assert.True(t, res.Choice.Delta.IsEmpty())
	}

	choices, err := svc.ListChoices(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, choices, 2)
	assert.Equal(t, "You chose to Disclose it. The situation continues to develop.", choices[0].Narrative)
	assert.Equal(t, "You chose to Recuse yourself. The situation continues to develop.", choices[1].Narrative)

	stored, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted())
	assert.Equal(t, []string{"bid_pending", "conflict_hidden"}, stored.ActiveFluents.Items())
}

func TestSubmitChoice_ConcurrentSameIndex(t *testing.T) {
	svc, ss := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	// Hold every submitter at the commit so they all pass the existence check.
	const n = 6
	var ready sync.WaitGroup
	ready.Add(n)
	release := make(chan struct{})
	ss.beforeCommit = func() {
		ready.Done()
		<-release
	}

	results := make([]*domain.ChoiceResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshot := *sess
			results[i], errs[i] = svc.SubmitChoice(ctx, &snapshot, SubmitChoiceInput{OptionIndex: i % 3})
		}(i)
	}
	ready.Wait()
	close(release)
	wg.Wait()

	fresh := 0
	var winner uuid.UUID
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].Replayed {
			fresh++
			winner = results[i].Choice.ID
		}
	}
	assert.Equal(t, 1, fresh)
	for _, r := range results {
		assert.Equal(t, winner, r.Choice.ID)
	}

	stored, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentDecisionIndex)
	assert.Equal(t, 1, ss.choiceCount(sess.ID))
	assert.Equal(t, 1, ss.commits)
}

func TestCurrentDecision_DefensiveCompletion(t *testing.T) {
	svc, ss := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	// Simulate an index advanced out of band.
	ss.mu.Lock()
	ss.sessions[sess.ID].CurrentDecisionIndex = 2
	ss.mu.Unlock()

	sess, err = svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionInProgress, sess.Status)

	dp, err := svc.CurrentDecision(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, dp)
	assert.Equal(t, domain.SessionCompleted, sess.Status)

	stored, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, stored.Status)
	assert.Equal(t, 2, stored.CurrentDecisionIndex)

	// Calling again is a no-op.
	dp, err = svc.CurrentDecision(ctx, sess)
	require.NoError(t, err)
	assert.Nil(t, dp)
}

func TestCurrentDecision_DoesNotMutate(t *testing.T) {
	svc, ss := newTestService(t, llm.NewMockClient())
	ctx := context.Background()

	sess, err := svc.Start(ctx, "disclosure", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		dp, err := svc.CurrentDecision(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, "d1", dp.ID)
	}
	stored, err := ss.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CurrentDecisionIndex)
	assert.Equal(t, domain.SessionInProgress, stored.Status)
}

func TestListCases(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient())
	list, err := svc.ListCases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.CaseSummary{{ID: "disclosure", Title: "The Undisclosed Conflict", DecisionCount: 2}}, list)
}

func TestListChoices_EmptyIsNotNil(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient())
	choices, err := svc.ListChoices(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, choices)
	assert.Empty(t, choices)
}
