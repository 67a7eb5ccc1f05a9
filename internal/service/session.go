package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/cases"
	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExplorationService owns the session lifecycle: start, navigate, submit,
// and analyse once complete.
type ExplorationService struct {
	sessionStore domain.SessionStore
	provider     domain.DecisionPointProvider
	recorder     *ChoiceRecorder
	composer     *AnalysisComposer
	logger       *zap.Logger
	now          func() time.Time
}

func NewExplorationService(
	ss domain.SessionStore,
	dp domain.DecisionPointProvider,
	lc domain.LLMClient,
	generationTimeout time.Duration,
	logger *zap.Logger,
) *ExplorationService {
	return &ExplorationService{
		sessionStore: ss,
		provider:     dp,
		recorder:     NewChoiceRecorder(ss, NewConsequenceGenerator(lc, generationTimeout, logger), logger),
		composer:     NewAnalysisComposer(ss, lc, generationTimeout, logger),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a new session on caseID, pinning the case's decision points to it.
func (s *ExplorationService) Start(ctx context.Context, caseID, userID string) (*domain.ExplorationSession, error) {
	c, err := s.provider.Load(ctx, caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("load case: %w", err)
	}
	if len(c.DecisionPoints) == 0 {
		return nil, ErrNotEligible
	}

	now := s.now()
	sess := &domain.ExplorationSession{
		CaseID:               c.CaseID,
		UserID:               userID,
		Status:               domain.SessionInProgress,
		CurrentDecisionIndex: 0,
		ActiveFluents:        c.InitialFluents,
		TerminatedFluents:    domain.NewFluentSet(),
		Snapshot: domain.CaseSnapshot{
			Title:            c.Title,
			OpeningNarrative: c.OpeningNarrative,
			TransitionRules:  c.TransitionRules,
			DecisionPoints:   c.DecisionPoints,
		},
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := s.sessionStore.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session started",
		zap.String("session_id", sess.ID.String()),
		zap.String("case_id", sess.CaseID),
		zap.Int("decisions", sess.TotalDecisions()),
	)
	return sess, nil
}

func (s *ExplorationService) GetSession(ctx context.Context, id uuid.UUID) (*domain.ExplorationSession, error) {
	sess, err := s.sessionStore.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// CurrentDecision returns the decision awaiting an answer, or nil when none is
// left. A session found with no decision left but still in progress is marked
// completed rather than reported as an error.
func (s *ExplorationService) CurrentDecision(ctx context.Context, sess *domain.ExplorationSession) (*domain.DecisionPoint, error) {
	dp := CurrentDecision(sess.Snapshot.DecisionPoints, sess.CurrentDecisionIndex)
	if dp != nil || sess.IsCompleted() {
		return dp, nil
	}

	now := s.now()
	if err := s.sessionStore.MarkCompleted(ctx, sess.ID, now); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	sess.Status = domain.SessionCompleted
	sess.CompletedAt = &now
	sess.LastActivityAt = now

	s.logger.Warn("session had no decision left, marked completed",
		zap.String("session_id", sess.ID.String()),
		zap.Int("decision_index", sess.CurrentDecisionIndex),
	)
	return nil, nil
}

// SubmitChoice records an answer for the session's current decision, or
// replays the stored result when that decision was already answered.
func (s *ExplorationService) SubmitChoice(ctx context.Context, sess *domain.ExplorationSession, in SubmitChoiceInput) (*domain.ChoiceResult, error) {
	return s.recorder.Record(ctx, sess, in)
}

func (s *ExplorationService) ListChoices(ctx context.Context, sessionID uuid.UUID) ([]domain.Choice, error) {
	choices, err := s.sessionStore.ListChoices(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if choices == nil {
		choices = []domain.Choice{}
	}
	return choices, nil
}

// ComposeAnalysis returns the session's analysis, composing it on first call.
func (s *ExplorationService) ComposeAnalysis(ctx context.Context, sess *domain.ExplorationSession) (*domain.Analysis, error) {
	return s.composer.Compose(ctx, sess)
}

func (s *ExplorationService) ListCases(ctx context.Context) ([]domain.CaseSummary, error) {
	return s.provider.List(ctx)
}
