package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/llm"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const analysisMaxTokens = 1200

// AnalysisComposer builds the comparative analysis for a completed session and
// stores it once. Concurrent requests for the same session share one
// composition.
type AnalysisComposer struct {
	sessionStore domain.SessionStore
	llmClient    domain.LLMClient
	timeout      time.Duration
	logger       *zap.Logger
	group        singleflight.Group
	now          func() time.Time
}

func NewAnalysisComposer(ss domain.SessionStore, lc domain.LLMClient, timeout time.Duration, logger *zap.Logger) *AnalysisComposer {
	return &AnalysisComposer{
		sessionStore: ss,
		llmClient:    lc,
		timeout:      timeout,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// FallbackAnalysisNarrative is the one-line summary used when generation fails.
func FallbackAnalysisNarrative(matchCount, total int) string {
	return fmt.Sprintf("Your choices aligned with the reference resolution %d out of %d times.", matchCount, total)
}

// Summarize scores choices against the reference options. Choices without a
// reference count toward the total but never as a match.
func Summarize(points []domain.DecisionPoint, choices []domain.Choice) domain.Analysis {
	a := domain.Analysis{
		TotalChoices: len(choices),
		Comparisons:  make([]domain.ChoiceComparison, 0, len(choices)),
	}
	for _, c := range choices {
		cmp := domain.ChoiceComparison{
			DecisionPointIndex: c.DecisionPointIndex,
			ChosenLabel:        c.ChosenOptionLabel,
			ReferenceLabel:     c.ReferenceOptionLabel,
			MatchesReference:   c.MatchesReference,
		}
		if dp := CurrentDecision(points, c.DecisionPointIndex); dp != nil {
			cmp.Question = dp.Question
		}
		if c.MatchesReference != nil && *c.MatchesReference {
			a.MatchCount++
		}
		a.Comparisons = append(a.Comparisons, cmp)
	}
	if a.TotalChoices > 0 {
		a.MatchPercentage = float64(a.MatchCount) / float64(a.TotalChoices) * 100
	}
	return a
}

// Compose returns the session's analysis, composing and storing it on first use.
func (c *AnalysisComposer) Compose(ctx context.Context, sess *domain.ExplorationSession) (*domain.Analysis, error) {
	if !sess.IsCompleted() {
		return nil, ErrIncompleteSession
	}
	if sess.FinalAnalysis != nil {
		return sess.FinalAnalysis, nil
	}

	v, err, _ := c.group.Do(sess.ID.String(), func() (any, error) {
		return c.compose(ctx, sess.ID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Analysis), nil
}

func (c *AnalysisComposer) compose(ctx context.Context, sessionID uuid.UUID) (*domain.Analysis, error) {
	sess, err := c.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !sess.IsCompleted() {
		return nil, ErrIncompleteSession
	}
	if sess.FinalAnalysis != nil {
		return sess.FinalAnalysis, nil
	}

	choices, err := c.sessionStore.ListChoices(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}

	analysis := Summarize(sess.Snapshot.DecisionPoints, choices)
	analysis.Narrative, analysis.Generated = c.narrate(ctx, sess, analysis)
	analysis.ComposedAt = c.now()

	if err := c.sessionStore.SaveFinalAnalysis(ctx, sessionID, &analysis); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("save analysis: %w", err)
		}
		// Another writer stored one first; theirs is the analysis.
		stored, err := c.sessionStore.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if stored.FinalAnalysis != nil {
			return stored.FinalAnalysis, nil
		}
		return nil, fmt.Errorf("save analysis: %w", store.ErrConflict)
	}

	c.logger.Info("analysis composed",
		zap.String("session_id", sessionID.String()),
		zap.Int("match_count", analysis.MatchCount),
		zap.Int("total_choices", analysis.TotalChoices),
		zap.Bool("generated", analysis.Generated),
	)
	return &analysis, nil
}

func (c *AnalysisComposer) narrate(ctx context.Context, sess *domain.ExplorationSession, a domain.Analysis) (string, bool) {
	fallback := FallbackAnalysisNarrative(a.MatchCount, a.TotalChoices)
	if c.llmClient == nil || a.TotalChoices == 0 {
		return fallback, false
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := llm.AnalysisPrompt(sess.Snapshot.Title, a.Comparisons, a.MatchCount, a.TotalChoices)
	raw, err := c.llmClient.Complete(ctx, prompt, analysisMaxTokens)
	if err == nil {
		var text string
		if text, err = llm.ParseAnalysis(raw); err == nil {
			return text, true
		}
	}

	c.logger.Warn("analysis generation failed, using fallback",
		zap.String("session_id", sess.ID.String()),
		zap.String("case_id", sess.CaseID),
		zap.Error(fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)),
	)
	return fallback, false
}
