package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitChoiceInput is one user answer. DecisionIndex is optional; when set it
// pins the answer to that decision so a retry after a lost response replays
// instead of answering the next decision.
type SubmitChoiceInput struct {
	DecisionIndex  *int
	OptionIndex    int
	ElapsedSeconds *int
}

// ChoiceRecorder records at most one choice per decision index. The existence
// check is a fast path; the store's unique constraint and compare-and-set on
// the session index are what make concurrent submissions safe.
type ChoiceRecorder struct {
	sessionStore domain.SessionStore
	generator    *ConsequenceGenerator
	logger       *zap.Logger
	now          func() time.Time
}

func NewChoiceRecorder(ss domain.SessionStore, g *ConsequenceGenerator, logger *zap.Logger) *ChoiceRecorder {
	return &ChoiceRecorder{
		sessionStore: ss,
		generator:    g,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Record processes a choice against the session as the caller last saw it.
func (r *ChoiceRecorder) Record(ctx context.Context, sess *domain.ExplorationSession, in SubmitChoiceInput) (*domain.ChoiceResult, error) {
	index := sess.CurrentDecisionIndex
	if in.DecisionIndex != nil {
		index = *in.DecisionIndex
		switch {
		case index < 0:
			return nil, fmt.Errorf("%w: decision index %d", ErrInvalidChoice, index)
		case index < sess.CurrentDecisionIndex:
			return r.replay(ctx, sess.ID, index)
		case index > sess.CurrentDecisionIndex:
			return nil, fmt.Errorf("%w: got %d, session is at %d", ErrOutOfOrderChoice, index, sess.CurrentDecisionIndex)
		}
	}

	if sess.IsCompleted() {
		return nil, ErrSessionAlreadyComplete
	}
	dp := CurrentDecision(sess.Snapshot.DecisionPoints, index)
	if dp == nil {
		return nil, ErrSessionAlreadyComplete
	}
	if !dp.ValidOptionIndex(in.OptionIndex) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidChoice, in.OptionIndex, len(dp.Options))
	}

	if _, err := r.sessionStore.GetChoice(ctx, sess.ID, index); err == nil {
		return r.replay(ctx, sess.ID, index)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing choice: %w", err)
	}

	prior, err := r.sessionStore.ListChoices(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list prior choices: %w", err)
	}

	option := dp.Options[in.OptionIndex]
	consequence := r.generator.Generate(ctx, ConsequenceInput{
		CaseID:          sess.CaseID,
		DecisionIndex:   index,
		Decision:        *dp,
		Option:          option,
		ActiveFluents:   sess.ActiveFluents,
		TransitionRules: sess.Snapshot.TransitionRules,
		History:         BuildNarrativeContext(sess.Snapshot.OpeningNarrative, prior, sess.ActiveFluents),
	})

	active, terminated := ApplyFluents(sess.ActiveFluents, sess.TerminatedFluents, consequence.Delta)

	now := r.now()
	next := *sess
	next.CurrentDecisionIndex = index + 1
	next.ActiveFluents = active
	next.TerminatedFluents = terminated
	next.LastActivityAt = now
	if next.CurrentDecisionIndex == next.TotalDecisions() {
		next.Status = domain.SessionCompleted
		next.CompletedAt = &now
	}

	choice := &domain.Choice{
		SessionID:          sess.ID,
		DecisionPointIndex: index,
		DecisionPointID:    dp.ID,
		ChosenOptionIndex:  in.OptionIndex,
		ChosenOptionLabel:  option.Label,
		Narrative:          consequence.Narrative,
		NarrativeGenerated: consequence.Kind == domain.ConsequenceGenerated,
		Delta:              consequence.Delta,
		ElapsedSeconds:     in.ElapsedSeconds,
		CreatedAt:          now,
	}
	if ref, ok := dp.ReferenceIndex(); ok {
		label := dp.Options[ref].Label
		matches := in.OptionIndex == ref
		choice.ReferenceOptionIndex = &ref
		choice.ReferenceOptionLabel = &label
		choice.MatchesReference = &matches
	}

	err = r.sessionStore.CommitChoice(ctx, domain.ChoiceCommit{
		Session:       &next,
		Choice:        choice,
		ExpectedIndex: index,
	})
	if errors.Is(err, store.ErrConflict) {
		r.logger.Info("choice already recorded by a concurrent submission",
			zap.String("session_id", sess.ID.String()),
			zap.Int("decision_index", index),
		)
		return r.replay(ctx, sess.ID, index)
	}
	if err != nil {
		return nil, fmt.Errorf("commit choice: %w", err)
	}

	r.logger.Info("choice recorded",
		zap.String("session_id", sess.ID.String()),
		zap.String("case_id", sess.CaseID),
		zap.Int("decision_index", index),
		zap.Bool("generated", choice.NarrativeGenerated),
	)
	if next.IsCompleted() {
		r.logger.Info("session completed", zap.String("session_id", sess.ID.String()))
	}

	return &domain.ChoiceResult{
		Choice:         choice,
		Narrative:      choice.Narrative,
		ReferenceLabel: choice.ReferenceOptionLabel,
		Completed:      next.IsCompleted(),
		ActiveFluents:  next.ActiveFluents,
	}, nil
}

// replay returns the stored choice at index without touching any state.
func (r *ChoiceRecorder) replay(ctx context.Context, sessionID uuid.UUID, index int) (*domain.ChoiceResult, error) {
	choice, err := r.sessionStore.GetChoice(ctx, sessionID, index)
	if err != nil {
		return nil, fmt.Errorf("load recorded choice: %w", err)
	}
	current, err := r.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("reload session: %w", err)
	}

	r.logger.Debug("choice replayed",
		zap.String("session_id", sessionID.String()),
		zap.Int("decision_index", index),
	)

	return &domain.ChoiceResult{
		Choice:         choice,
		Narrative:      choice.Narrative,
		Replayed:       true,
		ReferenceLabel: choice.ReferenceOptionLabel,
		Completed:      current.IsCompleted(),
		ActiveFluents:  current.ActiveFluents,
	}, nil
}
