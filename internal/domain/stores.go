package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists exploration sessions and their choices.
type SessionStore interface {
	// Sessions
	CreateSession(ctx context.Context, s *ExplorationSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*ExplorationSession, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error

	// CommitChoice inserts the choice and advances the session in one
	// transaction. Returns store.ErrConflict when a choice already exists for
	// the index or the session has moved past ExpectedIndex.
	CommitChoice(ctx context.Context, c ChoiceCommit) error
	GetChoice(ctx context.Context, sessionID uuid.UUID, decisionIndex int) (*Choice, error)
	ListChoices(ctx context.Context, sessionID uuid.UUID) ([]Choice, error)

	// SaveFinalAnalysis writes the analysis once. Returns store.ErrConflict if
	// one is already stored.
	SaveFinalAnalysis(ctx context.Context, sessionID uuid.UUID, a *Analysis) error
}

// DecisionPointProvider supplies the ordered decision points of a case.
type DecisionPointProvider interface {
	Load(ctx context.Context, caseID string) (*CaseData, error)
	List(ctx context.Context) ([]CaseSummary, error)
}

// LLMClient is the language-generation collaborator. It returns raw text for a
// bounded prompt or a transport error.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
