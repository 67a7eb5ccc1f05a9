package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of an exploration session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

func ValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionInProgress, SessionCompleted:
		return true
	}
	return false
}

// Option is one of the fixed choices offered at a decision point.
// IsReference marks the option matching the board's actual resolution.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	IsReference bool   `json:"is_reference"`
}

// DecisionPoint is a discrete moment in the case where the user must choose.
type DecisionPoint struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Context  string   `json:"context,omitempty"`
	Options  []Option `json:"options"`
}

// ReferenceIndex returns the index of the first option flagged as the
// reference resolution, or false when none is flagged.
func (d DecisionPoint) ReferenceIndex() (int, bool) {
	for i, o := range d.Options {
		if o.IsReference {
			return i, true
		}
	}
	return -1, false
}

func (d DecisionPoint) ValidOptionIndex(i int) bool {
	return i >= 0 && i < len(d.Options)
}

// CaseData is what a decision point provider returns for one case.
type CaseData struct {
	CaseID           string          `json:"case_id"`
	Title            string          `json:"title"`
	OpeningNarrative string          `json:"opening_narrative"`
	TransitionRules  string          `json:"transition_rules,omitempty"`
	DecisionPoints   []DecisionPoint `json:"decision_points"`
	InitialFluents   FluentSet       `json:"initial_fluents"`
}

// CaseSummary is a catalog entry for a loadable case.
type CaseSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	DecisionCount int    `json:"decision_count"`
}

// CaseSnapshot is the copy of case data pinned to a session at start.
// It is never re-fetched for the lifetime of the session.
type CaseSnapshot struct {
	Title            string          `json:"title"`
	OpeningNarrative string          `json:"opening_narrative"`
	TransitionRules  string          `json:"transition_rules,omitempty"`
	DecisionPoints   []DecisionPoint `json:"decision_points"`
}

// ExplorationSession is one user's walk through the decision points of a case.
type ExplorationSession struct {
	ID                   uuid.UUID     `json:"id"`
	CaseID               string        `json:"case_id"`
	UserID               string        `json:"user_id,omitempty"`
	Status               SessionStatus `json:"status"`
	CurrentDecisionIndex int           `json:"current_decision_index"`
	ActiveFluents        FluentSet     `json:"active_fluents"`
	TerminatedFluents    FluentSet     `json:"terminated_fluents"`
	Snapshot             CaseSnapshot  `json:"-"`
	FinalAnalysis        *Analysis     `json:"final_analysis,omitempty"`

	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func (s *ExplorationSession) TotalDecisions() int {
	return len(s.Snapshot.DecisionPoints)
}

func (s *ExplorationSession) IsCompleted() bool {
	return s.Status == SessionCompleted
}

// Choice records the option picked at one decision point. At most one exists
// per (session, decision point index) and it is never modified after creation.
type Choice struct {
	ID                   uuid.UUID   `json:"id"`
	SessionID            uuid.UUID   `json:"session_id"`
	DecisionPointIndex   int         `json:"decision_point_index"`
	DecisionPointID      string      `json:"decision_point_id"`
	ChosenOptionIndex    int         `json:"chosen_option_index"`
	ChosenOptionLabel    string      `json:"chosen_option_label"`
	ReferenceOptionIndex *int        `json:"reference_option_index,omitempty"`
	ReferenceOptionLabel *string     `json:"reference_option_label,omitempty"`
	MatchesReference     *bool       `json:"matches_reference,omitempty"`
	Narrative            string      `json:"consequence_narrative"`
	NarrativeGenerated   bool        `json:"narrative_generated"`
	Delta                FluentDelta `json:"fluent_delta"`
	ElapsedSeconds       *int        `json:"elapsed_seconds,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// ChoiceCommit is the unit persisted atomically when a choice is recorded:
// the new choice row plus the session's advanced state. ExpectedIndex is the
// decision index the session must still be at for the commit to apply.
type ChoiceCommit struct {
	Session       *ExplorationSession
	Choice        *Choice
	ExpectedIndex int
}

// ChoiceResult is returned to callers after a submission.
type ChoiceResult struct {
	Choice         *Choice   `json:"choice"`
	Narrative      string    `json:"narrative"`
	Replayed       bool      `json:"replayed"`
	ReferenceLabel *string   `json:"reference_label,omitempty"`
	Completed      bool      `json:"completed"`
	ActiveFluents  FluentSet `json:"active_fluents"`
}

// ConsequenceKind tags how a consequence narrative was produced.
type ConsequenceKind string

const (
	ConsequenceGenerated ConsequenceKind = "generated"
	ConsequenceFallback  ConsequenceKind = "fallback"
)

// Consequence is the outcome of a chosen option. A fallback consequence always
// carries an empty delta.
type Consequence struct {
	Kind      ConsequenceKind `json:"kind"`
	Narrative string          `json:"narrative"`
	Delta     FluentDelta     `json:"delta"`
}

// ChoiceComparison lines up one recorded choice against the reference option.
type ChoiceComparison struct {
	DecisionPointIndex int     `json:"decision_point_index"`
	Question           string  `json:"question"`
	ChosenLabel        string  `json:"chosen_label"`
	ReferenceLabel     *string `json:"reference_label,omitempty"`
	MatchesReference   *bool   `json:"matches_reference,omitempty"`
}

// Analysis is the comparative result composed once a session completes.
type Analysis struct {
	MatchCount      int                `json:"match_count"`
	TotalChoices    int                `json:"total_choices"`
	MatchPercentage float64            `json:"match_percentage"`
	Narrative       string             `json:"narrative"`
	Generated       bool               `json:"generated"`
	Comparisons     []ChoiceComparison `json:"comparisons"`
	ComposedAt      time.Time          `json:"composed_at"`
}
