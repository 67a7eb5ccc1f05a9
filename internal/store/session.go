package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession inserts a new exploration session with its case snapshot.
func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.ExplorationSession) error {
	snapshotJSON, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal case_snapshot: %w", err)
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO exploration_sessions (
			case_id, user_id, status, current_decision_index,
			active_fluents, terminated_fluents, case_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, started_at, last_activity_at`,
		sess.CaseID, sess.UserID, sess.Status, sess.CurrentDecisionIndex,
		sess.ActiveFluents.Items(), sess.TerminatedFluents.Items(), snapshotJSON,
	).Scan(&sess.ID, &sess.StartedAt, &sess.LastActivityAt)
}

// GetSession retrieves a session by ID.
func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.ExplorationSession, error) {
	sess := &domain.ExplorationSession{}
	var active, terminated []string
	var snapshotJSON, analysisJSON []byte

	err := s.db.QueryRow(ctx,
		`SELECT id, case_id, user_id, status, current_decision_index,
			active_fluents, terminated_fluents, case_snapshot, final_analysis,
			started_at, last_activity_at, completed_at
		FROM exploration_sessions
		WHERE id = $1`,
		id,
	).Scan(
		&sess.ID, &sess.CaseID, &sess.UserID, &sess.Status, &sess.CurrentDecisionIndex,
		&active, &terminated, &snapshotJSON, &analysisJSON,
		&sess.StartedAt, &sess.LastActivityAt, &sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sess.ActiveFluents = domain.NewFluentSet(active...)
	sess.TerminatedFluents = domain.NewFluentSet(terminated...)

	if err := json.Unmarshal(snapshotJSON, &sess.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal case_snapshot: %w", err)
	}
	if len(analysisJSON) > 0 {
		sess.FinalAnalysis = &domain.Analysis{}
		if err := json.Unmarshal(analysisJSON, sess.FinalAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal final_analysis: %w", err)
		}
	}

	return sess, nil
}

// MarkCompleted moves an in-progress session to completed without touching
// its index or fluents. Already-completed sessions are left as they are.
func (s *SessionStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE exploration_sessions SET
			status = 'completed', completed_at = $2, last_activity_at = $2
		WHERE id = $1 AND status = 'in_progress'`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM exploration_sessions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// CommitChoice inserts the choice and advances the session atomically. The
// session update only applies while the stored index still equals
// c.ExpectedIndex, so two racing submissions cannot both advance it.
func (s *SessionStore) CommitChoice(ctx context.Context, c domain.ChoiceCommit) error {
	sess, ch := c.Session, c.Choice

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit choice: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO exploration_choices (
			session_id, decision_point_index, decision_point_id,
			chosen_option_index, chosen_option_label,
			reference_option_index, reference_option_label, matches_reference,
			consequence_narrative, narrative_generated,
			fluents_initiated, fluents_terminated, elapsed_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		ch.SessionID, ch.DecisionPointIndex, ch.DecisionPointID,
		ch.ChosenOptionIndex, ch.ChosenOptionLabel,
		ch.ReferenceOptionIndex, ch.ReferenceOptionLabel, ch.MatchesReference,
		ch.Narrative, ch.NarrativeGenerated,
		ch.Delta.Initiated.Items(), ch.Delta.Terminated.Items(), ch.ElapsedSeconds,
	).Scan(&ch.ID, &ch.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert choice: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE exploration_sessions SET
			current_decision_index = $1, active_fluents = $2, terminated_fluents = $3,
			status = $4, completed_at = $5, last_activity_at = $6
		WHERE id = $7 AND current_decision_index = $8 AND status = 'in_progress'`,
		sess.CurrentDecisionIndex, sess.ActiveFluents.Items(), sess.TerminatedFluents.Items(),
		sess.Status, sess.CompletedAt, sess.LastActivityAt,
		sess.ID, c.ExpectedIndex,
	)
	if err != nil {
		return fmt.Errorf("advance session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit choice: %w", err)
	}
	return nil
}

// GetChoice returns the choice recorded at decisionIndex.
func (s *SessionStore) GetChoice(ctx context.Context, sessionID uuid.UUID, decisionIndex int) (*domain.Choice, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+choiceColumns+`
		FROM exploration_choices
		WHERE session_id = $1 AND decision_point_index = $2`,
		sessionID, decisionIndex,
	)
	c, err := scanChoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListChoices returns the session's choices ordered by decision index.
func (s *SessionStore) ListChoices(ctx context.Context, sessionID uuid.UUID) ([]domain.Choice, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+choiceColumns+`
		FROM exploration_choices
		WHERE session_id = $1
		ORDER BY decision_point_index`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var choices []domain.Choice
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, err
		}
		choices = append(choices, *c)
	}
	return choices, rows.Err()
}

// SaveFinalAnalysis stores the analysis unless one is already present.
func (s *SessionStore) SaveFinalAnalysis(ctx context.Context, sessionID uuid.UUID, a *domain.Analysis) error {
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal final_analysis: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE exploration_sessions SET final_analysis = $1, last_activity_at = NOW()
		WHERE id = $2 AND status = 'completed' AND final_analysis IS NULL`,
		analysisJSON, sessionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

const choiceColumns = `id, session_id, decision_point_index, decision_point_id,
	chosen_option_index, chosen_option_label,
	reference_option_index, reference_option_label, matches_reference,
	consequence_narrative, narrative_generated,
	fluents_initiated, fluents_terminated, elapsed_seconds, created_at`

func scanChoice(row pgx.Row) (*domain.Choice, error) {
	c := &domain.Choice{}
	var initiated, terminated []string
	err := row.Scan(
		&c.ID, &c.SessionID, &c.DecisionPointIndex, &c.DecisionPointID,
		&c.ChosenOptionIndex, &c.ChosenOptionLabel,
		&c.ReferenceOptionIndex, &c.ReferenceOptionLabel, &c.MatchesReference,
		&c.Narrative, &c.NarrativeGenerated,
		&initiated, &terminated, &c.ElapsedSeconds, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Delta = domain.FluentDelta{
		Initiated:  domain.NewFluentSet(initiated...),
		Terminated: domain.NewFluentSet(terminated...),
	}
	return c, nil
}
