// Package local is the embedded SQLite backend for exploration sessions,
// used by the CLI and for single-node runs without PostgreSQL.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/store"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS exploration_sessions (
	id                      TEXT PRIMARY KEY,
	case_id                 TEXT NOT NULL,
	user_id                 TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL CHECK (status IN ('in_progress', 'completed')),
	current_decision_index  INTEGER NOT NULL CHECK (current_decision_index >= 0),
	active_fluents          TEXT NOT NULL,
	terminated_fluents      TEXT NOT NULL,
	case_snapshot           TEXT NOT NULL,
	final_analysis          TEXT,
	started_at              TEXT NOT NULL,
	last_activity_at        TEXT NOT NULL,
	completed_at            TEXT
);

CREATE TABLE IF NOT EXISTS exploration_choices (
	id                      TEXT PRIMARY KEY,
	session_id              TEXT NOT NULL REFERENCES exploration_sessions(id) ON DELETE CASCADE,
	decision_point_index    INTEGER NOT NULL CHECK (decision_point_index >= 0),
	decision_point_id       TEXT NOT NULL,
	chosen_option_index     INTEGER NOT NULL,
	chosen_option_label     TEXT NOT NULL,
	reference_option_index  INTEGER,
	reference_option_label  TEXT,
	matches_reference       INTEGER,
	consequence_narrative   TEXT NOT NULL,
	narrative_generated     INTEGER NOT NULL,
	fluents_initiated       TEXT NOT NULL,
	fluents_terminated      TEXT NOT NULL,
	elapsed_seconds         INTEGER,
	created_at              TEXT NOT NULL,
	UNIQUE (session_id, decision_point_index)
);
`

// SessionStore persists sessions and choices in a SQLite file.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore opens the database at path and applies the schema.
func NewSessionStore(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SessionStore{db: db, now: time.Now}, nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.ExplorationSession) error {
	snapshotJSON, err := json.Marshal(sess.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal case_snapshot: %w", err)
	}
	active, terminated, err := marshalSets(sess.ActiveFluents, sess.TerminatedFluents)
	if err != nil {
		return err
	}

	id := uuid.New()
	now := s.now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exploration_sessions (
			id, case_id, user_id, status, current_decision_index,
			active_fluents, terminated_fluents, case_snapshot,
			started_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), sess.CaseID, sess.UserID, string(sess.Status), sess.CurrentDecisionIndex,
		active, terminated, string(snapshotJSON),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	sess.ID = id
	sess.StartedAt = now
	sess.LastActivityAt = now
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.ExplorationSession, error) {
	var (
		sess                         domain.ExplorationSession
		rawID, status                string
		active, terminated, snapshot string
		analysis, completedAt        sql.NullString
		startedAt, lastActivityAt    string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, case_id, user_id, status, current_decision_index,
			active_fluents, terminated_fluents, case_snapshot, final_analysis,
			started_at, last_activity_at, completed_at
		FROM exploration_sessions WHERE id = ?`,
		id.String(),
	).Scan(
		&rawID, &sess.CaseID, &sess.UserID, &status, &sess.CurrentDecisionIndex,
		&active, &terminated, &snapshot, &analysis,
		&startedAt, &lastActivityAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if sess.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	sess.Status = domain.SessionStatus(status)
	if err := json.Unmarshal([]byte(active), &sess.ActiveFluents); err != nil {
		return nil, fmt.Errorf("unmarshal active_fluents: %w", err)
	}
	if err := json.Unmarshal([]byte(terminated), &sess.TerminatedFluents); err != nil {
		return nil, fmt.Errorf("unmarshal terminated_fluents: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshot), &sess.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal case_snapshot: %w", err)
	}
	if analysis.Valid {
		sess.FinalAnalysis = &domain.Analysis{}
		if err := json.Unmarshal([]byte(analysis.String), sess.FinalAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal final_analysis: %w", err)
		}
	}
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if sess.LastActivityAt, err = parseTime(lastActivityAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		sess.CompletedAt = &t
	}

	return &sess, nil
}

func (s *SessionStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exploration_sessions SET status = 'completed', completed_at = ?, last_activity_at = ?
		WHERE id = ? AND status = 'in_progress'`,
		formatTime(at), formatTime(at), id.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM exploration_sessions WHERE id = ?`, id.String(),
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

func (s *SessionStore) CommitChoice(ctx context.Context, c domain.ChoiceCommit) error {
	sess, ch := c.Session, c.Choice

	initiated, terminated, err := marshalSets(ch.Delta.Initiated, ch.Delta.Terminated)
	if err != nil {
		return err
	}
	active, ended, err := marshalSets(sess.ActiveFluents, sess.TerminatedFluents)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit choice: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New()
	createdAt := s.now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exploration_choices (
			id, session_id, decision_point_index, decision_point_id,
			chosen_option_index, chosen_option_label,
			reference_option_index, reference_option_label, matches_reference,
			consequence_narrative, narrative_generated,
			fluents_initiated, fluents_terminated, elapsed_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), ch.SessionID.String(), ch.DecisionPointIndex, ch.DecisionPointID,
		ch.ChosenOptionIndex, ch.ChosenOptionLabel,
		ch.ReferenceOptionIndex, ch.ReferenceOptionLabel, ch.MatchesReference,
		ch.Narrative, ch.NarrativeGenerated,
		initiated, terminated, ch.ElapsedSeconds, formatTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert choice: %w", err)
	}

	var completedAt any
	if sess.CompletedAt != nil {
		completedAt = formatTime(*sess.CompletedAt)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE exploration_sessions SET
			current_decision_index = ?, active_fluents = ?, terminated_fluents = ?,
			status = ?, completed_at = ?, last_activity_at = ?
		WHERE id = ? AND current_decision_index = ? AND status = 'in_progress'`,
		sess.CurrentDecisionIndex, active, ended,
		string(sess.Status), completedAt, formatTime(sess.LastActivityAt),
		sess.ID.String(), c.ExpectedIndex,
	)
	if err != nil {
		return fmt.Errorf("advance session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit choice: %w", err)
	}

	ch.ID = id
	ch.CreatedAt = createdAt
	return nil
}

func (s *SessionStore) GetChoice(ctx context.Context, sessionID uuid.UUID, decisionIndex int) (*domain.Choice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+choiceColumns+` FROM exploration_choices
		WHERE session_id = ? AND decision_point_index = ?`,
		sessionID.String(), decisionIndex,
	)
	c, err := scanChoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *SessionStore) ListChoices(ctx context.Context, sessionID uuid.UUID) ([]domain.Choice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+choiceColumns+` FROM exploration_choices
		WHERE session_id = ? ORDER BY decision_point_index`,
		sessionID.String(),
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

func (s *SessionStore) SaveFinalAnalysis(ctx context.Context, sessionID uuid.UUID, a *domain.Analysis) error {
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal final_analysis: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE exploration_sessions SET final_analysis = ?, last_activity_at = ?
		WHERE id = ? AND status = 'completed' AND final_analysis IS NULL`,
		string(analysisJSON), formatTime(s.now().UTC()), sessionID.String(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrConflict
	}
	return nil
}

const choiceColumns = `id, session_id, decision_point_index, decision_point_id,
	chosen_option_index, chosen_option_label,
	reference_option_index, reference_option_label, matches_reference,
	consequence_narrative, narrative_generated,
	fluents_initiated, fluents_terminated, elapsed_seconds, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChoice(row rowScanner) (*domain.Choice, error) {
	var (
		c                     domain.Choice
		rawID, rawSessionID   string
		refIndex, elapsed     sql.NullInt64
		refLabel              sql.NullString
		matches               sql.NullBool
		initiated, terminated string
		createdAt             string
	)

	err := row.Scan(
		&rawID, &rawSessionID, &c.DecisionPointIndex, &c.DecisionPointID,
		&c.ChosenOptionIndex, &c.ChosenOptionLabel,
		&refIndex, &refLabel, &matches,
		&c.Narrative, &c.NarrativeGenerated,
		&initiated, &terminated, &elapsed, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse choice id: %w", err)
	}
	if c.SessionID, err = uuid.Parse(rawSessionID); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	if refIndex.Valid {
		v := int(refIndex.Int64)
		c.ReferenceOptionIndex = &v
	}
	if refLabel.Valid {
		v := refLabel.String
		c.ReferenceOptionLabel = &v
	}
	if matches.Valid {
		v := matches.Bool
		c.MatchesReference = &v
	}
	if elapsed.Valid {
		v := int(elapsed.Int64)
		c.ElapsedSeconds = &v
	}
	if err := json.Unmarshal([]byte(initiated), &c.Delta.Initiated); err != nil {
		return nil, fmt.Errorf("unmarshal fluents_initiated: %w", err)
	}
	if err := json.Unmarshal([]byte(terminated), &c.Delta.Terminated); err != nil {
		return nil, fmt.Errorf("unmarshal fluents_terminated: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &c, nil
}

func marshalSets(a, b domain.FluentSet) (string, string, error) {
	aJSON, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("marshal fluents: %w", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return "", "", fmt.Errorf("marshal fluents: %w", err)
	}
	return string(aJSON), string(bJSON), nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
