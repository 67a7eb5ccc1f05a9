package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/api/middleware"
	"github.com/Harshitk-cp/dilemma/internal/domain"
	"github.com/Harshitk-cp/dilemma/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionHandler struct {
	svc    *service.ExplorationService
	logger *zap.Logger
}

func NewSessionHandler(svc *service.ExplorationService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, logger: logger}
}

type sessionResponse struct {
	ID                   uuid.UUID        `json:"id"`
	CaseID               string           `json:"case_id"`
	Title                string           `json:"title"`
	OpeningNarrative     string           `json:"opening_narrative"`
	UserID               string           `json:"user_id,omitempty"`
	Status               string           `json:"status"`
	CurrentDecisionIndex int              `json:"current_decision_index"`
	TotalDecisions       int              `json:"total_decisions"`
	ActiveFluents        domain.FluentSet `json:"active_fluents"`
	TerminatedFluents    domain.FluentSet `json:"terminated_fluents"`
	HasAnalysis          bool             `json:"has_analysis"`
	StartedAt            time.Time        `json:"started_at"`
	LastActivityAt       time.Time        `json:"last_activity_at"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
}

func toSessionResponse(s *domain.ExplorationSession) sessionResponse {
	return sessionResponse{
		ID:                   s.ID,
		CaseID:               s.CaseID,
		Title:                s.Snapshot.Title,
		OpeningNarrative:     s.Snapshot.OpeningNarrative,
		UserID:               s.UserID,
		Status:               string(s.Status),
		CurrentDecisionIndex: s.CurrentDecisionIndex,
		TotalDecisions:       s.TotalDecisions(),
		ActiveFluents:        s.ActiveFluents,
		TerminatedFluents:    s.TerminatedFluents,
		HasAnalysis:          s.FinalAnalysis != nil,
		StartedAt:            s.StartedAt,
		LastActivityAt:       s.LastActivityAt,
		CompletedAt:          s.CompletedAt,
	}
}

// optionView and decisionView never carry the reference flag.
type optionView struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type decisionView struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Context  string       `json:"context,omitempty"`
	Options  []optionView `json:"options"`
}

func toDecisionView(index int, dp *domain.DecisionPoint) *decisionView {
	v := &decisionView{
		Index:    index,
		ID:       dp.ID,
		Question: dp.Question,
		Context:  dp.Context,
		Options:  make([]optionView, 0, len(dp.Options)),
	}
	for i, o := range dp.Options {
		v.Options = append(v.Options, optionView{Index: i, ID: o.ID, Label: o.Label, Description: o.Description})
	}
	return v
}

type createSessionRequest struct {
	CaseID string `json:"case_id"`
	UserID string `json:"user_id,omitempty"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CaseID == "" {
		writeError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.CallerFromContext(r.Context())
	}

	sess, err := h.svc.Start(r.Context(), req.CaseID, req.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *SessionHandler) CurrentDecision(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	dp, err := h.svc.CurrentDecision(r.Context(), sess)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := map[string]any{
		"completed":       sess.IsCompleted(),
		"decision":        nil,
		"total_decisions": sess.TotalDecisions(),
	}
	if dp != nil {
		resp["decision"] = toDecisionView(sess.CurrentDecisionIndex, dp)
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitChoiceRequest struct {
	DecisionIndex  *int `json:"decision_index,omitempty"`
	OptionIndex    *int `json:"option_index"`
	ElapsedSeconds *int `json:"elapsed_seconds,omitempty"`
}

func (h *SessionHandler) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	var req submitChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OptionIndex == nil {
		writeError(w, http.StatusBadRequest, "option_index is required")
		return
	}
	if req.ElapsedSeconds != nil && *req.ElapsedSeconds < 0 {
		writeError(w, http.StatusBadRequest, "elapsed_seconds must not be negative")
		return
	}

	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	res, err := h.svc.SubmitChoice(r.Context(), sess, service.SubmitChoiceInput{
		DecisionIndex:  req.DecisionIndex,
		OptionIndex:    *req.OptionIndex,
		ElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *SessionHandler) ListChoices(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	choices, err := h.svc.ListChoices(r.Context(), sess.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"choices": choices})
}

// ComposeAnalysis composes the analysis on first call and returns the stored
// one afterwards.
func (h *SessionHandler) ComposeAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	a, err := h.svc.ComposeAnalysis(r.Context(), sess)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAnalysis returns the stored analysis without composing one.
func (h *SessionHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if !sess.IsCompleted() {
		writeServiceError(w, h.logger, service.ErrIncompleteSession)
		return
	}
	if sess.FinalAnalysis == nil {
		writeError(w, http.StatusNotFound, "analysis not composed yet")
		return
	}
	writeJSON(w, http.StatusOK, sess.FinalAnalysis)
}

func (h *SessionHandler) loadSession(w http.ResponseWriter, r *http.Request) (*domain.ExplorationSession, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, err := h.svc.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}
	return sess, true
}
