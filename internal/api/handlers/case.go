package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/dilemma/internal/service"
	"go.uber.org/zap"
)

type CaseHandler struct {
	svc    *service.ExplorationService
	logger *zap.Logger
}

func NewCaseHandler(svc *service.ExplorationService, logger *zap.Logger) *CaseHandler {
	return &CaseHandler{svc: svc, logger: logger}
}

func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListCases(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": list})
}
