package handler

import (
	"net/http"

	"github.com/luca0405/beanstalker/internal/auth"
	"github.com/luca0405/beanstalker/internal/fallback"
)

// FallbackHandler controls the in-app polling channel for devices without
// vendor push, primarily iOS Safari.
type FallbackHandler struct {
	manager *fallback.Manager
}

func NewFallbackHandler(m *fallback.Manager) *FallbackHandler {
	return &FallbackHandler{manager: m}
}

// Enable handles POST /api/fallback/enable
func (h *FallbackHandler) Enable(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.manager.Enable(userID)
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

// Disable handles POST /api/fallback/disable
func (h *FallbackHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.manager.Disable(userID)
	writeJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// Status handles GET /api/fallback/status
func (h *FallbackHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"active": h.manager.Active(userID)})
}
