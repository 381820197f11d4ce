package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/luca0405/beanstalker/internal/push"
	"github.com/luca0405/beanstalker/internal/verifier"
)

// maxEventBytes caps a reported push event body.
const maxEventBytes = 64 << 10

// EventHandler is the ingress for device-side notification events: the PWA
// shell reports received pushes and notification clicks here, and the
// worker runs the ownership protocol against the connected pages.
type EventHandler struct {
	worker *verifier.Worker
}

func NewEventHandler(w *verifier.Worker) *EventHandler {
	return &EventHandler{worker: w}
}

// PushEvent handles POST /api/push/event
func (h *EventHandler) PushEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil || len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "push payload required")
		return
	}

	h.worker.HandlePush(raw)
	w.WriteHeader(http.StatusAccepted)
}

// Clicked handles POST /api/push/clicked
func (h *EventHandler) Clicked(w http.ResponseWriter, r *http.Request) {
	var payload push.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	h.worker.Clicked(payload)
	w.WriteHeader(http.StatusAccepted)
}
