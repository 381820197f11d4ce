package verifier

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub maintains the set of connected page clients and broadcasts worker
// messages to all of them.
type Hub struct {
	mu     sync.RWMutex
	pages  map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		pages:  make(map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a page to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.pages[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a page from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.pages[c]; ok {
		delete(h.pages, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a worker message to every connected page. Messages that
// are not valid worker-to-page types are refused here so no caller can leak
// an inbound type back out.
func (h *Hub) Broadcast(msg Message) {
	if !msg.Type.ValidFromWorker() {
		h.logger.Error("refusing to broadcast page-to-worker type", "type", msg.Type)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.pages {
		select {
		case c.send <- data:
		default:
			// Page buffer full; drop rather than block the hub
		}
	}
}

// PageCount returns the number of connected pages.
func (h *Hub) PageCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages)
}
