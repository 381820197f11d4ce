package verifier

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades a page connection and runs it against the hub,
// feeding its inbound frames to the worker.
func HandleWebSocket(hub *Hub, worker *Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Same-origin PWA; cookies carry auth
		})
		if err != nil {
			hub.logger.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, worker)
		client.Run(r.Context())
	}
}
