package verifier

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luca0405/beanstalker/internal/metrics"
	"github.com/luca0405/beanstalker/internal/push"
)

// pendingTTL bounds how long an unverified notification waits for a page
// to claim it.
const pendingTTL = 30 * time.Second

// dedupCap is how many displayed notifications we remember.
const dedupCap = 50

// Displayer shows a verified notification on the device.
type Displayer interface {
	Display(payload push.Payload) error
}

type pendingNotification struct {
	payload push.Payload
	addedAt time.Time
}

// Worker is the receiving end of vendor pushes. It never displays a
// targeted notification until a connected page has confirmed that the
// payload's user is the one currently authenticated.
type Worker struct {
	hub     *Hub
	display Displayer
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingNotification
	shown   *dedupCache
}

func NewWorker(hub *Hub, display Displayer, logger *slog.Logger) *Worker {
	return &Worker{
		hub:     hub,
		display: display,
		logger:  logger.With("component", "verifier"),
		pending: make(map[string]pendingNotification),
		shown:   newDedupCache(dedupCap),
	}
}

// HandlePush processes one raw vendor push.
//
// Payloads without a target user ID take the legacy path: order details are
// scraped from the body text and the notification is shown immediately.
// Payloads with a target are held pending and every open page is asked to
// verify ownership; with zero pages open the notification is dropped.
// There is no deferred queue.
func (w *Worker) HandlePush(raw []byte) {
	var payload push.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.logger.Error("unparseable push payload", "error", err)
		return
	}

	if payload.Data.UserID == "" {
		w.legacyDisplay(payload)
		return
	}

	if w.hub.PageCount() == 0 {
		w.logger.Info("dropping push, no pages open",
			"tag", payload.Tag, "target", payload.Data.UserID)
		metrics.RecordVerifierDecision("dropped_no_pages")
		return
	}

	id := uuid.NewString()
	w.mu.Lock()
	w.pending[id] = pendingNotification{payload: payload, addedAt: time.Now()}
	w.mu.Unlock()

	check := Message{Type: TypeCheckUserID, ID: id, Notification: &payload}
	if payload.Data.IsTestNotification {
		check.Type = TypeTestNotification
	}
	w.hub.Broadcast(check)
}

// HandlePageMessage dispatches one inbound page frame. A single switch is
// the only place inbound types are accepted or rejected.
func (w *Worker) HandlePageMessage(msg Message) {
	if !msg.Type.ValidFromPage() {
		w.logger.Warn("rejected inbound message type", "type", msg.Type)
		return
	}

	switch msg.Type {
	case TypeVerifyUser, TypeUserIDForTest:
		w.resolve(msg)
	case TypeAppVisible:
		w.sweepExpired()
	}
}

// resolve handles a page's verification reply. The reply either claims the
// pending notification for display or is a mismatch no-op. The pending
// entry is removed before display so a second confirming page cannot show
// it twice.
func (w *Worker) resolve(msg Message) {
	w.mu.Lock()
	pn, ok := w.pending[msg.ID]
	if ok && w.matches(pn.payload, msg) {
		delete(w.pending, msg.ID)
	} else {
		ok = false
	}
	w.mu.Unlock()

	if !ok {
		metrics.RecordVerifierDecision("mismatch")
		return
	}

	metrics.RecordVerifierDecision("verified")
	w.show(pn.payload)
}

// matches compares the page's identity against the payload target. User
// IDs are compared as strings so numeric and string forms still match.
// Admin broadcasts match any page whose user is an admin.
func (w *Worker) matches(payload push.Payload, msg Message) bool {
	if payload.Data.UserID == push.AdminAudience {
		return msg.IsAdmin
	}
	return payload.Data.UserID == msg.UserID
}

// Clicked reacts to the user tapping a displayed notification: every open
// page is told so it can refresh cached order data and navigate.
func (w *Worker) Clicked(payload push.Payload) {
	url := payload.Data.URL
	if url == "" {
		url = "/orders"
	}
	w.hub.Broadcast(Message{Type: TypeNotificationClicked, Notification: &payload, URL: url})
}

var legacyOrderPattern = regexp.MustCompile(`#(\d+)`)

// legacyDisplay handles payloads from before user targeting existed: pull
// an order reference out of the body text and show immediately.
func (w *Worker) legacyDisplay(payload push.Payload) {
	if m := legacyOrderPattern.FindStringSubmatch(payload.Body); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			payload.Data.OrderID = id
		}
		payload.Data.URL = "/orders/" + m[1]
		switch {
		case strings.Contains(payload.Body, "ready"):
			payload.Data.Status = "completed"
		case strings.Contains(payload.Body, "prepared"):
			payload.Data.Status = "processing"
		case strings.Contains(payload.Body, "cancelled"):
			payload.Data.Status = "cancelled"
		}
	}
	metrics.RecordVerifierDecision("legacy")
	w.show(payload)
}

// show displays a notification at most once per title+body+timestamp. The
// tag gets a timestamp suffix so the OS never coalesces distinct
// notifications that share a tag.
func (w *Worker) show(payload push.Payload) {
	key := fmt.Sprintf("%s|%s|%d", payload.Title, payload.Body, payload.Data.Timestamp)

	w.mu.Lock()
	dup := !w.shown.add(key)
	w.mu.Unlock()

	if dup {
		w.logger.Debug("duplicate notification suppressed", "tag", payload.Tag)
		metrics.RecordVerifierDecision("duplicate")
		return
	}

	payload.Tag = fmt.Sprintf("%s-%d", payload.Tag, time.Now().UnixNano())
	if err := w.display.Display(payload); err != nil {
		w.logger.Error("display notification", "tag", payload.Tag, "error", err)
	}
}

// sweepExpired discards pending notifications no page claimed in time.
func (w *Worker) sweepExpired() {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	for id, pn := range w.pending {
		if now.Sub(pn.addedAt) > pendingTTL {
			delete(w.pending, id)
			w.logger.Debug("expired unverified notification", "tag", pn.payload.Tag)
		}
	}
}

// dedupCache remembers the most recent displayed notifications in insertion
// order and evicts the oldest past cap. Not locked; the worker's mutex
// guards it.
type dedupCache struct {
	cap   int
	order []string
	seen  map[string]struct{}
}

func newDedupCache(cap int) *dedupCache {
	return &dedupCache{cap: cap, seen: make(map[string]struct{}, cap)}
}

// add records the key and reports whether it was new.
func (c *dedupCache) add(key string) bool {
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, key)
	if len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	return true
}
