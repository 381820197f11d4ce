package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/luca0405/beanstalker/internal/model"
)

// payloadTTL is how long push services may hold an undelivered message.
const payloadTTL = 3600 // 1 hour

// Outcome classifies a failed dispatch attempt.
type Outcome int

const (
	OutcomeGone         Outcome = iota // 410: endpoint permanently gone
	OutcomeNotFound                    // 404: endpoint unknown to the vendor
	OutcomeUnauthorized                // 401/403
	OutcomeRejected                    // 400: payload refused, endpoint may still work
	OutcomeTransient                   // 5xx and transport-level failures
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGone:
		return "gone"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeRejected:
		return "rejected"
	default:
		return "transient"
	}
}

// Reason is the vendor-specific sub-cause of an authorization failure.
// Each named reason means the subscription can never be delivered to again.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonKeyMismatch
	ReasonDeviceUnreachable
	ReasonChannelExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonKeyMismatch:
		return "key_mismatch"
	case ReasonDeviceUnreachable:
		return "device_unreachable"
	case ReasonChannelExpired:
		return "channel_expired"
	default:
		return "none"
	}
}

// SendError is a typed dispatch failure.
type SendError struct {
	Outcome    Outcome
	Reason     Reason
	StatusCode int
	Detail     string
}

func (e *SendError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("push dispatch: %s (%s): %s", e.Outcome, e.Reason, e.Detail)
	}
	return fmt.Sprintf("push dispatch: %s (status %d, reason %s)", e.Outcome, e.StatusCode, e.Reason)
}

// SubscriptionFatal reports whether the subscription should be deleted:
// gone, not found, or an authorization failure with a recognized sub-reason.
// Generic auth failures, payload rejections, and transient errors keep it.
func (e *SendError) SubscriptionFatal() bool {
	switch e.Outcome {
	case OutcomeGone, OutcomeNotFound:
		return true
	case OutcomeUnauthorized:
		return e.Reason != ReasonNone
	}
	return false
}

// windowsAttempt is one rung of the WNS degradation ladder: a payload shape
// plus the headers that go with it.
type windowsAttempt struct {
	name        string
	contentType string
	headers     map[string]string
	body        func(Payload) ([]byte, error)
}

// windowsLadder is walked in order after the primary encrypted send is
// rejected with an auth-class error on a Windows endpoint. The final rung
// carries no message text at all; the badge is the last-resort signal that
// something changed.
var windowsLadder = []windowsAttempt{
	{
		name:        "raw_toast",
		contentType: "text/plain",
		headers:     map[string]string{"X-WNS-Type": "wns/raw", "X-WNS-Cache-Policy": "cache"},
		body:        rawToastBody,
	},
	{
		name:        "badge",
		contentType: "text/xml",
		headers:     map[string]string{"X-WNS-Type": "wns/badge"},
		body: func(Payload) ([]byte, error) {
			return []byte(`<badge value="alert"/>`), nil
		},
	},
}

func rawToastBody(p Payload) ([]byte, error) {
	return json.Marshal(map[string]any{
		"msg":   p.Body,
		"title": p.Title,
		"data":  p.Data,
		"type":  "toast",
	})
}

// Adapter delivers normalized payloads through the vendor-appropriate wire
// format, degrading the payload shape on Windows auth failures.
type Adapter struct {
	transport Transport
	logger    *slog.Logger
}

func NewAdapter(transport Transport, logger *slog.Logger) *Adapter {
	return &Adapter{transport: transport, logger: logger}
}

// Deliver sends one payload to one subscription. A nil return means the
// vendor accepted it, which includes the WNS "dropped" pseudo-success.
// Failures come back as *SendError so the caller can decide what to prune.
func (a *Adapter) Deliver(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	vendor := Classify(sub.Endpoint)

	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	opts := SendOptions{TTL: payloadTTL}
	if vendor == VendorFirebase {
		opts.Urgency = webpush.UrgencyHigh
	}

	res, err := a.transport.Send(ctx, sub, message, opts)
	if err != nil {
		return &SendError{Outcome: OutcomeTransient, Detail: err.Error()}
	}

	serr := classifyResult(res)
	if serr == nil {
		return nil
	}

	if vendor == VendorWindows && serr.Outcome == OutcomeUnauthorized {
		if serr.Reason != ReasonNone {
			// A recognized sub-cause (key mismatch, dead channel,
			// unreachable device) means the subscription itself is dead;
			// no payload shape will ever get through it.
			return serr
		}
		return a.degradeWindows(ctx, sub, payload, serr)
	}

	return serr
}

// degradeWindows walks the ladder of simpler payload shapes. Only generic
// auth rejections move to the next rung; a recognized fatal sub-cause or a
// non-auth failure at any rung is surfaced as-is.
func (a *Adapter) degradeWindows(ctx context.Context, sub *model.PushSubscription, payload Payload, cause *SendError) error {
	last := cause
	for _, att := range windowsLadder {
		body, err := att.body(payload)
		if err != nil {
			return fmt.Errorf("build %s payload: %w", att.name, err)
		}

		res, err := a.transport.SendRaw(ctx, sub.Endpoint, body, att.contentType, att.headers)
		if err != nil {
			return &SendError{Outcome: OutcomeTransient, Detail: err.Error()}
		}

		serr := classifyResult(res)
		if serr == nil {
			a.logger.Debug("windows degraded delivery succeeded",
				"attempt", att.name, "endpoint", sub.Endpoint)
			return nil
		}
		if serr.Outcome != OutcomeUnauthorized || serr.Reason != ReasonNone {
			return serr
		}
		last = serr
	}
	return last
}

func classifyResult(res *Result) *SendError {
	status := res.StatusCode
	switch {
	case status >= 200 && status < 300:
		// X-WNS-NotificationStatus: dropped means WNS accepted the message
		// but will not deliver it. Treated as success; the subscription
		// stays.
		return nil
	case status == http.StatusGone:
		return &SendError{Outcome: OutcomeGone, StatusCode: status}
	case status == http.StatusNotFound:
		return &SendError{Outcome: OutcomeNotFound, StatusCode: status}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &SendError{Outcome: OutcomeUnauthorized, Reason: authReason(res), StatusCode: status}
	case status == http.StatusBadRequest:
		return &SendError{Outcome: OutcomeRejected, StatusCode: status}
	default:
		return &SendError{Outcome: OutcomeTransient, StatusCode: status}
	}
}

// authReason inspects response headers and body text for the vendor
// sub-causes that make an auth failure permanent.
func authReason(res *Result) Reason {
	text := strings.ToLower(res.Header.Get("X-WNS-Error") + " " + string(res.Body))
	switch {
	case strings.Contains(text, "public key") || strings.Contains(text, "vapid"):
		return ReasonKeyMismatch
	case strings.EqualFold(res.Header.Get("X-WNS-DeviceConnectionStatus"), "disconnected"):
		return ReasonDeviceUnreachable
	case strings.Contains(text, "expired"):
		return ReasonChannelExpired
	}
	return ReasonNone
}
