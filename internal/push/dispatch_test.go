package push

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/luca0405/beanstalker/internal/model"
)

type sentRequest struct {
	raw         bool
	contentType string
	headers     map[string]string
	opts        SendOptions
}

// fakeTransport replays a scripted queue of results and records every send.
type fakeTransport struct {
	results []*Result
	calls   []sentRequest
}

func (f *fakeTransport) next() *Result {
	if len(f.results) == 0 {
		return &Result{StatusCode: http.StatusCreated, Header: http.Header{}}
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res
}

func (f *fakeTransport) Send(_ context.Context, _ *model.PushSubscription, _ []byte, opts SendOptions) (*Result, error) {
	f.calls = append(f.calls, sentRequest{opts: opts})
	return f.next(), nil
}

func (f *fakeTransport) SendRaw(_ context.Context, _ string, _ []byte, contentType string, headers map[string]string) (*Result, error) {
	f.calls = append(f.calls, sentRequest{raw: true, contentType: contentType, headers: headers})
	return f.next(), nil
}

func result(status int, header http.Header, body string) *Result {
	if header == nil {
		header = http.Header{}
	}
	return &Result{StatusCode: status, Header: header, Body: []byte(body)}
}

func testSub(endpoint string) *model.PushSubscription {
	return &model.PushSubscription{
		ID:        1,
		UserID:    7,
		Endpoint:  endpoint,
		P256dhKey: "p256dh",
		AuthKey:   "auth",
		CreatedAt: time.Now(),
	}
}

func testPayload() Payload {
	return Normalize(Intent{Kind: IntentOrderStatus, UserID: 7, OrderID: 42, Status: "completed"}, time.Now())
}

func newTestAdapter(results ...*Result) (*Adapter, *fakeTransport) {
	ft := &fakeTransport{results: results}
	return NewAdapter(ft, slog.Default()), ft
}

func TestDeliverSuccess(t *testing.T) {
	a, ft := newTestAdapter(result(http.StatusCreated, nil, ""))

	if err := a.Deliver(context.Background(), testSub("https://push.example.com/1"), testPayload()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(ft.calls) != 1 || ft.calls[0].raw {
		t.Fatalf("expected exactly one encrypted send, got %+v", ft.calls)
	}
}

func TestDeliverFirebaseUrgency(t *testing.T) {
	a, ft := newTestAdapter(result(http.StatusCreated, nil, ""))

	a.Deliver(context.Background(), testSub("https://fcm.googleapis.com/fcm/send/abc"), testPayload())

	if got := string(ft.calls[0].opts.Urgency); got != "high" {
		t.Errorf("urgency = %q, want %q", got, "high")
	}
	if ft.calls[0].opts.TTL != payloadTTL {
		t.Errorf("ttl = %d, want %d", ft.calls[0].opts.TTL, payloadTTL)
	}
}

func TestDeliverGone(t *testing.T) {
	a, _ := newTestAdapter(result(http.StatusGone, nil, ""))

	err := a.Deliver(context.Background(), testSub("https://push.example.com/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Outcome != OutcomeGone {
		t.Errorf("outcome = %s, want gone", serr.Outcome)
	}
	if !serr.SubscriptionFatal() {
		t.Error("410 must be subscription-fatal")
	}
}

func TestDeliverServerErrorKeepsSubscription(t *testing.T) {
	a, _ := newTestAdapter(result(http.StatusBadGateway, nil, ""))

	err := a.Deliver(context.Background(), testSub("https://push.example.com/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Outcome != OutcomeTransient {
		t.Errorf("outcome = %s, want transient", serr.Outcome)
	}
	if serr.SubscriptionFatal() {
		t.Error("5xx must not be subscription-fatal")
	}
}

func TestDeliverBadRequestKeepsSubscription(t *testing.T) {
	a, _ := newTestAdapter(result(http.StatusBadRequest, nil, ""))

	err := a.Deliver(context.Background(), testSub("https://push.example.com/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Outcome != OutcomeRejected || serr.SubscriptionFatal() {
		t.Errorf("400 should reject the payload but keep the subscription, got %+v", serr)
	}
}

func TestDeliverWindowsDroppedIsSuccess(t *testing.T) {
	header := http.Header{}
	header.Set("X-WNS-NotificationStatus", "dropped")
	a, ft := newTestAdapter(result(http.StatusOK, header, ""))

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())
	if err != nil {
		t.Fatalf("dropped must count as accepted, got %v", err)
	}
	if len(ft.calls) != 1 {
		t.Fatalf("no fallback expected after a dropped success, got %d calls", len(ft.calls))
	}
}

func TestWindowsDegradationLadder(t *testing.T) {
	// Primary 401 without any key-mismatch hint, raw toast succeeds.
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, "token invalid"),
		result(http.StatusOK, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())
	if err != nil {
		t.Fatalf("expected degraded delivery to succeed, got %v", err)
	}

	if len(ft.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (encrypted then raw)", len(ft.calls))
	}
	raw := ft.calls[1]
	if !raw.raw {
		t.Fatal("second attempt should use the raw transport path")
	}
	if raw.contentType != "text/plain" {
		t.Errorf("content type = %q, want text/plain", raw.contentType)
	}
	if raw.headers["X-WNS-Type"] != "wns/raw" {
		t.Errorf("X-WNS-Type = %q, want wns/raw", raw.headers["X-WNS-Type"])
	}
}

func TestWindowsLadderFallsBackToBadge(t *testing.T) {
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusOK, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())
	if err != nil {
		t.Fatalf("expected badge delivery to succeed, got %v", err)
	}
	if len(ft.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(ft.calls))
	}
	badge := ft.calls[2]
	if badge.headers["X-WNS-Type"] != "wns/badge" {
		t.Errorf("X-WNS-Type = %q, want wns/badge", badge.headers["X-WNS-Type"])
	}
	if badge.contentType != "text/xml" {
		t.Errorf("content type = %q, want text/xml", badge.contentType)
	}
}

func TestWindowsKeyMismatchAbortsLadder(t *testing.T) {
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, "the public key did not match the VAPID key"),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Reason != ReasonKeyMismatch {
		t.Errorf("reason = %s, want key_mismatch", serr.Reason)
	}
	if !serr.SubscriptionFatal() {
		t.Error("key mismatch must be subscription-fatal")
	}
	if len(ft.calls) != 1 {
		t.Fatalf("no fallback may run after a key mismatch, got %d calls", len(ft.calls))
	}
}

func TestWindowsLadderStopsOnNonAuthFailure(t *testing.T) {
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusBadGateway, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Outcome != OutcomeTransient {
		t.Errorf("outcome = %s, want transient (non-auth failures are not degraded further)", serr.Outcome)
	}
	if len(ft.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (badge rung must not run)", len(ft.calls))
	}
}

func TestWindowsLadderExhaustedKeepsSubscription(t *testing.T) {
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusUnauthorized, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.SubscriptionFatal() {
		t.Error("an auth failure with no recognized sub-reason keeps the subscription")
	}
	if len(ft.calls) != 3 {
		t.Fatalf("calls = %d, want 3 (full ladder)", len(ft.calls))
	}
}

func TestWindowsChannelExpiredAbortsLadder(t *testing.T) {
	header := http.Header{}
	header.Set("X-WNS-Error", "Channel expired")
	// A degraded payload shape would succeed, but the channel is dead; the
	// ladder must never run and the fatal outcome must surface.
	a, ft := newTestAdapter(
		result(http.StatusForbidden, header, ""),
		result(http.StatusOK, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Reason != ReasonChannelExpired {
		t.Errorf("reason = %s, want channel_expired", serr.Reason)
	}
	if !serr.SubscriptionFatal() {
		t.Error("expired channel must be subscription-fatal")
	}
	if len(ft.calls) != 1 {
		t.Fatalf("calls = %d, want 1 (no fallback may run on an expired channel)", len(ft.calls))
	}
}

func TestDeviceUnreachableAbortsLadder(t *testing.T) {
	header := http.Header{}
	header.Set("X-WNS-DeviceConnectionStatus", "disconnected")
	a, ft := newTestAdapter(
		result(http.StatusForbidden, header, ""),
		result(http.StatusOK, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Reason != ReasonDeviceUnreachable {
		t.Errorf("reason = %s, want device_unreachable", serr.Reason)
	}
	if !serr.SubscriptionFatal() {
		t.Error("unreachable device must be subscription-fatal")
	}
	if len(ft.calls) != 1 {
		t.Fatalf("calls = %d, want 1 (no fallback may run for an unreachable device)", len(ft.calls))
	}
}

func TestWindowsLadderSurfacesFatalMidRung(t *testing.T) {
	header := http.Header{}
	header.Set("X-WNS-Error", "Channel expired")
	// Generic 401 starts the ladder; the raw-toast rung reveals the channel
	// is expired. The fatal outcome surfaces and the badge rung never runs.
	a, ft := newTestAdapter(
		result(http.StatusUnauthorized, nil, ""),
		result(http.StatusForbidden, header, ""),
		result(http.StatusOK, nil, ""),
	)

	err := a.Deliver(context.Background(), testSub("https://wns2.notify.windows.com/w/1"), testPayload())

	var serr *SendError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	if serr.Reason != ReasonChannelExpired || !serr.SubscriptionFatal() {
		t.Errorf("mid-ladder expired channel must surface as fatal, got %+v", serr)
	}
	if len(ft.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (badge rung must not run)", len(ft.calls))
	}
}

func TestNonWindowsAuthFailureDoesNotDegrade(t *testing.T) {
	a, ft := newTestAdapter(result(http.StatusUnauthorized, nil, ""))

	err := a.Deliver(context.Background(), testSub("https://fcm.googleapis.com/fcm/send/abc"), testPayload())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(ft.calls) != 1 {
		t.Fatalf("calls = %d, want 1 (the ladder is Windows-only)", len(ft.calls))
	}
}
