package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/luca0405/beanstalker/internal/model"
)

// maxResultBody caps how much of a push-service response we retain for
// outcome classification.
const maxResultBody = 1024

// Result is the transport-level outcome the dispatcher branches on. The
// transport itself never interprets status codes.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// SendOptions tunes an encrypted send.
type SendOptions struct {
	TTL     int
	Urgency webpush.Urgency
}

// Transport is the vendor-agnostic send primitive. Send delivers an
// encrypted web-push message; SendRaw posts an unencrypted body straight to
// the endpoint and exists only for the degraded Windows payload shapes.
type Transport interface {
	Send(ctx context.Context, sub *model.PushSubscription, message []byte, opts SendOptions) (*Result, error)
	SendRaw(ctx context.Context, endpoint string, body []byte, contentType string, headers map[string]string) (*Result, error)
}

// WebPushTransport sends through the Web Push protocol with VAPID auth.
type WebPushTransport struct {
	cfg    Config
	client *http.Client
}

func NewWebPushTransport(cfg Config) *WebPushTransport {
	return &WebPushTransport{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *WebPushTransport) Send(ctx context.Context, sub *model.PushSubscription, message []byte, opts SendOptions) (*Result, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      t.client,
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		Subscriber:      t.cfg.Subscriber,
		TTL:             opts.TTL,
		Urgency:         opts.Urgency,
	})
	if err != nil {
		return nil, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	return readResult(resp)
}

func (t *WebPushTransport) SendRaw(ctx context.Context, endpoint string, body []byte, contentType string, headers map[string]string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create raw push request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send raw push: %w", err)
	}
	defer resp.Body.Close()

	return readResult(resp)
}

func readResult(resp *http.Response) (*Result, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBody))
	if err != nil {
		// Status and headers are still usable for classification
		body = nil
	}
	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
