package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/luca0405/beanstalker/internal/push"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      postmarkURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendOrderStatus emails the customer about an order status change. Used as
// a backstop for users with no push subscription on any device.
func (c *Client) SendOrderStatus(toEmail string, orderID int64, status string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	subject := fmt.Sprintf("Order #%d update", orderID)
	link := fmt.Sprintf("%s/orders/%d", c.baseURL, orderID)
	statusLine := push.OrderStatusBody(orderID, status)

	textBody := fmt.Sprintf("%s\n\nView your order: %s", statusLine, link)
	htmlBody := fmt.Sprintf(
		`<p>%s</p><p><a href="%s">View your order</a></p>`,
		statusLine, link,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

// SendWelcome greets a newly registered customer.
func (c *Client) SendWelcome(toEmail, username string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	link := fmt.Sprintf("%s/menu", c.baseURL)
	textBody := fmt.Sprintf("Welcome to Bean Stalker, %s!\n\nBrowse the menu and place your first order: %s", username, link)
	htmlBody := fmt.Sprintf(
		`<p>Welcome to Bean Stalker, %s!</p><p><a href="%s">Browse the menu</a> and place your first order.</p>`,
		username, link,
	)

	return c.send(postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  "Welcome to Bean Stalker",
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
