package push

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/luca0405/beanstalker/internal/model"
)

// Intent kinds.
const (
	IntentOrderStatus    = "order_status"
	IntentTest           = "test"
	IntentAdminBroadcast = "admin_broadcast"
)

// Intent describes what should be communicated. It is constructed,
// normalized, dispatched, and discarded within one request.
type Intent struct {
	Kind     string
	UserID   int64
	OrderID  int64
	Status   string
	Username string // admin broadcast: ordering customer's display name
	Total    int64  // admin broadcast: order total in cents
	TestID   string
}

// UserID is a user identifier on the notification wire. Older senders emit
// it as a JSON number, so it accepts either form and always holds the
// string rendering; comparisons are string against string.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*u = UserID(n.String())
	return nil
}

// Data is the structured part of a payload. UserID is always present so the
// receiving side has something to verify ownership against.
type Data struct {
	UserID              UserID `json:"userId"`
	Timestamp           int64  `json:"timestamp"`
	OrderID             int64  `json:"orderId,omitempty"`
	Status              string `json:"status,omitempty"`
	URL                 string `json:"url,omitempty"`
	TestID              string `json:"testId,omitempty"`
	Type                string `json:"type,omitempty"`
	IsAdminNotification bool   `json:"isAdminNotification,omitempty"`
	IsTestNotification  bool   `json:"isTestNotification,omitempty"`
}

// Payload is the vendor-neutral wire shape sent to push services.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	Data  Data   `json:"data"`
}

// AdminAudience is the Data.UserID value for payloads addressed to every
// admin rather than one user.
const AdminAudience = "admins"

// StatusText returns the human-readable phrasing for an order status.
// Unknown statuses degrade to a generic sentence rather than failing.
func StatusText(status string) string {
	switch status {
	case model.OrderStatusProcessing:
		return "is being prepared"
	case model.OrderStatusCompleted:
		return "is ready for pickup"
	case model.OrderStatusCancelled:
		return "has been cancelled"
	default:
		return "status has been updated"
	}
}

func statusEmoji(status string) string {
	switch status {
	case model.OrderStatusProcessing:
		return "☕"
	case model.OrderStatusCompleted:
		return "✅"
	case model.OrderStatusCancelled:
		return "❌"
	default:
		return "🔔"
	}
}

// OrderStatusBody builds the notification body for an order status change.
// Shared with the in-app fallback channel so both paths read the same.
func OrderStatusBody(orderID int64, status string) string {
	return fmt.Sprintf("%s Your order #%d %s.", statusEmoji(status), orderID, StatusText(status))
}

// Normalize converts an Intent into exactly one Payload. Pure transform:
// no side effects, no error conditions.
func Normalize(intent Intent, now time.Time) Payload {
	data := Data{
		UserID:    UserID(strconv.FormatInt(intent.UserID, 10)),
		Timestamp: now.UnixMilli(),
	}

	switch intent.Kind {
	case IntentTest:
		data.TestID = intent.TestID
		data.IsTestNotification = true
		data.URL = "/"
		return Payload{
			Title: "Test Notification",
			Body:  fmt.Sprintf("Push notifications are working! Sent at %s.", now.Format("3:04:05 PM")),
			Tag:   fmt.Sprintf("test-%d", now.UnixNano()),
			Data:  data,
		}

	case IntentAdminBroadcast:
		data.UserID = AdminAudience
		data.OrderID = intent.OrderID
		data.Type = "new_order"
		data.IsAdminNotification = true
		data.URL = "/admin/orders"
		return Payload{
			Title: "New Order Received",
			Body:  fmt.Sprintf("🔔 Order #%d from %s ($%.2f)", intent.OrderID, intent.Username, float64(intent.Total)/100),
			Tag:   fmt.Sprintf("new-order-%d-%d", intent.OrderID, now.UnixNano()),
			Data:  data,
		}

	default: // order status
		data.OrderID = intent.OrderID
		data.Status = intent.Status
		data.URL = fmt.Sprintf("/orders/%d", intent.OrderID)
		return Payload{
			Title: "Order Update",
			Body:  OrderStatusBody(intent.OrderID, intent.Status),
			// Unique per dispatch so vendor-side de-duplication never
			// swallows a repeated update for the same order.
			Tag:  fmt.Sprintf("order-%d-%d", intent.OrderID, now.UnixNano()),
			Data: data,
		}
	}
}
