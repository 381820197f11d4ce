package verifier

import (
	"github.com/luca0405/beanstalker/internal/push"
)

// MessageType tags a frame on the worker/page channel.
type MessageType string

const (
	// Worker to page.
	TypeCheckUserID         MessageType = "CHECK_USER_ID_FOR_NOTIFICATION"
	TypeTestNotification    MessageType = "TEST_NOTIFICATION"
	TypeNotificationClicked MessageType = "NOTIFICATION_CLICKED"

	// Page to worker.
	TypeVerifyUser    MessageType = "VERIFY_NOTIFICATION_USER"
	TypeUserIDForTest MessageType = "USER_ID_FOR_TEST_NOTIFICATION"
	TypeAppVisible    MessageType = "APP_VISIBLE"
)

// Message is the single wire shape for every frame; which fields are set
// depends on Type.
type Message struct {
	Type         MessageType   `json:"type"`
	ID           string        `json:"id,omitempty"`     // pending-notification correlation
	UserID       push.UserID   `json:"userId,omitempty"` // page's authenticated user
	IsAdmin      bool          `json:"isAdmin,omitempty"`
	Notification *push.Payload `json:"notification,omitempty"`
	URL          string        `json:"url,omitempty"`
}

var workerToPage = map[MessageType]bool{
	TypeCheckUserID:         true,
	TypeTestNotification:    true,
	TypeNotificationClicked: true,
}

var pageToWorker = map[MessageType]bool{
	TypeVerifyUser:    true,
	TypeUserIDForTest: true,
	TypeAppVisible:    true,
}

// ValidFromWorker reports whether the worker may send this type to pages.
func (t MessageType) ValidFromWorker() bool { return workerToPage[t] }

// ValidFromPage reports whether a page may send this type to the worker.
func (t MessageType) ValidFromPage() bool { return pageToWorker[t] }
