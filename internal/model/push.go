package model

import "time"

// PushSubscription is one browser's registration for push delivery.
// At most one live row exists per endpoint; re-subscribing overwrites the
// keys and re-owns the endpoint for the subscribing user.
type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}
