package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/luca0405/beanstalker/internal/metrics"
	"github.com/luca0405/beanstalker/internal/model"
)

// SubscriptionStore is the slice of the store the notifier needs.
type SubscriptionStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	ListAdmins() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Report summarizes one fan-out. Pruned counts subscriptions deleted after
// a terminal failure.
type Report struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
}

// Notifier fans payloads out to all of a user's subscriptions and applies
// delivery outcomes to the subscription store. Dispatch failures are
// absorbed here: an order-status update must succeed even when every
// notification send fails.
type Notifier struct {
	adapter *Adapter
	subs    SubscriptionStore
	logger  *slog.Logger
}

func NewNotifier(adapter *Adapter, subs SubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{adapter: adapter, subs: subs, logger: logger}
}

// SendToUser delivers the payload to every subscription the user has.
func (n *Notifier) SendToUser(ctx context.Context, userID int64, payload Payload) Report {
	list, err := n.subs.ListByUser(userID)
	if err != nil {
		n.logger.Error("list subscriptions", "user_id", userID, "error", err)
		return Report{}
	}
	return n.fanOut(ctx, list, payload)
}

// SendOrderStatusNotification is called by order management whenever a
// status transition is persisted.
func (n *Notifier) SendOrderStatusNotification(ctx context.Context, userID, orderID int64, status string) {
	payload := Normalize(Intent{
		Kind:    IntentOrderStatus,
		UserID:  userID,
		OrderID: orderID,
		Status:  status,
	}, time.Now())

	rep := n.SendToUser(ctx, userID, payload)
	n.logger.Info("order status notification",
		"order_id", orderID, "status", status,
		"attempted", rep.Attempted, "delivered", rep.Delivered, "pruned", rep.Pruned)
}

// SendToAdmins delivers an arbitrary payload to every admin subscription.
func (n *Notifier) SendToAdmins(ctx context.Context, payload Payload) Report {
	list, err := n.subs.ListAdmins()
	if err != nil {
		n.logger.Error("list admin subscriptions", "error", err)
		return Report{}
	}
	return n.fanOut(ctx, list, payload)
}

// NotifyAdminsAboutNewOrder alerts every admin device about a new order.
func (n *Notifier) NotifyAdminsAboutNewOrder(ctx context.Context, orderID int64, username string, total int64) {
	payload := Normalize(Intent{
		Kind:     IntentAdminBroadcast,
		OrderID:  orderID,
		Username: username,
		Total:    total,
	}, time.Now())

	rep := n.SendToAdmins(ctx, payload)
	n.logger.Info("new order broadcast",
		"order_id", orderID,
		"attempted", rep.Attempted, "delivered", rep.Delivered, "pruned", rep.Pruned)
}

// SendTestNotification sends a test ping to all of the user's devices. The
// returned ID is only for correlating client-side logs.
func (n *Notifier) SendTestNotification(ctx context.Context, userID int64) (string, Report) {
	testID := uuid.NewString()[:8]
	payload := Normalize(Intent{
		Kind:   IntentTest,
		UserID: userID,
		TestID: testID,
	}, time.Now())

	return testID, n.SendToUser(ctx, userID, payload)
}

// SendTestToAdmins pings every admin device.
func (n *Notifier) SendTestToAdmins(ctx context.Context) (string, Report) {
	testID := uuid.NewString()[:8]
	payload := Normalize(Intent{Kind: IntentTest, TestID: testID}, time.Now())
	// Addressed to the admin audience, not one user
	payload.Data.UserID = AdminAudience

	return testID, n.SendToAdmins(ctx, payload)
}

// fanOut issues all sends concurrently and waits for every outcome. One
// subscription's failure never blocks or cancels the others.
func (n *Notifier) fanOut(ctx context.Context, list []model.PushSubscription, payload Payload) Report {
	rep := Report{Attempted: len(list)}
	if len(list) == 0 {
		return rep
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs error
	)

	for _, sub := range list {
		wg.Add(1)
		go func(sub model.PushSubscription) {
			defer wg.Done()

			err := n.adapter.Deliver(ctx, &sub, payload)
			vendor := Classify(sub.Endpoint).String()

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				rep.Delivered++
				metrics.RecordPushDelivery(vendor, "delivered")
				return
			}

			errs = multierr.Append(errs, err)

			var serr *SendError
			if errors.As(err, &serr) && serr.SubscriptionFatal() {
				metrics.RecordPushDelivery(vendor, "fatal")
				if derr := n.subs.DeleteByEndpoint(sub.Endpoint); derr != nil {
					n.logger.Error("prune subscription", "endpoint", sub.Endpoint, "error", derr)
					return
				}
				rep.Pruned++
				metrics.RecordSubscriptionPruned(serr.Outcome.String())
				n.logger.Info("pruned dead subscription",
					"endpoint", sub.Endpoint, "outcome", serr.Outcome.String(), "reason", serr.Reason.String())
				return
			}

			metrics.RecordPushDelivery(vendor, "failed")
		}(sub)
	}

	wg.Wait()

	if errs != nil {
		// Absorbed: callers never see dispatch failures
		n.logger.Warn("push fan-out incomplete",
			"attempted", rep.Attempted, "delivered", rep.Delivered, "pruned", rep.Pruned, "error", errs)
	}
	return rep
}
