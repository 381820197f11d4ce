package fallback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/luca0405/beanstalker/internal/metrics"
	"github.com/luca0405/beanstalker/internal/model"
	"github.com/luca0405/beanstalker/internal/push"
)

// defaultInterval is the fixed poll cadence.
const defaultInterval = 5 * time.Second

// OrdersSource lists the user's orders. The order store implements it.
type OrdersSource interface {
	ListByUser(userID int64) ([]model.Order, error)
}

// SeenStore durably remembers which (order, update-time) pairs have already
// produced a notification on this device.
type SeenStore interface {
	MarkSeen(userID, orderID int64, orderUpdatedAt time.Time) error
	WasSeen(userID, orderID int64, orderUpdatedAt time.Time) (bool, error)
}

// Notify presents one local in-app notification.
type Notify func(title, body string)

// Poller is the delivery path for devices without vendor push, primarily
// iOS Safari. It polls the user's orders on a fixed interval and raises a
// local notification when an order's status changes.
//
// The first cycle after Start is baseline capture: every current status is
// recorded and marked seen without notifying, so orders that changed while
// the app was closed do not flood the user on launch.
type Poller struct {
	orders   OrdersSource
	seen     SeenStore
	notify   Notify
	logger   *slog.Logger
	userID   int64
	interval time.Duration

	mu        sync.RWMutex
	snapshot  map[int64]string // order ID -> last observed status
	primed    bool
	watermark time.Time // newest update time that produced a notification
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewPoller(orders OrdersSource, seen SeenStore, notify Notify, logger *slog.Logger, userID int64) *Poller {
	return &Poller{
		orders:   orders,
		seen:     seen,
		notify:   notify,
		logger:   logger.With("component", "fallback", "user_id", userID),
		userID:   userID,
		interval: defaultInterval,
	}
}

// Start begins the poll loop. The first tick runs immediately so baseline
// capture does not wait a full interval.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.snapshot = nil
	p.primed = false
	p.mu.Unlock()

	go func() {
		defer close(p.done)

		p.tick()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Stop halts polling. An in-flight cycle is not aborted, only never
// rescheduled.
func (p *Poller) Stop() {
	p.mu.RLock()
	cancel := p.cancel
	done := p.done
	p.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// tick runs one poll cycle. Errors make the cycle a no-op; the next tick
// tries again.
func (p *Poller) tick() {
	orders, err := p.orders.ListByUser(p.userID)
	if err != nil {
		p.logger.Error("poll orders", "error", err)
		return
	}

	fresh := make(map[int64]string, len(orders))
	for _, o := range orders {
		fresh[o.ID] = o.Status
	}

	p.mu.RLock()
	primed := p.primed
	prev := p.snapshot
	p.mu.RUnlock()

	if !primed {
		p.prime(orders, fresh)
		return
	}

	notified := false
	for _, o := range orders {
		if notified {
			break
		}

		changed := prev[o.ID] != o.Status
		if !changed {
			seen, err := p.seen.WasSeen(p.userID, o.ID, o.UpdatedAt)
			if err != nil {
				p.logger.Error("check seen", "order_id", o.ID, "error", err)
				continue
			}
			changed = !seen
		}
		if !changed {
			continue
		}

		// One notification per cycle; remaining changes surface on the
		// next tick.
		p.notify("Order Update", push.OrderStatusBody(o.ID, o.Status))
		metrics.RecordFallbackNotification()
		notified = true

		if err := p.seen.MarkSeen(p.userID, o.ID, o.UpdatedAt); err != nil {
			p.logger.Error("mark seen", "order_id", o.ID, "error", err)
		}
		p.advanceWatermark(o.UpdatedAt)
	}

	p.mu.Lock()
	p.snapshot = fresh
	p.mu.Unlock()
}

// prime records the current state without notifying.
func (p *Poller) prime(orders []model.Order, fresh map[int64]string) {
	for _, o := range orders {
		if err := p.seen.MarkSeen(p.userID, o.ID, o.UpdatedAt); err != nil {
			p.logger.Error("prime seen", "order_id", o.ID, "error", err)
		}
	}

	p.mu.Lock()
	p.snapshot = fresh
	p.primed = true
	p.mu.Unlock()

	p.logger.Debug("baseline captured", "orders", len(orders))
}

func (p *Poller) advanceWatermark(t time.Time) {
	p.mu.Lock()
	if t.After(p.watermark) {
		p.watermark = t
	}
	p.mu.Unlock()
}

// Watermark reports the newest order-update time that has produced a
// notification.
func (p *Poller) Watermark() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.watermark
}
