package fallback

import (
	"context"
	"log/slog"
	"sync"
)

// Manager owns one Poller per user that has enabled the in-app channel.
type Manager struct {
	orders OrdersSource
	seen   SeenStore
	notify Notify
	logger *slog.Logger

	mu      sync.Mutex
	pollers map[int64]*Poller
}

func NewManager(orders OrdersSource, seen SeenStore, notify Notify, logger *slog.Logger) *Manager {
	return &Manager{
		orders:  orders,
		seen:    seen,
		notify:  notify,
		logger:  logger,
		pollers: make(map[int64]*Poller),
	}
}

// Enable starts polling for the user. Enabling twice is a no-op. The
// poller runs until Disable or StopAll, not for the life of any request,
// so it gets a fresh background context.
func (m *Manager) Enable(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pollers[userID]; ok {
		return
	}

	p := NewPoller(m.orders, m.seen, m.notify, m.logger, userID)
	m.pollers[userID] = p
	p.Start(context.Background())
	m.logger.Info("fallback polling enabled", "user_id", userID)
}

// Disable stops polling for the user.
func (m *Manager) Disable(userID int64) {
	m.mu.Lock()
	p, ok := m.pollers[userID]
	if ok {
		delete(m.pollers, userID)
	}
	m.mu.Unlock()

	if ok {
		p.Stop()
		m.logger.Info("fallback polling disabled", "user_id", userID)
	}
}

// Active reports whether the user currently has a running poller.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pollers[userID]
	return ok
}

// StopAll halts every poller. Used at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[int64]*Poller)
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
