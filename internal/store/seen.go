package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SeenStore records which (order, update) pairs a user's device has already
// surfaced, so the in-app fallback channel never re-notifies for an update
// it handled before a reload.
type SeenStore struct {
	db *sql.DB
}

func NewSeenStore(db *sql.DB) *SeenStore {
	return &SeenStore{db: db}
}

func (s *SeenStore) MarkSeen(userID, orderID int64, orderUpdatedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO seen_order_updates (user_id, order_id, order_updated_at)
		 VALUES (?, ?, ?)`,
		userID, orderID, orderUpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark order update seen: %w", err)
	}
	return nil
}

func (s *SeenStore) WasSeen(userID, orderID int64, orderUpdatedAt time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM seen_order_updates
		 WHERE user_id = ? AND order_id = ? AND order_updated_at = ?`,
		userID, orderID, orderUpdatedAt.UTC(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check order update seen: %w", err)
	}
	return count > 0, nil
}

// Cleanup deletes seen markers recorded before the given time.
func (s *SeenStore) Cleanup(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM seen_order_updates WHERE seen_at < ?`, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup seen order updates: %w", err)
	}
	return nil
}
