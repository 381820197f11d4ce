package store

import (
	"database/sql"
	"fmt"

	"github.com/luca0405/beanstalker/internal/model"
)

type MenuStore struct {
	db *sql.DB
}

func NewMenuStore(db *sql.DB) *MenuStore {
	return &MenuStore{db: db}
}

const menuCols = `id, name, description, category, price, image_key, available, created_at, updated_at`

func scanMenuItem(scanner interface{ Scan(...any) error }) (*model.MenuItem, error) {
	var m model.MenuItem
	var available int
	err := scanner.Scan(&m.ID, &m.Name, &m.Description, &m.Category, &m.Price, &m.ImageKey, &available, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Available = available != 0
	return &m, nil
}

func (s *MenuStore) Create(name, description, category string, price int64) (*model.MenuItem, error) {
	result, err := s.db.Exec(
		`INSERT INTO menu_items (name, description, category, price) VALUES (?, ?, ?, ?)`,
		name, description, category, price,
	)
	if err != nil {
		return nil, fmt.Errorf("insert menu item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MenuStore) GetByID(id int64) (*model.MenuItem, error) {
	row := s.db.QueryRow(`SELECT `+menuCols+` FROM menu_items WHERE id = ?`, id)
	m, err := scanMenuItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	return m, nil
}

func (s *MenuStore) List() ([]model.MenuItem, error) {
	rows, err := s.db.Query(`SELECT ` + menuCols + ` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []model.MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

func (s *MenuStore) Update(id int64, name, description, category string, price int64, available bool) (*model.MenuItem, error) {
	var availableInt int
	if available {
		availableInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE menu_items SET name = ?, description = ?, category = ?, price = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		name, description, category, price, availableInt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update menu item: %w", err)
	}
	return s.GetByID(id)
}

func (s *MenuStore) SetImageKey(id int64, imageKey string) error {
	_, err := s.db.Exec(
		`UPDATE menu_items SET image_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		imageKey, id,
	)
	if err != nil {
		return fmt.Errorf("set menu item image: %w", err)
	}
	return nil
}

func (s *MenuStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM menu_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	return nil
}
