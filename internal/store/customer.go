package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CustomerStore keeps optional shopper display names keyed by email.
type CustomerStore struct {
	db    *sql.DB
	title cases.Caser
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db, title: cases.Title(language.Und)}
}

// Upsert stores a display name for email. Blank names are ignored.
func (s *CustomerStore) Upsert(ctx context.Context, email, name string) error {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil
	}
	name = s.title.String(name)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (email, display_name, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`,
		email, name, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// DisplayName returns the stored name for email, or "" if none is known.
func (s *CustomerStore) DisplayName(ctx context.Context, email string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT display_name FROM customers WHERE email = ?`, email).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get customer name: %w", err)
	}
	return name, nil
}
