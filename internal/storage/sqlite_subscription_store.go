package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteSubscriptionStore implements SubscriptionStore backed by SQLite.
type SQLiteSubscriptionStore struct {
	db *sql.DB
}

// NewSQLiteSubscriptionStore returns a new SQLiteSubscriptionStore.
func NewSQLiteSubscriptionStore(db *sql.DB) *SQLiteSubscriptionStore {
	return &SQLiteSubscriptionStore{db: db}
}

// Upsert inserts sub or replaces the row holding the same endpoint in a single
// statement, so a re-registered browser never leaves its old keys behind.
func (s *SQLiteSubscriptionStore) Upsert(ctx context.Context, sub *Subscription) error {
	payload := string(sub.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, endpoint, payload, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			id           = excluded.id,
			payload      = excluded.payload,
			display_name = excluded.display_name,
			created_at   = excluded.created_at`,
		sub.ID, sub.Endpoint, payload, sub.DisplayName, sub.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}

// DeleteByEndpoint removes the subscription for endpoint, if any.
func (s *SQLiteSubscriptionStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE endpoint = ?", endpoint); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// List returns all subscriptions ordered by created_at ascending.
func (s *SQLiteSubscriptionStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, payload, display_name, created_at
		FROM subscriptions
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make([]Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscription rows: %w", err)
	}
	return subs, nil
}

// Get returns the subscription with the given id, or nil if not found.
func (s *SQLiteSubscriptionStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, endpoint, payload, display_name, created_at
		FROM subscriptions
		WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub     Subscription
		payload string
	)
	if err := row.Scan(&sub.ID, &sub.Endpoint, &payload, &sub.DisplayName, &sub.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning subscription row: %w", err)
	}
	sub.Payload = []byte(payload)
	return &sub, nil
}
