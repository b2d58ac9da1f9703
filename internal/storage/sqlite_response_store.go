package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultResponseLimit = 50

// SQLiteResponseStore implements ResponseStore backed by SQLite.
type SQLiteResponseStore struct {
	db *sql.DB
}

// NewSQLiteResponseStore returns a new SQLiteResponseStore.
func NewSQLiteResponseStore(db *sql.DB) *SQLiteResponseStore {
	return &SQLiteResponseStore{db: db}
}

// LogResponse inserts an action response into the database.
func (s *SQLiteResponseStore) LogResponse(ctx context.Context, resp ActionResponse) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO action_responses (action, received_at) VALUES (?, ?)",
		resp.Action, resp.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting action response: %w", err)
	}
	return nil
}

// ListResponses returns the most recent responses ordered by received_at descending.
func (s *SQLiteResponseStore) ListResponses(ctx context.Context, limit int) ([]ActionResponse, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, received_at
		FROM action_responses
		ORDER BY received_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying action responses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	responses := make([]ActionResponse, 0)
	for rows.Next() {
		var r ActionResponse
		if err := rows.Scan(&r.ID, &r.Action, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scanning action response row: %w", err)
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating action response rows: %w", err)
	}
	return responses, nil
}
