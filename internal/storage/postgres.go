package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds connection settings for the PostgreSQL backend.
type PostgresConfig struct {
	URL           string
	MaxConns      int32
	RetryAttempts int
	RetryInterval time.Duration
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id           TEXT PRIMARY KEY,
    endpoint     TEXT NOT NULL UNIQUE,
    payload      JSONB NOT NULL DEFAULT '{}'::jsonb,
    display_name TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_created ON subscriptions(created_at, id);

CREATE TABLE IF NOT EXISTS action_responses (
    id          BIGSERIAL PRIMARY KEY,
    action      TEXT NOT NULL,
    received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_responses_received ON action_responses(received_at);
`

// NewPostgresPool connects to PostgreSQL, retrying with a linear backoff, and
// ensures the schema exists.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres: connection URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	attempts := max(cfg.RetryAttempts, 1)
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var lastErr error
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				if _, err = pool.Exec(ctx, postgresSchema); err == nil {
					return pool, nil
				}
				err = fmt.Errorf("creating schema: %w", err)
			}
			pool.Close()
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * interval):
			}
		}
	}
	return nil, fmt.Errorf("connecting to postgres: %w", lastErr)
}

// PostgresStore implements SubscriptionStore and ResponseStore on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a PostgresStore using pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert inserts sub or replaces the row with the same endpoint.
func (s *PostgresStore) Upsert(ctx context.Context, sub *Subscription) error {
	payload := string(sub.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, endpoint, payload, display_name, created_at)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE SET
			id           = EXCLUDED.id,
			payload      = EXCLUDED.payload,
			display_name = EXCLUDED.display_name,
			created_at   = EXCLUDED.created_at`,
		sub.ID, sub.Endpoint, payload, sub.DisplayName, sub.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}

// DeleteByEndpoint removes the subscription for endpoint, if any.
func (s *PostgresStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM subscriptions WHERE endpoint = $1", endpoint); err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// List returns all subscriptions ordered by created_at ascending.
func (s *PostgresStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint, payload::text, display_name, created_at
		FROM subscriptions
		ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, endpoint, payload::text, display_name, created_at
		FROM subscriptions
		WHERE id = $1`, id)
	var (
		sub     Subscription
		payload string
	)
	err := row.Scan(&sub.ID, &sub.Endpoint, &payload, &sub.DisplayName, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning subscription row: %w", err)
	}
	sub.Payload = []byte(payload)
	return &sub, nil
}

// LogResponse inserts an action response.
func (s *PostgresStore) LogResponse(ctx context.Context, resp ActionResponse) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO action_responses (action, received_at) VALUES ($1, $2)",
		resp.Action, resp.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting action response: %w", err)
	}
	return nil
}

// ListResponses returns the most recent responses, newest first.
func (s *PostgresStore) ListResponses(ctx context.Context, limit int) ([]ActionResponse, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, received_at
		FROM action_responses
		ORDER BY received_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying action responses: %w", err)
	}
	defer rows.Close()

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
