package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

const subscriberColumns = `id, tenant_id, name, endpoint_url, secret, event_types,
	custom_headers, rate_limit_per_second, max_attempts, base_delay_ms,
	status, created_at, updated_at`

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.Name, &sub.EndpointURL, &sub.Secret,
		&sub.EventTypes, &sub.CustomHeaders, &sub.RateLimitPerSecond,
		&sub.MaxAttempts, &sub.BaseDelayMs, &sub.Status,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PostgresStore) CreateSubscriber(ctx context.Context, req domain.CreateSubscriberRequest) (*domain.Subscriber, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	if req.CustomHeaders == nil {
		req.CustomHeaders = map[string]string{}
	}

	sub, err := scanSubscriber(s.pool.QueryRow(ctx, `
		INSERT INTO subscribers (tenant_id, name, endpoint_url, secret, event_types,
			custom_headers, rate_limit_per_second, max_attempts, base_delay_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+subscriberColumns,
		req.TenantID, req.Name, req.EndpointURL, secret, req.EventTypes,
		req.CustomHeaders, req.RateLimitPerSecond, req.MaxAttempts, req.BaseDelayMs,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting subscriber: %w", err)
	}

	return sub, nil
}

func (s *PostgresStore) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscriber: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}

	return subscribers, rows.Err()
}

// ListEligible resolves the subscribers that should receive an event: active,
// subscribed to the event type, and — when the event is tenant-scoped —
// registered under the same tenant. An unscoped event matches every active
// subscription regardless of tenant.
func (s *PostgresStore) ListEligible(ctx context.Context, eventType string, tenantID *string) ([]domain.Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE status = $1
		  AND $2 = ANY(event_types)
		  AND ($3::text IS NULL OR tenant_id = $3)
		ORDER BY created_at
	`, domain.StatusActive, eventType, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying eligible subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		subscribers = append(subscribers, *sub)
	}

	return subscribers, rows.Err()
}

// SetStatus updates a subscriber's status. Idempotent: setting a subscriber
// to a status it already holds is a no-op, which keeps concurrent disable
// transitions from two exhausted chains safe.
func (s *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscribers SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("updating subscriber status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSubscriber(ctx context.Context, id string, req domain.UpdateSubscriberRequest) (*domain.Subscriber, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	addClause := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if req.Name != nil {
		addClause("name", *req.Name)
	}
	if req.EndpointURL != nil {
		addClause("endpoint_url", *req.EndpointURL)
	}
	if req.EventTypes != nil {
		addClause("event_types", *req.EventTypes)
	}
	if req.CustomHeaders != nil {
		addClause("custom_headers", *req.CustomHeaders)
	}
	if req.RateLimitPerSecond != nil {
		addClause("rate_limit_per_second", *req.RateLimitPerSecond)
	}
	if req.MaxAttempts != nil {
		addClause("max_attempts", *req.MaxAttempts)
	}
	if req.BaseDelayMs != nil {
		addClause("base_delay_ms", *req.BaseDelayMs)
	}
	if req.Status != nil {
		addClause("status", *req.Status)
	}

	if len(setClauses) == 0 {
		return s.GetSubscriber(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf(
		`UPDATE subscribers SET %s WHERE id = $%d RETURNING `+subscriberColumns,
		strings.Join(setClauses, ", "), argIdx,
	)
	args = append(args, id)

	sub, err := scanSubscriber(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating subscriber: %w", err)
	}

	return sub, nil
}

func generateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}
