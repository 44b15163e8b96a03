package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

const attemptColumns = `id, subscriber_id, event_id, event_type, payload,
	attempt_number, status_code, response, duration_ms, success, created_at`

func scanAttempt(row pgx.Row) (*domain.DeliveryAttempt, error) {
	var a domain.DeliveryAttempt
	err := row.Scan(
		&a.ID, &a.SubscriberID, &a.EventID, &a.EventType, &a.Payload,
		&a.AttemptNumber, &a.StatusCode, &a.Response, &a.DurationMs,
		&a.Success, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AppendAttempt inserts one delivery attempt into the log. The log is
// append-only: nothing in the dispatcher updates or deletes these rows.
func (s *PostgresStore) AppendAttempt(ctx context.Context, rec domain.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, subscriber_id, event_id, event_type,
			payload, attempt_number, status_code, response, duration_ms, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.SubscriberID, rec.EventID, rec.EventType, rec.Payload,
		rec.AttemptNumber, rec.StatusCode, rec.Response, rec.DurationMs,
		rec.Success, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

// ListRecent returns the most recent attempts for one subscriber, newest
// first, for operator-facing log retrieval.
func (s *PostgresStore) ListRecent(ctx context.Context, subscriberID string, limit int) ([]domain.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM delivery_attempts
		WHERE subscriber_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// ListAttempts returns delivery attempts with optional filtering.
func (s *PostgresStore) ListAttempts(ctx context.Context, subscriberID, eventID, eventType string, success *bool, limit int) ([]domain.DeliveryAttempt, error) {
	conditions := []string{}
	args := []interface{}{}
	argIdx := 1

	addCondition := func(column string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if subscriberID != "" {
		addCondition("subscriber_id", subscriberID)
	}
	if eventID != "" {
		addCondition("event_id", eventID)
	}
	if eventType != "" {
		addCondition("event_type", eventType)
	}
	if success != nil {
		addCondition("success", *success)
	}

	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// GetAttempt returns a single delivery attempt by ID.
func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*domain.DeliveryAttempt, error) {
	a, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM delivery_attempts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery attempt: %w", err)
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]domain.DeliveryAttempt, error) {
	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
