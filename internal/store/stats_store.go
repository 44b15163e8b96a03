package store

import (
	"context"
	"fmt"

	"github.com/voltfleet/webhook-dispatcher/internal/domain"
)

// DeliveryStats holds aggregated delivery statistics for the dashboard.
type DeliveryStats struct {
	TotalAttempts       int     `json:"total_attempts"`
	SuccessCount        int     `json:"success_count"`
	FailedCount         int     `json:"failed_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgDurationMs       float64 `json:"avg_duration_ms"`
	ActiveSubscribers   int     `json:"active_subscribers"`
	DisabledSubscribers int     `json:"disabled_subscribers"`
}

// GetDeliveryStats returns aggregated delivery statistics.
func (s *PostgresStore) GetDeliveryStats(ctx context.Context) (*DeliveryStats, error) {
	var stats DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE success) AS succeeded,
			COUNT(*) FILTER (WHERE NOT success) AS failed,
			COALESCE(AVG(duration_ms) FILTER (WHERE duration_ms > 0), 0) AS avg_duration_ms
		FROM delivery_attempts
	`).Scan(&stats.TotalAttempts, &stats.SuccessCount, &stats.FailedCount, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2)
		FROM subscribers
	`, domain.StatusActive, domain.StatusDisabled).Scan(&stats.ActiveSubscribers, &stats.DisabledSubscribers)
	if err != nil {
		return nil, fmt.Errorf("querying subscriber counts: %w", err)
	}

	return &stats, nil
}
