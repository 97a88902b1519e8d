package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcomes of a generation call.
const (
	OutcomeSuccess = "success"
	OutcomeService = "service_error"
	OutcomeEmpty   = "empty_result"
	OutcomeNetwork = "network_error"
	OutcomeRequest = "request_error"
)

// ExecutionMetric records metadata for a single plan generation call.
type ExecutionMetric struct {
	Kind      string
	Outcome   string
	LatencyMS int64
	Timestamp time.Time
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m ExecutionMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_metrics (kind, outcome, latency_ms, timestamp)
		VALUES (?, ?, ?, ?)`,
		m.Kind, m.Outcome, m.LatencyMS, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

// DailyUsage summarises the generation calls of one day and kind.
type DailyUsage struct {
	Date         string
	Kind         string
	Total        int
	Failures     int
	AvgLatencyMS int64
}

// GetDailyUsage retrieves usage for the last N days, newest day first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day,
		       kind,
		       COUNT(*),
		       SUM(CASE WHEN outcome = ? THEN 0 ELSE 1 END),
		       AVG(latency_ms)
		FROM generation_metrics
		WHERE timestamp >= ?
		GROUP BY day, kind
		ORDER BY day DESC, kind`,
		OutcomeSuccess, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var (
			u   DailyUsage
			day sql.NullString
			avg sql.NullFloat64
		)
		if err := rows.Scan(&day, &u.Kind, &u.Total, &u.Failures, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}

		u.Date = "Unknown"
		if day.Valid {
			u.Date = day.String
		}
		if avg.Valid {
			u.AvgLatencyMS = int64(avg.Float64)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}
	return res.RowsAffected()
}
