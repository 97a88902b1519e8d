package generation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fitness-planner/internal/planservice"
)

// ErrNoResult is returned when no plan of a kind has been stored yet.
var ErrNoResult = errors.New("no stored plan")

// StoredResult is a plan kept locally after a successful generation.
type StoredResult struct {
	ID        int64
	Kind      planservice.Kind
	UserEmail string
	Plan      planservice.Plan
	CreatedAt time.Time
}

// ResultRepository is a database-backed repository for generated plans.
type ResultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(d *sql.DB) *ResultRepository {
	return &ResultRepository{db: d}
}

// Save inserts a plan.
func (r *ResultRepository) Save(ctx context.Context, kind planservice.Kind, email string, plan planservice.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal %s plan: %w", kind, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO plan_results (kind, user_email, plan_data, created_at)
		VALUES (?, ?, ?, ?)`,
		string(kind), email, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save %s plan: %w", kind, err)
	}
	return nil
}

// Latest returns the most recently stored plan of kind for email, or ErrNoResult.
func (r *ResultRepository) Latest(ctx context.Context, kind planservice.Kind, email string) (StoredResult, error) {
	results, err := r.ListRecent(ctx, kind, email, 1)
	if err != nil {
		return StoredResult{}, err
	}
	if len(results) == 0 {
		return StoredResult{}, ErrNoResult
	}
	return results[0], nil
}

// ListRecent retrieves the N most recent plans of kind saved for email. An
// empty email selects plans generated without an account.
func (r *ResultRepository) ListRecent(ctx context.Context, kind planservice.Kind, email string, limit int) ([]StoredResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, user_email, plan_data, created_at
		FROM plan_results
		WHERE kind = ? AND user_email = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		string(kind), email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent %s plans: %w", kind, err)
	}
	defer rows.Close()

	var results []StoredResult
	for rows.Next() {
		var (
			res      StoredResult
			kindText string
			data     string
		)
		if err := rows.Scan(&res.ID, &kindText, &res.UserEmail, &data, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stored plan: %w", err)
		}
		res.Kind = planservice.Kind(kindText)

		plan, err := planservice.DecodePlan(res.Kind, json.RawMessage(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored plan %d: %w", res.ID, err)
		}
		res.Plan = plan
		results = append(results, res)
	}
	return results, rows.Err()
}
