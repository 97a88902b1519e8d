package profile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fitness-planner/internal/database"
)

// Repository is a database-backed KV for the profile.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// Load returns every persisted profile value.
func (r *Repository) Load(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM profile_kv`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan profile value: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// Put upserts set and removes del in one transaction.
func (r *Repository) Put(ctx context.Context, set map[string]string, del []string) error {
	now := time.Now().UTC()
	return database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		for key, value := range set {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO profile_kv (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, now)
			if err != nil {
				return fmt.Errorf("failed to write profile value %s: %w", key, err)
			}
		}
		for _, key := range del {
			if _, err := tx.ExecContext(ctx, `DELETE FROM profile_kv WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to delete profile value %s: %w", key, err)
			}
		}
		return nil
	})
}
