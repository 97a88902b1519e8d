package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_AppliesMigrations(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "fitness.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"profile_kv", "plan_results", "generation_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestNewDB_IsReopenable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fitness.db")

	first, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestInTx(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "fitness.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	insert := func(tx *sql.Tx, key string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO profile_kv (key, value, updated_at) VALUES (?, ?, ?)`, key, "v", time.Now().UTC())
		return err
	}

	t.Run("Commit", func(t *testing.T) {
		require.NoError(t, InTx(ctx, db.SQL, func(tx *sql.Tx) error { return insert(tx, "name") }))

		var count int
		require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM profile_kv WHERE key = 'name'`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := InTx(ctx, db.SQL, func(tx *sql.Tx) error {
			if err := insert(tx, "goal"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		var count int
		require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM profile_kv WHERE key = 'goal'`).Scan(&count))
		assert.Zero(t, count)
	})
}
