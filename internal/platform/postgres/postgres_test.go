package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/00001_create_enrollments.sql",
		"migrations/00002_create_outbox.sql",
		"migrations/00003_collate_sort_indexes.sql",
	}, names)
}

func TestSortIndexesUseScanCollation(t *testing.T) {
	raw, err := fs.ReadFile(migrations, "migrations/00003_collate_sort_indexes.sql")
	require.NoError(t, err)
	up, _, found := strings.Cut(string(raw), "-- +goose Down")
	require.True(t, found)

	assert.Contains(t, up, `(name COLLATE "C", id)`)
	assert.Contains(t, up, `(twitter_handle COLLATE "C", id)`)
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	t.Run("runs embedded dir", func(t *testing.T) {
		var gotDir string
		gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
			gotDir = dir
			return nil
		}
		require.NoError(t, Migrate(context.Background(), db))
		assert.Equal(t, "migrations", gotDir)
	})

	t.Run("wraps failures", func(t *testing.T) {
		boom := errors.New("boom")
		gooseUp = func(ctx context.Context, db *sql.DB, dir string) error { return boom }
		err := Migrate(context.Background(), db)
		require.ErrorIs(t, err, boom)
	})
}
