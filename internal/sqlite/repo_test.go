package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/confsync/internal/conference"
	"github.com/jdholdren/confsync/internal/migrations"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })

	require.NoError(t, migrations.Run(dbx))
	return New(dbx)
}

func TestRepo_SetGet(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	_, err := repo.Get(ctx, "conferenceId")
	require.ErrorIs(t, err, conference.ErrNotFound)

	require.NoError(t, repo.Set(ctx, "conferenceId", "c-2023"))
	require.NoError(t, repo.Set(ctx, "conferenceId", "c-2024"))

	got, err := repo.Get(ctx, "conferenceId")
	require.NoError(t, err)
	assert.Equal(t, "c-2024", got)
}

func TestRepo_Delete(t *testing.T) {
	var (
		ctx  = context.Background()
		repo = newTestRepo(t)
	)

	require.NoError(t, repo.Set(ctx, "conferenceId", "c-2024"))
	require.NoError(t, repo.Delete(ctx, "conferenceId"))
	require.NoError(t, repo.Delete(ctx, "conferenceId"))

	_, err := repo.Get(ctx, "conferenceId")
	assert.ErrorIs(t, err, conference.ErrNotFound)
}
