package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*BackupService, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	svc := NewBackupService(storage, "test")
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, dir
}

func TestBackupService_CreateAndRestore(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	name, err := svc.CreateBackup(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, "watchlist-20240301-120001.000.json", name)
	assert.FileExists(t, filepath.Join(dir, name))

	data, err := svc.RestoreBackup(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "test", data.Version)
	assert.Equal(t, []string{"alice", "bob"}, data.Watchlist)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), data.Timestamp)
}

func TestBackupService_ListLatestPrune(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	var names []string
	for i := 0; i < 4; i++ {
		name, err := svc.CreateBackup(ctx, []string{"alice"})
		require.NoError(t, err)
		names = append(names, name)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	listed, err := svc.ListBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, names, listed)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, names[3], latest)

	removed, err := svc.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	listed, err = svc.ListBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, names[2:], listed)
	assert.FileExists(t, filepath.Join(dir, "unrelated.txt"))
}

func TestBackupService_LatestEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestBackupService_RestoreErrors(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	_, err := svc.RestoreBackup(ctx, "watchlist-missing.json")
	assert.Error(t, err)

	_, err = svc.RestoreBackup(ctx, "../escape.json")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "watchlist-bad.json"), []byte("{"), 0o644))
	_, err = svc.RestoreBackup(ctx, "watchlist-bad.json")
	assert.Error(t, err)
}
