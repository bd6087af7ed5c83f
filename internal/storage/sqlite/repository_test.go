package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/seafile_downloader/internal/storage"
)

func newTestRepo(t *testing.T) *InstrumentedDownloadRepository {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "downloads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewInstrumentedDownloadRepository(db, nil)
}

func TestRecordAndReadDownloads(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []storage.DownloadRecord{
		{BatchID: "b1", ShareKey: "k", FilePath: "/a.txt", SavePath: "/out/a.txt", Status: storage.StatusDownloaded, Bytes: 10, DownloadedAt: at},
		{BatchID: "b1", ShareKey: "k", FilePath: "/b.txt", SavePath: "/out/b.txt", Status: storage.StatusFailed, Error: "download failed: HTTP 500 (retried 3 times)", DownloadedAt: at},
		{BatchID: "b2", ShareKey: "k", FilePath: "/c.txt", SavePath: "/out/c.txt", Status: storage.StatusDownloaded, Bytes: 3},
	}

	for _, r := range records {
		require.NoError(t, repo.RecordDownload(ctx, r))
	}

	all, err := repo.GetDownloads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/c.txt", all[0].FilePath)
	assert.False(t, all[0].DownloadedAt.IsZero())

	limited, err := repo.GetDownloads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	batch, err := repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "/a.txt", batch[0].FilePath)
	assert.Equal(t, int64(10), batch[0].Bytes)
	assert.True(t, at.Equal(batch[0].DownloadedAt))
	assert.Equal(t, storage.StatusFailed, batch[1].Status)
	assert.Contains(t, batch[1].Error, "retried 3 times")

	none, err := repo.GetBatch(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.db")

	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, NewDownloadRepository(db).RecordDownload(context.Background(), storage.DownloadRecord{
		BatchID: "b", ShareKey: "k", FilePath: "/x", SavePath: "x", Status: storage.StatusDownloaded,
	}))
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewDownloadRepository(db).GetDownloads(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordDownload(ctx, storage.DownloadRecord{BatchID: "old", ShareKey: "k", FilePath: "/a", SavePath: "a", Status: storage.StatusDownloaded, DownloadedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.RecordDownload(ctx, storage.DownloadRecord{BatchID: "new", ShareKey: "k", FilePath: "/b", SavePath: "b", Status: storage.StatusDownloaded, DownloadedAt: now}))

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left, err := repo.GetDownloads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].BatchID)
}
