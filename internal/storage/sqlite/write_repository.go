package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/seafile_downloader/internal/storage"
)

// DownloadWriteRepository implements storage.DownloadWriteRepository
// and stores download records in SQLite.
type DownloadWriteRepository struct {
	db *sql.DB
}

func NewDownloadWriteRepository(db *sql.DB) *DownloadWriteRepository {
	return &DownloadWriteRepository{db: db}
}

func (r *DownloadWriteRepository) RecordDownload(ctx context.Context, record storage.DownloadRecord) error {
	at := record.DownloadedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO downloads (batch_id, share_key, file_path, save_path, status, bytes, error, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.BatchID, record.ShareKey, record.FilePath, record.SavePath,
		record.Status, record.Bytes, record.Error, at.UTC().Format(time.RFC3339Nano),
	)

	return err
}

// DeleteOlderThan removes records downloaded before cutoff and returns how many went away.
func (r *DownloadWriteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE downloaded_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
