package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/seafile_downloader/internal/storage"
)

const selectColumns = `SELECT id, batch_id, share_key, file_path, save_path, status, bytes, error, downloaded_at FROM downloads`

type DownloadReadRepository struct {
	db *sql.DB
}

func NewDownloadReadRepository(dbConn *sql.DB) *DownloadReadRepository {
	return &DownloadReadRepository{db: dbConn}
}

func (r *DownloadReadRepository) GetDownloads(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetBatch returns the records of one batch in the order the files were processed.
func (r *DownloadReadRepository) GetBatch(ctx context.Context, batchID string) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]storage.DownloadRecord, error) {
	var downloads []storage.DownloadRecord

	for rows.Next() {
		var (
			record storage.DownloadRecord
			at     string
		)

		if err := rows.Scan(&record.ID, &record.BatchID, &record.ShareKey, &record.FilePath,
			&record.SavePath, &record.Status, &record.Bytes, &record.Error, &at); err != nil {
			return nil, err
		}

		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("invalid downloaded_at %q: %w", at, err)
		}

		record.DownloadedAt = parsed
		downloads = append(downloads, record)
	}

	return downloads, rows.Err()
}
