package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/seafile_downloader/internal/storage"
	"github.com/italolelis/seafile_downloader/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

var _ storage.DownloadRepository = (*InstrumentedDownloadRepository)(nil)

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

// GetDownloads retrieves recent downloads with telemetry.
func (r *InstrumentedDownloadRepository) GetDownloads(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_downloads", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetDownloads(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetBatch retrieves one batch with telemetry.
func (r *InstrumentedDownloadRepository) GetBatch(ctx context.Context, batchID string) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_batch", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetBatch(ctx, batchID)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RecordDownload stores an outcome with telemetry.
func (r *InstrumentedDownloadRepository) RecordDownload(ctx context.Context, record storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_download", func(ctx context.Context) error {
		return r.repo.RecordDownload(ctx, record)
	})
}

// DeleteOlderThan prunes history with telemetry.
func (r *InstrumentedDownloadRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64

	err := r.telemetry.InstrumentDBOperation(ctx, "delete_older_than", func(ctx context.Context) error {
		var err error
		deleted, err = r.repo.DeleteOlderThan(ctx, cutoff)

		return err
	})

	return deleted, err
}
