package storage

import (
	"context"
	"time"
)

// Statuses stored for a file once its retries are over.
const (
	StatusDownloaded = "downloaded"
	StatusFailed     = "failed"
)

// DownloadRecord is the final outcome of one file of a download batch.
type DownloadRecord struct {
	ID           int64     `json:"id"`
	BatchID      string    `json:"batch_id"`
	ShareKey     string    `json:"share_key"`
	FilePath     string    `json:"file_path"`
	SavePath     string    `json:"save_path"`
	Status       string    `json:"status"`
	Bytes        int64     `json:"bytes"`
	Error        string    `json:"error,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

type DownloadReadRepository interface {
	// GetDownloads returns the most recent records first. A limit <= 0 returns everything.
	GetDownloads(ctx context.Context, limit int) ([]DownloadRecord, error)
	GetBatch(ctx context.Context, batchID string) ([]DownloadRecord, error)
}

type DownloadWriteRepository interface {
	RecordDownload(ctx context.Context, record DownloadRecord) error
}

// DownloadPruner removes history that is no longer wanted.
type DownloadPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
	DownloadPruner
}
