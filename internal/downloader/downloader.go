package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/italolelis/seafile_downloader/internal/downloader/progress"
	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/storage"
	"github.com/italolelis/seafile_downloader/internal/telemetry"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

const (
	dirPerm  = 0755
	filePerm = 0644

	maxAttempts = 3
	backoffStep = 500 * time.Millisecond

	chunkSize        = 32 * 1024
	logInterval      = 100 * 1024 * 1024 // 100MB
	maxErrorBodySize = 64 * 1024
)

// Downloader fetches batches of files from a share, one file at a time.
type Downloader struct {
	sessions  transfer.SessionFactory
	emitter   transfer.Emitter
	telemetry *telemetry.Telemetry
	history   storage.DownloadWriteRepository
	sleep     func(time.Duration)
}

type ctxKey struct{}

// WithBatchID makes DownloadBatch record its files under id instead of a generated one.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// BatchID returns the id set by WithBatchID, or "".
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)

	return id
}

type Option func(*Downloader)

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Downloader) { d.telemetry = tel }
}

// WithHistory records the final outcome of every file.
func WithHistory(repo storage.DownloadWriteRepository) Option {
	return func(d *Downloader) { d.history = repo }
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Downloader) { d.sleep = sleep }
}

func NewDownloader(sessions transfer.SessionFactory, emitter transfer.Emitter, opts ...Option) *Downloader {
	d := &Downloader{
		sessions: sessions,
		emitter:  emitter,
		sleep:    time.Sleep,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// DownloadBatch downloads items in order. A failing item never stops the batch: every item is
// attempted and the failures come back together as a *transfer.BatchError.
//
// A supplied password is verified once before the first item; its failure is returned as is.
func (d *Downloader) DownloadBatch(ctx context.Context, shareKey string, items []transfer.DownloadItem, password *string) error {
	batchID := BatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	ctx, logger := logctx.With(ctx, "share_key", shareKey, "batch_id", batchID)

	client, err := d.sessions()
	if err != nil {
		return fmt.Errorf("failed to open share session: %w", err)
	}

	if password != nil {
		if err := client.VerifyPassword(ctx, shareKey, *password); err != nil {
			d.telemetry.RecordBatch(ctx, telemetry.StatusOf(err))

			return err
		}
	}

	logger.InfoContext(ctx, "starting download batch", "files", len(items))

	var failures []transfer.ItemFailure

	for _, item := range items {
		start := time.Now()

		written, err := d.download(ctx, client, shareKey, item, password)

		d.record(ctx, storage.DownloadRecord{
			BatchID:      batchID,
			ShareKey:     shareKey,
			FilePath:     item.FilePath,
			SavePath:     item.SavePath,
			Status:       outcome(err),
			Bytes:        written,
			Error:        errorText(err),
			DownloadedAt: time.Now(),
		})

		if err != nil {
			logger.ErrorContext(ctx, "failed to download file", "file_path", item.FilePath, "err", err)
			failures = append(failures, transfer.ItemFailure{FilePath: item.FilePath, Err: err})

			continue
		}

		logger.InfoContext(ctx, "downloaded and saved file",
			"file_path", item.FilePath,
			"target", item.SavePath,
			"size", humanize.Bytes(uint64(written)),
			"duration", time.Since(start).Round(time.Millisecond))
	}

	if len(failures) > 0 {
		batchErr := &transfer.BatchError{Failures: failures}
		d.telemetry.RecordBatch(ctx, telemetry.StatusError)
		logger.WarnContext(ctx, "download batch finished with failures", "failed", len(failures), "files", len(items))

		return batchErr
	}

	d.telemetry.RecordBatch(ctx, telemetry.StatusSuccess)
	logger.InfoContext(ctx, "download batch finished", "files", len(items))

	return nil
}

func (d *Downloader) download(ctx context.Context, client transfer.ShareClient, shareKey string, item transfer.DownloadItem, password *string) (int64, error) {
	var written int64

	err := d.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		var err error
		written, err = d.downloadWithRetry(ctx, client, shareKey, item, password)

		return err
	})

	return written, err
}

// downloadWithRetry gives an item maxAttempts tries with a linear backoff between them.
// Password outcomes end the item at once.
func (d *Downloader) downloadWithRetry(ctx context.Context, client transfer.ShareClient, shareKey string, item transfer.DownloadItem, password *string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("file_path", item.FilePath)

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		written, err := d.downloadSingle(ctx, client, shareKey, item, password)
		if err == nil {
			return written, nil
		}

		if transfer.IsPasswordError(err) {
			return 0, err
		}

		lastErr = err
		msg := err.Error()

		d.telemetry.RecordRetry(ctx)
		d.emit(ctx, transfer.Progress{FilePath: item.FilePath, Status: transfer.StatusRetrying, Error: &msg})

		if attempt < maxAttempts {
			wait := backoff(attempt)
			logger.WarnContext(ctx, "download attempt failed, retrying", "attempt", attempt, "backoff", wait, "err", err)
			d.sleep(wait)
		}
	}

	return 0, &transfer.RetryExhaustedError{FilePath: item.FilePath, Attempts: maxAttempts, Err: lastErr}
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * backoffStep
}

// downloadSingle makes one attempt, resuming from whatever is already on disk.
func (d *Downloader) downloadSingle(ctx context.Context, client transfer.ShareClient, shareKey string, item transfer.DownloadItem, password *string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	if err := ensureTargetDir(ctx, item.SavePath); err != nil {
		return 0, err
	}

	offset := existingSize(item.SavePath)

	resp, err := client.FetchFile(ctx, shareKey, item.FilePath, password, offset)
	if err != nil {
		return 0, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		discard(resp)

		logger.InfoContext(ctx, "local file does not match remote, downloading again",
			"file_path", item.FilePath, "local_size", humanize.Bytes(uint64(offset)))

		if err := os.Remove(item.SavePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "failed to remove partial file", "target", item.SavePath, "err", err)
		}

		offset = 0

		resp, err = client.FetchFile(ctx, shareKey, item.FilePath, password, 0)
		if err != nil {
			return 0, err
		}
	}

	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return 0, failure(client, resp, password != nil)
	}

	return d.stream(ctx, resp, item, offset)
}

// stream writes the body to disk, emitting progress after every chunk and one done event at
// the end. A server that ignores the range and answers 200 gets the file rewritten from zero.
func (d *Downloader) stream(ctx context.Context, resp *http.Response, item transfer.DownloadItem, offset int64) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	var total *int64

	if resp.ContentLength >= 0 {
		t := resp.ContentLength
		total = &t
	}

	if offset > 0 && resp.StatusCode == http.StatusPartialContent {
		if total != nil {
			*total += offset
		}
	} else {
		offset = 0
	}

	out, err := openTarget(item.SavePath, offset)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	logger.InfoContext(ctx, "downloading file",
		"file_path", item.FilePath,
		"resume_from", humanize.Bytes(uint64(offset)),
		"file_size", sizeLabel(total))

	var lastLog int64

	pw := progress.NewWriter(out, offset, func(written int64) {
		d.emit(ctx, transfer.Progress{FilePath: item.FilePath, Downloaded: written, Total: total, Status: transfer.StatusDownloading})

		if written-lastLog >= logInterval {
			lastLog = written
			logger.DebugContext(ctx, "download progress",
				"file_path", item.FilePath,
				"downloaded", humanize.Bytes(uint64(written)),
				"total", sizeLabel(total))
		}
	})

	buf := make([]byte, chunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := pw.Write(buf[:n]); err != nil {
				return pw.Written(), &transfer.FileSystemError{Op: "write file", Path: item.SavePath, Err: err}
			}

			d.telemetry.AddDownloadedBytes(ctx, int64(n))
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return pw.Written(), &transfer.NetworkError{Operation: "download_stream", Err: readErr}
		}
	}

	d.emit(ctx, transfer.Progress{FilePath: item.FilePath, Downloaded: pw.Written(), Total: total, Status: transfer.StatusDone})

	return pw.Written(), nil
}

func (d *Downloader) emit(ctx context.Context, p transfer.Progress) {
	if d.emitter != nil {
		d.emitter.Emit(ctx, p)
	}
}

func (d *Downloader) record(ctx context.Context, record storage.DownloadRecord) {
	if d.history == nil {
		return
	}

	if err := d.history.RecordDownload(ctx, record); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record download", "file_path", record.FilePath, "err", err)
		d.telemetry.RecordSystemError("history", "record_download")
	}
}

func ensureTargetDir(ctx context.Context, targetPath string) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to create target directory", "dir", dir, "err", err)

		return &transfer.FileSystemError{Op: "create directory", Path: dir, Err: err}
	}

	return nil
}

func existingSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}

	return info.Size()
}

func openTarget(path string, offset int64) (*os.File, error) {
	if offset > 0 {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
		if err != nil {
			return nil, &transfer.FileSystemError{Op: "open file", Path: path, Err: err}
		}

		return f, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, &transfer.FileSystemError{Op: "create file", Path: path, Err: err}
	}

	return f, nil
}

// failure maps a non-success download response to a password outcome or an HTTP error.
func failure(client transfer.ShareClient, resp *http.Response, hadPassword bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	if err := client.Classify(resp.StatusCode, string(body), hadPassword); err != nil {
		return err
	}

	return &transfer.NetworkError{Operation: "download", StatusCode: resp.StatusCode}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func outcome(err error) string {
	if err != nil {
		return storage.StatusFailed
	}

	return storage.StatusDownloaded
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func sizeLabel(total *int64) string {
	if total == nil {
		return "unknown"
	}

	return humanize.Bytes(uint64(*total))
}
