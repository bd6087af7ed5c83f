package events

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// LogEmitter writes retries and completions to the context logger. Per-chunk progress is
// logged at debug level only.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, p transfer.Progress) {
	logger := logctx.LoggerFromContext(ctx).With("file_path", p.FilePath)

	switch p.Status {
	case transfer.StatusRetrying:
		var msg string
		if p.Error != nil {
			msg = *p.Error
		}

		logger.WarnContext(ctx, "retrying download", "err", msg)
	case transfer.StatusDone:
		logger.InfoContext(ctx, "download complete", "size", humanize.Bytes(uint64(p.Downloaded)))
	default:
		if pct := p.Percent(); pct >= 0 {
			logger.DebugContext(ctx, "download progress",
				"downloaded", humanize.Bytes(uint64(p.Downloaded)),
				"percent", humanize.FtoaWithDigits(pct, 2))
		}
	}
}
