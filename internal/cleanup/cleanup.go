package cleanup

import (
	"context"
	"time"

	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/storage"
)

// PruneHistory deletes download records older than keep. Downloaded files are never touched.
func PruneHistory(ctx context.Context, repo storage.DownloadPruner, keep time.Duration, now time.Time) error {
	logger := logctx.LoggerFromContext(ctx)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-keep))
	if err != nil {
		logger.Error("failed to prune download history", "err", err)

		return err
	}

	if deleted > 0 {
		logger.Info("pruned download history", "records", deleted, "retention", keep.String())
	}

	return nil
}

// Run prunes on every tick until ctx is done.
func Run(ctx context.Context, repo storage.DownloadPruner, keep, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history cleanup shutting down")

			return
		case now := <-ticker.C:
			_ = PruneHistory(ctx, repo, keep, now)
		}
	}
}
