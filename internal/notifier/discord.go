package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// maxContentLength is the Discord limit for a message body.
const maxContentLength = 2000

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	if len(content) > maxContentLength {
		content = content[:maxContentLength-3] + "..."
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// BatchMessage renders the outcome of a download batch.
func BatchMessage(shareKey string, files int, size int64, err error) string {
	if err == nil {
		return fmt.Sprintf("✅ Downloaded %d files (%s) from share %s", files, humanize.Bytes(uint64(size)), shareKey)
	}

	var batchErr *transfer.BatchError
	if errors.As(err, &batchErr) {
		paths := make([]string, 0, len(batchErr.Failures))
		for _, f := range batchErr.Failures {
			paths = append(paths, f.FilePath)
		}

		return fmt.Sprintf("❌ %d of %d files failed to download from share %s: %s",
			len(batchErr.Failures), files, shareKey, strings.Join(paths, ", "))
	}

	return fmt.Sprintf("❌ Download from share %s failed: %v", shareKey, err)
}
