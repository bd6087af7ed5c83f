package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

func TestDiscordNotify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := &DiscordNotifier{WebhookURL: srv.URL, Client: srv.Client()}
	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, "hello", got["content"])

	require.NoError(t, n.Notify(context.Background(), strings.Repeat("x", 3000)))
	assert.Len(t, got["content"], maxContentLength)
}

func TestDiscordNotifyErrors(t *testing.T) {
	assert.EqualError(t, (&DiscordNotifier{}).Notify(context.Background(), "x"), "webhook URL is not set")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := (&DiscordNotifier{WebhookURL: srv.URL}).Notify(context.Background(), "x")
	assert.EqualError(t, err, "webhook failed with status 429")
}

func TestBatchMessage(t *testing.T) {
	assert.Equal(t, "✅ Downloaded 2 files (1.5 kB) from share k", BatchMessage("k", 2, 1500, nil))

	batchErr := &transfer.BatchError{Failures: []transfer.ItemFailure{
		{FilePath: "/a", Err: errors.New("x")},
		{FilePath: "/c", Err: errors.New("y")},
	}}
	assert.Equal(t, "❌ 2 of 3 files failed to download from share k: /a, /c", BatchMessage("k", 3, 0, batchErr))

	assert.Equal(t, "❌ Download from share k failed: PASSWORD_INVALID", BatchMessage("k", 3, 0, transfer.ErrPasswordInvalid))
}
