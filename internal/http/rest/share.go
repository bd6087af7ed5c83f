package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/seafile_downloader/internal/downloader"
	"github.com/italolelis/seafile_downloader/internal/events"
	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/sharelink"
	"github.com/italolelis/seafile_downloader/internal/storage"
	"github.com/italolelis/seafile_downloader/internal/telemetry"
	"github.com/italolelis/seafile_downloader/internal/transfer"
	"github.com/italolelis/seafile_downloader/internal/tree"
)

const maxRequestBody = 1 << 20

const defaultHistoryLimit = 100

var errOutsideTarget = errors.New("save_path must stay inside the target directory")

// TreeDiscoverer lists the whole tree of a share.
type TreeDiscoverer interface {
	Discover(ctx context.Context, shareKey string, password *string) ([]transfer.FileNode, error)
}

// BatchDownloader downloads a batch of files from a share.
type BatchDownloader interface {
	DownloadBatch(ctx context.Context, shareKey string, items []transfer.DownloadItem, password *string) error
}

type ParseRequest struct {
	Link string `json:"link"`
}

type ParseResponse struct {
	ShareKey string `json:"share_key"`
}

type TreeRequest struct {
	ShareKey string  `json:"share_key"`
	Password *string `json:"password,omitempty"`
}

type TreeResponse struct {
	Nodes   []transfer.FileNode `json:"nodes"`
	Summary tree.Summary        `json:"summary"`
}

type DownloadRequest struct {
	ShareKey string                  `json:"share_key"`
	Items    []transfer.DownloadItem `json:"items"`
	// Select picks remote paths to download when Items is empty. The tree is discovered first.
	Select   []string `json:"select,omitempty"`
	Password *string  `json:"password,omitempty"`
}

type DownloadResponse struct {
	BatchID string `json:"batch_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	BatchID string `json:"batch_id,omitempty"`
}

// ShareHandler is the command surface a UI drives: parse a link, list its tree, download a
// selection and follow progress.
type ShareHandler struct {
	username    string
	password    string
	targetDir   string
	parser      *sharelink.Parser
	discoverer  TreeDiscoverer
	downloader  BatchDownloader
	broadcaster *events.Broadcaster
	history     storage.DownloadReadRepository
}

// NewShareHandler creates a new share handler. history may be nil when no database is configured.
func NewShareHandler(
	username, password, targetDir string,
	parser *sharelink.Parser,
	discoverer TreeDiscoverer,
	dl BatchDownloader,
	broadcaster *events.Broadcaster,
	history storage.DownloadReadRepository,
) *ShareHandler {
	return &ShareHandler{
		username:    username,
		password:    password,
		targetDir:   targetDir,
		parser:      parser,
		discoverer:  discoverer,
		downloader:  dl,
		broadcaster: broadcaster,
		history:     history,
	}
}

func (h *ShareHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/api/share/parse", h.HandleParse)
	r.Post("/api/share/tree", h.HandleTree)
	r.Post("/api/share/download", h.HandleDownload)
	r.Get("/api/events", h.HandleEvents)
	r.Get("/api/downloads", h.HandleDownloads)
	r.Get("/api/downloads/{batchID}", h.HandleBatch)

	return r
}

// HandleParse extracts the share key. An unrecognized link yields an empty key, not an error.
func (h *ShareHandler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decode(w, r, &req) {
		return
	}

	writeJSON(w, r, http.StatusOK, ParseResponse{ShareKey: h.parser.Parse(req.Link)})
}

func (h *ShareHandler) HandleTree(w http.ResponseWriter, r *http.Request) {
	var req TreeRequest
	if !decode(w, r, &req) {
		return
	}

	if req.ShareKey == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("share_key is required"), "")

		return
	}

	nodes, err := h.discoverer.Discover(r.Context(), req.ShareKey, req.Password)
	if err != nil {
		writeError(w, r, statusFor(err), err, "")

		return
	}

	if err := tree.Validate(nodes); err != nil {
		writeError(w, r, http.StatusBadGateway, fmt.Errorf("share returned an inconsistent tree: %w", err), "")

		return
	}

	writeJSON(w, r, http.StatusOK, TreeResponse{Nodes: nodes, Summary: tree.Summarize(nodes)})
}

// HandleDownload runs the batch to completion. Progress is streamed on /api/events while the
// request is open; the response carries the batch id for the history endpoints.
func (h *ShareHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req DownloadRequest
	if !decode(w, r, &req) {
		return
	}

	if req.ShareKey == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("share_key is required"), "")

		return
	}

	items, err := h.resolveItems(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err, "")

		return
	}

	if len(items) == 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("nothing to download"), "")

		return
	}

	batchID := telemetry.NewID()
	ctx := downloader.WithBatchID(r.Context(), batchID)

	logger.InfoContext(ctx, "download requested", "share_key", req.ShareKey, "batch_id", batchID, "files", len(items))

	if err := h.downloader.DownloadBatch(ctx, req.ShareKey, items, req.Password); err != nil {
		writeError(w, r, statusFor(err), err, batchID)

		return
	}

	writeJSON(w, r, http.StatusOK, DownloadResponse{BatchID: batchID})
}

func (h *ShareHandler) resolveItems(ctx context.Context, req DownloadRequest) ([]transfer.DownloadItem, error) {
	if len(req.Items) == 0 {
		if len(req.Select) == 0 {
			return nil, nil
		}

		if h.targetDir == "" {
			return nil, badRequest(errors.New("select needs a configured target directory; send items with save_path instead"))
		}

		nodes, err := h.discoverer.Discover(ctx, req.ShareKey, req.Password)
		if err != nil {
			return nil, err
		}

		return tree.Items(nodes, h.targetDir, req.Select...), nil
	}

	items := make([]transfer.DownloadItem, 0, len(req.Items))

	for _, item := range req.Items {
		if item.FilePath == "" {
			return nil, badRequest(errors.New("file_path is required"))
		}

		save, err := h.savePath(item)
		if err != nil {
			return nil, badRequest(err)
		}

		items = append(items, transfer.DownloadItem{FilePath: item.FilePath, SavePath: save})
	}

	return items, nil
}

// savePath keeps downloads under targetDir when one is configured. Without a target
// directory the caller's path is used as given.
func (h *ShareHandler) savePath(item transfer.DownloadItem) (string, error) {
	if h.targetDir == "" {
		if item.SavePath == "" {
			return "", errors.New("save_path is required")
		}

		return item.SavePath, nil
	}

	if item.SavePath == "" {
		return tree.SavePath(h.targetDir, item.FilePath), nil
	}

	save := item.SavePath
	if !filepath.IsAbs(save) {
		save = filepath.Join(h.targetDir, save)
	}

	rel, err := filepath.Rel(h.targetDir, save)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideTarget
	}

	return filepath.Clean(save), nil
}

// HandleEvents streams progress records as server-sent events until the client goes away.
func (h *ShareHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, errors.New("streaming not supported"), "")

		return
	}

	ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}

			data, err := events.Marshal(p)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.ProgressEvent, data)
			flusher.Flush()
		}
	}
}

func (h *ShareHandler) HandleDownloads(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusNotFound, errors.New("download history is disabled"), "")

		return
	}

	limit := defaultHistoryLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw), "")

			return
		}

		limit = n
	}

	records, err := h.history.GetDownloads(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err, "")

		return
	}

	writeJSON(w, r, http.StatusOK, nonNil(records))
}

func (h *ShareHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, http.StatusNotFound, errors.New("download history is disabled"), "")

		return
	}

	records, err := h.history.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err, "")

		return
	}

	if len(records) == 0 {
		writeError(w, r, http.StatusNotFound, errors.New("unknown batch"), "")

		return
	}

	writeJSON(w, r, http.StatusOK, records)
}

func (h *ShareHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="seafile_downloader"`)
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}
