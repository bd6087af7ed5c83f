package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/storage"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// statusFor maps engine errors to HTTP statuses. Password outcomes keep their code as the
// message so a UI can prompt for the password.
func statusFor(err error) int {
	var bad *badRequestError

	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, transfer.ErrPasswordRequired):
		return http.StatusUnauthorized
	case errors.Is(err, transfer.ErrPasswordInvalid):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error, batchID string) {
	logger := logctx.LoggerFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "err", err)
	} else {
		logger.Debug("request rejected", "status", status, "err", err)
	}

	writeJSON(w, r, status, ErrorResponse{Error: err.Error(), BatchID: batchID})
}

func nonNil(records []storage.DownloadRecord) []storage.DownloadRecord {
	if records == nil {
		return []storage.DownloadRecord{}
	}

	return records
}
