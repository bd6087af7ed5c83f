package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// OutcomeCode is a password outcome surfaced verbatim to hosts so they can prompt
// for a password.
type OutcomeCode string

func (c OutcomeCode) Error() string {
	return string(c)
}

// Outcome is the metrics label for the code.
func (c OutcomeCode) Outcome() string {
	return strings.ToLower(string(c))
}

var (
	ErrPasswordRequired error = OutcomeCode("PASSWORD_REQUIRED")
	ErrPasswordInvalid  error = OutcomeCode("PASSWORD_INVALID")
)

// IsPasswordError reports whether err carries one of the password outcome codes.
// Password problems are terminal: retrying cannot fix them.
func IsPasswordError(err error) bool {
	return errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrPasswordInvalid)
}

// NetworkError represents transport failures and non-password HTTP failures
// returned by the share backend.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "list_dirents", "download")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	action := operationLabel(e.Operation)

	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed: HTTP %d", action, e.StatusCode)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", action, e.Err)
	}

	return action + " failed"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func operationLabel(op string) string {
	switch op {
	case "list_dirents":
		return "list directory"
	case "verify_password":
		return "verify password"
	case "check_password":
		return "check share page"
	case "":
		return "request"
	default:
		return strings.ReplaceAll(op, "_", " ")
	}
}

// FileSystemError represents local failures while preparing or writing a download.
type FileSystemError struct {
	Op   string // e.g. "create directory", "open file", "write file"
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned once a file used up its attempt budget.
type RetryExhaustedError struct {
	FilePath string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%v (retried %d times)", e.Err, e.Attempts)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// ItemFailure pairs a remote path with the error that ended its download.
type ItemFailure struct {
	FilePath string
	Err      error
}

// BatchError aggregates every failed item of a download batch.
type BatchError struct {
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %v", f.FilePath, f.Err))
	}

	return "some files failed to download: " + strings.Join(msgs, "; ")
}

// Unwrap exposes every item error so errors.Is finds password outcomes inside a batch.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}

	return errs
}
