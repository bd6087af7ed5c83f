package transfer

import (
	"context"
	"net/http"
)

// RootID is the id of the share's root directory node.
const RootID = "/"

// ShareClient talks to one share on behalf of a single operation. Implementations carry the
// session cookie between calls, so a client must not be reused across operations.
type ShareClient interface {
	NeedsPassword(ctx context.Context, shareKey string) (bool, error)
	VerifyPassword(ctx context.Context, shareKey, password string) error
	ListDirents(ctx context.Context, shareKey, path string, password *string) ([]Dirent, error)
	FetchFile(ctx context.Context, shareKey, filePath string, password *string, offset int64) (*http.Response, error)
	Classify(status int, body string, hadPassword bool) error
}

// SessionFactory opens a fresh ShareClient for one top-level operation.
type SessionFactory func() (ShareClient, error)

// Dirent is one entry returned by the share's directory listing.
type Dirent struct {
	IsDir      bool   `json:"is_dir"`
	FolderPath string `json:"folder_path"`
	FolderName string `json:"folder_name"`
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	Size       int64  `json:"size"`
}

// FileNode is a flattened tree entry. ID doubles as the remote path.
type FileNode struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Parent *string `json:"parent"`
	IsDir  bool    `json:"is_dir"`
	Size   int64   `json:"size"`
}

// IsRoot reports whether the node is the share root.
func (n FileNode) IsRoot() bool {
	return n.Parent == nil
}

// NodeFromDirent converts a listing entry found under parent into a FileNode.
func NodeFromDirent(parent string, d Dirent) FileNode {
	p := parent

	if d.IsDir {
		return FileNode{ID: d.FolderPath, Name: d.FolderName, Parent: &p, IsDir: true}
	}

	return FileNode{ID: d.FilePath, Name: d.FileName, Parent: &p, Size: d.Size}
}

// DownloadItem maps a remote file to the local path it is saved to.
type DownloadItem struct {
	FilePath string `json:"file_path"`
	SavePath string `json:"save_path"`
}

// Status is the state carried by a progress event.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusRetrying    Status = "retrying"
	StatusDone        Status = "done"
)

// IsTerminal returns true for the last event a successful file emits.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// Progress is a single event in a file's progress stream.
type Progress struct {
	FilePath   string  `json:"file_path"`
	Downloaded int64   `json:"downloaded"`
	Total      *int64  `json:"total"`
	Status     Status  `json:"status"`
	Error      *string `json:"error"`
}

// Percent returns the completion percentage, or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.Total == nil || *p.Total <= 0 {
		return -1
	}

	return float64(p.Downloaded) * 100 / float64(*p.Total)
}

// Emitter receives progress events. Emit is fire-and-forget: it must not block the
// engine indefinitely and has no way to report delivery failures.
type Emitter interface {
	Emit(ctx context.Context, p Progress)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, p Progress)

func (f EmitterFunc) Emit(ctx context.Context, p Progress) {
	f(ctx, p)
}

// MultiEmitter fans an event out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, p Progress) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, p)
		}
	}
}
