package tree

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// Summary counts what a tree holds. Directory sizes are not aggregated by the server, so
// TotalSize is the sum of file sizes.
type Summary struct {
	Files     int   `json:"files"`
	Dirs      int   `json:"dirs"`
	TotalSize int64 `json:"total_size"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files in %d folders, %s total", s.Files, s.Dirs, humanize.Bytes(uint64(s.TotalSize)))
}

// Summarize counts the files, folders and bytes of nodes. The root is not counted as a folder.
func Summarize(nodes []transfer.FileNode) Summary {
	var s Summary

	for _, n := range nodes {
		switch {
		case n.IsRoot():
		case n.IsDir:
			s.Dirs++
		default:
			s.Files++
			s.TotalSize += n.Size
		}
	}

	return s
}

// Items maps the selected nodes to download items saved under saveDir, keeping the remote
// layout. A selected directory brings every file below it. No selection means everything.
// Items keep the order of nodes.
func Items(nodes []transfer.FileNode, saveDir string, selected ...string) []transfer.DownloadItem {
	var items []transfer.DownloadItem

	for _, n := range nodes {
		if n.IsDir || !isSelected(n.ID, selected) {
			continue
		}

		items = append(items, transfer.DownloadItem{
			FilePath: n.ID,
			SavePath: SavePath(saveDir, n.ID),
		})
	}

	return items
}

// SavePath places a remote file under saveDir.
func SavePath(saveDir, remotePath string) string {
	return filepath.Join(saveDir, filepath.FromSlash(strings.TrimPrefix(remotePath, "/")))
}

func isSelected(id string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}

	for _, sel := range selected {
		if sel == "" {
			continue
		}

		if id == sel {
			return true
		}

		prefix := strings.TrimSuffix(sel, "/") + "/"
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}

	return false
}

var (
	ErrNoRoot        = errors.New("tree has no root")
	ErrMultipleRoots = errors.New("tree has more than one root")
)

// Validate checks that nodes form a single tree: one parentless directory root and every
// other node attached to a directory present in the set.
func Validate(nodes []transfer.FileNode) error {
	dirs := make(map[string]bool, len(nodes))
	roots := 0

	for _, n := range nodes {
		if n.IsRoot() {
			if !n.IsDir {
				return fmt.Errorf("root %q is not a directory", n.ID)
			}

			roots++
		}

		if n.IsDir {
			dirs[n.ID] = true
		}
	}

	switch {
	case roots == 0:
		return ErrNoRoot
	case roots > 1:
		return ErrMultipleRoots
	}

	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}

		if !dirs[*n.Parent] {
			return fmt.Errorf("node %q references missing parent %q", n.ID, *n.Parent)
		}

		if n.IsDir && n.Size != 0 {
			return fmt.Errorf("directory %q has size %d", n.ID, n.Size)
		}
	}

	return nil
}
