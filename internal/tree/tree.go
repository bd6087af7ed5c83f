// Package tree discovers the directory tree behind a share and turns selections into
// download items.
package tree

import (
	"context"
	"fmt"

	"github.com/italolelis/seafile_downloader/internal/logctx"
	"github.com/italolelis/seafile_downloader/internal/telemetry"
	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// Discoverer walks a share breadth first.
type Discoverer struct {
	sessions  transfer.SessionFactory
	telemetry *telemetry.Telemetry
}

func NewDiscoverer(sessions transfer.SessionFactory, tel *telemetry.Telemetry) *Discoverer {
	return &Discoverer{sessions: sessions, telemetry: tel}
}

// Discover returns every node of the share, root first, in breadth-first order.
//
// The password check happens before any listing: a locked share without a password fails
// with ErrPasswordRequired straight away. A supplied password is verified once, which
// establishes the session cookie the listing calls rely on.
func (d *Discoverer) Discover(ctx context.Context, shareKey string, password *string) ([]transfer.FileNode, error) {
	ctx, logger := logctx.With(ctx, "share_key", shareKey)

	var nodes []transfer.FileNode

	err := d.telemetry.InstrumentTreeDiscovery(ctx, func(ctx context.Context) error {
		client, err := d.sessions()
		if err != nil {
			return fmt.Errorf("failed to open share session: %w", err)
		}

		needs, err := client.NeedsPassword(ctx, shareKey)
		if err != nil {
			return err
		}

		if needs && password == nil {
			return transfer.ErrPasswordRequired
		}

		if password != nil {
			if err := client.VerifyPassword(ctx, shareKey, *password); err != nil {
				return err
			}
		}

		nodes, err = walk(ctx, client, shareKey, password)

		return err
	})
	if err != nil {
		logger.WarnContext(ctx, "tree discovery failed", "err", err)

		return nil, err
	}

	d.telemetry.RecordTreeSize(ctx, len(nodes))
	logger.InfoContext(ctx, "tree discovered", "summary", Summarize(nodes).String())

	return nodes, nil
}

func walk(ctx context.Context, client transfer.ShareClient, shareKey string, password *string) ([]transfer.FileNode, error) {
	logger := logctx.LoggerFromContext(ctx)

	nodes := []transfer.FileNode{Root()}
	queue := []string{transfer.RootID}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		dirents, err := client.ListDirents(ctx, shareKey, path, password)
		if err != nil {
			return nil, err
		}

		logger.DebugContext(ctx, "listed directory", "path", path, "entries", len(dirents))

		for _, d := range dirents {
			node := transfer.NodeFromDirent(path, d)
			nodes = append(nodes, node)

			if node.IsDir {
				queue = append(queue, node.ID)
			}
		}
	}

	return nodes, nil
}

// Root is the node every tree starts with.
func Root() transfer.FileNode {
	return transfer.FileNode{ID: transfer.RootID, Name: transfer.RootID, IsDir: true}
}
