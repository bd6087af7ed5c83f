// Package events fans download progress out to live subscribers.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/italolelis/seafile_downloader/internal/transfer"
)

// ProgressEvent is the event name progress records are published under.
const ProgressEvent = "download-progress"

const (
	subscriberBuffer = 256
	// terminalReserve is the buffer tail only retrying and done events may use.
	terminalReserve = 32
)

// Broadcaster manages progress subscribers. It implements transfer.Emitter and never blocks
// the engine. Chunk progress for a lagging subscriber is dropped once its buffer is nearly full.
// Retrying and done events still get through, evicting the oldest buffered events if needed.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan transfer.Progress]struct{}
	dropped     atomic.Int64
}

var _ transfer.Emitter = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan transfer.Progress]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan transfer.Progress {
	ch := make(chan transfer.Progress, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan transfer.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}

	delete(b.subscribers, ch)
	close(ch)
}

// Emit publishes p to every subscriber.
func (b *Broadcaster) Emit(_ context.Context, p transfer.Progress) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		if p.Status == transfer.StatusDownloading {
			b.offer(ch, p)

			continue
		}

		b.deliver(ch, p)
	}
}

func (b *Broadcaster) offer(ch chan transfer.Progress, p transfer.Progress) {
	if len(ch) >= cap(ch)-terminalReserve {
		b.dropped.Add(1)

		return
	}

	select {
	case ch <- p:
	default:
		b.dropped.Add(1)
	}
}

func (b *Broadcaster) deliver(ch chan transfer.Progress, p transfer.Progress) {
	for {
		select {
		case ch <- p:
			return
		default:
		}

		select {
		case <-ch:
			b.dropped.Add(1)
		default:
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Marshal serializes a progress record for the wire.
func Marshal(p transfer.Progress) ([]byte, error) {
	return json.Marshal(p)
}
