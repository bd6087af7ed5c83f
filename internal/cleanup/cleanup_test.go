package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	cutoff time.Time
	err    error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff

	return 2, f.err
}

func TestPruneHistory(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	p := &fakePruner{}

	assert.NoError(t, PruneHistory(context.Background(), p, 24*time.Hour, now))
	assert.Equal(t, now.Add(-24*time.Hour), p.cutoff)

	p.err = errors.New("locked")
	assert.EqualError(t, PruneHistory(context.Background(), p, time.Hour, now), "locked")
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		Run(ctx, &fakePruner{}, time.Hour, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
