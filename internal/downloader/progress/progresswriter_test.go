package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReportsCumulativeBytes(t *testing.T) {
	var (
		buf  bytes.Buffer
		seen []int64
	)

	w := NewWriter(&buf, 100, func(written int64) { seen = append(seen, written) })

	for _, chunk := range []string{"abc", "", "de"} {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}

	assert.Equal(t, []int64{103, 105}, seen)
	assert.Equal(t, int64(105), w.Written())
	assert.Equal(t, "abcde", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 1, errors.New("disk full") }

func TestWriterCountsPartialWrites(t *testing.T) {
	calls := 0
	w := NewWriter(failingWriter{}, 0, func(int64) { calls++ })

	n, err := w.Write([]byte("xyz"))
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), w.Written())
	assert.Equal(t, 1, calls)
}
