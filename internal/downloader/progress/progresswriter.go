package progress

import "io"

// Writer wraps an io.Writer and reports the cumulative byte count after every write.
type Writer struct {
	Writer  io.Writer
	OnWrite func(written int64)
	written int64
}

// NewWriter starts counting at start, so a resumed download reports the bytes already on disk.
func NewWriter(w io.Writer, start int64, cb func(written int64)) *Writer {
	return &Writer{
		Writer:  w,
		OnWrite: cb,
		written: start,
	}
}

func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	if n > 0 {
		pw.written += int64(n)
		if pw.OnWrite != nil {
			pw.OnWrite(pw.written)
		}
	}

	return n, err
}

// Written returns the cumulative count including the start offset.
func (pw *Writer) Written() int64 {
	return pw.written
}
