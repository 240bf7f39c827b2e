package executor

import (
	"bytes"
	"fmt"
	"strings"
)

// limitedWriter keeps at most limit bytes and counts the rest. It never
// returns an error so a chatty process is not killed by a broken pipe.
type limitedWriter struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func newLimitedWriter(limit int) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	switch {
	case room <= 0:
		w.dropped += int64(len(p))
	case len(p) > room:
		w.buf.Write(p[:room])
		w.dropped += int64(len(p) - room)
	default:
		w.buf.Write(p)
	}
	return len(p), nil
}

func (w *limitedWriter) Truncated() bool {
	return w.dropped > 0
}

func (w *limitedWriter) Dropped() int64 {
	return w.dropped
}

// String returns the captured output followed by a truncation marker when
// bytes were dropped.
func (w *limitedWriter) String() string {
	if w.dropped == 0 {
		return w.buf.String()
	}
	kept := strings.ToValidUTF8(w.buf.String(), "")
	return kept + fmt.Sprintf("\n[truncated %d bytes]", w.dropped)
}
