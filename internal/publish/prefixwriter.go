package publish

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter prepends a per-service prefix to every line, so interleaved
// tool output from parallel builds stays attributable. Writes to the
// underlying writer are whole lines under a lock, never partial fragments.
type prefixWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix string
	buf    bytes.Buffer
}

func newPrefixWriter(out io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{out: out, prefix: prefix}
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line, keep it buffered for the next write
			w.buf.Write(line)
			break
		}
		if _, err := io.WriteString(w.out, w.prefix+string(line)); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}
