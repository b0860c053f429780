// Package log provides the treestat debug logger. Messages logged before
// a destination is configured are buffered and flushed once SetFile runs,
// so early startup activity is never lost.
package log

import (
	"bytes"
	"log"
	"os"
	"sync"
)

// debugSink implements io.Writer so a standard log.Logger can sit on top.
// Until SetFile picks a destination it accumulates writes in memory.
type debugSink struct {
	mu      sync.Mutex
	file    *os.File
	pending bytes.Buffer
	discard bool
}

var (
	sink = &debugSink{}
	// stdLogger provides timestamp formatting on top of the sink.
	stdLogger = log.New(sink, "", log.LstdFlags|log.Lmicroseconds)
)

// Write implements io.Writer. Writes go to the configured file, or into
// the pending buffer while no destination is set.
func (s *debugSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discard {
		return len(p), nil
	}
	if s.file != nil {
		n, err := s.file.Write(p)
		// Sync so a crash does not eat the tail of the log.
		_ = s.file.Sync()
		return n, err
	}
	return s.pending.Write(p)
}

// SetFile directs debug output to path, creating the file if needed and
// flushing anything buffered so far. An empty path discards buffered and
// future output.
func SetFile(path string) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	if sink.file != nil {
		_ = sink.file.Close()
		sink.file = nil
	}

	if path == "" {
		sink.discard = true
		sink.pending.Reset()
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		sink.discard = true
		sink.pending.Reset()
		return err
	}

	sink.file = f
	sink.discard = false

	if sink.pending.Len() > 0 {
		_, _ = f.Write(sink.pending.Bytes())
		_ = f.Sync()
		sink.pending.Reset()
	}
	return nil
}

// Enabled reports whether debug output currently reaches a file. Callers
// can use it to skip building expensive messages.
func Enabled() bool {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return sink.file != nil
}

// Printf writes a formatted debug message.
func Printf(format string, args ...any) {
	stdLogger.Printf(format, args...)
}

// Println writes a debug message.
func Println(v ...any) {
	stdLogger.Println(v...)
}

// Close closes the debug log file if one is open.
func Close() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	if sink.file == nil {
		return nil
	}
	err := sink.file.Close()
	sink.file = nil
	return err
}
