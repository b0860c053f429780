// Package trace makes cache reuse decisions and wait polls observable,
// either through the debug log or an in-memory collector for tests.
package trace

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/treestat/treestat/internal/log"
	"github.com/treestat/treestat/internal/statuscache"
)

// Logger reports trace events to the debug log and, when out is set, to
// a user-facing stream. Events are tagged with a per-operation id so
// interleaved runs stay separable in one log file.
type Logger struct {
	op  string
	out io.Writer
}

// NewLogger builds a Logger. out may be nil for debug-log-only tracing.
func NewLogger(out io.Writer) *Logger {
	return &Logger{op: uuid.NewString()[:8], out: out}
}

func (l *Logger) RecordDecision(d statuscache.Decision) {
	l.emit("cache decision: %s", d)
}

func (l *Logger) RecordPoll(iteration int, matched bool) {
	l.emit("wait poll %d: matched=%v", iteration, matched)
}

func (l *Logger) emit(format string, args ...any) {
	log.Printf("[trace %s] "+format, append([]any{l.op}, args...)...)
	if l.out != nil {
		fmt.Fprintf(l.out, "trace: "+format+"\n", args...)
	}
}

// PollEvent is one recorded wait poll.
type PollEvent struct {
	Iteration int
	Matched   bool
}

// Collector accumulates trace events in memory.
type Collector struct {
	mu        sync.Mutex
	decisions []statuscache.Decision
	polls     []PollEvent
}

func (c *Collector) RecordDecision(d statuscache.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, d)
}

func (c *Collector) RecordPoll(iteration int, matched bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls = append(c.polls, PollEvent{Iteration: iteration, Matched: matched})
}

// Decisions returns a copy of the recorded decisions.
func (c *Collector) Decisions() []statuscache.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]statuscache.Decision(nil), c.decisions...)
}

// Polls returns a copy of the recorded poll events.
func (c *Collector) Polls() []PollEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PollEvent(nil), c.polls...)
}

// LastDecision returns the most recent decision, if any.
func (c *Collector) LastDecision() (statuscache.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.decisions) == 0 {
		return statuscache.Decision{}, false
	}
	return c.decisions[len(c.decisions)-1], true
}

// Reset clears collected events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = nil
	c.polls = nil
}
