package statuscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/treestat/treestat/internal/models"
)

// ErrWaitExhausted surfaces under the fail policy when the index stayed
// stale; every other policy converts exhaustion into a fresh scan.
var ErrWaitExhausted = errors.New("cached report is stale and the wait budget ran out")

// WaitMode selects how staleness is bridged.
type WaitMode int

const (
	// WaitNone falls back to a fresh scan without polling.
	WaitNone WaitMode = iota
	// WaitFail errors out instead of rescanning.
	WaitFail
	// WaitBlock polls until the identity stabilizes or the context ends.
	WaitBlock
	// WaitBounded polls at most Budget times.
	WaitBounded
)

// WaitPolicy bridges races with concurrent index writers by re-reading
// the identity token at a fixed interval.
type WaitPolicy struct {
	Mode     WaitMode
	Budget   int
	Interval time.Duration
}

// DefaultPollInterval is used when a policy carries no interval.
const DefaultPollInterval = 100 * time.Millisecond

// ParseWaitPolicy understands no|fail|block|<N>.
func ParseWaitPolicy(s string) (WaitPolicy, error) {
	switch strings.TrimSpace(s) {
	case "", "no":
		return WaitPolicy{Mode: WaitNone}, nil
	case "fail":
		return WaitPolicy{Mode: WaitFail}, nil
	case "block":
		return WaitPolicy{Mode: WaitBlock}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return WaitPolicy{}, fmt.Errorf("wait policy %q: want no, fail, block or a poll count", s)
	}
	if n == 0 {
		return WaitPolicy{Mode: WaitNone}, nil
	}
	return WaitPolicy{Mode: WaitBounded, Budget: n}, nil
}

func (p WaitPolicy) String() string {
	switch p.Mode {
	case WaitFail:
		return "fail"
	case WaitBlock:
		return "block"
	case WaitBounded:
		return strconv.Itoa(p.Budget)
	}
	return "no"
}

// Await polls read until it yields an identity matching want. Each
// poll sleeps one interval first, then reads, then reports to the
// tracer. It returns true when the identity stabilized; false on an
// exhausted budget or a finished context, which callers treat the same
// way. WaitNone and WaitFail never poll.
func (p WaitPolicy) Await(ctx context.Context, want models.IndexIdentity, read func() (models.IndexIdentity, error), tracer Tracer) (bool, error) {
	if p.Mode == WaitNone || p.Mode == WaitFail {
		return false, nil
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if tracer == nil {
		tracer = NopTracer{}
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for i := 1; p.Mode == WaitBlock || i <= p.Budget; i++ {
		select {
		case <-ctx.Done():
			// Cancellation counts as an exhausted budget.
			return false, nil
		case <-timer.C:
		}
		got, err := read()
		if err != nil {
			return false, err
		}
		matched := got == want
		tracer.RecordPoll(i, matched)
		if matched {
			return true, nil
		}
		timer.Reset(interval)
	}
	return false, nil
}
