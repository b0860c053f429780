package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Refresher produces a fresh status artifact for the tree and returns a
// one-line summary of what it wrote.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefreshFunc adapts a function to the Refresher interface.
type RefreshFunc func(ctx context.Context) (string, error)

// Refresh calls f.
func (f RefreshFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Monitor drives a WatchService: one refresh up front, then one after
// each settled burst of tree events.
type Monitor struct {
	root      string
	watch     *WatchService
	refresher Refresher
	out       io.Writer
	logf      func(string, ...any)
}

// New wires a monitor over root. out receives one timestamped summary
// line per refresh and may be nil.
func New(root string, watch *WatchService, refresher Refresher, out io.Writer, logf func(string, ...any)) *Monitor {
	return &Monitor{
		root:      root,
		watch:     watch,
		refresher: refresher,
		out:       out,
		logf:      logf,
	}
}

// Run blocks until ctx is cancelled. The initial refresh failing is
// fatal; later failures are logged and the monitor keeps watching.
func (m *Monitor) Run(ctx context.Context) error {
	started, err := m.watch.Start(m.root)
	if err != nil {
		return err
	}
	if !started {
		return errors.New("watcher already started")
	}
	defer m.watch.Stop()

	if err := m.refresh(ctx); err != nil {
		return err
	}
	return m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.watch.Events:
			if !m.settle(ctx) {
				return nil
			}
			if err := m.refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.debugf("refresh failed: %v", err)
			}
		}
	}
}

// settle waits for the event burst to quiet down, restarting the window
// whenever another event arrives. Returns false when ctx is cancelled.
func (m *Monitor) settle(ctx context.Context) bool {
	timer := time.NewTimer(m.watch.Debounce())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-m.watch.Events:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(m.watch.Debounce())
		case <-timer.C:
			return true
		}
	}
}

func (m *Monitor) refresh(ctx context.Context) error {
	summary, err := m.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	if m.out != nil {
		fmt.Fprintf(m.out, "%s %s\n", time.Now().Format("15:04:05"), summary)
	}
	return nil
}

func (m *Monitor) debugf(format string, args ...any) {
	if m.logf == nil {
		return
	}
	m.logf(format, args...)
}
