package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestat/treestat/internal/index"
)

func TestUnderServiceDir(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "plain file", path: "/tree/a.txt", expected: false},
		{name: "state dir itself", path: "/tree/" + index.DirName, expected: true},
		{name: "file inside state dir", path: "/tree/" + index.DirName + "/status.cache", expected: true},
		{name: "nested state dir", path: "/tree/sub/" + index.DirName + "/index.json", expected: true},
		{name: "name embedding only", path: "/tree/not" + index.DirName + "/a.txt", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, underServiceDir(tt.path))
		})
	}
}

func TestWatchable(t *testing.T) {
	w := &WatchService{Root: filepath.FromSlash("/tree")}

	assert.True(t, w.watchable(filepath.FromSlash("/tree")))
	assert.True(t, w.watchable(filepath.FromSlash("/tree/sub")))
	assert.False(t, w.watchable(filepath.FromSlash("/treeish/sub")))
	assert.False(t, w.watchable(filepath.FromSlash("/elsewhere")))
	assert.False(t, w.watchable(filepath.Join("/tree", index.DirName, "status.cache")))
	assert.False(t, w.watchable(""))
}

func TestShouldRefreshDebounces(t *testing.T) {
	w := NewWatchService(100*time.Millisecond, false, nil)
	now := time.Now()

	assert.True(t, w.ShouldRefresh(now))
	assert.False(t, w.ShouldRefresh(now.Add(50*time.Millisecond)))
	assert.True(t, w.ShouldRefresh(now.Add(150*time.Millisecond)))
}

func TestNewWatchServiceClampsDebounce(t *testing.T) {
	assert.Equal(t, DefaultDebounce, NewWatchService(0, false, nil).Debounce())
	assert.Equal(t, DefaultDebounce, NewWatchService(-time.Second, false, nil).Debounce())
	assert.Equal(t, time.Second, NewWatchService(time.Second, false, nil).Debounce())
}

func TestSignalDoesNotBlock(t *testing.T) {
	w := NewWatchService(time.Second, false, nil)
	w.Events = make(chan struct{}, 1)
	w.Done = make(chan struct{})

	w.Signal()
	w.Signal()
	assert.Len(t, w.Events, 1)

	<-w.Events
	close(w.Done)
	w.Signal()
	assert.Empty(t, w.Events)
}

func TestNextEventArmsOnce(t *testing.T) {
	w := NewWatchService(time.Second, false, nil)
	assert.Nil(t, w.NextEvent(), "no channel before start")

	w.Events = make(chan struct{}, 1)
	assert.NotNil(t, w.NextEvent())
	assert.Nil(t, w.NextEvent(), "second arm without reset")

	w.ResetWaiting()
	assert.NotNil(t, w.NextEvent())
}

func TestStartSkipsServiceAndNestedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pkg"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, index.DirName, "blobs"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor", "dep", index.DirName), 0o750))

	w := NewWatchService(time.Second, true, nil)
	started, err := w.Start(root)
	require.NoError(t, err)
	require.True(t, started)
	defer w.Stop()

	assert.Contains(t, w.Paths, root)
	assert.Contains(t, w.Paths, filepath.Join(root, "src"))
	assert.Contains(t, w.Paths, filepath.Join(root, "src", "pkg"))
	assert.NotContains(t, w.Paths, filepath.Join(root, index.DirName))
	assert.NotContains(t, w.Paths, filepath.Join(root, index.DirName, "blobs"))
	assert.NotContains(t, w.Paths, filepath.Join(root, "vendor", "dep"), "nested roots are skipped")

	restarted, err := w.Start(root)
	require.NoError(t, err)
	assert.False(t, restarted, "second start is a no-op")
}

func TestMonitorLoopRefreshesAfterSettle(t *testing.T) {
	w := NewWatchService(15*time.Millisecond, false, nil)
	w.Events = make(chan struct{}, 1)
	w.Done = make(chan struct{})

	calls := make(chan struct{}, 8)
	m := New("/tree", w, RefreshFunc(func(context.Context) (string, error) {
		calls <- struct{}{}
		return "ok", nil
	}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.loop(ctx) }()

	w.Signal()
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after event")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMonitorLoopCollapsesBursts(t *testing.T) {
	w := NewWatchService(80*time.Millisecond, false, nil)
	w.Events = make(chan struct{}, 1)
	w.Done = make(chan struct{})

	calls := make(chan struct{}, 8)
	m := New("/tree", w, RefreshFunc(func(context.Context) (string, error) {
		calls <- struct{}{}
		return "ok", nil
	}), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.loop(ctx) }()

	for range 3 {
		w.Signal()
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh after burst")
	}
	select {
	case <-calls:
		t.Fatal("burst produced more than one refresh")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMonitorRunRefreshesOnFileChanges(t *testing.T) {
	root := t.TempDir()
	calls := make(chan struct{}, 8)
	var out bytes.Buffer

	w := NewWatchService(10*time.Millisecond, false, nil)
	m := New(root, w, RefreshFunc(func(context.Context) (string, error) {
		calls <- struct{}{}
		return "wrote status.cache", nil
	}), &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial refresh")
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi\n"), 0o600))
	select {
	case <-calls:
	case <-time.After(3 * time.Second):
		t.Fatal("no refresh after file change")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "wrote status.cache")
}

func TestMonitorRunFailsWhenInitialRefreshFails(t *testing.T) {
	boom := errors.New("no baseline")
	w := NewWatchService(10*time.Millisecond, false, nil)
	m := New(t.TempDir(), w, RefreshFunc(func(context.Context) (string, error) {
		return "", boom
	}), nil, nil)

	err := m.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestMonitorRunRejectsSecondStart(t *testing.T) {
	w := NewWatchService(10*time.Millisecond, false, nil)
	w.Started = true
	m := New(t.TempDir(), w, RefreshFunc(func(context.Context) (string, error) {
		return "ok", nil
	}), nil, nil)

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}
