// Package monitor keeps a tree's status artifact fresh: a filesystem
// watcher over the working tree feeds a refresh loop that rescans and
// rewrites the cache once each burst of changes settles.
package monitor

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/treestat/treestat/internal/index"
)

// DefaultDebounce is the settle window for watcher events.
const DefaultDebounce = 600 * time.Millisecond

// WatchService manages filesystem watcher state for one working tree.
type WatchService struct {
	Started     bool
	Waiting     bool
	Root        string
	Events      chan struct{}
	Done        chan struct{}
	Paths       map[string]struct{}
	Mu          sync.Mutex
	Watcher     *fsnotify.Watcher
	LastRefresh time.Time

	debounce   time.Duration
	skipNested bool
	logf       func(string, ...any)
}

// NewWatchService creates a watcher with the given settle window. A zero
// or negative debounce falls back to DefaultDebounce.
func NewWatchService(debounce time.Duration, skipNested bool, logf func(string, ...any)) *WatchService {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &WatchService{
		debounce:   debounce,
		skipNested: skipNested,
		logf:       logf,
	}
}

// Debounce returns the settle window.
func (w *WatchService) Debounce() time.Duration { return w.debounce }

// Start initialises the watcher over root and starts the pump goroutine.
// Directories under the state dir are never watched, so rewriting the
// cache or the manifest does not feed back into the event stream.
func (w *WatchService) Start(root string) (bool, error) {
	if w.Started || root == "" {
		return false, nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}

	w.Started = true
	w.Watcher = watcher
	w.Root = absRoot
	w.Events = make(chan struct{}, 1)
	w.Done = make(chan struct{})
	w.Paths = make(map[string]struct{})
	w.addWatchTree(absRoot)

	go w.run()
	return true, nil
}

// Stop stops the watcher and closes channels.
func (w *WatchService) Stop() {
	if !w.Started {
		return
	}
	close(w.Done)
	w.Started = false
	if w.Watcher != nil {
		_ = w.Watcher.Close()
	}
}

// NextEvent returns the event channel if waiting is not already active.
func (w *WatchService) NextEvent() <-chan struct{} {
	if w.Events == nil || w.Waiting {
		return nil
	}
	w.Waiting = true
	return w.Events
}

// ResetWaiting clears the waiting flag after an event is processed.
func (w *WatchService) ResetWaiting() {
	w.Waiting = false
}

// ShouldRefresh checks debounce timing for watcher events.
func (w *WatchService) ShouldRefresh(now time.Time) bool {
	if !w.LastRefresh.IsZero() && now.Sub(w.LastRefresh) < w.debounce {
		return false
	}
	w.LastRefresh = now
	return true
}

// MaybeWatchNewDir registers newly created directories under the root.
func (w *WatchService) MaybeWatchNewDir(path string) {
	if !w.watchable(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	w.addWatchDir(path)
}

// Signal notifies listeners of watcher activity.
func (w *WatchService) Signal() {
	select {
	case <-w.Done:
		return
	default:
	}
	select {
	case w.Events <- struct{}{}:
	default:
	}
}

// watchable reports whether path lies inside the watched tree and
// outside any state dir.
func (w *WatchService) watchable(path string) bool {
	if path == "" || w.Root == "" {
		return false
	}
	if path != w.Root && !strings.HasPrefix(path, w.Root+string(filepath.Separator)) {
		return false
	}
	return !underServiceDir(path)
}

// underServiceDir reports whether any element of path is the state dir.
func underServiceDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == index.DirName {
			return true
		}
	}
	return false
}

func (w *WatchService) run() {
	for {
		select {
		case <-w.Done:
			return
		case event, ok := <-w.Watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if underServiceDir(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				w.MaybeWatchNewDir(event.Name)
			}
			w.Signal()
		case err, ok := <-w.Watcher.Errors:
			if !ok {
				return
			}
			w.debugf("tree watcher error: %v", err)
		}
	}
}

func (w *WatchService) addWatchDir(path string) {
	if path == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	w.Mu.Lock()
	defer w.Mu.Unlock()

	if _, ok := w.Paths[path]; ok {
		return
	}
	if err := w.Watcher.Add(path); err != nil {
		w.debugf("tree watcher add failed for %s: %v", path, err)
		return
	}
	w.Paths[path] = struct{}{}
}

func (w *WatchService) addWatchTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if d.Name() == index.DirName {
			return filepath.SkipDir
		}
		if w.skipNested && path != root {
			if _, err := os.Stat(filepath.Join(path, index.DirName)); err == nil {
				return filepath.SkipDir
			}
		}
		w.addWatchDir(path)
		return nil
	})
}

func (w *WatchService) debugf(format string, args ...any) {
	if w.logf == nil {
		return
	}
	w.logf(format, args...)
}
