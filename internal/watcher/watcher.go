// Package watcher implements the Watcher (spec.md §4.9, component C9): a
// recursive, debounced filesystem change source feeding the DeltaEngine.
// Grounded on bennypowers-cem's serve/filewatcher.go — same fsnotify +
// debounce-timer shape, generalized from that repo's static-asset ignore
// list to spec.md's source-extension allowlist.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var ignoredDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".turbo":       true,
}

var watchedExts = map[string]bool{
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".json": true,
}

// Batch is the set of changed absolute paths flushed after one debounce
// window (spec.md §4.9).
type Batch struct {
	Paths []string
}

// Watcher recursively watches a project root and emits debounced Batches
// on Events().
type Watcher struct {
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	events    chan Batch
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
}

// New starts watching root recursively with the given debounce window
// (spec.md §4.9's default 300ms is the caller's responsibility via
// config.Config.DebounceDuration).
func New(root string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		events:   make(chan Batch, 8),
		done:     make(chan struct{}),
		pending:  make(map[string]bool),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Events returns the channel of debounced change batches.
func (w *Watcher) Events() <-chan Batch { return w.events }

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
		close(w.done)
	})
	return err
}

func (w *Watcher) addRecursive(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if p == root {
			return nil
		}
		if shouldIgnoreDir(filepath.Base(p)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func shouldIgnoreDir(name string) bool {
	if ignoredDirs[name] {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "."
}

func (w *Watcher) loop() {
	reported := false
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// spec.md §7: watcher failures are logged once; watching
			// continues and the server stays operational.
			if !reported {
				reported = true
				fmt.Fprintf(os.Stderr, "[watcher] %v\n", err)
			}
		case <-w.done:
			return
		}
	}
}

// handleEvent records a candidate change, treating both "write" and
// "rename" as candidates (spec.md §4.9), then (re)starts the debounce
// timer. Deletions (atomic-write rename-away) are discarded at flush time
// once the path no longer exists on disk.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isWatchedPath(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[ev.Name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func isWatchedPath(p string) bool {
	base := filepath.Base(p)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return watchedExts[strings.ToLower(filepath.Ext(p))]
}

// flush reports every path that changed during the debounce window and
// still exists on disk. A path whose file vanished (atomic-write
// rename-away, or a genuine deletion) is dropped; if nothing is left, no
// batch is sent.
func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()
	if len(paths) == 0 {
		return
	}

	select {
	case w.events <- Batch{Paths: paths}:
	case <-w.done:
	}
}
