// Package watch re-renders templates when their source files change.
//
// A Watcher observes the directories holding a fixed set of files (the
// template, its data and the config) rather than the files themselves, so
// editors that save by renaming a temporary file over the original are
// still seen.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors files for changes and calls OnChange once a burst of
// changes has settled.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	onChange func(changed []string)
	stdout   io.Writer
	stderr   io.Writer

	mu        sync.Mutex
	pending   map[string]bool
	timer     *time.Timer
	ready     chan struct{} // Signalled when a burst settles; holds at most one wake-up
	changeSeq uint64        // Incremented on each settled change
}

// New creates a watcher for files. onChange receives the sorted set of files
// that changed during the debounce window.
func New(files []string, debounce time.Duration, onChange func(changed []string), stdout, stderr io.Writer) (*Watcher, error) {
	if len(files) == 0 {
		return nil, errors.New("watch: no files to watch")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		files:    make(map[string]bool),
		debounce: debounce,
		onChange: onChange,
		stdout:   stdout,
		stderr:   stderr,
		pending:  make(map[string]bool),
		ready:    make(chan struct{}, 1),
	}

	dirs := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		w.dirs = append(w.dirs, dir)
	}
	sort.Strings(w.dirs)

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.watcher = fsWatcher
	return w, nil
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	result := make([]string, 0, len(w.files))
	for f := range w.files {
		result = append(result, f)
	}
	sort.Strings(result)
	return result
}

// Start begins watching for file changes. The event loop stops when ctx is
// done. OnChange is only ever called from one goroutine, so a slow callback
// never overlaps the next one; changes made while it runs are merged into a
// single follow-up call.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	for _, f := range w.Files() {
		w.logInfo("watching: %s", f)
	}

	go w.eventLoop(ctx)
	go w.dispatch(ctx)
	return nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Close()
}

// eventLoop processes file system events
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Editors write in place, create, or rename over the original
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Clean(event.Name)
			if !w.files[name] {
				continue
			}
			w.schedule(name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logError("watcher error: %v", err)
		}
	}
}

// schedule records a change and restarts the debounce timer.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.settled)
}

// settled wakes the dispatcher. A wake-up already queued covers this one.
func (w *Watcher) settled() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

// dispatch runs OnChange for each settled burst, one at a time.
func (w *Watcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ready:
			w.fire()
		}
	}
}

func (w *Watcher) fire() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for name := range w.pending {
		changed = append(changed, name)
	}
	w.pending = make(map[string]bool)
	w.timer = nil
	w.changeSeq++
	w.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)
	for _, name := range changed {
		w.logInfo("changed: %s", name)
	}
	if w.onChange != nil {
		w.onChange(changed)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Seq returns the number of settled changes seen so far.
func (w *Watcher) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changeSeq
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

func (w *Watcher) logInfo(format string, args ...interface{}) {
	if w.stdout != nil {
		fmt.Fprintf(w.stdout, "[WATCH] "+format+"\n", args...)
	}
}

func (w *Watcher) logError(format string, args ...interface{}) {
	if w.stderr != nil {
		fmt.Fprintf(w.stderr, "[WATCH ERROR] "+format+"\n", args...)
	}
}
