// Package watch turns a drop folder into an ordered, deduplicated file queue.
//
// Per observed path the lifecycle is: detected, debounced, validated, queued,
// dequeued. Files are handed to the registered handler one at a time, oldest
// first; the handler reports completion through Complete, which either
// finalizes the path or schedules it for another attempt.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/ports"
)

const (
	// DefaultDebounce is how long a path must stay quiet before validation.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultMaxFileSize rejects runaway exports.
	DefaultMaxFileSize = 10 << 20
	// DefaultLockRetry reschedules validation of a file the producer still
	// holds open.
	DefaultLockRetry = 2 * time.Second
)

// acceptedExtensions is the case-insensitive input allow-list.
var acceptedExtensions = map[string]bool{
	".hl7": true,
	".txt": true,
	".dat": true,
	".msg": true,
}

// Handler processes one dequeued file. It runs on its own goroutine and must
// call Watcher.Complete exactly once when finished.
type Handler func(ev domain.FileEvent)

// Options tune the watcher. Zero values select the defaults above.
type Options struct {
	Debounce    time.Duration
	MaxFileSize int64
	LockRetry   time.Duration
}

// Watcher observes one folder and maintains the ready-file queue.
type Watcher struct {
	dir         string
	debounce    time.Duration
	maxFileSize int64
	lockRetry   time.Duration
	logger      ports.Logger

	mu        sync.Mutex
	handler   Handler
	timers    map[string]*time.Timer
	seen      map[string]bool
	processed map[string]bool
	queue     fileQueue
	inflight  bool
	paused    bool
	closed    bool
}

// NewWatcher creates a watcher for dir. Call Start to begin observing.
func NewWatcher(dir string, opts Options, logger ports.Logger) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.LockRetry <= 0 {
		opts.LockRetry = DefaultLockRetry
	}
	return &Watcher{
		dir:         dir,
		debounce:    opts.Debounce,
		maxFileSize: opts.MaxFileSize,
		lockRetry:   opts.LockRetry,
		logger:      logger,
		timers:      make(map[string]*time.Timer),
		seen:        make(map[string]bool),
		processed:   make(map[string]bool),
	}
}

// SetHandler registers the processing callback. Without one the watcher only
// accumulates the queue. Registering while files are already queued starts
// hand-off immediately.
func (w *Watcher) SetHandler(h Handler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
	w.dispatch()
}

// SetPaused toggles hand-off. A paused watcher keeps observing and queueing;
// it only stops dequeuing. In-flight work is unaffected.
func (w *Watcher) SetPaused(paused bool) {
	w.mu.Lock()
	w.paused = paused
	w.mu.Unlock()
	if !paused {
		w.dispatch()
	}
}

// Pending reports how many accepted files await processing, including the one
// in flight.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.queue.len()
	if w.inflight {
		n++
	}
	return n
}

// Start waits for the folder to become accessible, scans files already
// present, and begins observing. It returns once observation is running; the
// event loop stops when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := WaitForFolder(ctx, w.dir, w.logger); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	// Files dropped before the agent started still need to be picked up.
	// They go through the same debounce so half-written files settle first.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		fsw.Close()
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.observe(filepath.Join(w.dir, entry.Name()))
	}

	go w.loop(ctx, fsw)

	w.logger.Info("watching folder",
		ports.String("dir", w.dir),
		ports.Int("existing_files", len(entries)))
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.observe(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("folder watch error", ports.Err(err))
		}
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

// observe (re)starts the debounce timer for a path that passed the extension
// filter and is not already tracked.
func (w *Watcher) observe(path string) {
	if !acceptedExtensions[strings.ToLower(filepath.Ext(path))] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.processed[path] || w.seen[path] {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.validate(path)
	})
}

// validate runs after a path's debounce elapses uninterrupted. It confirms
// the file still exists, enforces the size ceiling, and probes for an
// exclusive-open lock before queueing.
func (w *Watcher) validate(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	if w.closed || w.processed[path] || w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("cannot stat queued file", ports.String("file", path), ports.Err(err))
		}
		return
	}
	if info.IsDir() {
		return
	}

	if info.Size() > w.maxFileSize {
		w.logger.Warn("file exceeds size limit, skipping",
			ports.String("file", filepath.Base(path)),
			ports.Int64("size", info.Size()),
			ports.Int64("limit", w.maxFileSize))
		w.mu.Lock()
		w.processed[path] = true
		w.mu.Unlock()
		return
	}

	// Some producers keep the file open with an exclusive lock while
	// writing. Probe with a write-mode open and come back later if refused.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		w.logger.Debug("file locked, revalidating later",
			ports.String("file", filepath.Base(path)),
			ports.Duration("delay", w.lockRetry))
		w.mu.Lock()
		if !w.closed {
			w.timers[path] = time.AfterFunc(w.lockRetry, func() {
				w.validate(path)
			})
		}
		w.mu.Unlock()
		return
	}
	f.Close()

	w.mu.Lock()
	w.seen[path] = true
	w.queue.push(domain.FileEvent{
		Path:      path,
		Name:      filepath.Base(path),
		CreatedAt: info.ModTime(),
	})
	w.mu.Unlock()

	w.dispatch()
}

// dispatch hands the oldest queued file to the handler if nothing is in
// flight. At most one file is processed at a time.
func (w *Watcher) dispatch() {
	w.mu.Lock()
	if w.paused || w.inflight || w.handler == nil {
		w.mu.Unlock()
		return
	}
	ev, ok := w.queue.pop()
	if !ok {
		w.mu.Unlock()
		return
	}
	w.inflight = true
	handler := w.handler
	w.mu.Unlock()

	go handler(ev)
}

// Complete reports the outcome of the in-flight file. With requeue false the
// path is finalized and never re-queued in this process. With requeue true
// the path is revalidated after delay, so the same file gets another attempt.
// Either way the next queued file is dispatched immediately.
func (w *Watcher) Complete(path string, requeue bool, delay time.Duration) {
	w.mu.Lock()
	w.inflight = false
	if requeue {
		delete(w.seen, path)
		if !w.closed {
			w.timers[path] = time.AfterFunc(delay, func() {
				w.validate(path)
			})
		}
	} else {
		delete(w.seen, path)
		w.processed[path] = true
	}
	w.mu.Unlock()

	w.dispatch()
}
