// Package watch reruns an action when a file changes on disk.
//
// The parent directory is watched rather than the file itself, so editors
// that save through a temporary file and a rename are still seen. Bursts of
// events are collapsed by a debounce window before the action fires.
//
// Typical usage:
//
//	w := watch.New("sktools.yaml", watch.Options{Debounce: 500 * time.Millisecond})
//	err := w.OnChange(ctx, func(ctx context.Context) error { return resync(ctx) })
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window restart it. Negative fires
	// immediately. Default: DefaultDebounce.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
	// Ready, when set, is closed once the watch is registered.
	Ready chan<- struct{}
}

func (o *Options) defaults() {
	if o.Debounce == 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher watches one file. It is safe for concurrent use of Stats.
type Watcher struct {
	path string
	opts Options

	changes  atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher for path. Call OnChange to start the loop.
func New(path string, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{path: filepath.Clean(path), opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.reloadNs.Load() / s.Reloads)
	}
	return s
}

// OnChange blocks until ctx is cancelled, calling action after each
// debounced write to the watched file. An action error is logged and
// counted; the loop keeps going. OnChange returns an error only when the
// watch cannot be set up.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) error {
	log := w.opts.Logger

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}
	if w.opts.Ready != nil {
		close(w.opts.Ready)
	}

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	log.Info("watch: started", "path", w.path, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped", "path", w.path)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.changes.Add(1)
			if w.opts.Debounce < 0 {
				w.fire(ctx, action)
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("watch: change detected, debouncing", "op", ev.Op.String())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watch: notify error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			w.fire(ctx, action)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger
	log.Info("watch: reloading", "path", w.path)
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "path", w.path, "error", err)
		return
	}
	elapsed := time.Since(start)
	w.reloads.Add(1)
	w.reloadNs.Add(int64(elapsed))
	log.Info("watch: reload complete", "path", w.path, "duration", elapsed)
}
