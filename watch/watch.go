// Package watch runs a "poll, detect change, debounce, reload" loop.
//
//	w := watch.New(watch.FileHash("cdnmirror.yaml"), watch.Options{Interval: time.Second})
//	go w.Run(ctx, func(ctx context.Context) error { return live.Reload() })
//
// A Detector returns a version token; two different tokens mean something
// changed. The action runs once the token has been stable for Debounce.
package watch

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Detector reads the current version token.
type Detector func(ctx context.Context) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window restart it. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a Detector. Stats and Version are safe to call while Run is
// active.
type Watcher struct {
	detect Detector
	opts   Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Reloads         int64 `json:"reloads"`
}

// New creates a Watcher. Call Run to start the loop.
func New(d Detector, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{detect: d, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
}

// Version returns the last version whose action succeeded.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Run blocks until ctx is done. When the action fails the version is not
// advanced, so the action is retried on the next poll.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	if v, err := w.detect(ctx); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var (
		debounce *time.Timer
		fireCh   <-chan time.Time
		pending  int64
		waiting  bool
	)
	stopTimer := func() {
		if debounce != nil {
			debounce.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.detect(ctx)
			if err != nil {
				w.errors.Add(1)
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version.Load() || (waiting && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, waiting = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				waiting = false
				continue
			}
			stopTimer()
			debounce = time.NewTimer(w.opts.Debounce)
			fireCh = debounce.C
			log.Debug("watch: change detected", "pending_version", cur)

		case <-fireCh:
			fireCh = nil
			if waiting {
				w.fire(ctx, action, pending)
				waiting = false
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, v int64) {
	log := w.opts.Logger
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err)
		return
	}
	w.reloads.Add(1)
	w.version.Store(v)
	log.Info("watch: reloaded", "version", v, "duration", time.Since(start))
}

// FileHash detects content changes of the file at path.
func FileHash(path string) Detector {
	return func(context.Context) (int64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("watch: read %s: %w", path, err)
		}
		h := fnv.New64a()
		h.Write(data)
		return int64(h.Sum64()), nil
	}
}
