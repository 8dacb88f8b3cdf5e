package mirror

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/cdnmirror/watch"
)

// LiveConfig is a Provider backed by a config file. Watch reloads it when
// the file content changes; a file that fails to parse keeps the previous
// settings.
type LiveConfig struct {
	path   string
	cur    atomic.Pointer[Config]
	logger *slog.Logger
}

var _ Provider = (*LiveConfig)(nil)

// NewLiveConfig loads path once.
func NewLiveConfig(path string, logger *slog.Logger) (*LiveConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LiveConfig{path: path, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Config returns the current settings. Callers must not modify it.
func (l *LiveConfig) Config() *Config { return l.cur.Load() }

// Reload reads the file now.
func (l *LiveConfig) Reload() error {
	cfg, err := LoadConfigFile(l.path)
	if err != nil {
		return err
	}
	l.cur.Store(cfg)
	l.logger.Debug("mirror: config loaded", "path", l.path, "enabled", cfg.Enable, "cdn", cfg.CDNBaseURL())
	return nil
}

// Watch polls the file every interval until ctx is done.
func (l *LiveConfig) Watch(ctx context.Context, interval time.Duration) {
	w := watch.New(watch.FileHash(l.path), watch.Options{
		Interval: interval,
		Debounce: interval / 2,
		Logger:   l.logger,
	})
	w.Run(ctx, func(context.Context) error { return l.Reload() })
}

func (l *LiveConfig) Enabled() bool           { return l.Config().Enabled() }
func (l *LiveConfig) CDNBaseURL() string      { return l.Config().CDNBaseURL() }
func (l *LiveConfig) CustomURLs() []string    { return l.Config().CustomURLs() }
func (l *LiveConfig) ExcludedPaths() []string { return l.Config().ExcludedPaths() }
func (l *LiveConfig) Debug() bool             { return l.Config().Debug() }
