// Package watch re-runs a callback when files on disk change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events editors emit for one save.
const DefaultDebounce = 100 * time.Millisecond

type config struct {
	log      *slog.Logger
	debounce time.Duration
}

// Option configures Files.
type Option func(*config)

// WithLogger sets the logger. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDebounce sets the quiet period after the last event before fn runs.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// Files calls fn each time one of paths is written, created or replaced.
// It blocks until ctx is done and then returns nil.
//
// Parent directories are watched rather than the files themselves so that
// atomic rename-over saves are still observed.
func Files(ctx context.Context, paths []string, fn func(context.Context), opts ...Option) error {
	cfg := config{log: slog.New(slog.DiscardHandler), debounce: DefaultDebounce}
	for _, o := range opts {
		o(&cfg)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	targets := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	timer := time.NewTimer(cfg.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, ok := targets[name]; !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg.log.DebugContext(ctx, "watch.event", slog.String("path", name), slog.String("op", ev.Op.String()))
			timer.Reset(cfg.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cfg.log.WarnContext(ctx, "watch.error", slog.String("err", err.Error()))
		case <-timer.C:
			fn(ctx)
		}
	}
}
