package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce coalesces bursts of filesystem events into one reload.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the registry from path whenever the file changes, until ctx
// is canceled. The initial load happens synchronously; a failed reload keeps
// the previous definition set. The returned channel closes once the watch
// goroutine has exited and the watcher is released.
func (r *Registry) Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("resource: start watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resource: watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil {
				r.logger.Debug("failed to close fsnotify watcher", zap.Error(err))
			}
		}()
		r.watchLoop(ctx, watcher, path)
	}()
	return done, nil
}

func (r *Registry) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	r.logger.Debug("resource watch started", zap.String("path", path))

	var debounceTimer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce multiple events from one editor save.
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				// Stop may lose the race with an already-queued timer; a
				// reload must not run after cancellation.
				if ctx.Err() != nil {
					return
				}
				if err := r.LoadFile(path); err != nil {
					r.logger.Warn("resource reload failed", zap.Error(err))
				} else {
					r.logger.Info("resource declarations reloaded", zap.String("trigger", event.Name))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("resource watcher error", zap.Error(err))
		}
	}
}
