// Package stall measures how long an in-flight operation has been pending and
// reports elapsed-time ticks while it runs. It is a pure observability side
// channel: it never affects the operation's outcome, cancellation or retries.
package stall

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = time.Second

// Watchdog accumulates elapsed time in fixed intervals while pending, and
// resets to zero the moment the operation settles. Safe for concurrent use.
type Watchdog struct {
	interval   time.Duration
	onInterval func(elapsed time.Duration)

	mu      sync.Mutex
	elapsed time.Duration
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates a watchdog ticking at the given interval. onInterval may be nil;
// elapsed time is still tracked and readable through Elapsed.
func New(interval time.Duration, onInterval func(elapsed time.Duration)) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watchdog{
		interval:   interval,
		onInterval: onInterval,
	}
}

// SetPending starts or stops the tick loop. Setting pending to false resets
// elapsed time to zero and waits for the loop to exit, so no tick is delivered
// after SetPending(false) returns.
func (w *Watchdog) SetPending(pending bool) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if pending {
		if w.cancel != nil {
			w.mu.Unlock()
			return // already running
		}
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		w.wg.Add(1)
		go w.tickLoop(ctx)
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.cancel = nil
	w.elapsed = 0
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		w.wg.Wait()
	}
}

// Elapsed returns the accumulated pending time, in whole intervals.
func (w *Watchdog) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsed
}

// Close stops the watchdog permanently.
func (w *Watchdog) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	cancel := w.cancel
	w.cancel = nil
	w.elapsed = 0
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		w.wg.Wait()
	}
}

func (w *Watchdog) tickLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if ctx.Err() != nil {
				w.mu.Unlock()
				return
			}
			w.elapsed += w.interval
			elapsed := w.elapsed
			cb := w.onInterval
			w.mu.Unlock()

			if cb != nil {
				cb(elapsed)
			}
		}
	}
}
