package stall

import (
	"sync"
	"testing"
	"time"
)

func TestWatchdogTicks(t *testing.T) {
	const interval = 20 * time.Millisecond

	var mu sync.Mutex
	var ticks []time.Duration
	w := New(interval, func(elapsed time.Duration) {
		mu.Lock()
		ticks = append(ticks, elapsed)
		mu.Unlock()
	})
	defer w.Close()

	w.SetPending(true)
	time.Sleep(interval*3 + interval/2)
	w.SetPending(false)

	mu.Lock()
	got := append([]time.Duration(nil), ticks...)
	mu.Unlock()

	if len(got) < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("tick %d elapsed %v not greater than previous %v", i, got[i], got[i-1])
		}
	}
	if w.Elapsed() != 0 {
		t.Errorf("elapsed should reset to 0 after settle, got %v", w.Elapsed())
	}
}

func TestWatchdogNoTicksWhenIdle(t *testing.T) {
	fired := make(chan time.Duration, 1)
	w := New(10*time.Millisecond, func(elapsed time.Duration) {
		select {
		case fired <- elapsed:
		default:
		}
	})
	defer w.Close()

	time.Sleep(35 * time.Millisecond)
	select {
	case elapsed := <-fired:
		t.Fatalf("watchdog ticked (%v) without being pending", elapsed)
	default:
	}
}

func TestWatchdogNoTicksAfterStop(t *testing.T) {
	var mu sync.Mutex
	count := 0
	w := New(10*time.Millisecond, func(time.Duration) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer w.Close()

	w.SetPending(true)
	time.Sleep(25 * time.Millisecond)
	w.SetPending(false)

	mu.Lock()
	settled := count
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	after := count
	mu.Unlock()

	if after != settled {
		t.Errorf("watchdog ticked %d times after SetPending(false)", after-settled)
	}
}

func TestWatchdogRestart(t *testing.T) {
	w := New(10*time.Millisecond, nil)
	defer w.Close()

	w.SetPending(true)
	time.Sleep(25 * time.Millisecond)
	w.SetPending(false)

	w.SetPending(true)
	time.Sleep(15 * time.Millisecond)

	if w.Elapsed() == 0 {
		t.Error("restarted watchdog should accumulate elapsed time again")
	}
	w.SetPending(false)
	if w.Elapsed() != 0 {
		t.Error("elapsed should be 0 after second settle")
	}
}

func TestWatchdogCloseIdempotent(t *testing.T) {
	w := New(10*time.Millisecond, nil)
	w.SetPending(true)
	w.Close()
	w.Close()
	w.SetPending(true) // no-op after close
	if w.Elapsed() != 0 {
		t.Error("closed watchdog must not accumulate time")
	}
}
