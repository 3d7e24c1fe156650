package orchestrator

import (
	"context"
	"testing"
	"time"
)

func TestIdleWatcherFiresAfterTimeout(t *testing.T) {
	w := newIdleWatcher(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	select {
	case <-w.Fired():
	case <-time.After(time.Second):
		t.Fatal("idle watcher never fired")
	}
}

func TestIdleWatcherResetPostponesFire(t *testing.T) {
	w := newIdleWatcher(40 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	resetUntil := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(resetUntil) {
		w.Reset()
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.Fired():
	case <-time.After(time.Second):
		t.Fatal("idle watcher never fired after resets stopped")
	}
}

func TestIdleWatcherZeroTimeoutNeverFires(t *testing.T) {
	w := newIdleWatcher(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-w.Fired():
		t.Fatal("zero-timeout watcher fired")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	<-done
}

func TestMaxDurationWatcherFires(t *testing.T) {
	w := newMaxDurationWatcher(10 * time.Millisecond)
	select {
	case <-w.Fired():
	case <-time.After(time.Second):
		t.Fatal("max duration watcher never fired")
	}
}

func TestMaxDurationWatcherZeroNeverFires(t *testing.T) {
	w := newMaxDurationWatcher(0)
	select {
	case <-w.Fired():
		t.Fatal("zero max duration watcher fired")
	case <-time.After(50 * time.Millisecond):
	}
}
