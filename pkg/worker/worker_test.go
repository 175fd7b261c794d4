package worker

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReturnsSignaled(t *testing.T) {
	w := New("test", nil)
	w.Signal()
	if got := w.WaitForSignalOrExit(time.Second); got != Signaled {
		t.Errorf("WaitForSignalOrExit = %v, want %v", got, Signaled)
	}
}

func TestWaitReturnsTimedOut(t *testing.T) {
	w := New("test", nil)
	start := time.Now()
	if got := w.WaitForSignalOrExit(20 * time.Millisecond); got != TimedOut {
		t.Errorf("WaitForSignalOrExit = %v, want %v", got, TimedOut)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("wait returned after %v, want >= 20ms", elapsed)
	}
}

func TestWaitReturnsExiting(t *testing.T) {
	w := New("test", nil)
	w.Exit()
	if got := w.WaitForSignalOrExit(time.Second); got != Exiting {
		t.Errorf("WaitForSignalOrExit = %v, want %v", got, Exiting)
	}
}

func TestExitWinsOverPendingSignal(t *testing.T) {
	w := New("test", nil)
	w.Signal()
	w.Exit()
	if got := w.WaitForSignalOrExit(time.Second); got != Exiting {
		t.Errorf("WaitForSignalOrExit = %v, want %v", got, Exiting)
	}
}

func TestSignalsCoalesce(t *testing.T) {
	w := New("test", nil)
	w.Signal()
	w.Signal()
	w.Signal()
	if got := w.WaitForSignalOrExit(time.Second); got != Signaled {
		t.Fatalf("first wait = %v, want %v", got, Signaled)
	}
	if got := w.WaitForSignalOrExit(20 * time.Millisecond); got != TimedOut {
		t.Errorf("second wait = %v, want %v (signals must coalesce)", got, TimedOut)
	}
}

func TestWorkerLoopDrainsWork(t *testing.T) {
	w := New("test", nil)
	var units atomic.Int32
	err := w.Start(func() {
		if w.WaitForSignalOrExit(-1) != Signaled {
			return
		}
		units.Add(1)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.Signal()
	deadline := time.Now().Add(time.Second)
	for units.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if units.Load() == 0 {
		t.Error("routine never ran after Signal")
	}

	w.Stop()
	select {
	case <-w.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestStartTwiceFails(t *testing.T) {
	w := New("test", nil)
	routine := func() { w.WaitForSignalOrExit(-1) }
	if err := w.Start(routine); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer w.Stop()
	if err := w.Start(routine); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want %v", err, ErrAlreadyStarted)
	}
}

func TestStopWithoutStart(t *testing.T) {
	w := New("test", nil)
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Stop on a never-started worker blocked")
	}
}

func TestExitUnblocksRunningWorker(t *testing.T) {
	w := New("test", nil)
	if err := w.Start(func() { w.WaitForSignalOrExit(-1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not unblock a worker waiting without timeout")
	}
}
