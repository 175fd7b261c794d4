// Package worker provides the background worker primitive shared by the
// event listener and the per-display render and vsync workers: a
// dedicated goroutine with signal, exit, and bounded-wait controls.
package worker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Start on a worker whose goroutine
	// is already running. Workers are single use: once exited they cannot
	// be restarted.
	ErrAlreadyStarted = errors.New("worker: already started")
)

// WaitResult is the outcome of WaitForSignalOrExit.
type WaitResult int

const (
	// Signaled means Signal woke the worker; one unit of work is pending.
	Signaled WaitResult = iota
	// Exiting means Exit was requested; the routine should return so the
	// loop can terminate.
	Exiting
	// TimedOut means the timeout elapsed with no signal and no exit.
	TimedOut
)

func (r WaitResult) String() string {
	switch r {
	case Signaled:
		return "signaled"
	case Exiting:
		return "exiting"
	case TimedOut:
		return "timed out"
	default:
		return "invalid"
	}
}

// Routine is one unit of the worker's loop body. It is invoked repeatedly
// until Exit is requested; a routine that has no work should block in
// WaitForSignalOrExit rather than spin.
type Routine func()

// Worker runs a Routine on its own goroutine. Signal coalesces: any
// number of signals while one is pending wake the routine once.
type Worker struct {
	name   string
	logger *slog.Logger

	signal chan struct{}
	exit   chan struct{}
	done   chan struct{}

	exitOnce sync.Once
	started  atomic.Bool
}

// New returns a stopped worker. A nil logger falls back to slog.Default.
func New(name string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		name:   name,
		logger: logger.With("worker", name),
		signal: make(chan struct{}, 1),
		exit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the worker's name as given to New.
func (w *Worker) Name() string { return w.name }

// Start launches the worker goroutine.
func (w *Worker) Start(routine Routine) error {
	if routine == nil {
		return errors.New("worker: nil routine")
	}
	if w.started.Swap(true) {
		return ErrAlreadyStarted
	}
	go w.loop(routine)
	return nil
}

func (w *Worker) loop(routine Routine) {
	defer close(w.done)
	w.logger.Debug("worker started")
	for {
		select {
		case <-w.exit:
			w.logger.Debug("worker exiting")
			return
		default:
		}
		routine()
	}
}

// Signal wakes the worker. Safe from any goroutine, including before
// Start and after Exit.
func (w *Worker) Signal() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Exit requests termination and wakes a blocked worker. It does not wait;
// use Stop or Done for that.
func (w *Worker) Exit() {
	w.exitOnce.Do(func() {
		close(w.exit)
	})
}

// Done is closed once the worker goroutine has finished.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stop requests exit and waits for the goroutine to finish. Calling Stop
// on a never-started worker returns immediately.
func (w *Worker) Stop() {
	w.Exit()
	if w.started.Load() {
		<-w.done
	}
}

// WaitForSignalOrExit blocks until the worker is signaled, asked to exit,
// or the timeout elapses, and reports which. A negative timeout waits
// forever. A pending exit wins over a pending signal.
func (w *Worker) WaitForSignalOrExit(timeout time.Duration) WaitResult {
	if timeout < 0 {
		select {
		case <-w.exit:
			return Exiting
		case <-w.signal:
			return w.signaledUnlessExiting()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.exit:
		return Exiting
	case <-w.signal:
		return w.signaledUnlessExiting()
	case <-timer.C:
		return TimedOut
	}
}

func (w *Worker) signaledUnlessExiting() WaitResult {
	select {
	case <-w.exit:
		return Exiting
	default:
		return Signaled
	}
}
