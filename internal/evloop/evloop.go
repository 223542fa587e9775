// Package evloop is the loop façade: a thin wrapper that gives the
// server responder and client requester a uniform way to schedule work
// back onto the event-loop thread, offload blocking work to a worker
// pool, and shut down cleanly. It does not itself run an event loop --
// that is gnet's job -- it coordinates around one.
package evloop

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of work queued onto the loop thread or a worker.
type Task func()

// Loop coordinates cross-thread scheduling for a single event loop.
// Async work (anything that must not block the loop goroutine, such as
// filesystem reads) is bounded by a semaphore so a burst of requests
// cannot spin up unbounded goroutines.
type Loop struct {
	threadID int64 // goroutine identity is unset in Go; see OnLoopThread

	mu      sync.Mutex
	pending []Task

	sem   *semaphore.Weighted
	group *errgroup.Group
	ctx   context.Context
	stop  context.CancelFunc

	running int32
}

// New creates a Loop whose Async work is limited to maxConcurrent
// in-flight tasks (0 means unbounded).
func New(maxConcurrent int64) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	l := &Loop{group: g, ctx: gctx, stop: cancel}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(maxConcurrent)
	}
	atomic.StoreInt32(&l.running, 1)
	return l
}

// QueueWork schedules fn to run on the loop thread the next time Drain
// is called by the owner of the loop (gnet's Tick or a dedicated
// OnTraffic-adjacent hook). It is safe to call from any goroutine.
func (l *Loop) QueueWork(fn Task) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
}

// Drain runs every task queued via QueueWork since the last Drain, in
// order. The caller is expected to invoke this from the loop thread.
func (l *Loop) Drain() {
	l.mu.Lock()
	tasks := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, t := range tasks {
		t()
	}
}

// Async runs fn on a worker goroutine, bounded by the concurrency limit
// passed to New, and reports its error (if any) to the loop's error
// group -- a panic or persistent error in offloaded work surfaces
// through Wait rather than vanishing silently.
func (l *Loop) Async(fn func() error) {
	if atomic.LoadInt32(&l.running) == 0 {
		return
	}
	l.group.Go(func() error {
		if l.sem != nil {
			if err := l.sem.Acquire(l.ctx, 1); err != nil {
				return nil
			}
			defer l.sem.Release(1)
		}
		return fn()
	})
}

// OnLoopThread reports whether the calling goroutine is the one that
// called Bind to claim the loop thread. Go gives no supported way to
// read goroutine identity; this parses it out of runtime.Stack the way
// a handful of diagnostic libraries do. Treat it as a hint for
// assertions and logging, never as a correctness mechanism -- gnet
// makes no promise that a connection's callbacks run on the same
// goroutine across ticks.
func (l *Loop) OnLoopThread() bool {
	return atomic.LoadInt64(&l.threadID) == goroutineID()
}

// Bind records the calling goroutine as "the" loop thread for
// OnLoopThread's purposes.
func (l *Loop) Bind() {
	atomic.StoreInt64(&l.threadID, goroutineID())
}

// Stop cancels all outstanding Async work and waits for it to return.
func (l *Loop) Stop() error {
	atomic.StoreInt32(&l.running, 0)
	l.stop()
	return l.group.Wait()
}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(buf[:n])
	if len(field) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(field[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
