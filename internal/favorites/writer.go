package favorites

import (
	"context"
	"sync"
)

type writeOp int

const (
	opNone writeOp = iota
	opPersist
	opRemove
)

// writeBehind serialises backend writes for one cache. It holds a single
// pending slot: a newer request replaces an older one that has not started,
// and a persist always writes the snapshot current at write time. Writes
// therefore complete in request order and rapid toggles collapse into one write.
type writeBehind struct {
	ctx context.Context
	run func(ctx context.Context, op writeOp) error

	mu        sync.Mutex
	pending   writeOp
	requested uint64 // sequence of the latest request
	completed uint64 // sequence covered by the latest finished write
	lastErr   error
	changed   chan struct{} // closed and replaced whenever completed advances
	closed    bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newWriteBehind(ctx context.Context, run func(ctx context.Context, op writeOp) error) *writeBehind {
	w := &writeBehind{
		ctx:     ctx,
		run:     run,
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// schedule records op as the next write. It never blocks. It returns false
// once the writer is closed.
func (w *writeBehind) schedule(op writeOp) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.pending = op
	w.requested++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *writeBehind) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *writeBehind) drain() {
	for {
		w.mu.Lock()
		op, seq := w.pending, w.requested
		w.pending = opNone
		w.mu.Unlock()

		if op == opNone {
			return
		}
		err := w.run(w.ctx, op)

		w.mu.Lock()
		w.completed = seq
		w.lastErr = err
		close(w.changed)
		w.changed = make(chan struct{})
		w.mu.Unlock()
	}
}

// flush waits until every request made before the call has been written and
// returns the error of the latest finished write.
func (w *writeBehind) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.requested
	for w.completed < target && !isClosed(w.done) {
		ch := w.changed
		w.mu.Unlock()

		select {
		case <-ch:
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		w.mu.Lock()
	}
	err := w.lastErr
	w.mu.Unlock()
	return err
}

// close stops accepting requests, writes whatever is pending and stops the worker.
func (w *writeBehind) close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.stop)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
