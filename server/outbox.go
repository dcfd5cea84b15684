package server

import (
	"errors"
	"sync"
)

var (
	errOutboxClosed = errors.New("connection closing")
	errOutboxFull   = errors.New("outbound queue full")
)

// outbox is the ordered queue of frames waiting to be written to one
// connection. Pushing never blocks; a single writer goroutine drains it.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []string
	limit  int
	closed bool
}

func newOutbox(limit int) *outbox {
	o := &outbox{limit: limit}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *outbox) push(frame string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return errOutboxClosed
	}
	if o.limit > 0 && len(o.frames) >= o.limit {
		return errOutboxFull
	}
	o.frames = append(o.frames, frame)
	o.cond.Signal()
	return nil
}

// take blocks until frames are queued and returns all of them. After close it
// returns what is left, then false.
func (o *outbox) take() ([]string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.frames) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.frames) == 0 {
		return nil, false
	}
	frames := o.frames
	o.frames = nil
	return frames, true
}

// close stops accepting frames. Frames already queued are still handed out.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

// abort stops accepting frames and drops the queued ones.
func (o *outbox) abort() {
	o.mu.Lock()
	o.closed = true
	o.frames = nil
	o.cond.Broadcast()
	o.mu.Unlock()
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}
