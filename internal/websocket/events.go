package websocket

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/limeprotocol/limews"
)

type eventKind int

const (
	eventOpen eventKind = iota
	eventEnvelope
	eventError
	eventClose
)

type event struct {
	kind eventKind
	env  limews.Envelope
	err  error
}

// eventQueue is an unbounded FIFO of session events drained by a single goroutine.
// push never blocks, so the socket reader is never held up by a slow handler.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events *queue.Queue
	closed bool
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		events: queue.New(),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends ev. It returns false once the queue is closed.
func (q *eventQueue) push(ev event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events.Add(ev)
	q.cond.Signal()
	return true
}

// close stops accepting events. Events already queued are still delivered.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

// next blocks until an event is available. It returns false when the queue is
// closed and empty.
func (q *eventQueue) next() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.events.Length() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.events.Length() == 0 {
		return event{}, false
	}
	return q.events.Remove().(event), true
}

// run delivers events to h until the queue is closed and drained. When after is
// non-nil, delivery starts only once it is closed, so hooks of consecutive
// sessions never interleave.
func (q *eventQueue) run(h limews.Handler, after <-chan struct{}) {
	defer close(q.done)

	if after != nil {
		<-after
	}

	for {
		ev, ok := q.next()
		if !ok {
			return
		}
		dispatch(h, ev)
	}
}

func dispatch(h limews.Handler, ev event) {
	switch ev.kind {
	case eventOpen:
		h.OnOpen()
	case eventEnvelope:
		h.OnEnvelope(ev.env)
	case eventError:
		h.OnError(ev.err)
	case eventClose:
		h.OnClose()
	}
}
