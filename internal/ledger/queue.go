package ledger

import (
	"context"
	"sync"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

// intent is a producer's pending submission: event type, payload, and a
// one-shot completion channel. The result channel is buffered so the writer
// never blocks resolving an intent whose caller has gone away.
type intent struct {
	eventType string
	payload   protocol.Document
	result    chan intentResult
}

type intentResult struct {
	entry protocol.LedgerEntry
	err   error
}

func newIntent(eventType string, payload protocol.Document) *intent {
	return &intent{
		eventType: eventType,
		payload:   payload,
		result:    make(chan intentResult, 1),
	}
}

func (it *intent) resolve(entry protocol.LedgerEntry) {
	it.result <- intentResult{entry: entry}
}

func (it *intent) reject(err error) {
	it.result <- intentResult{err: err}
}

// queue is the bounded many-producer/single-consumer handoff. Enqueue blocks
// while the channel is full; that suspension is the backpressure mechanism.
type queue struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	ch       chan *intent
}

func newQueue(capacity int) *queue {
	return &queue{ch: make(chan *intent, capacity)}
}

func (q *queue) enqueue(ctx context.Context, it *intent) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShuttingDown
	}
	q.inflight.Add(1)
	q.mu.Unlock()
	defer q.inflight.Done()

	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops new enqueues, waits for producers already past the closed
// check to land their intents, then closes the channel so the consumer can
// drain to completion. Safe to call more than once.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.inflight.Wait()
	close(q.ch)
}
