package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

// WriterState tracks the single writer's lifecycle.
type WriterState int32

const (
	StateStarting WriterState = iota
	StateLeaseAcquired
	StateInitialized
	StateRunning
	StateDraining
	StateStopped
	StateFailed
)

func (s WriterState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateLeaseAcquired:
		return "lease_acquired"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// writer owns the chain head. It is the only component that assigns
// sequences, computes seals, and appends to the store; producers hand it
// intents through the queue and wait.
type writer struct {
	store    storage.Store
	opts     Options
	queue    *queue
	logger   *slog.Logger
	workerID string

	headHash string
	headSeq  int64

	state   atomic.Int32
	started atomic.Bool

	fatalOnce sync.Once
	fatal     chan struct{}
	failure   atomic.Value

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
	done          chan struct{}

	now func() time.Time
}

func newWriter(store storage.Store, opts Options, q *queue, logger *slog.Logger) *writer {
	return &writer{
		store:         store,
		opts:          opts,
		queue:         q,
		logger:        logger,
		workerID:      protocol.NewEntryID(),
		fatal:         make(chan struct{}),
		heartbeatStop: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

func (w *writer) State() WriterState {
	return WriterState(w.state.Load())
}

func (w *writer) setState(s WriterState) {
	w.state.Store(int32(s))
}

// Err returns the terminal failure cause once the writer has failed.
func (w *writer) Err() error {
	if err, ok := w.failure.Load().(error); ok {
		return err
	}
	return nil
}

func (w *writer) fail(cause error) {
	w.fatalOnce.Do(func() {
		w.failure.Store(cause)
		close(w.fatal)
	})
}

// start acquires the lease, reads the chain head, and launches the
// heartbeat and drain loops. It blocks only for the startup sequence.
func (w *writer) start(ctx context.Context) error {
	w.setState(StateStarting)
	if _, err := w.store.AcquireOrRenewLease(ctx, w.opts.LockResourceName, w.workerID, w.opts.LeaseDuration); err != nil {
		w.setState(StateFailed)
		w.fail(err)
		return fmt.Errorf("acquire writer lease: %w", err)
	}
	w.setState(StateLeaseAcquired)

	head, found, err := w.store.Head(ctx)
	if err != nil {
		w.setState(StateFailed)
		w.fail(err)
		return fmt.Errorf("read chain head: %w", err)
	}
	if found {
		w.headHash = head.CurrentHash
		w.headSeq = head.Sequence
	} else {
		w.headHash = w.opts.GenesisHash
		w.headSeq = 0
	}
	w.setState(StateInitialized)

	w.started.Store(true)
	go w.heartbeat()
	go w.run()
	w.setState(StateRunning)
	w.logger.Info("ledger writer started",
		slog.String("worker_id", w.workerID),
		slog.Int64("head_sequence", w.headSeq))
	return nil
}

// heartbeat renews the lease until the writer stops. A renewal failure means
// ownership was lost; the writer must halt immediately so a successor cannot
// fork the chain.
func (w *writer) heartbeat() {
	defer close(w.heartbeatDone)
	ticker := time.NewTicker(w.opts.LeaseRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.heartbeatStop:
			return
		case <-w.fatal:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.opts.LeaseRenewInterval)
			_, err := w.store.AcquireOrRenewLease(ctx, w.opts.LockResourceName, w.workerID, w.opts.LeaseDuration)
			cancel()
			if err != nil {
				w.logger.Error("ledger writer lost lease", slog.String("error", err.Error()))
				w.fail(fmt.Errorf("%w: lease renewal: %w", ErrWriterFailed, err))
				return
			}
		}
	}
}

func (w *writer) run() {
	defer close(w.done)
	defer close(w.heartbeatStop)
	for {
		select {
		case <-w.fatal:
			w.drainFailed()
			return
		case it, ok := <-w.queue.ch:
			if !ok {
				w.setState(StateStopped)
				return
			}
			if err := w.process(it); err != nil {
				w.fail(err)
				w.drainFailed()
				return
			}
		}
	}
}

// drainFailed rejects everything still queued after a terminal failure so
// no producer waits forever.
func (w *writer) drainFailed() {
	w.setState(StateFailed)
	cause := w.Err()
	if cause == nil {
		cause = ErrWriterFailed
	}
	go w.queue.close()
	for it := range w.queue.ch {
		it.reject(cause)
	}
}

// process seals and persists one intent. A non-nil return is terminal for
// the writer; per-intent failures are delivered on the intent and the loop
// continues with the head state unchanged.
func (w *writer) process(it *intent) error {
	entry := protocol.LedgerEntry{
		ID:           protocol.NewEntryID(),
		Sequence:     w.headSeq + 1,
		Timestamp:    protocol.NewTimestamp(w.now()),
		EventType:    it.eventType,
		Payload:      it.payload,
		PreviousHash: w.headHash,
	}
	canonical, err := protocol.CanonicalBytes(entry)
	if err != nil {
		it.reject(fmt.Errorf("%w: %w", ErrInvalidInput, err))
		return nil
	}
	entry.CurrentHash = protocol.Seal(canonical, w.opts.SecretKey)

	if err := w.persist(entry); err != nil {
		if errors.Is(err, storage.ErrDuplicateSequence) {
			fatal := fmt.Errorf("%w: %w", ErrWriterFailed, err)
			it.reject(fatal)
			return fatal
		}
		if w.Err() != nil {
			it.reject(w.Err())
			return w.Err()
		}
		it.reject(fmt.Errorf("%w: %w", ErrWriterFailed, err))
		w.logger.Error("ledger append failed",
			slog.Int64("sequence", entry.Sequence),
			slog.String("error", err.Error()))
		return nil
	}

	w.headHash = entry.CurrentHash
	w.headSeq = entry.Sequence
	it.resolve(entry)
	return nil
}

// persist appends with bounded retry. Retries stay confined to this single
// entry; the writer never moves on while an append is unresolved.
func (w *writer) persist(entry protocol.LedgerEntry) error {
	var lastErr error
	for attempt := 0; attempt <= w.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := w.opts.RetryBase << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-w.fatal:
				timer.Stop()
				return w.Err()
			}
		}
		ctx := context.Background()
		err := w.store.Append(ctx, entry)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrDuplicateSequence) {
			return err
		}
		lastErr = err
		w.logger.Warn("ledger append retry",
			slog.Int64("sequence", entry.Sequence),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return lastErr
}

// stop closes the queue, drains already-enqueued intents, waits for the
// loops to exit or the context to give up, and then hands back the lease.
func (w *writer) stop(ctx context.Context) error {
	if !w.started.Load() {
		w.queue.close()
		return nil
	}
	w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	w.queue.close()
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-w.heartbeatDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	// a zero TTL expires the lease at once, so a successor can start
	// without waiting out the lease duration
	if _, err := w.store.AcquireOrRenewLease(ctx, w.opts.LockResourceName, w.workerID, 0); err != nil {
		w.logger.Warn("ledger writer lease release failed", slog.String("error", err.Error()))
	}
	return nil
}
