// Package ledger implements the append-and-seal pipeline: a bounded intent
// queue, the single writer that owns the chain head, and the full-chain
// verifier. Producers submit through the Ledger facade and never touch head
// state or hashes themselves.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

type Ledger struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
	queue  *queue
	writer *writer
}

// New validates options and assembles a ledger around the given store. The
// instance is inert until Start acquires the writer lease.
func New(store storage.Store, opts Options, logger *slog.Logger) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	q := newQueue(opts.QueueCapacity)
	return &Ledger{
		store:  store,
		opts:   opts,
		logger: logger,
		queue:  q,
		writer: newWriter(store, opts, q, logger),
	}, nil
}

// Start acquires the exclusive writer lease and begins draining the queue.
// It fails when another writer holds the lease.
func (l *Ledger) Start(ctx context.Context) error {
	return l.writer.start(ctx)
}

// AddEntry submits an event for sealing and blocks until the writer has
// durably persisted it. Enqueue suspends under backpressure when the queue
// is full. Cancellation before enqueue withdraws the submission; after
// enqueue it only detaches the caller - the entry is still written.
func (l *Ledger) AddEntry(ctx context.Context, eventType string, payload protocol.Document) (protocol.LedgerEntry, error) {
	if eventType == "" {
		return protocol.LedgerEntry{}, fmt.Errorf("%w: event type is required", ErrInvalidInput)
	}
	if payload == nil {
		return protocol.LedgerEntry{}, fmt.Errorf("%w: payload is required", ErrInvalidInput)
	}
	if err := protocol.ValidatePayload(payload); err != nil {
		return protocol.LedgerEntry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	it := newIntent(eventType, payload)
	if err := l.queue.enqueue(ctx, it); err != nil {
		return protocol.LedgerEntry{}, err
	}
	select {
	case res := <-it.result:
		return res.entry, res.err
	case <-ctx.Done():
		return protocol.LedgerEntry{}, ctx.Err()
	}
}

// Head returns the entry with the largest sequence, if any.
func (l *Ledger) Head(ctx context.Context) (protocol.LedgerEntry, bool, error) {
	return l.store.Head(ctx)
}

// GetByID returns a single entry by its id, if present.
func (l *Ledger) GetByID(ctx context.Context, id string) (protocol.LedgerEntry, bool, error) {
	return l.store.GetByID(ctx, id)
}

// Verify runs the read-only full-chain verification.
func (l *Ledger) Verify(ctx context.Context) (VerifyResult, error) {
	return VerifyChain(ctx, l.store, l.opts)
}

// State exposes the writer lifecycle state for health reporting.
func (l *Ledger) State() WriterState {
	return l.writer.State()
}

// Err returns the writer's terminal failure cause, if it has failed.
func (l *Ledger) Err() error {
	return l.writer.Err()
}

// Close stops accepting new entries, drains what is already queued, and
// waits for the writer and heartbeat to exit.
func (l *Ledger) Close(ctx context.Context) error {
	return l.writer.stop(ctx)
}
