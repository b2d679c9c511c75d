// Package storage defines the persistence contract the ledger core depends
// on. Concrete backends live in subpackages; the in-memory store here backs
// tests and development.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

var (
	// ErrDuplicateSequence reports an append that would reuse a sequence
	// number. The writer treats this as fatal: it means a second writer is
	// active or the store lost its uniqueness guarantee.
	ErrDuplicateSequence = errors.New("duplicate ledger sequence")

	// ErrLeaseHeld reports that another holder owns an unexpired lease.
	ErrLeaseHeld = errors.New("lease held by another worker")
)

// Lease is the persisted exclusive claim on the writer role.
type Lease struct {
	Resource      string
	Holder        string
	ExpiresAt     time.Time
	LastHeartbeat time.Time
}

// Store persists sealed entries and the writer lease. Appended entries are
// durable before Append returns; sequence numbers are unique per ledger;
// All returns entries ordered by (sequence asc, id asc) regardless of
// insertion order.
type Store interface {
	Close()

	Append(ctx context.Context, entry protocol.LedgerEntry) error
	Head(ctx context.Context) (protocol.LedgerEntry, bool, error)
	All(ctx context.Context) ([]protocol.LedgerEntry, error)
	GetByID(ctx context.Context, id string) (protocol.LedgerEntry, bool, error)

	AcquireOrRenewLease(ctx context.Context, resource, holder string, ttl time.Duration) (Lease, error)
}
