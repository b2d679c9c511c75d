package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

const (
	DefaultQueueCapacity      = 100000
	DefaultLeaseDuration      = 30 * time.Second
	DefaultLeaseRenewInterval = 10 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryBase          = 2 * time.Second
	DefaultLockResourceName   = "ledger_writer_lock_v1"
)

// Options configures a ledger instance. GenesisHash and SecretKey are
// required; everything else has working defaults.
type Options struct {
	GenesisHash        string
	SecretKey          []byte
	QueueCapacity      int
	LeaseDuration      time.Duration
	LeaseRenewInterval time.Duration
	RetryAttempts      int
	RetryBase          time.Duration
	LockResourceName   string
}

func (o *Options) applyDefaults() {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.LeaseDuration <= 0 {
		o.LeaseDuration = DefaultLeaseDuration
	}
	if o.LeaseRenewInterval <= 0 {
		o.LeaseRenewInterval = DefaultLeaseRenewInterval
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.LockResourceName == "" {
		o.LockResourceName = DefaultLockResourceName
	}
}

func (o *Options) validate() error {
	if !protocol.ValidGenesisHash(o.GenesisHash) {
		return fmt.Errorf("%w: genesis hash must match [0-9a-f]{64}", ErrInvalidInput)
	}
	if len(o.SecretKey) == 0 {
		return fmt.Errorf("%w: secret key is required", ErrInvalidInput)
	}
	if o.LeaseRenewInterval >= o.LeaseDuration {
		return fmt.Errorf("%w: lease renew interval must be shorter than lease duration", ErrInvalidInput)
	}
	return nil
}

var (
	// ErrInvalidInput covers malformed options, empty event types, and
	// payloads that cannot be canonicalized. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrShuttingDown is returned by AddEntry once the queue has closed.
	ErrShuttingDown = errors.New("ledger shutting down")

	// ErrWriterFailed wraps writer-side failures: lease loss and duplicate
	// sequence from the store, which are terminal for the writer, and
	// persistence that exhausted its retries, which fails only that intent.
	ErrWriterFailed = errors.New("ledger writer failed")
)
