package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

// flakyStore fails the first N appends with a transient error.
type flakyStore struct {
	*storage.MemoryStore
	remaining atomic.Int32
}

func (s *flakyStore) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	if s.remaining.Add(-1) >= 0 {
		return errors.New("transient io failure")
	}
	return s.MemoryStore.Append(ctx, entry)
}

// dupStore returns ErrDuplicateSequence for every append.
type dupStore struct {
	*storage.MemoryStore
}

func (s *dupStore) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	return storage.ErrDuplicateSequence
}

// droppingLeaseStore grants the first lease and refuses every renewal.
type droppingLeaseStore struct {
	*storage.MemoryStore
	granted atomic.Bool
}

func (s *droppingLeaseStore) AcquireOrRenewLease(ctx context.Context, resource, holder string, ttl time.Duration) (storage.Lease, error) {
	if s.granted.CompareAndSwap(false, true) {
		return s.MemoryStore.AcquireOrRenewLease(ctx, resource, holder, ttl)
	}
	return storage.Lease{}, storage.ErrLeaseHeld
}

// stallStore blocks the first append until released.
type stallStore struct {
	*storage.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallStore) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	stalled := false
	s.once.Do(func() {
		stalled = true
	})
	if stalled {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.Append(ctx, entry)
}

func TestWriterRetriesTransientAppendFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	store.remaining.Store(2)

	ldg := startLedger(t, store, testOptions())

	entry, err := ldg.AddEntry(context.Background(), "RETRY", protocol.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Sequence)

	result, err := ldg.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestWriterRejectsIntentAfterRetriesExhausted(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	store.remaining.Store(100)

	opts := testOptions()
	opts.RetryAttempts = 2
	ldg := startLedger(t, store, opts)
	ctx := context.Background()

	_, err := ldg.AddEntry(ctx, "FAIL", protocol.Document{})
	require.ErrorIs(t, err, ErrWriterFailed)

	// the writer survives a per-intent failure and its head state did not
	// advance: the next append still gets sequence 1
	store.remaining.Store(0)
	entry, err := ldg.AddEntry(ctx, "RECOVER", protocol.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Equal(t, testGenesis, entry.PreviousHash)
}

func TestWriterFailsOnDuplicateSequence(t *testing.T) {
	store := &dupStore{MemoryStore: storage.NewMemoryStore()}

	opts := testOptions()
	opts.RetryAttempts = 1
	ldg := startLedger(t, store, opts)

	_, err := ldg.AddEntry(context.Background(), "DUP", protocol.Document{})
	require.ErrorIs(t, err, ErrWriterFailed)
	require.ErrorIs(t, err, storage.ErrDuplicateSequence)

	require.Eventually(t, func() bool {
		return ldg.State() == StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := ldg.AddEntry(context.Background(), "AFTER", protocol.Document{})
		return errors.Is(err, ErrShuttingDown) || errors.Is(err, ErrWriterFailed)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriterFailsWhenLeaseIsLost(t *testing.T) {
	store := &droppingLeaseStore{MemoryStore: storage.NewMemoryStore()}

	opts := testOptions()
	opts.LeaseDuration = 100 * time.Millisecond
	opts.LeaseRenewInterval = 20 * time.Millisecond
	ldg := startLedger(t, store, opts)

	require.Eventually(t, func() bool {
		return ldg.State() == StateFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, ldg.Err(), ErrWriterFailed)
}

func TestCancellationAfterEnqueueStillPersists(t *testing.T) {
	store := &stallStore{
		MemoryStore: storage.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	ldg := startLedger(t, store, testOptions())

	firstDone := make(chan error, 1)
	go func() {
		_, err := ldg.AddEntry(context.Background(), "SLOW", protocol.Document{})
		firstDone <- err
	}()
	<-store.entered

	// the second intent is enqueued behind the stalled one; cancelling its
	// caller detaches the wait but the writer still seals it
	ctx, cancel := context.WithCancel(context.Background())
	secondDone := make(chan error, 1)
	go func() {
		_, err := ldg.AddEntry(ctx, "DETACHED", protocol.Obj("k", "v"))
		secondDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-secondDone, context.Canceled)

	close(store.release)
	require.NoError(t, <-firstDone)

	require.Eventually(t, func() bool {
		all, err := store.All(context.Background())
		return err == nil && len(all) == 2
	}, 2*time.Second, 10*time.Millisecond)

	result, err := ldg.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestWriterResumesFromExistingHead(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first := startLedger(t, store, testOptions())
	e1, err := first.AddEntry(ctx, "BEFORE_RESTART", protocol.Document{})
	require.NoError(t, err)
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, first.Close(closeCtx))

	second := startLedger(t, store, testOptions())
	e2, err := second.AddEntry(ctx, "AFTER_RESTART", protocol.Document{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), e2.Sequence)
	assert.Equal(t, e1.CurrentHash, e2.PreviousHash)

	result, err := second.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
