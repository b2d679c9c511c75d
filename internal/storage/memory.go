package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

// MemoryStore is the reference Store for tests and development: an ordered
// slice behind a mutex plus a lease map keyed by resource name.
type MemoryStore struct {
	mu      sync.Mutex
	entries []protocol.LedgerEntry
	bySeq   map[int64]struct{}
	byID    map[string]int
	leases  map[string]Lease

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySeq:  make(map[int64]struct{}),
		byID:   make(map[string]int),
		leases: make(map[string]Lease),
		now:    time.Now,
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySeq[entry.Sequence]; exists {
		return ErrDuplicateSequence
	}
	s.bySeq[entry.Sequence] = struct{}{}
	s.byID[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) Head(ctx context.Context) (protocol.LedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return protocol.LedgerEntry{}, false, nil
	}
	head := s.entries[0]
	for _, e := range s.entries[1:] {
		if e.Sequence > head.Sequence {
			head = e
		}
	}
	return head, true, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]protocol.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (protocol.LedgerEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return protocol.LedgerEntry{}, false, nil
	}
	return s.entries[idx], true, nil
}

func (s *MemoryStore) AcquireOrRenewLease(ctx context.Context, resource, holder string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	existing, ok := s.leases[resource]
	if ok && existing.Holder != holder && existing.ExpiresAt.After(now) {
		return Lease{}, ErrLeaseHeld
	}
	lease := Lease{
		Resource:      resource,
		Holder:        holder,
		ExpiresAt:     now.Add(ttl),
		LastHeartbeat: now,
	}
	s.leases[resource] = lease
	return lease, nil
}
