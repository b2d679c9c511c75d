package ledger

import (
	"context"
	"crypto/hmac"
	"fmt"
	"sort"
	"strings"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

// cancelCheckStride bounds how many entries are recomputed between context
// checks on large ledgers.
const cancelCheckStride = 256

// VerifyResult reports the outcome of a full-chain verification. Integrity
// failures are expected outcomes, not errors: they land in Valid/Reason.
type VerifyResult struct {
	Valid   bool
	Reason  string
	Entries int64
}

// VerifyChain re-derives every seal from the genesis anchor to the tail.
// It is read-only and safe to run while the writer is appending.
func VerifyChain(ctx context.Context, store storage.Store, opts Options) (VerifyResult, error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return VerifyResult{}, err
	}

	entries, err := store.All(ctx)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("load ledger entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Sequence != entries[j].Sequence {
			return entries[i].Sequence < entries[j].Sequence
		}
		return entries[i].ID < entries[j].ID
	})

	if len(entries) == 0 {
		return VerifyResult{Valid: true, Reason: "ledger empty"}, nil
	}

	for i, e := range entries {
		if e.Sequence != int64(i)+1 {
			return VerifyResult{
				Reason:  fmt.Sprintf("sequence violation: position %d holds sequence %d (id %s)", i+1, e.Sequence, e.ID),
				Entries: int64(i),
			}, nil
		}
	}

	expected := strings.ToLower(opts.GenesisHash)
	for i, e := range entries {
		if i%cancelCheckStride == 0 {
			if err := ctx.Err(); err != nil {
				return VerifyResult{}, err
			}
		}
		if strings.ToLower(e.PreviousHash) != expected {
			return VerifyResult{
				Reason:  fmt.Sprintf("chain broken at sequence %d (id %s): previous hash does not match predecessor", e.Sequence, e.ID),
				Entries: int64(i),
			}, nil
		}
		canonical, err := protocol.CanonicalBytes(e)
		if err != nil {
			return VerifyResult{
				Reason:  fmt.Sprintf("data tampered at sequence %d (id %s): %v", e.Sequence, e.ID, err),
				Entries: int64(i),
			}, nil
		}
		recomputed := protocol.Seal(canonical, opts.SecretKey)
		if !hmac.Equal([]byte(recomputed), []byte(strings.ToLower(e.CurrentHash))) {
			return VerifyResult{
				Reason:  fmt.Sprintf("data tampered at sequence %d (id %s): seal mismatch", e.Sequence, e.ID),
				Entries: int64(i),
			}, nil
		}
		expected = recomputed
	}

	return VerifyResult{
		Valid:   true,
		Reason:  fmt.Sprintf("ledger chain intact (%d entries)", len(entries)),
		Entries: int64(len(entries)),
	}, nil
}
