// Package ledgerpostgres is the production Store backed by PostgreSQL.
// Timestamps and payloads are persisted as canonical text so entries round
// trip byte-identically into verification.
package ledgerpostgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

//go:embed migrations/001_init.sql
var migration001 string

const entryColumns = `sequence, id::text, ts, event_type, payload_json, previous_hash, current_hash`

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string, maxConns, minConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns >= 0 {
		cfg.MinConns = minConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &Store{pool: pool}
	if err := store.applyMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration001); err != nil {
		return fmt.Errorf("apply migration 001: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	payload, err := entry.Payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO ledger_entries (sequence, id, ts, event_type, payload_json, previous_hash, current_hash)
VALUES ($1, $2::uuid, $3, $4, $5, $6, $7)
`, entry.Sequence, entry.ID, entry.Timestamp.String(), entry.EventType, string(payload), entry.PreviousHash, entry.CurrentHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("append sequence %d: %w", entry.Sequence, storage.ErrDuplicateSequence)
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) Head(ctx context.Context) (protocol.LedgerEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+entryColumns+` FROM ledger_entries ORDER BY sequence DESC LIMIT 1
`)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return protocol.LedgerEntry{}, false, nil
	}
	if err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) All(ctx context.Context) ([]protocol.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+entryColumns+` FROM ledger_entries ORDER BY sequence ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()
	var out []protocol.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (protocol.LedgerEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1::uuid
`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return protocol.LedgerEntry{}, false, nil
	}
	if err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

// AcquireOrRenewLease upserts the lease row with compare-and-set semantics:
// the update only lands when the caller already holds the lease or the
// previous one has expired.
func (s *Store) AcquireOrRenewLease(ctx context.Context, resource, holder string, ttl time.Duration) (storage.Lease, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO ledger_leases (resource, holder, expires_at, last_heartbeat)
VALUES ($1, $2, NOW() + make_interval(secs => $3), NOW())
ON CONFLICT (resource) DO UPDATE
SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at, last_heartbeat = NOW()
WHERE ledger_leases.holder = EXCLUDED.holder OR ledger_leases.expires_at <= NOW()
RETURNING resource, holder, expires_at, last_heartbeat
`, resource, holder, ttl.Seconds())
	var lease storage.Lease
	err := row.Scan(&lease.Resource, &lease.Holder, &lease.ExpiresAt, &lease.LastHeartbeat)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Lease{}, storage.ErrLeaseHeld
	}
	if err != nil {
		return storage.Lease{}, fmt.Errorf("acquire lease %q: %w", resource, err)
	}
	return lease, nil
}

func scanEntry(row pgx.Row) (protocol.LedgerEntry, error) {
	var entry protocol.LedgerEntry
	var ts, payload string
	if err := row.Scan(&entry.Sequence, &entry.ID, &ts, &entry.EventType, &payload, &entry.PreviousHash, &entry.CurrentHash); err != nil {
		return protocol.LedgerEntry{}, err
	}
	parsed, err := protocol.ParseTimestamp(ts)
	if err != nil {
		return protocol.LedgerEntry{}, err
	}
	entry.Timestamp = parsed
	doc, err := protocol.ParseDocument([]byte(payload))
	if err != nil {
		return protocol.LedgerEntry{}, fmt.Errorf("decode payload for entry %s: %w", entry.ID, err)
	}
	entry.Payload = doc
	return entry, nil
}
