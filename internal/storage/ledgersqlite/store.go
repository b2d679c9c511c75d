// Package ledgersqlite is a single-file Store for deployments without a
// database server. It keeps the same text persistence as the postgres store
// so canonical round trips hold.
package ledgersqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
)

const entryColumns = `sequence, id, ts, event_type, payload_json, previous_hash, current_hash`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS ledger_entries (
  sequence      INTEGER PRIMARY KEY,
  id            TEXT NOT NULL UNIQUE,
  ts            TEXT NOT NULL,
  event_type    TEXT NOT NULL,
  payload_json  TEXT NOT NULL,
  previous_hash TEXT NOT NULL,
  current_hash  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_leases (
  resource       TEXT PRIMARY KEY,
  holder         TEXT NOT NULL,
  expires_at     INTEGER NOT NULL,
  last_heartbeat INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) Append(ctx context.Context, entry protocol.LedgerEntry) error {
	payload, err := entry.Payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO ledger_entries (sequence, id, ts, event_type, payload_json, previous_hash, current_hash)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, entry.Sequence, entry.ID, entry.Timestamp.String(), entry.EventType, string(payload), entry.PreviousHash, entry.CurrentHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: ledger_entries.sequence") ||
			strings.Contains(err.Error(), "constraint failed: ledger_entries.sequence") {
			return fmt.Errorf("append sequence %d: %w", entry.Sequence, storage.ErrDuplicateSequence)
		}
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) Head(ctx context.Context) (protocol.LedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+` FROM ledger_entries ORDER BY sequence DESC LIMIT 1
`)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.LedgerEntry{}, false, nil
	}
	if err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) All(ctx context.Context) ([]protocol.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
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
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?
`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.LedgerEntry{}, false, nil
	}
	if err != nil {
		return protocol.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) AcquireOrRenewLease(ctx context.Context, resource, holder string, ttl time.Duration) (storage.Lease, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storage.Lease{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	var existingHolder string
	var expiresAt int64
	err = tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM ledger_leases WHERE resource = ?`, resource).
		Scan(&existingHolder, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storage.Lease{}, fmt.Errorf("read lease %q: %w", resource, err)
	default:
		if existingHolder != holder && time.Unix(0, expiresAt).After(now) {
			return storage.Lease{}, storage.ErrLeaseHeld
		}
	}

	lease := storage.Lease{
		Resource:      resource,
		Holder:        holder,
		ExpiresAt:     now.Add(ttl),
		LastHeartbeat: now,
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_leases (resource, holder, expires_at, last_heartbeat)
VALUES (?, ?, ?, ?)
ON CONFLICT (resource) DO UPDATE SET
  holder = excluded.holder, expires_at = excluded.expires_at, last_heartbeat = excluded.last_heartbeat
`, resource, holder, lease.ExpiresAt.UnixNano(), lease.LastHeartbeat.UnixNano()); err != nil {
		return storage.Lease{}, fmt.Errorf("write lease %q: %w", resource, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Lease{}, err
	}
	return lease, nil
}

func scanEntry(row interface{ Scan(...any) error }) (protocol.LedgerEntry, error) {
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
