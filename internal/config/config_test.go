package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
storage:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
  secret_key: "super-secret"
security:
  write_token: "token-1"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8402" {
		t.Fatalf("unexpected listen default %q", cfg.Server.Listen)
	}
	if cfg.Ledger.QueueCapacity != 100000 {
		t.Fatalf("unexpected queue capacity default %d", cfg.Ledger.QueueCapacity)
	}
	if cfg.Ledger.LeaseDurationSeconds != 30 || cfg.Ledger.LeaseRenewSeconds != 10 {
		t.Fatalf("unexpected lease defaults %d/%d", cfg.Ledger.LeaseDurationSeconds, cfg.Ledger.LeaseRenewSeconds)
	}
	if cfg.Ledger.LockResourceName != "ledger_writer_lock_v1" {
		t.Fatalf("unexpected lock resource %q", cfg.Ledger.LockResourceName)
	}
	if cfg.Logging.Service != "provenance-node" {
		t.Fatalf("unexpected service default %q", cfg.Logging.Service)
	}
}

func TestLedgerOptionsMapping(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := cfg.LedgerOptions()
	if opts.GenesisHash != strings.Repeat("0", 64) {
		t.Fatalf("unexpected genesis %q", opts.GenesisHash)
	}
	if string(opts.SecretKey) != "super-secret" {
		t.Fatalf("unexpected secret key")
	}
	if opts.LeaseDuration != 30*time.Second || opts.LeaseRenewInterval != 10*time.Second {
		t.Fatalf("unexpected lease options %v/%v", opts.LeaseDuration, opts.LeaseRenewInterval)
	}
	if opts.RetryAttempts != 3 || opts.RetryBase != 2*time.Second {
		t.Fatalf("unexpected retry options %d/%v", opts.RetryAttempts, opts.RetryBase)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("LEDGER_SECRET", "from-env")
	t.Setenv("LEDGER_TOKEN", "token-env")
	cfg, err := Load(writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
  secret_key: "${LEDGER_SECRET}"
security:
  write_token: "${LEDGER_TOKEN}"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.SecretKey != "from-env" {
		t.Fatalf("expected env-expanded secret, got %q", cfg.Ledger.SecretKey)
	}
	if cfg.Security.WriteToken != "token-env" {
		t.Fatalf("expected env-expanded token, got %q", cfg.Security.WriteToken)
	}
}

func TestLoadRejectsBadGenesis(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
ledger:
  genesis_hash: "xyz"
  secret_key: "s"
security:
  write_token: "t"
`))
	if err == nil || !strings.Contains(err.Error(), "genesis_hash") {
		t.Fatalf("expected genesis validation error, got %v", err)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
security:
  write_token: "t"
`))
	if err == nil || !strings.Contains(err.Error(), "secret_key") {
		t.Fatalf("expected secret validation error, got %v", err)
	}
}

func TestLoadRejectsBadRenewInterval(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /tmp/ledger.db
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
  secret_key: "s"
  lease_duration_seconds: 10
  lease_renew_interval_seconds: 10
security:
  write_token: "t"
`))
	if err == nil || !strings.Contains(err.Error(), "lease_renew_interval_seconds") {
		t.Fatalf("expected lease interval validation error, got %v", err)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: dynamo
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
  secret_key: "s"
security:
  write_token: "t"
`))
	if err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	_, err := Load(writeConfig(t, `
storage:
  backend: postgres
ledger:
  genesis_hash: "0000000000000000000000000000000000000000000000000000000000000000"
  secret_key: "s"
security:
  write_token: "t"
`))
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("expected dsn validation error, got %v", err)
	}
}
