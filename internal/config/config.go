package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/ledger"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config captures runtime settings for a provenance ledger node.
type Config struct {
	Server struct {
		Listen                 string `yaml:"listen"`
		ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
		MaxBodyBytes           int64  `yaml:"max_body_bytes"`
	} `yaml:"server"`

	Storage struct {
		Backend     string `yaml:"backend"`
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxConns    int32  `yaml:"max_conns"`
		MinConns    int32  `yaml:"min_conns"`
		SQLitePath  string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Ledger struct {
		GenesisHash          string `yaml:"genesis_hash"`
		SecretKey            string `yaml:"secret_key"`
		QueueCapacity        int    `yaml:"queue_capacity"`
		LeaseDurationSeconds int    `yaml:"lease_duration_seconds"`
		LeaseRenewSeconds    int    `yaml:"lease_renew_interval_seconds"`
		RetryAttempts        int    `yaml:"retry_attempts"`
		RetryBaseSeconds     int    `yaml:"retry_base_seconds"`
		LockResourceName     string `yaml:"lock_resource_name"`
	} `yaml:"ledger"`

	Security struct {
		WriteToken string `yaml:"write_token"`
	} `yaml:"security"`

	// Keys is optional; when set, append responses carry a signed ack.
	Keys struct {
		SigningKeyPath string `yaml:"signing_key_path"`
	} `yaml:"keys"`

	Logging struct {
		Service string `yaml:"service"`
		Version string `yaml:"version"`
		Commit  string `yaml:"commit"`
		Region  string `yaml:"region"`
	} `yaml:"logging"`
}

// Load reads and validates config from disk.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.expandEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LedgerOptions maps the config block onto core ledger options.
func (c *Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		GenesisHash:        strings.ToLower(strings.TrimSpace(c.Ledger.GenesisHash)),
		SecretKey:          []byte(c.Ledger.SecretKey),
		QueueCapacity:      c.Ledger.QueueCapacity,
		LeaseDuration:      time.Duration(c.Ledger.LeaseDurationSeconds) * time.Second,
		LeaseRenewInterval: time.Duration(c.Ledger.LeaseRenewSeconds) * time.Second,
		RetryAttempts:      c.Ledger.RetryAttempts,
		RetryBase:          time.Duration(c.Ledger.RetryBaseSeconds) * time.Second,
		LockResourceName:   c.Ledger.LockResourceName,
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8402"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 20
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 8 << 20
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendPostgres
	}
	if c.Storage.MaxConns <= 0 {
		c.Storage.MaxConns = 12
	}
	if c.Storage.MinConns < 0 {
		c.Storage.MinConns = 0
	}
	if c.Ledger.QueueCapacity <= 0 {
		c.Ledger.QueueCapacity = ledger.DefaultQueueCapacity
	}
	if c.Ledger.LeaseDurationSeconds <= 0 {
		c.Ledger.LeaseDurationSeconds = int(ledger.DefaultLeaseDuration / time.Second)
	}
	if c.Ledger.LeaseRenewSeconds <= 0 {
		c.Ledger.LeaseRenewSeconds = int(ledger.DefaultLeaseRenewInterval / time.Second)
	}
	if c.Ledger.RetryAttempts <= 0 {
		c.Ledger.RetryAttempts = ledger.DefaultRetryAttempts
	}
	if c.Ledger.RetryBaseSeconds <= 0 {
		c.Ledger.RetryBaseSeconds = int(ledger.DefaultRetryBase / time.Second)
	}
	if c.Ledger.LockResourceName == "" {
		c.Ledger.LockResourceName = ledger.DefaultLockResourceName
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "provenance-node"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "dev"
	}
	if c.Logging.Commit == "" {
		c.Logging.Commit = "unknown"
	}
	if c.Logging.Region == "" {
		c.Logging.Region = "local"
	}
}

func (c *Config) validate() error {
	switch strings.TrimSpace(strings.ToLower(c.Storage.Backend)) {
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return errors.New("storage.backend must be one of postgres|sqlite")
	}
	if !protocol.ValidGenesisHash(strings.ToLower(strings.TrimSpace(c.Ledger.GenesisHash))) {
		return errors.New("ledger.genesis_hash must be 64 lowercase hex characters")
	}
	if c.Ledger.SecretKey == "" {
		return errors.New("ledger.secret_key is required")
	}
	if c.Ledger.LeaseRenewSeconds >= c.Ledger.LeaseDurationSeconds {
		return errors.New("ledger.lease_renew_interval_seconds must be less than ledger.lease_duration_seconds")
	}
	if strings.TrimSpace(c.Security.WriteToken) == "" {
		return errors.New("security.write_token is required")
	}
	return nil
}

func (c *Config) expandEnv() {
	c.Storage.PostgresDSN = os.ExpandEnv(strings.TrimSpace(c.Storage.PostgresDSN))
	c.Storage.SQLitePath = os.ExpandEnv(strings.TrimSpace(c.Storage.SQLitePath))
	c.Ledger.SecretKey = os.ExpandEnv(c.Ledger.SecretKey)
	c.Ledger.GenesisHash = os.ExpandEnv(strings.TrimSpace(c.Ledger.GenesisHash))
	c.Security.WriteToken = os.ExpandEnv(strings.TrimSpace(c.Security.WriteToken))
	c.Keys.SigningKeyPath = os.ExpandEnv(strings.TrimSpace(c.Keys.SigningKeyPath))
}
