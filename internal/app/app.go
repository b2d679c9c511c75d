// Package app wires config, storage, the ledger core, and the HTTP surface
// into a runnable node.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/api"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/config"
	machinecrypto "github.com/h-ibrahim365/ProvanceProtocol/internal/crypto"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/ledger"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/logging"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/service"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage/ledgerpostgres"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/storage/ledgersqlite"
)

type Application struct {
	Server *http.Server
	Ledger *ledger.Ledger
	Store  storage.Store
}

// OpenStore builds the configured storage backend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Storage.Backend)) {
	case config.BackendPostgres:
		store, err := ledgerpostgres.Open(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns, cfg.Storage.MinConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger store: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := ledgersqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	var signer *machinecrypto.Signer
	if cfg.Keys.SigningKeyPath != "" {
		var err error
		signer, err = machinecrypto.LoadSigner(cfg.Keys.SigningKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load node signing key: %w", err)
		}
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ldg, err := ledger.New(store, cfg.LedgerOptions(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build ledger: %w", err)
	}
	if err := ldg.Start(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("start ledger writer: %w", err)
	}

	svc, err := service.NewLedger(service.LedgerParams{
		Ledger:     ldg,
		Signer:     signer,
		WriteToken: cfg.Security.WriteToken,
		Service:    cfg.Logging.Service,
		Version:    cfg.Logging.Version,
	})
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ldg.Close(shutdownCtx)
		store.Close()
		return nil, fmt.Errorf("build ledger service: %w", err)
	}

	handler := api.NewLedgerHandler(svc, cfg.Server.MaxBodyBytes)
	env := logging.Environment{
		Service: cfg.Logging.Service,
		Version: cfg.Logging.Version,
		Commit:  cfg.Logging.Commit,
		Region:  cfg.Logging.Region,
	}
	root := logging.Middleware(logger, env)(handler.Router())

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           root,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Application{Server: server, Ledger: ldg, Store: store}, nil
}

// Shutdown stops the HTTP server, drains the writer, and closes the store.
func (a *Application) Shutdown(ctx context.Context) error {
	defer a.Store.Close()
	serverErr := a.Server.Shutdown(ctx)
	ledgerErr := a.Ledger.Close(ctx)
	if serverErr != nil {
		return serverErr
	}
	return ledgerErr
}
