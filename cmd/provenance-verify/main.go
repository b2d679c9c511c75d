package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/app"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/config"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/ledger"
)

// provenance-verify runs the read-only full-chain verification against the
// configured store and reports the result as JSON on stdout. Exit code 1
// means the chain did not verify.
func main() {
	configPath := flag.String("config", "configs/node.yaml", "path to node config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store error: %v\n", err)
		os.Exit(2)
	}
	defer store.Close()

	result, err := ledger.VerifyChain(ctx, store, cfg.LedgerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify error: %v\n", err)
		os.Exit(2)
	}

	out := map[string]any{
		"valid":           result.Valid,
		"reason":          result.Reason,
		"entries_checked": result.Entries,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)

	if !result.Valid {
		os.Exit(1)
	}
}
