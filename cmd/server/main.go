// Command server runs the veilpost intake service together with the group
// registry.
//
// The intake accepts anonymous report submissions, verifies their proof
// envelopes, enforces the one-submission-per-epoch rule, and stores accepted
// records. The group registry maintains the membership Merkle tree that
// submitters prove inclusion against.
//
// # Recipient key
//
// Reports are end-to-end encrypted to a designated recipient. The server
// never holds the recipient's private key; pass the public key so the
// submit CLI can fetch it, or distribute it out of band.
//
// # Usage
//
//	go run ./cmd/server --addr=:8080 --recipient-key=<hex P-256 public key>
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veilpost/veilpost/api/httpserver"
	"github.com/veilpost/veilpost/cmd/common"
	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/protocol"
	"github.com/veilpost/veilpost/server"
	"github.com/veilpost/veilpost/services"
)

func main() {
	var (
		addr            = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "", "metrics listen address (disabled if empty)")
		configPath      = flag.String("config", "", "protocol config YAML (defaults if empty)")
		recipientKeyHex = flag.String("recipient-key", "", "hex P-256 public key reports are encrypted to")
		pgHost          = flag.String("pg-host", "", "PostgreSQL host (in-memory stores if empty)")
		pgPort          = flag.Int("pg-port", 5432, "PostgreSQL port")
		pgUser          = flag.String("pg-user", "veilpost", "PostgreSQL user")
		pgPassword      = flag.String("pg-password", "", "PostgreSQL password")
		pgDatabase      = flag.String("pg-database", "veilpost", "PostgreSQL database")
		enablePprof     = flag.Bool("pprof", false, "enable pprof debug API")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	var recipientKey []byte
	if *recipientKeyHex != "" {
		recipientKey, err = common.ParseRecipientPublicKey(*recipientKeyHex)
		if err != nil {
			fmt.Printf("Recipient key error: %v\n", err)
			os.Exit(1)
		}
	}

	hasher := crypto.NewMiMCHasher()

	group, err := services.NewGroupRegistry(hasher, cfg)
	if err != nil {
		fmt.Printf("Group registry error: %v\n", err)
		os.Exit(1)
	}

	var (
		reportStore    services.ReportStore
		nullifierStore protocol.NullifierStore
	)
	if *pgHost != "" {
		pg, err := services.NewPostgresStore(&services.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			User:     *pgUser,
			Password: *pgPassword,
			Database: *pgDatabase,
		})
		if err != nil {
			fmt.Printf("Postgres error: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		reportStore, nullifierStore = pg, pg
	} else {
		reportStore = services.NewMemoryReportStore()
		nullifierStore = protocol.NewMemoryNullifierStore()
	}

	verifier := protocol.NewHashVerifier(hasher, cfg)
	intake, err := server.NewIntake(cfg, verifier, nullifierStore, reportStore, group, log)
	if err != nil {
		fmt.Printf("Intake error: %v\n", err)
		os.Exit(1)
	}

	handler := server.NewHandler(intake, reportStore)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               *addr,
		MetricsAddr:              *metricsAddr,
		EnablePprof:              *enablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, handler, group, recipientKeyRegistrar(recipientKey))
	if err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}

	srv.RunInBackground()
	log.Info("veilpost server started", "addr", *addr)

	// Background nullifier garbage collection for old epochs.
	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()
	go pruneLoop(gcCtx, nullifierStore, cfg, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	srv.Shutdown()
}

// recipientKeyRegistrar exposes the configured recipient public key so the
// submit CLI can fetch it.
type recipientKeyRegistrar []byte

func (k recipientKeyRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/recipient-key", func(w http.ResponseWriter, req *http.Request) {
		if len(k) == 0 {
			http.Error(w, "no recipient key configured", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"recipientKey": hex.EncodeToString(k)})
	})
}

// pruneLoop drops nullifier registrations outside the retention horizon.
func pruneLoop(ctx context.Context, store protocol.NullifierStore, cfg *protocol.Config, log *slog.Logger) {
	ticker := time.NewTicker(cfg.EpochDuration / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			horizon := protocol.CurrentEpoch(cfg.EpochDuration) - protocol.Epoch(cfg.RetainedEpochs)
			if err := store.PruneBefore(ctx, horizon); err != nil {
				log.Error("nullifier prune failed", "err", err)
			}
		}
	}
}
