// Command server wires every engine component to its concrete storage
// backend and serves the HTTP API: resolve configuration, build shared
// dependencies, start background workers, start the HTTP server, and wait
// for SIGINT/SIGTERM to drain everything.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/garl-network/trust-ledger/internal/compliance"
	"github.com/garl-network/trust-ledger/internal/config"
	"github.com/garl-network/trust-ledger/internal/decaysweep"
	"github.com/garl-network/trust-ledger/internal/endorsement"
	"github.com/garl-network/trust-ledger/internal/httpapi"
	"github.com/garl-network/trust-ledger/internal/metrics"
	"github.com/garl-network/trust-ledger/internal/pipeline"
	"github.com/garl-network/trust-ledger/internal/ratelimit"
	repengine "github.com/garl-network/trust-ledger/internal/reputation"
	"github.com/garl-network/trust-ledger/internal/signing"
	"github.com/garl-network/trust-ledger/internal/storage"
	"github.com/garl-network/trust-ledger/internal/storage/agentlock"
	"github.com/garl-network/trust-ledger/internal/storage/memory"
	"github.com/garl-network/trust-ledger/internal/storage/postgres"
	"github.com/garl-network/trust-ledger/internal/verdict"
	"github.com/garl-network/trust-ledger/internal/webhookdispatch"
	"github.com/garl-network/trust-ledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.New("server", logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	keys, err := resolveSigningKeys(cfg, lg)
	if err != nil {
		lg.WithError(err).Fatal("resolve signing keys")
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		lg.WithError(err).Fatal("open storage backend")
	}
	defer closeStore()

	locks := agentlock.New(1024)
	repCfg := repengine.DefaultConfig()

	dispatcher := webhookdispatch.New(store, lg)
	dispatcher.WithObservationHooks(metrics.WebhookDispatchHooks())

	pl := pipeline.New(store, store, store, locks, keys, repCfg, dispatcher, lg)
	en := endorsement.New(store, store, store, locks, lg)
	vd := verdict.New(store, repCfg)
	cp := compliance.New(store, store, repCfg)

	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.RateLimitPerMinute, Window: time.Minute})

	handler := httpapi.New(store, store, store, store, pl, en, vd, cp, keys, limiter, cfg.ReadAuthEnabled, lg)
	router := handler.Router(cfg.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := decaysweep.New(store, locks, repCfg, lg)
	if err := sweeper.Start(ctx, cfg.DecaySweepCron); err != nil {
		lg.WithError(err).Fatal("start decay sweep")
	}
	if err := dispatcher.Start(ctx, cfg.WebhookWorkers); err != nil {
		lg.WithError(err).Fatal("start webhook dispatcher")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		lg.WithField("addr", cfg.HTTPAddr).Info("trust ledger listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Warn("http server shutdown error")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		lg.WithError(err).Warn("webhook dispatcher stop error")
	}
	if err := sweeper.Stop(shutdownCtx); err != nil {
		lg.WithError(err).Warn("decay sweep stop error")
	}
	lg.Info("stopped")
}

// resolveSigningKeys loads the certificate-signing keypair from
// SIGNING_PRIVATE_KEY_HEX, generating an ephemeral one for local/dev runs
// where it is unset -- verdicts and certificates still work, but a
// restart invalidates every previously issued certificate's signer
// identity, so production deployments must set the env var.
func resolveSigningKeys(cfg config.Config, lg *logger.Logger) (signing.KeyPair, error) {
	if cfg.SigningPrivateKeyHex != "" {
		return signing.LoadFromHex(cfg.SigningPrivateKeyHex)
	}
	lg.Warn("SIGNING_PRIVATE_KEY_HEX not set, generating an ephemeral signing key")
	return signing.Generate()
}

func openStore(cfg config.Config) (storage.Store, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return postgres.New(db), func() { _ = db.Close() }, nil
	case "memory", "":
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
