package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/api"
	assetmemory "github.com/sheikh-saqib/custody-vault-ledger/internal/asset/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/config"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/errors"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/events/kafka"
	eventsmemory "github.com/sheikh-saqib/custody-vault-ledger/internal/events/memory"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/metrics"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage/sqlite"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

// run serves the vault until ctx is done or the server fails.
func run(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open vault store")
	}
	defer closeStore()

	var publisher interfaces.EventPublisher = eventsmemory.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers)
		defer p.Close()
		publisher = p
		log.WithField("brokers", cfg.KafkaBrokers).Info("publishing vault events to kafka")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	token := newDemoAsset(cfg)
	v, err := vault.New(store, token, models.Address(cfg.CustodyAddress),
		vault.WithPublisher(publisher, cfg.KafkaTopic),
		vault.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return errors.Wrap(err, "create vault")
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewHandler(v, token, reg),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":    cfg.HTTPAddr,
			"db":      cfg.DBType,
			"custody": cfg.CustodyAddress,
		}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	return nil
}

// newDemoAsset returns the in-memory token the demo server runs against; the
// asset endpoints mint and approve on it. Its balances are lost on restart.
func newDemoAsset(cfg *config.Config) *assetmemory.Token {
	if cfg.DBType != config.DBMemory {
		log.WithField("db", cfg.DBType).Warn("demo asset is in-memory, persisted balances are not backed by custody tokens after a restart")
	}
	return assetmemory.NewToken("USD")
}

func openStore(ctx context.Context, cfg *config.Config) (interfaces.VaultStore, func(), error) {
	switch cfg.DBType {
	case config.DBPostgres:
		s, err := postgres.NewPostgresVaultStore(ctx, cfg.PgConnectAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.DBSQLite:
		s, err := sqlite.NewSQLiteVaultStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		log.Warn("using in-memory vault store, state is lost on restart")
		return memory.NewMemoryVaultStore(), func() {}, nil
	}
}
