// Package daemon wires the configuration, the backing stores, the storage
// engine and the admin HTTP endpoint into a runnable service.
package daemon

import (
	"context"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/config"
	"github.com/fluxmq/schemastore/cmd/schemastored/internal/db"
	"github.com/fluxmq/schemastore/cmd/schemastored/internal/memorystore"
	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

const (
	defaultReadTimeout         = 5 * time.Second
	defaultShutdownGracePeriod = 10 * time.Second
	bootstrapTimeout           = 30 * time.Second
)

type Daemon struct {
	logger   *logrus.Entry
	engine   *schemastore.Engine
	sqlDB    *sqlx.DB
	registry *prometheus.Registry
}

// Engine exposes the storage engine, mainly for the admin handler and tests.
func (d *Daemon) Engine() *schemastore.Engine {
	return d.engine
}

func (d *Daemon) PrometheusRegistry() *prometheus.Registry {
	return d.registry
}

func (d *Daemon) Close() error {
	var err error
	if localErr := d.engine.Close(); localErr != nil {
		err = localErr
	}
	if d.sqlDB != nil {
		if localErr := d.sqlDB.Close(); localErr != nil {
			err = localErr
		}
	}
	return err
}

func newLogger(cfg *config.Config) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(logger)
}

// MustNew builds a daemon from cfg, or exits the process when any part of
// the bootstrap fails.
func MustNew(cfg *config.Config) *Daemon {
	logger := newLogger(cfg)
	registry := prometheus.NewRegistry()

	var (
		sqlDB        *sqlx.DB
		ledgerStore  schemastore.LedgerStore
		locatorStore schemastore.LocatorStore
	)
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		var err error
		sqlDB, err = db.OpenSQLiteDB(cfg.DatabasePath)
		if err != nil {
			logger.Fatalf("could not open database %q: %v", cfg.DatabasePath, err)
		}
		ledgerStore = db.NewLedgerStore(sqlDB)
		locatorStore, err = db.NewLocatorStore(sqlDB, cfg.LocatorCacheSize)
		if err != nil {
			logger.Fatalf("could not build locator store: %v", err)
		}
	case config.BackendMemory:
		ledgerStore = memorystore.NewLedgerStore()
		locatorStore = memorystore.NewLocatorStore()
	default:
		logger.Fatalf("unknown storage backend %q", cfg.StorageBackend)
	}

	engine, err := schemastore.New(schemastore.Config{
		LedgerStore:      ledgerStore,
		LocatorStore:     locatorStore,
		Root:             cfg.LocatorRoot,
		EnsembleSize:     cfg.LedgerEnsembleSize,
		WriteQuorum:      cfg.LedgerWriteQuorum,
		AckQuorum:        cfg.LedgerAckQuorum,
		DigestType:       cfg.LedgerDigest,
		PutRetryInterval: cfg.PutRetryInterval,
		Logger:           logger,
		Registry:         registry,
	})
	if err != nil {
		logger.Fatalf("could not build storage engine: %v", err)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancelInit()
	if err := engine.Init(initCtx); err != nil {
		logger.Fatalf("could not initialize locator root: %v", err)
	}
	if err := engine.Start(); err != nil {
		logger.Fatalf("could not start storage engine: %v", err)
	}

	d := &Daemon{
		logger:   logger,
		engine:   engine,
		sqlDB:    sqlDB,
		registry: registry,
	}
	d.registerMetrics()
	return d
}

// Run starts the daemon and blocks until an interrupt signal arrives; then
// it shuts the admin server down gracefully and closes the engine.
func Run(cfg *config.Config) {
	d := MustNew(cfg)

	var adminServer *http.Server
	if cfg.AdminEndpoint != "" {
		adminServer = &http.Server{
			Addr:        cfg.AdminEndpoint,
			Handler:     d.adminHandler(),
			ReadTimeout: defaultReadTimeout,
		}
		d.logger.Infof("Starting admin server on %v", cfg.AdminEndpoint)
		go func() {
			if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				d.logger.Fatalf("admin server encountered fatal error: %v", err)
			}
		}()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), defaultShutdownGracePeriod)
	defer shutdownRelease()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Errorf("error during admin server shutdown: %v", err)
		}
	}
	if err := d.Close(); err != nil {
		d.logger.Errorf("error during daemon shutdown: %v", err)
	}
}

func (d *Daemon) metricsHandler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}
