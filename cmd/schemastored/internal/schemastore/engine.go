// Package schemastore implements the versioned, append-only schema storage
// engine. Every registered schema version lives in its own single-entry
// ledger; a compare-and-swap protected locator node per schema id points at
// the latest entry and indexes the full history. Atomic version advancement
// under concurrent writers comes from the locator CAS alone: the write path
// keeps the CAS region minimal and retries end-to-end on lost races.
package schemastore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/util"
)

const (
	// DefaultRoot is the well-known locator store path under which one node
	// per schema id is kept.
	DefaultRoot = "/schemas"

	defaultPutRetryInterval = 5 * time.Millisecond
)

var errNotStarted = errors.New("schemastore: engine is not started")

// Config carries the engine's dependencies and write-time parameters.
type Config struct {
	LedgerStore  LedgerStore
	LocatorStore LocatorStore

	// Root is the locator store path prefix; DefaultRoot when empty.
	Root string

	// Ledger creation parameters, recorded as ledger metadata.
	EnsembleSize int
	WriteQuorum  int
	AckQuorum    int
	DigestType   string

	// PutRetryInterval is the pause between write-path retries after a lost
	// locator race.
	PutRetryInterval time.Duration

	Logger   *logrus.Entry
	Registry *prometheus.Registry
}

// Engine is the schema storage engine. All public operations are safe for
// concurrent use. The zero value is not usable; construct with New and call
// Init and Start before serving.
type Engine struct {
	cfg    Config
	logger *logrus.Entry

	ledgers  LedgerStore
	locators LocatorStore

	// latest coalesces concurrent GetLatest calls per schema id into a
	// single backend round-trip.
	latest singleflight.Group

	metrics engineMetrics

	// tasks runs the background fetches of GetAll futures.
	tasks *util.PanicGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// New validates cfg and builds an engine. The backing stores must already be
// open; the engine takes ownership and closes them in Close.
func New(cfg Config) (*Engine, error) {
	if cfg.LedgerStore == nil {
		return nil, errors.New("schemastore: ledger store is required")
	}
	if cfg.LocatorStore == nil {
		return nil, errors.New("schemastore: locator store is required")
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.PutRetryInterval <= 0 {
		cfg.PutRetryInterval = defaultPutRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.New())
	}
	e := &Engine{
		cfg:      cfg,
		logger:   cfg.Logger,
		ledgers:  cfg.LedgerStore,
		locators: cfg.LocatorStore,
		metrics:  newEngineMetrics(cfg.Registry),
	}
	e.tasks = util.NewPanicGroup(cfg.Logger).WithCounter(e.metrics.panics)
	return e, nil
}

// Init idempotently ensures the locator root exists.
func (e *Engine) Init(ctx context.Context) error {
	return e.locators.EnsureRoot(ctx, e.cfg.Root)
}

// Start marks the engine ready to serve. Safe to call more than once.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("schemastore: engine is closed")
	}
	e.started = true
	return nil
}

// Close releases the backing stores. Safe to call when never started, and
// safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.started = false
	e.mu.Unlock()

	var err error
	if localErr := e.ledgers.Close(); localErr != nil {
		err = localErr
	}
	if localErr := e.locators.Close(); localErr != nil {
		err = localErr
	}
	return err
}

func (e *Engine) checkStarted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.closed {
		return errNotStarted
	}
	return nil
}

// nodePath returns the locator store path for a schema id.
func (e *Engine) nodePath(schemaID string) string {
	return e.cfg.Root + "/" + schemaID
}

func (e *Engine) createLedgerOptions(schemaID string) CreateLedgerOptions {
	return CreateLedgerOptions{
		SchemaID:     schemaID,
		EnsembleSize: e.cfg.EnsembleSize,
		WriteQuorum:  e.cfg.WriteQuorum,
		AckQuorum:    e.cfg.AckQuorum,
		DigestType:   e.cfg.DigestType,
	}
}

type engineMetrics struct {
	puts            *prometheus.CounterVec
	reads           *prometheus.CounterVec
	casConflicts    prometheus.Counter
	orphanedLedgers prometheus.Counter
	coalescedReads  prometheus.Counter
	panics          prometheus.Counter
}

func newEngineMetrics(registry *prometheus.Registry) engineMetrics {
	m := engineMetrics{
		puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "puts_total",
			Help: "schema registrations by outcome",
		}, []string{"outcome"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "reads_total",
			Help: "schema reads by type",
		}, []string{"type"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "cas_conflicts_total",
			Help: "locator races that forced a write-path retry",
		}),
		orphanedLedgers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "orphaned_ledgers_total",
			Help: "ledgers leaked by lost locator races",
		}),
		coalescedReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "coalesced_reads_total",
			Help: "GetLatest calls that piggy-backed on an in-flight read",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemastore", Subsystem: "engine", Name: "panics_total",
			Help: "panics recovered in background fetches",
		}),
	}
	if registry != nil {
		registry.MustRegister(m.puts, m.reads, m.casConflicts, m.orphanedLedgers, m.coalescedReads, m.panics)
	}
	return m
}
