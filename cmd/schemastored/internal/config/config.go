// Package config holds the daemon configuration: defaults, flag and
// environment binding, TOML file loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Storage backend names accepted by --storage-backend.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	ConfigPath string

	// AdminEndpoint serves /metrics, /healthz and the read-only schema
	// inspection routes. It should not be reachable from untrusted networks
	// and does not use TLS. Empty disables the admin server.
	AdminEndpoint string

	StorageBackend string
	DatabasePath   string

	LocatorRoot      string
	LocatorCacheSize int

	LedgerEnsembleSize int
	LedgerWriteQuorum  int
	LedgerAckQuorum    int
	LedgerDigest       string

	PutRetryInterval time.Duration

	LogLevel  logrus.Level
	LogFormat LogFormat
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AdminEndpoint:      "localhost:8090",
		StorageBackend:     BackendSQLite,
		DatabasePath:       "schemastore.db",
		LocatorRoot:        "/schemas",
		LocatorCacheSize:   1024,
		LedgerEnsembleSize: 1,
		LedgerWriteQuorum:  1,
		LedgerAckQuorum:    1,
		LedgerDigest:       "crc32c",
		PutRetryInterval:   5 * time.Millisecond,
		LogLevel:           logrus.InfoLevel,
		LogFormat:          LogFormatText,
	}
}

func (cfg *Config) Validate() error {
	switch cfg.StorageBackend {
	case BackendSQLite:
		if cfg.DatabasePath == "" {
			return fmt.Errorf("db-path must not be empty with the %s backend", BackendSQLite)
		}
	case BackendMemory:
		// nothing to check
	default:
		return fmt.Errorf("unknown storage backend %q (must be %s or %s)", cfg.StorageBackend, BackendSQLite, BackendMemory)
	}

	if !strings.HasPrefix(cfg.LocatorRoot, "/") || cfg.LocatorRoot == "/" {
		return fmt.Errorf("locator-root %q must be a non-root absolute path", cfg.LocatorRoot)
	}
	if cfg.LocatorCacheSize <= 0 {
		return fmt.Errorf("locator-cache-size must be positive")
	}

	if cfg.LedgerAckQuorum < 1 {
		return fmt.Errorf("ledger-ack-quorum must be at least 1")
	}
	if cfg.LedgerWriteQuorum < cfg.LedgerAckQuorum {
		return fmt.Errorf("ledger-write-quorum (%d) must not be below ledger-ack-quorum (%d)", cfg.LedgerWriteQuorum, cfg.LedgerAckQuorum)
	}
	if cfg.LedgerEnsembleSize < cfg.LedgerWriteQuorum {
		return fmt.Errorf("ledger-ensemble-size (%d) must not be below ledger-write-quorum (%d)", cfg.LedgerEnsembleSize, cfg.LedgerWriteQuorum)
	}

	if cfg.PutRetryInterval <= 0 {
		return fmt.Errorf("put-retry-interval must be positive")
	}
	return nil
}
