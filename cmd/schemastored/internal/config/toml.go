package config

import (
	"github.com/pelletier/go-toml"
)

type tomlOption struct {
	key   string
	usage string
	value interface{}
}

func (cfg *Config) tomlOptions() []tomlOption {
	return []tomlOption{
		{"admin-endpoint", "Admin endpoint serving /metrics, /healthz and schema inspection. \"\" disables it", cfg.AdminEndpoint},
		{"storage-backend", "Backing store for ledgers and locators (sqlite or memory)", cfg.StorageBackend},
		{"db-path", "File path of the SQLite database", cfg.DatabasePath},
		{"locator-root", "Locator store path under which one node per schema id is kept", cfg.LocatorRoot},
		{"locator-cache-size", "Number of locator nodes kept in the read cache", int64(cfg.LocatorCacheSize)},
		{"ledger-ensemble-size", "Ensemble size recorded for new ledgers", int64(cfg.LedgerEnsembleSize)},
		{"ledger-write-quorum", "Write quorum recorded for new ledgers", int64(cfg.LedgerWriteQuorum)},
		{"ledger-ack-quorum", "Ack quorum recorded for new ledgers", int64(cfg.LedgerAckQuorum)},
		{"ledger-digest", "Digest type recorded for new ledgers", cfg.LedgerDigest},
		{"put-retry-interval", "Pause between write retries after a lost locator race", cfg.PutRetryInterval.String()},
		{"log-level", "Minimum log severity (debug, info, warn, error) to log", cfg.LogLevel.String()},
		{"log-format", "Log format (text or json)", cfg.LogFormat.String()},
	}
}

// MarshalTOML renders the configuration as a commented toml document,
// suitable as a starting point for a config file.
func (cfg *Config) MarshalTOML() ([]byte, error) {
	tree, err := toml.TreeFromMap(map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	for _, option := range cfg.tomlOptions() {
		tree.SetWithOptions(option.key, toml.SetOptions{Comment: option.usage}, option.value)
	}
	out, err := tree.ToTomlString()
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
