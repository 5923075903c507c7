package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SCHEMASTORED"

// AddFlags registers every configuration option as a persistent flag on cmd,
// with the built-in defaults.
func AddFlags(cmd *cobra.Command) {
	def := Default()
	flags := cmd.PersistentFlags()
	flags.String("config-path", "", "File path to the toml configuration file")
	flags.String("admin-endpoint", def.AdminEndpoint, "Admin endpoint serving /metrics, /healthz and schema inspection. WARNING: not meant to be reachable from the Internet, does not use TLS. \"\" disables it")
	flags.String("storage-backend", def.StorageBackend, "Backing store for ledgers and locators (sqlite or memory)")
	flags.String("db-path", def.DatabasePath, "File path of the SQLite database")
	flags.String("locator-root", def.LocatorRoot, "Locator store path under which one node per schema id is kept")
	flags.Int("locator-cache-size", def.LocatorCacheSize, "Number of locator nodes kept in the read cache")
	flags.Int("ledger-ensemble-size", def.LedgerEnsembleSize, "Ensemble size recorded for new ledgers")
	flags.Int("ledger-write-quorum", def.LedgerWriteQuorum, "Write quorum recorded for new ledgers")
	flags.Int("ledger-ack-quorum", def.LedgerAckQuorum, "Ack quorum recorded for new ledgers")
	flags.String("ledger-digest", def.LedgerDigest, "Digest type recorded for new ledgers")
	flags.Duration("put-retry-interval", def.PutRetryInterval, "Pause between write retries after a lost locator race")
	flags.String("log-level", def.LogLevel.String(), "Minimum log severity (debug, info, warn, error) to log")
	flags.String("log-format", def.LogFormat.String(), "Log format (text or json)")
}

// Read resolves the configuration for cmd: flags override environment
// variables (SCHEMASTORED_*), which override the toml file, which overrides
// the defaults. The flags live on the root command, so subcommands resolve
// the same set.
func Read(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}

	if configPath := v.GetString("config-path"); configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %q: %w", configPath, err)
		}
	}

	cfg := &Config{
		ConfigPath:         v.GetString("config-path"),
		AdminEndpoint:      v.GetString("admin-endpoint"),
		StorageBackend:     v.GetString("storage-backend"),
		DatabasePath:       v.GetString("db-path"),
		LocatorRoot:        v.GetString("locator-root"),
		LocatorCacheSize:   v.GetInt("locator-cache-size"),
		LedgerEnsembleSize: v.GetInt("ledger-ensemble-size"),
		LedgerWriteQuorum:  v.GetInt("ledger-write-quorum"),
		LedgerAckQuorum:    v.GetInt("ledger-ack-quorum"),
		LedgerDigest:       v.GetString("ledger-digest"),
		PutRetryInterval:   v.GetDuration("put-retry-interval"),
	}

	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("could not parse log-level: %v", v.GetString("log-level"))
	}
	cfg.LogLevel = level

	if err := cfg.LogFormat.UnmarshalText([]byte(v.GetString("log-format"))); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
