// Package config loads the resolver's YAML configuration file and
// applies environment-variable overrides for secrets, following
// bronze-silver-transformer/go/config.go's LoadConfig+Validate shape
// and ttp-processor-sdk/go/config.go's getEnv-override convention for
// values that should never sit in a checked-in YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainConfig configures one adapter instance (spec.md §6.4): RPC URL,
// resolver account, factory contract address, polling interval,
// confirmation depth.
type ChainConfig struct {
	ID                 string `yaml:"id"`
	Family             string `yaml:"family"` // "evm" or "stellar"
	RPCEndpoint        string `yaml:"rpc_endpoint"`
	FactoryAddress     string `yaml:"factory_address"`
	SigningKeyEnv      string `yaml:"signing_key_env"` // name of the env var holding the private key/seed
	NetworkPassphrase  string `yaml:"network_passphrase,omitempty"` // stellar only
	PollIntervalSeconds int   `yaml:"poll_interval_seconds"`
	ConfirmationDepth  uint64 `yaml:"confirmation_depth"`
	IngestWindowSize   uint64 `yaml:"ingest_window_size"`

	// SigningKey is populated from the environment at Load time, never
	// from the YAML file itself.
	SigningKey string `yaml:"-"`
}

// PollInterval returns the configured polling interval as a Duration.
func (c ChainConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ServiceConfig holds process-wide settings (spec.md §6.4 "Global").
type ServiceConfig struct {
	ListenAddress          string `yaml:"listen_address"`
	DatabaseDSN            string `yaml:"database_dsn"`
	RetentionHorizonHours  int    `yaml:"retention_horizon_hours"`
	GCIntervalMinutes      int    `yaml:"gc_interval_minutes"`
	MetricsAddress         string `yaml:"metrics_address"`
}

// RetentionHorizon returns how long a terminal swap is kept before GC.
func (s ServiceConfig) RetentionHorizon() time.Duration {
	return time.Duration(s.RetentionHorizonHours) * time.Hour
}

// GCInterval returns how often the retention GC ticker runs.
func (s ServiceConfig) GCInterval() time.Duration {
	return time.Duration(s.GCIntervalMinutes) * time.Minute
}

// Config is the resolver's full configuration (spec.md §6.4).
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Chains  []ChainConfig `yaml:"chains"`
}

// LoadConfig reads and parses path, fills defaults, resolves per-chain
// signing keys from the environment, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.SigningKeyEnv != "" {
			c.SigningKey = os.Getenv(c.SigningKeyEnv)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Service.ListenAddress == "" {
		cfg.Service.ListenAddress = ":8090"
	}
	if cfg.Service.MetricsAddress == "" {
		cfg.Service.MetricsAddress = ":9090"
	}
	if cfg.Service.RetentionHorizonHours == 0 {
		cfg.Service.RetentionHorizonHours = 24 * 7
	}
	if cfg.Service.GCIntervalMinutes == 0 {
		cfg.Service.GCIntervalMinutes = 60
	}
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.PollIntervalSeconds == 0 {
			c.PollIntervalSeconds = 5
		}
		if c.IngestWindowSize == 0 {
			c.IngestWindowSize = 1
		}
		c.Family = strings.ToLower(c.Family)
	}
}

// Validate checks that the configuration is complete enough to start
// the resolver (bronze-silver-transformer/go/config.go's Validate
// shape: hard failure on missing required fields).
func (c *Config) Validate() error {
	if c.Service.DatabaseDSN == "" {
		return fmt.Errorf("config: service.database_dsn is required")
	}
	if len(c.Chains) < 2 {
		return fmt.Errorf("config: at least two chains must be configured (src and dst)")
	}
	seen := make(map[string]bool, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.ID == "" {
			return fmt.Errorf("config: chain entry missing id")
		}
		if seen[chain.ID] {
			return fmt.Errorf("config: duplicate chain id %q", chain.ID)
		}
		seen[chain.ID] = true
		if chain.Family != "evm" && chain.Family != "stellar" {
			return fmt.Errorf("config: chain %q has unsupported family %q", chain.ID, chain.Family)
		}
		if chain.RPCEndpoint == "" {
			return fmt.Errorf("config: chain %q missing rpc_endpoint", chain.ID)
		}
		if chain.FactoryAddress == "" {
			return fmt.Errorf("config: chain %q missing factory_address", chain.ID)
		}
		if chain.SigningKey == "" {
			return fmt.Errorf("config: chain %q has no signing key (set %s)", chain.ID, chain.SigningKeyEnv)
		}
		if chain.ConfirmationDepth == 0 {
			return fmt.Errorf("config: chain %q missing confirmation_depth", chain.ID)
		}
	}
	return nil
}
