// Copyright 2026 The Warecell Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full warecell configuration.
type Config struct {
	// Environment identifies the deployment type and selects which
	// override section applies.
	Environment Environment `yaml:"environment"`

	// Broker configures the MQTT connection.
	Broker BrokerConfig `yaml:"broker"`

	// Topics overrides the subscribed topic filters. Empty means the
	// built-in topic families.
	Topics []string `yaml:"topics"`

	// Orders configures order dispatch.
	Orders OrdersConfig `yaml:"orders"`

	// Snapshot configures the optional seed file.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Cell configures facade query behavior.
	Cell CellConfig `yaml:"cell"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config loads.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment section may override.
type Overrides struct {
	Broker   *BrokerConfig   `yaml:"broker,omitempty"`
	Snapshot *SnapshotConfig `yaml:"snapshot,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// BrokerConfig configures the MQTT connection.
type BrokerConfig struct {
	// URL is the broker address, e.g. tcp://192.168.50.100:1883.
	URL string `yaml:"url"`

	// ClientID identifies this process to the broker.
	ClientID string `yaml:"client_id"`

	// Username and Password are optional broker credentials. Use
	// ${VAR} expansion to keep them out of the file.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// OrdersConfig configures order dispatch.
type OrdersConfig struct {
	// Timeout is how long a dispatched order may stay unresolved
	// before it times out locally.
	Timeout Duration `yaml:"timeout"`

	// SenderID is stamped into outgoing order headers.
	SenderID string `yaml:"sender_id"`
}

// SnapshotConfig configures the optional startup seed file.
type SnapshotConfig struct {
	// SeedPath is a snapshot file loaded once at startup and written
	// on demand. Empty disables seeding.
	SeedPath string `yaml:"seed_path"`

	// Compression selects the snapshot body compression: none, lz4,
	// or zstd.
	Compression string `yaml:"compression"`
}

// CellConfig configures facade query behavior.
type CellConfig struct {
	// MasterStaleAfter is how long a master heartbeat stays fresh.
	MasterStaleAfter Duration `yaml:"master_stale_after"`

	// DirectHopLimitMM is the centre distance under which a transport
	// path is a single uArm hop.
	DirectHopLimitMM float64 `yaml:"direct_hop_limit_mm"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level to a slog.Level. Call after
// Validate; unknown levels fall back to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the base configuration the file is merged onto.
// The defaults match the reference cell deployment; the file is still
// required for anything real.
func Default() *Config {
	return &Config{
		Environment: Development,
		Broker: BrokerConfig{
			URL:            "tcp://192.168.50.100:1883",
			ClientID:       "warecell",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Orders: OrdersConfig{
			Timeout:  Duration(60 * time.Second),
			SenderID: "OrderGenerator",
		},
		Snapshot: SnapshotConfig{
			Compression: "zstd",
		},
		Cell: CellConfig{
			MasterStaleAfter: Duration(30 * time.Second),
			DirectHopLimitMM: 500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by WARECELL_CONFIG.
// There is no fallback: if the variable is unset, loading fails.
func Load() (*Config, error) {
	path := os.Getenv("WARECELL_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: WARECELL_CONFIG environment variable not set; " +
			"set it to the path of your warecell.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path, applies the
// matching environment section, and expands ${VAR} patterns.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyOverrides merges the override section matching the configured
// environment. Only non-zero override fields replace base values.
func (c *Config) applyOverrides() {
	var o *Overrides
	switch c.Environment {
	case Development:
		o = c.Development
	case Staging:
		o = c.Staging
	case Production:
		o = c.Production
	}
	if o == nil {
		return
	}

	if o.Broker != nil {
		if o.Broker.URL != "" {
			c.Broker.URL = o.Broker.URL
		}
		if o.Broker.ClientID != "" {
			c.Broker.ClientID = o.Broker.ClientID
		}
		if o.Broker.Username != "" {
			c.Broker.Username = o.Broker.Username
		}
		if o.Broker.Password != "" {
			c.Broker.Password = o.Broker.Password
		}
		if o.Broker.ConnectTimeout != 0 {
			c.Broker.ConnectTimeout = o.Broker.ConnectTimeout
		}
	}
	if o.Snapshot != nil {
		if o.Snapshot.SeedPath != "" {
			c.Snapshot.SeedPath = o.Snapshot.SeedPath
		}
		if o.Snapshot.Compression != "" {
			c.Snapshot.Compression = o.Snapshot.Compression
		}
	}
	if o.Log != nil && o.Log.Level != "" {
		c.Log.Level = o.Log.Level
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables expands ${VAR} and ${VAR:-default} patterns from the
// process environment in the fields that may carry secrets or paths.
func (c *Config) expandVariables() {
	c.Broker.URL = expandVars(c.Broker.URL)
	c.Broker.Username = expandVars(c.Broker.Username)
	c.Broker.Password = expandVars(c.Broker.Password)
	c.Snapshot.SeedPath = expandVars(c.Snapshot.SeedPath)
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors, reporting all of them
// at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Broker.URL == "" {
		errs = append(errs, fmt.Errorf("broker.url is required"))
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, fmt.Errorf("broker.client_id is required"))
	}
	if c.Orders.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("orders.timeout must be positive"))
	}
	if c.Orders.SenderID == "" {
		errs = append(errs, fmt.Errorf("orders.sender_id is required"))
	}

	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Snapshot.Compression) {
		errs = append(errs, fmt.Errorf("snapshot.compression must be one of: %v", compressions))
	}
	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", levels))
	}
	if c.Cell.MasterStaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("cell.master_stale_after must be positive"))
	}
	if c.Cell.DirectHopLimitMM <= 0 {
		errs = append(errs, fmt.Errorf("cell.direct_hop_limit_mm must be positive"))
	}

	return errors.Join(errs...)
}
