// Package daemon manages the StellarOps daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig               `toml:"node"`
	API       APIConfig                `toml:"api"`
	Database  DatabaseConfig           `toml:"database"`
	Queue     QueueConfig              `toml:"queue"`
	Telemetry TelemetryConfig          `toml:"telemetry"`
	Health    HealthConfig             `toml:"health"`
	Orbital   OrbitalConfig            `toml:"orbital"`
	Logging   LoggingConfig            `toml:"logging"`
	Breakers  map[string]BreakerConfig `toml:"breaker"`
	Stations  []string                 `toml:"ground_stations"`
}

// NodeConfig identifies this daemon instance.
type NodeConfig struct {
	ID string `toml:"id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// DatabaseConfig controls the sqlite store location.
type DatabaseConfig struct {
	Dir string `toml:"dir"`
}

// QueueConfig controls command dispatch timing and retry behavior.
type QueueConfig struct {
	DefaultTimeoutMS        int64 `toml:"default_timeout_ms"`
	MaxRetries              int   `toml:"max_retries"`
	TickIntervalMS          int64 `toml:"tick_interval_ms"`
	BaseTransmissionDelayMS int64 `toml:"base_transmission_delay_ms"`
	TransmissionJitterMS    int64 `toml:"transmission_jitter_ms"`
}

// TelemetryConfig controls telemetry retention and aggregation cadence.
type TelemetryConfig struct {
	RetentionDays               int64 `toml:"retention_days"`
	AggregatorPersistIntervalMS int64 `toml:"aggregator_persist_interval_ms"`
	AggregatorCleanupIntervalMS int64 `toml:"aggregator_cleanup_interval_ms"`
}

// HealthConfig controls the health monitor's cadence and staleness window.
type HealthConfig struct {
	HeartbeatTimeoutMS int64 `toml:"heartbeat_timeout_ms"`
	CheckIntervalMS    int64 `toml:"health_check_interval_ms"`
}

// OrbitalConfig controls the external TLE refresh client.
type OrbitalConfig struct {
	ServiceURL     string `toml:"service_url"`
	RefreshEveryMS int64  `toml:"refresh_every_ms"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// BreakerConfig controls one named circuit breaker.
type BreakerConfig struct {
	WindowFailures int    `toml:"window_failures"`
	WindowMS       int64  `toml:"window_ms"`
	RefreshMS      int64  `toml:"refresh_ms"`
	Fallback       string `toml:"fallback"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := stellaropsHome()
	return Config{
		Node: NodeConfig{ID: "stellarops-node"},
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8090,
			Metrics: true,
		},
		Database: DatabaseConfig{
			Dir: homeDir,
		},
		Queue: QueueConfig{
			DefaultTimeoutMS:        60000,
			MaxRetries:              3,
			TickIntervalMS:          5000,
			BaseTransmissionDelayMS: 500,
			TransmissionJitterMS:    500,
		},
		Telemetry: TelemetryConfig{
			RetentionDays:               90,
			AggregatorPersistIntervalMS: 60000,
			AggregatorCleanupIntervalMS: 300000,
		},
		Health: HealthConfig{
			HeartbeatTimeoutMS: 120000,
			CheckIntervalMS:    30000,
		},
		Orbital: OrbitalConfig{
			ServiceURL:     os.Getenv("ORBITAL_SERVICE_URL"),
			RefreshEveryMS: int64(6 * 60 * 60 * 1000),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "stellarops.log"),
		},
		Breakers: map[string]BreakerConfig{
			"orbital_service": {WindowFailures: 5, WindowMS: 10000, RefreshMS: 30000, Fallback: "error"},
		},
		Stations: []string{"gs-svalbard", "gs-fairbanks", "gs-wallops", "gs-singapore"},
	}
}

// LoadConfig reads config from $STELLAROPS_HOME/config.toml, falling back to
// defaults, and then applies environment overrides per the documented
// DATABASE_*/ORBITAL_SERVICE_URL/STELLAROPS_* surface.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(stellaropsHome(), "config.toml")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers environment variables over file/default config,
// per spec.md §6's external configuration surface.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_DIR"); v != "" {
		cfg.Database.Dir = v
	}
	if v := os.Getenv("ORBITAL_SERVICE_URL"); v != "" {
		cfg.Orbital.ServiceURL = v
	}
	if v := os.Getenv("STELLAROPS_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("STELLAROPS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("STELLAROPS_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}
	if v := os.Getenv("STELLAROPS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// SaveConfig writes the config to $STELLAROPS_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(stellaropsHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// stellaropsHome returns the StellarOps data directory.
func stellaropsHome() string {
	if env := os.Getenv("STELLAROPS_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stellarops")
}

// StellarOpsHome is exported for use by other packages.
func StellarOpsHome() string {
	return stellaropsHome()
}
