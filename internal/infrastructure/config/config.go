package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxPort is the largest valid TCP port.
const maxPort = 65535

// Config is the root configuration structure for the ircon bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Console   ConsoleConfig   `yaml:"console"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains device connection settings shared by all devices.
type BridgeConfig struct {
	// DefaultPort is used for identifiers without a usable port.
	DefaultPort int `yaml:"default_port"`

	// MatchMode is "exact" (default) or "prefix" for legacy column matching
	// on writes.
	MatchMode string `yaml:"match_mode"`
}

// DeviceConfig declares a device table created at startup.
type DeviceConfig struct {
	// Table is the SQL table name.
	Table string `yaml:"table"`

	// Identifier is "host[:port]". Defaults to Table.
	Identifier string `yaml:"identifier"`

	// Columns in table order. Defaults to mode, temperature, power, angle.
	Columns []string `yaml:"columns"`
}

// DeviceIdentifier returns the configured identifier, or the table name.
func (d DeviceConfig) DeviceIdentifier() string {
	if d.Identifier != "" {
		return d.Identifier
	}
	return d.Table
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	// Path of the database file, or ":memory:". Only table definitions are
	// stored; device state lives in memory.
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DiscoveryConfig contains mDNS discovery settings.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Service is the DNS-SD service type browsed for.
	Service string `yaml:"service"`

	// Domain is the mDNS domain. Default: "local."
	Domain string `yaml:"domain"`

	// Timeout bounds one browse (seconds).
	Timeout int `yaml:"timeout"`

	// Interfaces restricts browsing to the named network interfaces.
	Interfaces []string `yaml:"interfaces"`

	// CreateTables creates a device table for every discovered device.
	CreateTables bool `yaml:"create_tables"`
}

// ConsoleConfig contains interactive console settings.
type ConsoleConfig struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IRCON_SECTION_KEY
// For example: IRCON_DATABASE_PATH, IRCON_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			DefaultPort: 8888,
			MatchMode:   "exact",
		},
		Database: DatabaseConfig{
			Path:        ":memory:",
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ircon-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Discovery: DiscoveryConfig{
			Service: "_ircon._tcp",
			Domain:  "local.",
			Timeout: 5,
		},
		Console: ConsoleConfig{
			Prompt: "ircon> ",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IRCON_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	// Bridge
	envInt("IRCON_BRIDGE_DEFAULT_PORT", &cfg.Bridge.DefaultPort)
	envString("IRCON_BRIDGE_MATCH_MODE", &cfg.Bridge.MatchMode)

	// Database
	envString("IRCON_DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	envBool("IRCON_MQTT_ENABLED", &cfg.MQTT.Enabled)
	envString("IRCON_MQTT_HOST", &cfg.MQTT.Broker.Host)
	envInt("IRCON_MQTT_PORT", &cfg.MQTT.Broker.Port)
	envString("IRCON_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	envString("IRCON_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	envBool("IRCON_API_ENABLED", &cfg.API.Enabled)
	envString("IRCON_API_HOST", &cfg.API.Host)
	envInt("IRCON_API_PORT", &cfg.API.Port)

	// InfluxDB
	envBool("IRCON_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	envString("IRCON_INFLUXDB_URL", &cfg.InfluxDB.URL)
	envString("IRCON_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Discovery
	envBool("IRCON_DISCOVERY_ENABLED", &cfg.Discovery.Enabled)

	// Logging
	envString("IRCON_LOG_LEVEL", &cfg.Logging.Level)
	envString("IRCON_LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	// Bridge
	if c.Bridge.DefaultPort < 1 || c.Bridge.DefaultPort > maxPort {
		errs = append(errs, "bridge.default_port must be between 1 and 65535")
	}
	switch strings.ToLower(c.Bridge.MatchMode) {
	case "", "exact", "prefix":
	default:
		errs = append(errs, fmt.Sprintf("bridge.match_mode %q must be exact or prefix", c.Bridge.MatchMode))
	}

	// Devices
	tables := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Table == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].table is required", i))
			continue
		}
		if tables[d.Table] {
			errs = append(errs, fmt.Sprintf("devices[%d].table %q is duplicated", i, d.Table))
		}
		tables[d.Table] = true
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > maxPort) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Discovery
	if c.Discovery.Enabled {
		if c.Discovery.Service == "" {
			errs = append(errs, "discovery.service is required when discovery is enabled")
		}
		if c.Discovery.Timeout < 1 {
			errs = append(errs, "discovery.timeout must be at least 1 second")
		}
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetDiscoveryTimeout returns the discovery browse timeout as a Duration.
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}
