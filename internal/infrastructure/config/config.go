package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for ConsultEase Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// The same file drives both binaries: cmd/facultyunit reads the unit and
// resilience sections, cmd/central reads the aggregator, api and influxdb
// sections. The mqtt, database and logging sections are shared.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Unit       UnitConfig       `yaml:"unit"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies the deployment (a department, campus, etc.).
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Namespace string              `yaml:"namespace"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// UnitConfig contains faculty-unit-side settings.
type UnitConfig struct {
	// UnitID is the stable unique identifier of this faculty unit.
	// It appears in every topic the unit publishes to.
	UnitID string `yaml:"unit_id"`

	// BeaconAddress is the opaque address of the faculty member's beacon.
	// Sightings of any other address are ignored.
	BeaconAddress string `yaml:"beacon_address"`

	// ScanCommand is the external scan utility invoked each scan interval.
	// It must print one sighted address per line on stdout. Empty means
	// scanning is unavailable on this unit.
	ScanCommand string `yaml:"scan_command"`

	// ScanInterval is how often a scan is attempted (seconds).
	ScanInterval int `yaml:"scan_interval"`

	// PresenceTimeoutMS is how long after the last sighting the faculty
	// member is still considered present (milliseconds).
	PresenceTimeoutMS int `yaml:"presence_timeout_ms"`

	// PublishDebounceMS suppresses a repeated status publish inside this
	// window even when the derived value flapped (milliseconds).
	PublishDebounceMS int `yaml:"publish_debounce_ms"`

	// RequestExpiry is how long a delivered consultation request stays on
	// the unit before it expires (seconds).
	RequestExpiry int `yaml:"request_expiry"`

	// LoopIntervalMS is the cooperative loop tick (milliseconds).
	LoopIntervalMS int `yaml:"loop_interval_ms"`
}

// ResilienceConfig contains circuit breaker and retry queue settings.
type ResilienceConfig struct {
	// FailureThreshold is the failure count (within the failure window)
	// that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// FailureWindow is the sliding window for failure counting (seconds).
	FailureWindow int `yaml:"failure_window"`

	// Cooldown is the initial open-circuit cooldown (seconds).
	Cooldown int `yaml:"cooldown"`

	// MaxCooldown caps the exponential cooldown growth (seconds).
	MaxCooldown int `yaml:"max_cooldown"`

	// MaxAttempts is the retry ceiling per queued item before it is
	// dropped and reported as a terminal failure.
	MaxAttempts int `yaml:"max_attempts"`

	// QueueCapacity bounds the durable retry queue. At capacity the
	// oldest unsent item is evicted and reported.
	QueueCapacity int `yaml:"queue_capacity"`

	// DrainBatch bounds how many queued items one loop iteration retries.
	DrainBatch int `yaml:"drain_batch"`
}

// AggregatorConfig contains central-side staleness settings.
type AggregatorConfig struct {
	// StaleTTL is the age (seconds) after which a unit's last record is
	// no longer trusted and its presence is exposed as Unknown.
	StaleTTL int `yaml:"stale_ttl"`

	// SweepInterval is how often the staleness sweep runs (seconds).
	SweepInterval int `yaml:"sweep_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings (central side).
type APIConfig struct {
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

// InfluxDBConfig contains the optional status-history recorder settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CONSULTEASE_SECTION_KEY
// For example: CONSULTEASE_MQTT_HOST, CONSULTEASE_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The presence timeout and scan cadence defaults match the original
// deployment: a 5 second scan against a 15 second presence window.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dept-001",
			Name: "ConsultEase",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "consultease-core",
			},
			QoS:       1,
			Namespace: "consultease",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Unit: UnitConfig{
			ScanInterval:      5,
			PresenceTimeoutMS: 15000,
			PublishDebounceMS: 1000,
			RequestExpiry:     300,
			LoopIntervalMS:    250,
		},
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			FailureWindow:    60,
			Cooldown:         10,
			MaxCooldown:      300,
			MaxAttempts:      10,
			QueueCapacity:    1000,
			DrainBatch:       25,
		},
		Aggregator: AggregatorConfig{
			StaleTTL:      60,
			SweepInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/consultease.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CONSULTEASE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("CONSULTEASE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CONSULTEASE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Unit identity
	if v := os.Getenv("CONSULTEASE_UNIT_ID"); v != "" {
		cfg.Unit.UnitID = v
	}

	// Database
	if v := os.Getenv("CONSULTEASE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("CONSULTEASE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Namespace == "" {
		errs = append(errs, "mqtt.namespace is required")
	}
	if strings.ContainsAny(c.MQTT.Namespace, "#+/") {
		errs = append(errs, "mqtt.namespace must not contain wildcard or separator characters")
	}

	if c.Unit.PresenceTimeoutMS <= 0 {
		errs = append(errs, "unit.presence_timeout_ms must be positive")
	}
	if c.Unit.ScanInterval <= 0 {
		errs = append(errs, "unit.scan_interval must be positive")
	}

	if c.Resilience.FailureThreshold <= 0 {
		errs = append(errs, "resilience.failure_threshold must be positive")
	}
	if c.Resilience.Cooldown <= 0 {
		errs = append(errs, "resilience.cooldown must be positive")
	}
	if c.Resilience.QueueCapacity <= 0 {
		errs = append(errs, "resilience.queue_capacity must be positive")
	}

	if c.Aggregator.StaleTTL <= 0 {
		errs = append(errs, "aggregator.stale_ttl must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetScanInterval returns the unit scan interval as a Duration.
func (c *Config) GetScanInterval() time.Duration {
	return time.Duration(c.Unit.ScanInterval) * time.Second
}

// GetPresenceTimeout returns the presence timeout as a Duration.
func (c *Config) GetPresenceTimeout() time.Duration {
	return time.Duration(c.Unit.PresenceTimeoutMS) * time.Millisecond
}

// GetPublishDebounce returns the publish-change debounce as a Duration.
func (c *Config) GetPublishDebounce() time.Duration {
	return time.Duration(c.Unit.PublishDebounceMS) * time.Millisecond
}

// GetRequestExpiry returns the consultation request expiry as a Duration.
func (c *Config) GetRequestExpiry() time.Duration {
	return time.Duration(c.Unit.RequestExpiry) * time.Second
}

// GetLoopInterval returns the cooperative loop tick as a Duration.
func (c *Config) GetLoopInterval() time.Duration {
	return time.Duration(c.Unit.LoopIntervalMS) * time.Millisecond
}

// GetFailureWindow returns the breaker failure window as a Duration.
func (c *Config) GetFailureWindow() time.Duration {
	return time.Duration(c.Resilience.FailureWindow) * time.Second
}

// GetCooldown returns the initial breaker cooldown as a Duration.
func (c *Config) GetCooldown() time.Duration {
	return time.Duration(c.Resilience.Cooldown) * time.Second
}

// GetMaxCooldown returns the breaker cooldown ceiling as a Duration.
func (c *Config) GetMaxCooldown() time.Duration {
	return time.Duration(c.Resilience.MaxCooldown) * time.Second
}

// GetStaleTTL returns the aggregator staleness TTL as a Duration.
func (c *Config) GetStaleTTL() time.Duration {
	return time.Duration(c.Aggregator.StaleTTL) * time.Second
}

// GetSweepInterval returns the aggregator sweep interval as a Duration.
func (c *Config) GetSweepInterval() time.Duration {
	return time.Duration(c.Aggregator.SweepInterval) * time.Second
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
