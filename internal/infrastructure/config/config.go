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

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// minJWTSecretLength is the shortest signing secret accepted at startup.
const minJWTSecretLength = 32

// Argon2id cost ceilings. Stored hashes above them fail verification, so
// configuring more would lock every account out.
const (
	maxPasswordMemoryKiB = 1 << 21
	maxPasswordTime      = 16
	maxPasswordThreads   = 64
)

// Config is the root configuration structure for Librarium Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SiteConfig identifies the library instance.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig selects and tunes the relational store.
//
// Driver "sqlite" uses Path; driver "postgres" uses DSN.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	WALMode      bool   `yaml:"wal_mode"`
	BusyTimeout  int    `yaml:"busy_timeout"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// StorageConfig points at the S3-compatible bucket holding book covers.
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	PresignExpiry int    `yaml:"presign_expiry"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // stdout, stderr or file
	File   string `yaml:"file"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT      JWTConfig      `yaml:"jwt"`
	Password PasswordConfig `yaml:"password"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	Issuer         string `yaml:"issuer"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // seconds
	ClockSkew      int    `yaml:"clock_skew"`       // seconds
}

// PasswordConfig contains the argon2id cost parameters and input limits.
type PasswordConfig struct {
	Memory    uint32 `yaml:"memory"` // KiB
	Time      uint32 `yaml:"time"`
	Threads   uint8  `yaml:"threads"`
	MaxLength int    `yaml:"max_length"` // bytes
	MinLength int    `yaml:"min_length"`
}

// TelemetryConfig toggles request tracing and metrics exposure.
type TelemetryConfig struct {
	Tracing     bool   `yaml:"tracing"`
	Metrics     bool   `yaml:"metrics"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIBRARIUM_SECTION_KEY
// For example: LIBRARIUM_DATABASE_DSN, LIBRARIUM_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults plus environment
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "library-001",
			Name: "Librarium",
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			Path:         "./data/librarium.db",
			WALMode:      true,
			BusyTimeout:  5,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "librarium-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "librarium",
			Bucket:        "auth_events",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Storage: StorageConfig{
			Region:        "us-east-1",
			Bucket:        "covers",
			PresignExpiry: 900,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:         "librarium",
				AccessTokenTTL: 3600,
				ClockSkew:      60,
			},
			Password: PasswordConfig{
				Memory:    64 * 1024,
				Time:      3,
				Threads:   1,
				MaxLength: 1024,
				MinLength: 8,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics:     true,
			ServiceName: "librarium-core",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LIBRARIUM_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("LIBRARIUM_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LIBRARIUM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LIBRARIUM_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// MQTT
	if v := os.Getenv("LIBRARIUM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIBRARIUM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIBRARIUM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LIBRARIUM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LIBRARIUM_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIBRARIUM_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("LIBRARIUM_FRONTEND_URL"); v != "" {
		cfg.API.CORS.AllowedOrigins = append(cfg.API.CORS.AllowedOrigins, v)
	}

	// InfluxDB
	if v := os.Getenv("LIBRARIUM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Storage
	if v := os.Getenv("LIBRARIUM_STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("LIBRARIUM_STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.SecretKey = v
	}

	// Logging
	if v := os.Getenv("LIBRARIUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LIBRARIUM_LOG_FILE"); v != "" {
		cfg.Logging.Output = "file"
		cfg.Logging.File = v
	}

	// Security: the signing secret should always come from the environment in production
	if v := os.Getenv("LIBRARIUM_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("LIBRARIUM_JWT_TTL"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIBRARIUM_JWT_TTL: %w", err)
		}
		cfg.Security.JWT.AccessTokenTTL = ttl
	}

	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, postgres)", c.Database.Driver))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		errs = append(errs, "storage.bucket is required when storage is enabled")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set LIBRARIUM_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if c.Security.JWT.ClockSkew < 0 {
		errs = append(errs, "security.jwt.clock_skew must not be negative")
	}

	p := c.Security.Password
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		errs = append(errs, "security.password memory, time and threads must be positive")
	}
	if p.Memory > maxPasswordMemoryKiB || p.Time > maxPasswordTime || p.Threads > maxPasswordThreads {
		errs = append(errs, fmt.Sprintf("security.password cost above limits (memory %d KiB, time %d, threads %d)",
			maxPasswordMemoryKiB, maxPasswordTime, maxPasswordThreads))
	}
	if p.MaxLength <= 0 {
		errs = append(errs, "security.password.max_length must be positive")
	}
	if p.MinLength > p.MaxLength {
		errs = append(errs, "security.password.min_length exceeds max_length")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
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

// AccessTokenTTL returns the session token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Second
}

// ClockSkew returns the tolerated issued-at drift.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.Security.JWT.ClockSkew) * time.Second
}

// PresignExpiry returns the lifetime of presigned storage URLs.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.Storage.PresignExpiry) * time.Second
}
