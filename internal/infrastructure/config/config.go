package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/meterthing/internal/obis"
)

// DefaultPath is used when METERTHING_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Source types.
const (
	SourceMQTT = "mqtt"
	SourceFile = "file"
	SourceExec = "exec"
)

// Config is the root configuration structure for meterthing.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Thing       ThingConfig        `yaml:"thing"`
	Source      SourceConfig       `yaml:"source"`
	Conversions []ConversionConfig `yaml:"conversions"`
	Database    DatabaseConfig     `yaml:"database"`
	MQTT        MQTTConfig         `yaml:"mqtt"`
	API         APIConfig          `yaml:"api"`
	WebSocket   WebSocketConfig    `yaml:"websocket"`
	Discovery   DiscoveryConfig    `yaml:"discovery"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// ThingConfig describes the Web Thing exposed for the meter.
type ThingConfig struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	Types       []string `yaml:"types"`
	Description string   `yaml:"description"`
}

// SourceConfig selects where readings come from.
type SourceConfig struct {
	// Type is "mqtt" (decoder publishing to the broker), "exec" (decoder run
	// as a child process) or "file" (recorded polls).
	Type string `yaml:"type"`

	// Topic overrides the readings topic. Default: meterthing/readings/{slug}.
	Topic string `yaml:"topic"`

	// Format is the payload encoding of mqtt and exec readings: "json" or "cbor".
	Format string `yaml:"format"`

	// Buffer is the number of decoded polls queued before the MQTT handler blocks.
	Buffer int `yaml:"buffer"`

	File FileSourceConfig `yaml:"file"`
	Exec ExecSourceConfig `yaml:"exec"`
}

// FileSourceConfig configures replay from a recording.
type FileSourceConfig struct {
	Path string `yaml:"path"`

	// Interval between replayed polls, in seconds.
	Interval int `yaml:"interval"`
}

// ExecSourceConfig configures a decoder run as a child process that writes
// reading messages to stdout.
type ExecSourceConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`

	// StopTimeout is how long the decoder gets to exit after SIGTERM, in seconds.
	StopTimeout int `yaml:"stop_timeout"`
}

// ConversionConfig maps one register code to a target representation.
type ConversionConfig struct {
	Code   string `yaml:"code"`
	Target string `yaml:"target"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
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

	// HealthInterval is the health publish period, in seconds.
	HealthInterval int `yaml:"health_interval"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains Web Thing HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised service instance name. Default: thing title.
	Instance string `yaml:"instance"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Path returns the config file path from METERTHING_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("METERTHING_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: METERTHING_SECTION_KEY
// For example: METERTHING_DATABASE_PATH, METERTHING_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
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
func defaultConfig() *Config {
	return &Config{
		Thing: ThingConfig{
			ID:          "urn:dev:ops:smart-meter-1",
			Title:       "Smart Meter",
			Types:       []string{"MultiLevelSensor"},
			Description: "A smart energy meter",
		},
		Source: SourceConfig{
			Type:   SourceMQTT,
			Format: "json",
			Buffer: 16,
			File: FileSourceConfig{
				Interval: 10,
			},
			Exec: ExecSourceConfig{
				StopTimeout: 10,
			},
		},
		Conversions: []ConversionConfig{
			{Code: "0.0.1.0.0.255", Target: "timestamp"},
			{Code: "0.0.42.0.0.255", Target: "text"},
			{Code: "0.0.96.1.0.255", Target: "text"},
		},
		Database: DatabaseConfig{
			Path:        "./data/meterthing.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "meterthing",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8888,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: METERTHING_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Thing
	if v := os.Getenv("METERTHING_THING_ID"); v != "" {
		cfg.Thing.ID = v
	}

	// Source
	if v := os.Getenv("METERTHING_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("METERTHING_SOURCE_FILE"); v != "" {
		cfg.Source.File.Path = v
	}

	// Database
	if v := os.Getenv("METERTHING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("METERTHING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("METERTHING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("METERTHING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("METERTHING_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("METERTHING_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("METERTHING_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Thing
	if c.Thing.ID == "" {
		errs = append(errs, "thing.id is required")
	}
	if c.Thing.Title == "" {
		errs = append(errs, "thing.title is required")
	}

	// Source
	switch c.Source.Type {
	case SourceMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "source.type mqtt requires mqtt.enabled")
		}
	case SourceFile:
		if c.Source.File.Path == "" {
			errs = append(errs, "source.file.path is required for source.type file")
		}
	case SourceExec:
		if c.Source.Exec.Command == "" {
			errs = append(errs, "source.exec.command is required for source.type exec")
		}
	default:
		errs = append(errs, "source.type must be mqtt, exec or file")
	}
	if f := strings.ToLower(c.Source.Format); f != "json" && f != "cbor" {
		errs = append(errs, "source.format must be json or cbor")
	}

	// Conversions. Codes are compared parsed, as 0.0.96.1.0.255 and
	// 0-0:96.1.0*255 name the same register.
	seen := make(map[obis.Code]int, len(c.Conversions))
	for i, conv := range c.Conversions {
		if conv.Code == "" {
			errs = append(errs, fmt.Sprintf("conversions[%d].code is required", i))
		} else if code, err := obis.Parse(conv.Code); err != nil {
			errs = append(errs, fmt.Sprintf("conversions[%d].code %q is not a valid OBIS code", i, conv.Code))
		} else if first, dup := seen[code]; dup {
			errs = append(errs, fmt.Sprintf("conversions[%d].code %s duplicates conversions[%d]", i, code, first))
		} else {
			seen[code] = i
		}
		switch strings.ToLower(conv.Target) {
		case "timestamp", "datetime", "text", "string":
		default:
			errs = append(errs, fmt.Sprintf("conversions[%d].target must be timestamp or text", i))
		}
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ThingSlug returns the topic-safe identifier of the thing: thing.slug if
// set, otherwise the last segment of thing.id with anything outside
// [a-z0-9-] replaced by "-".
func (c *Config) ThingSlug() string {
	if c.Thing.Slug != "" {
		return c.Thing.Slug
	}

	id := c.Thing.ID
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, id)
	if slug == "" {
		return "meter"
	}
	return slug
}

// ConversionMap returns the conversion table as code -> target name.
func (c *Config) ConversionMap() map[string]string {
	m := make(map[string]string, len(c.Conversions))
	for _, conv := range c.Conversions {
		m[conv.Code] = conv.Target
	}
	return m
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

// GetFileInterval returns the replay interval of a file source.
func (c *Config) GetFileInterval() time.Duration {
	return time.Duration(c.Source.File.Interval) * time.Second
}

// GetExecStopTimeout returns how long a decoder process gets to exit.
func (c *Config) GetExecStopTimeout() time.Duration {
	return time.Duration(c.Source.Exec.StopTimeout) * time.Second
}

// GetHealthInterval returns the MQTT health publish interval.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.MQTT.HealthInterval) * time.Second
}
