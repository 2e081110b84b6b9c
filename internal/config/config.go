// Package config provides configuration loading and validation for the application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8686
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultRequestTimeout = 30 * time.Second

	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 1 * time.Second
	DefaultReconnectDelayMax = 5 * time.Second
	DefaultWSBufferSize      = 1024
	DefaultWSPingInterval    = 25 * time.Second
	DefaultWSPongWait        = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second

	DefaultPollInterval = 30 * time.Second
	DefaultPageSize     = 20
)

// Realtime transport names.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)

// Config holds the complete application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Backend  BackendConfig  `yaml:"backend"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Polling  PollingConfig  `yaml:"polling"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Push     PushConfig     `yaml:"push"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Name is the application name used in logs and metrics.
	Name string `yaml:"name" env:"APP_NAME"`
}

// BackendConfig describes the notification backend and the session token.
//
//nolint:golines // Struct tags require longer lines for readability
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url" env:"BACKEND_BASE_URL"`
	RealtimeURL    string        `yaml:"realtime_url" env:"BACKEND_REALTIME_URL"`
	EventsURL      string        `yaml:"events_url" env:"BACKEND_EVENTS_URL"`
	Token          string        `yaml:"token" env:"BACKEND_TOKEN"`
	TokenFile      string        `yaml:"token_file" env:"BACKEND_TOKEN_FILE"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"BACKEND_REQUEST_TIMEOUT"`
}

// RealtimeConfig holds the realtime channel configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RealtimeConfig struct {
	// Transports in preference order: websocket, sse.
	Transports        []string      `yaml:"transports"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"REALTIME_RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env:"REALTIME_RECONNECT_DELAY"`
	ReconnectDelayMax time.Duration `yaml:"reconnect_delay_max" env:"REALTIME_RECONNECT_DELAY_MAX"`
	ReadBufferSize    int           `yaml:"read_buffer_size" env:"REALTIME_READ_BUFFER_SIZE"`
	WriteBufferSize   int           `yaml:"write_buffer_size" env:"REALTIME_WRITE_BUFFER_SIZE"`
	PingInterval      time.Duration `yaml:"ping_interval" env:"REALTIME_PING_INTERVAL"`
	PongWait          time.Duration `yaml:"pong_wait" env:"REALTIME_PONG_WAIT"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" env:"REALTIME_HANDSHAKE_TIMEOUT"`
}

// PollingConfig holds the unread poller configuration.
type PollingConfig struct {
	Enabled  bool          `yaml:"enabled" env:"POLLING_ENABLED"`
	Interval time.Duration `yaml:"interval" env:"POLLING_INTERVAL"`
}

// InboxConfig holds the inbox configuration.
type InboxConfig struct {
	// PageSize is both the initial list size and the bound of the recency window.
	PageSize int `yaml:"page_size" env:"INBOX_PAGE_SIZE"`
}

// PushConfig describes the local platform push capabilities.
//
//nolint:golines // Struct tags require longer lines for readability
type PushConfig struct {
	BackgroundAgent    bool   `yaml:"background_agent" env:"PUSH_BACKGROUND_AGENT"`
	Supported          bool   `yaml:"supported" env:"PUSH_SUPPORTED"`
	LocalNotifications bool   `yaml:"local_notifications" env:"PUSH_LOCAL_NOTIFICATIONS"`
	Permission         string `yaml:"permission" env:"PUSH_PERMISSION"` // default | granted | denied
	Endpoint           string `yaml:"endpoint" env:"PUSH_ENDPOINT"`
	StateFile          string `yaml:"state_file" env:"PUSH_STATE_FILE"`
}

// ServerConfig holds HTTP server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" env:"SERVER_ENABLED"`
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowOrigins    []string      `yaml:"allow_origins"` // CORS origins of a local presentation layer
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// Configuration errors.
var (
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrMissingRequired   = errors.New("missing required configuration")
	ErrInvalidDuration   = errors.New("invalid duration format")
	ErrInvalidLogLevel   = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat  = errors.New("invalid log format: must be json or text")
	ErrInvalidTransport  = errors.New("invalid realtime transport: must be websocket or sse")
	ErrInvalidPermission = errors.New("invalid push permission: must be default, granted or denied")
	ErrInvalidURL        = errors.New("invalid URL")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name: "inboxsync",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080/api",
			RealtimeURL:    "ws://localhost:8080/notifications/ws",
			EventsURL:      "http://localhost:8080/notifications/events",
			RequestTimeout: DefaultRequestTimeout,
		},
		Realtime: RealtimeConfig{
			Transports:        []string{TransportWebSocket, TransportSSE},
			ReconnectAttempts: DefaultReconnectAttempts,
			ReconnectDelay:    DefaultReconnectDelay,
			ReconnectDelayMax: DefaultReconnectDelayMax,
			ReadBufferSize:    DefaultWSBufferSize,
			WriteBufferSize:   DefaultWSBufferSize,
			PingInterval:      DefaultWSPingInterval,
			PongWait:          DefaultWSPongWait,
			HandshakeTimeout:  DefaultHandshakeTimeout,
		},
		Polling: PollingConfig{
			Enabled:  true,
			Interval: DefaultPollInterval,
		},
		Inbox: InboxConfig{
			PageSize: DefaultPageSize,
		},
		Push: PushConfig{
			BackgroundAgent:    true,
			Supported:          true,
			LocalNotifications: true,
			Permission:         "default",
			Endpoint:           "https://push.localhost/send",
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateBackend(errs)
	errs = c.validateRealtime(errs)
	errs = c.validatePolling(errs)
	errs = c.validatePush(errs)
	errs = c.validateServer(errs)
	errs = c.validateLog(errs)

	if c.Inbox.PageSize <= 0 {
		errs = append(errs, errors.New("inbox.page_size must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

// validateBackend validates backend configuration.
func (c *Config) validateBackend(errs []error) []error {
	if c.Backend.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: backend.base_url", ErrMissingRequired))
	} else if err := checkURL(c.Backend.BaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("backend.base_url: %w", err))
	}
	if c.Backend.RealtimeURL != "" {
		if err := checkURL(c.Backend.RealtimeURL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("backend.realtime_url: %w", err))
		}
	}
	if c.Backend.EventsURL != "" {
		if err := checkURL(c.Backend.EventsURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("backend.events_url: %w", err))
		}
	}
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, errors.New("backend.request_timeout must be positive"))
	}
	return errs
}

// validateRealtime validates realtime channel configuration.
func (c *Config) validateRealtime(errs []error) []error {
	if len(c.Realtime.Transports) == 0 {
		errs = append(errs, fmt.Errorf("%w: realtime.transports", ErrMissingRequired))
	}
	for _, name := range c.Realtime.Transports {
		switch name {
		case TransportWebSocket:
			if c.Backend.RealtimeURL == "" {
				errs = append(errs, fmt.Errorf("%w: backend.realtime_url for websocket transport", ErrMissingRequired))
			}
		case TransportSSE:
			if c.Backend.EventsURL == "" {
				errs = append(errs, fmt.Errorf("%w: backend.events_url for sse transport", ErrMissingRequired))
			}
		default:
			errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidTransport, name))
		}
	}
	if c.Realtime.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("realtime.reconnect_attempts must not be negative"))
	}
	if c.Realtime.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("realtime.reconnect_delay must be positive"))
	}
	if c.Realtime.ReconnectDelayMax < c.Realtime.ReconnectDelay {
		errs = append(errs, errors.New("realtime.reconnect_delay_max must not be less than reconnect_delay"))
	}
	if c.Realtime.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("realtime.read_buffer_size must be positive"))
	}
	if c.Realtime.WriteBufferSize <= 0 {
		errs = append(errs, errors.New("realtime.write_buffer_size must be positive"))
	}
	if c.Realtime.PingInterval <= 0 {
		errs = append(errs, errors.New("realtime.ping_interval must be positive"))
	}
	if c.Realtime.PongWait <= c.Realtime.PingInterval {
		errs = append(errs, errors.New("realtime.pong_wait must be greater than ping_interval"))
	}
	return errs
}

// validatePolling validates poller configuration.
func (c *Config) validatePolling(errs []error) []error {
	if c.Polling.Enabled && c.Polling.Interval <= 0 {
		errs = append(errs, errors.New("polling.interval must be positive"))
	}
	return errs
}

// validatePush validates local platform configuration.
func (c *Config) validatePush(errs []error) []error {
	switch strings.ToLower(c.Push.Permission) {
	case "", "default", "granted", "denied":
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidPermission, c.Push.Permission))
	}
	if c.Push.Supported && c.Push.Endpoint == "" {
		errs = append(errs, fmt.Errorf("%w: push.endpoint", ErrMissingRequired))
	}
	return errs
}

// validateServer validates server configuration.
func (c *Config) validateServer(errs []error) []error {
	if !c.Server.Enabled {
		return errs
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	return errs
}

// validateLog validates logging configuration.
func (c *Config) validateLog(errs []error) []error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ErrInvalidLogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute %s URL", ErrInvalidURL, raw, strings.Join(schemes, "/"))
	}
	return nil
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/inboxsync/config.yaml",
		},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*Config, error) {
	// Start with default config
	cfg := DefaultConfig()

	// Determine config file path
	configPath := path
	if configPath == "" {
		// Check CONFIG_PATH environment variable first
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			// Search in standard locations
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	// Load from file if found
	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only return error if path was explicitly specified
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
			// Otherwise, continue with defaults + env vars
		}
	}

	// Override with environment variables
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		// Handle embedded structs
		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		// Get env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		// Get environment variable value
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		// Set field value based on type
		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable string.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Check if it's a time.Duration
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %s", value)
		}
		field.SetFloat(f)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}
