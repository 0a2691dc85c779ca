package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort       = 50051
	DefaultHTTPPort       = 8080
	DefaultWSPath         = "/ws"
	DefaultSendBuffer     = 64
	DefaultMaxMessageSize = 4096
	DefaultPongWait       = 60 * time.Second
	DefaultQueueName      = "presencehub.push"
	DefaultLogLevel       = "info"
)

// Config holds the server configuration parsed from the `server:` section
// of config.yaml. Other top-level keys are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC push service listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket endpoint listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth guards the push surfaces (gRPC and REST). WebSocket clients
	// authenticate with tokens instead.
	Auth AuthConfig `yaml:"auth"`

	Token TokenConfig `yaml:"token"`
	WS    WSConfig    `yaml:"ws"`
	Queue QueueConfig `yaml:"queue"`
	Log   LogConfig   `yaml:"log"`
}

// AuthConfig controls API-key authentication of push clients.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TokenConfig selects how client access tokens are verified. Exactly one of
// SecretEnv (HMAC) and PublicKeyFile (RSA) must be set.
type TokenConfig struct {
	SecretEnv     string        `yaml:"secret_env"`
	PublicKeyFile string        `yaml:"public_key_file"`
	Issuer        string        `yaml:"issuer"`
	Leeway        time.Duration `yaml:"leeway"`
}

// Secret returns the HMAC secret resolved from the environment.
func (t TokenConfig) Secret() string {
	if t.SecretEnv == "" {
		return ""
	}
	return os.Getenv(t.SecretEnv)
}

// WSConfig holds per-connection WebSocket limits.
type WSConfig struct {
	Path           string        `yaml:"path"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	PongWait       time.Duration `yaml:"pong_wait"`
}

// QueueConfig enables the AMQP push consumer when URLEnv is set.
type QueueConfig struct {
	// URLEnv names the environment variable holding the amqp:// URL.
	URLEnv string `yaml:"url_env"`
	Name   string `yaml:"name"`
}

// URL returns the broker URL resolved from the environment.
func (q QueueConfig) URL() string {
	if q.URLEnv == "" {
		return ""
	}
	return os.Getenv(q.URLEnv)
}

// Enabled reports whether the queue consumer should run.
func (q QueueConfig) Enabled() bool { return q.URL() != "" }

// LogConfig controls the process logger. Level is hot-reloadable.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// File, when set, receives a rotated copy of the log stream.
	File string `yaml:"file"`
}

// SlogLevel parses Level. Unknown values were rejected by validate.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			WS: WSConfig{
				Path:           DefaultWSPath,
				SendBuffer:     DefaultSendBuffer,
				MaxMessageSize: DefaultMaxMessageSize,
				PongWait:       DefaultPongWait,
			},
			Queue: QueueConfig{Name: DefaultQueueName},
			Log:   LogConfig{Level: DefaultLogLevel},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Token.SecretEnv == "" && s.Token.PublicKeyFile == "" {
		return fmt.Errorf("server.token: one of secret_env or public_key_file is required")
	}
	if s.Token.SecretEnv != "" && s.Token.PublicKeyFile != "" {
		return fmt.Errorf("server.token: secret_env and public_key_file are mutually exclusive")
	}
	if s.Token.Leeway < 0 {
		return fmt.Errorf("server.token.leeway must not be negative")
	}
	if !strings.HasPrefix(s.WS.Path, "/") {
		return fmt.Errorf("server.ws.path %q must start with /", s.WS.Path)
	}
	if s.WS.SendBuffer <= 0 {
		return fmt.Errorf("server.ws.send_buffer must be positive")
	}
	if s.WS.MaxMessageSize <= 0 {
		return fmt.Errorf("server.ws.max_message_size must be positive")
	}
	if s.WS.PongWait <= 0 {
		return fmt.Errorf("server.ws.pong_wait must be positive")
	}
	if s.Queue.URLEnv != "" && s.Queue.Name == "" {
		return fmt.Errorf("server.queue.name is required when url_env is set")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.Log.Level)); err != nil {
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	return nil
}
