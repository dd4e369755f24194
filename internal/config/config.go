// Package config defines the server parameters, their defaults, and how they
// are loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "NEXUS"

// Mode selects the protocol behaviour of every worker.
type Mode string

const (
	// ModeEcho writes each message back to its sender.
	ModeEcho Mode = "echo"
	// ModeChat broadcasts each message to every other connected client.
	ModeChat Mode = "chat"
)

// ParseMode converts a textual mode, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeEcho:
		return ModeEcho, nil
	case ModeChat:
		return ModeChat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// UnmarshalText lets YAML and envconfig decode a Mode.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeEcho || m == ModeChat
}

// RateLimitConfig bounds how many messages a single client may send.
// A zero MessagesPerSecond disables limiting.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" envconfig:"MESSAGES_PER_SECOND"`
	Burst             int     `yaml:"burst" envconfig:"BURST"`
}

// Enabled reports whether message rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.MessagesPerSecond > 0
}

// HTTPConfig controls the optional management surface. An empty Address
// disables it.
type HTTPConfig struct {
	Address        string   `yaml:"address" envconfig:"ADDRESS"`
	WebSocket      bool     `yaml:"websocket" envconfig:"WEBSOCKET"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// Enabled reports whether the HTTP surface should be started.
func (h HTTPConfig) Enabled() bool {
	return h.Address != ""
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, console
}

// ServerConfig holds every parameter of a server. It is treated as immutable
// once the server starts: the server keeps its own copy.
type ServerConfig struct {
	Port              int           `yaml:"port" envconfig:"PORT"`
	BindAddress       string        `yaml:"bind_address" envconfig:"BIND_ADDRESS"`
	MaxConnections    int           `yaml:"max_connections" envconfig:"MAX_CONNECTIONS"`
	MaxWorkerThreads  int           `yaml:"max_worker_threads" envconfig:"MAX_WORKER_THREADS"`
	ReceiveBufferSize int           `yaml:"receive_buffer_size" envconfig:"RECEIVE_BUFFER_SIZE"`
	ClientIdleTimeout time.Duration `yaml:"client_idle_timeout" envconfig:"CLIENT_IDLE_TIMEOUT"`
	ListenBacklog     int           `yaml:"listen_backlog" envconfig:"LISTEN_BACKLOG"`
	Mode              Mode          `yaml:"server_mode" envconfig:"MODE"`
	VerboseLogging    bool          `yaml:"verbose_logging" envconfig:"VERBOSE"`
	AllowPortReuse    bool          `yaml:"allow_port_reuse" envconfig:"ALLOW_PORT_REUSE"`

	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	DrainTimeout time.Duration `yaml:"drain_timeout" envconfig:"DRAIN_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"` // 0 means unbounded
	Welcome      bool          `yaml:"welcome" envconfig:"WELCOME"`
	EchoPrefix   string        `yaml:"echo_prefix" envconfig:"ECHO_PREFIX"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	HTTP      HTTPConfig      `yaml:"http" envconfig:"HTTP"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// Default returns a ServerConfig populated with default values for all settings.
func Default() ServerConfig {
	return ServerConfig{
		Port:              9090,
		BindAddress:       "0.0.0.0",
		MaxConnections:    64,
		MaxWorkerThreads:  64,
		ReceiveBufferSize: 1024,
		ClientIdleTimeout: 0,
		ListenBacklog:     128,
		Mode:              ModeEcho,
		AllowPortReuse:    true,
		PollInterval:      time.Second,
		DrainTimeout:      10 * time.Second,
		WriteTimeout:      10 * time.Second,
		Welcome:           true,
		EchoPrefix:        "ECHO: ",
		HTTP: HTTPConfig{
			WebSocket:      true,
			AllowedOrigins: []string{"http://localhost:8080"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Address returns the host:port the server listens on.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Clone returns a deep copy so callers cannot mutate a running server's config.
func (c ServerConfig) Clone() ServerConfig {
	c.HTTP.AllowedOrigins = append([]string(nil), c.HTTP.AllowedOrigins...)
	return c
}

// Load reads configuration with Read and validates it.
func Load(configFile string) (ServerConfig, error) {
	cfg, err := Read(configFile)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read layers the YAML file (if any) and then environment variables over the
// defaults, without validating the result. A missing file is not an error.
func Read(configFile string) (ServerConfig, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return cfg, nil
}
