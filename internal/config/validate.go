package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Validation failures. Every ConfigError returned by Validate wraps one of
// these so callers can test with errors.Is.
var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidLimits  = errors.New("invalid connection limits")
	ErrInvalidBuffer  = errors.New("invalid receive buffer size")
	ErrInvalidBacklog = errors.New("invalid listen backlog")
	ErrInvalidMode    = errors.New("invalid server mode")
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// ConfigError describes one invalid field.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%v: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Validate checks cfg before any socket is opened. It has no side effects and
// reports every violation, combined into a single error.
func Validate(cfg ServerConfig) error {
	var err error
	add := func(field string, value any, sentinel error) {
		err = multierr.Append(err, &ConfigError{Field: field, Value: value, Err: sentinel})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		add("port", cfg.Port, ErrInvalidPort)
	}

	if cfg.MaxConnections <= 0 {
		add("max_connections", cfg.MaxConnections, ErrInvalidLimits)
	}
	if cfg.MaxWorkerThreads <= 0 {
		add("max_worker_threads", cfg.MaxWorkerThreads, ErrInvalidLimits)
	} else if cfg.MaxConnections > 0 && cfg.MaxWorkerThreads > cfg.MaxConnections {
		add("max_worker_threads", cfg.MaxWorkerThreads, fmt.Errorf("%w: exceeds max_connections %d", ErrInvalidLimits, cfg.MaxConnections))
	}

	if cfg.ReceiveBufferSize <= 0 {
		add("receive_buffer_size", cfg.ReceiveBufferSize, ErrInvalidBuffer)
	}

	if cfg.ListenBacklog <= 0 {
		add("listen_backlog", cfg.ListenBacklog, ErrInvalidBacklog)
	}

	if !cfg.Mode.Valid() {
		add("server_mode", cfg.Mode, ErrInvalidMode)
	}

	if cfg.ClientIdleTimeout < 0 {
		add("client_idle_timeout", cfg.ClientIdleTimeout, ErrInvalidTimeout)
	}
	if cfg.PollInterval <= 0 {
		add("poll_interval", cfg.PollInterval, ErrInvalidTimeout)
	}
	if cfg.DrainTimeout <= 0 {
		add("drain_timeout", cfg.DrainTimeout, ErrInvalidTimeout)
	}
	if cfg.WriteTimeout < 0 {
		add("write_timeout", cfg.WriteTimeout, ErrInvalidTimeout)
	}

	if cfg.RateLimit.MessagesPerSecond < 0 {
		add("rate_limit.messages_per_second", cfg.RateLimit.MessagesPerSecond, ErrInvalidLimits)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "console", "text":
	default:
		add("logging.format", cfg.Logging.Format, errors.New("unknown log format"))
	}

	return err
}

// Errors returns the individual ConfigErrors combined in err.
func Errors(err error) []*ConfigError {
	var out []*ConfigError
	for _, e := range multierr.Errors(err) {
		var ce *ConfigError
		if errors.As(e, &ce) {
			out = append(out, ce)
		}
	}
	return out
}
