package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	if cfg.Server.Address == "" {
		add("server.address", "cannot be empty")
	}
	if cfg.Server.ReadTimeout <= 0 {
		add("server.read_timeout", "must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		add("server.write_timeout", "must be positive")
	}

	if cfg.Engine.AckTimeout <= 0 {
		add("engine.ack_timeout", "must be positive")
	}
	if cfg.Engine.HeartbeatTimeout <= 0 {
		add("engine.heartbeat_timeout", "must be positive")
	}
	if cfg.Engine.SweepInterval <= 0 {
		add("engine.sweep_interval", "must be positive")
	}
	if cfg.Engine.SweepInterval > cfg.Engine.AckTimeout {
		add("engine.sweep_interval", "must not exceed engine.ack_timeout")
	}
	if cfg.Engine.ReportBuffer <= 0 {
		add("engine.report_buffer", "must be positive")
	}

	if cfg.Supervisor.HeartbeatInterval <= 0 {
		add("supervisor.heartbeat_interval", "must be positive")
	}
	if cfg.Supervisor.RequestTimeout <= 0 {
		add("supervisor.request_timeout", "must be positive")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", fmt.Sprintf("unknown level %q", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
