// Package config loads orchestrator configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the orchestrator.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Logging    LoggingConfig    `yaml:"logging"`
	Output     OutputConfig     `yaml:"output"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"ORC_SERVER_ADDRESS"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"ORC_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"ORC_SERVER_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" env:"ORC_SERVER_ENABLE_CORS"`
}

// EngineConfig holds control loop configuration.
type EngineConfig struct {
	// AckTimeout is how long a component may take to acknowledge a
	// steering command before it is escalated to down.
	AckTimeout time.Duration `yaml:"ack_timeout" env:"ORC_ENGINE_ACK_TIMEOUT"`

	// HeartbeatTimeout is how long a component may stay silent before it
	// is escalated to down.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"ORC_ENGINE_HEARTBEAT_TIMEOUT"`

	// SweepInterval is how often ack deadlines and heartbeats are checked.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"ORC_ENGINE_SWEEP_INTERVAL"`

	// StrictRegistration rejects reports from unregistered components
	// instead of auto-registering them on first report.
	StrictRegistration bool `yaml:"strict_registration" env:"ORC_ENGINE_STRICT_REGISTRATION"`

	// ReportBuffer is the inbound report channel capacity.
	ReportBuffer int `yaml:"report_buffer" env:"ORC_ENGINE_REPORT_BUFFER"`

	// AllowOperatorReset permits clearing a sticky error state through
	// the reset operation.
	AllowOperatorReset bool `yaml:"allow_operator_reset" env:"ORC_ENGINE_ALLOW_OPERATOR_RESET"`
}

// SupervisorConfig holds supervisor-side client configuration.
type SupervisorConfig struct {
	OrchestratorURL   string            `yaml:"orchestrator_url" env:"ORC_SUPERVISOR_ORCHESTRATOR_URL"`
	ComponentName     string            `yaml:"component_name" env:"ORC_SUPERVISOR_COMPONENT_NAME"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval" env:"ORC_SUPERVISOR_HEARTBEAT_INTERVAL"`
	RequestTimeout    time.Duration     `yaml:"request_timeout" env:"ORC_SUPERVISOR_REQUEST_TIMEOUT"`
	Labels            map[string]string `yaml:"labels"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"ORC_LOG_LEVEL"`
	Format string `yaml:"format" env:"ORC_LOG_FORMAT"`
	Output string `yaml:"output" env:"ORC_LOG_OUTPUT"`
}

// OutputConfig holds output directory configuration supplied by the
// surrounding deployment.
type OutputConfig struct {
	Dir string `yaml:"dir" env:"ORC_OUTPUT_DIR"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			EnableCORS:   false,
		},
		Engine: EngineConfig{
			AckTimeout:         15 * time.Second,
			HeartbeatTimeout:   30 * time.Second,
			SweepInterval:      5 * time.Second,
			StrictRegistration: false,
			ReportBuffer:       1024,
			AllowOperatorReset: true,
		},
		Supervisor: SupervisorConfig{
			OrchestratorURL:   "http://localhost:8080",
			HeartbeatInterval: 5 * time.Second,
			RequestTimeout:    10 * time.Second,
			Labels:            make(map[string]string),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Output: OutputConfig{
			Dir: "./out",
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load loads configuration with proper precedence:
// defaults < YAML file < environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvToStruct recursively applies environment variables to struct
// fields carrying an env tag.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("setting %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}

	return nil
}
