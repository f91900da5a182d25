package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/liaoxianfu/ai-agent/internal/logging"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of the service.
type Config struct {
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

// Server holds the HTTP server settings.
type Server struct {
	// Address is the host:port the server listens on.
	Address string `yaml:"addr"`
	// ReadHeaderTimeout bounds how long reading request headers may take.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// HelloDelay is slept by the demo route before answering.
	HelloDelay time.Duration `yaml:"hello_delay"`
}

// Log holds the logging pipeline settings.
type Log struct {
	Debug         bool          `yaml:"debug"`
	Dir           string        `yaml:"dir"`
	RetentionDays int           `yaml:"retention_days"`
	Compress      bool          `yaml:"compress"`
	Color         string        `yaml:"color"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	// RequestFormat picks the structured fields of the access log: none, ecs or gcloud.
	RequestFormat string `yaml:"request_format"`
	// GCPProject is required by the gcloud request format.
	GCPProject string `yaml:"gcp_project"`
	// Components maps component names to level names, see logging.DefaultComponents.
	Components map[string]string `yaml:"components"`
}

const (
	// DefaultAddress is the address the server binds to.
	DefaultAddress = "0.0.0.0:8000"
	// DefaultReadHeaderTimeout is the default read header timeout.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the default graceful shutdown timeout.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultEnvFile is the dotenv file read at startup when present.
	DefaultEnvFile = ".env"

	envPrefix = "AI_AGENT_"
)

var (
	// ErrInvalidAddress is returned when the listen address is not host:port.
	ErrInvalidAddress = errors.New("invalid server address")
	// ErrInvalidLevel is returned for an unknown component level name.
	ErrInvalidLevel = errors.New("invalid log level")

	errInvalidColor     = errors.New("log color must be auto, always or never")
	errInvalidRetention = errors.New("log retention must be at least one day")
)

// Default returns the settings used when nothing is configured.
func Default() *Config {
	components := make(map[string]string)
	for name, lvl := range logging.DefaultComponents() {
		components[name] = lvl.String()
	}

	return &Config{
		Server: Server{
			Address:           DefaultAddress,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		Log: Log{
			Debug:         true,
			Dir:           logging.DefaultDir,
			RetentionDays: logging.DefaultRetentionDays,
			Compress:      true,
			Color:         string(logging.ColorAuto),
			BufferSize:    logging.DefaultBufferSize,
			FlushInterval: logging.DefaultFlushInterval,
			Components:    components,
		},
	}
}

// Load builds the settings from the defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates them.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}

		// Keys missing from the file keep their default.
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

//nolint:cyclop // one branch per variable
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	boolean := func(name string, dst *bool) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("ADDR", &cfg.Server.Address)
	str("LOG_DIR", &cfg.Log.Dir)
	str("LOG_COLOR", &cfg.Log.Color)
	str("LOG_REQUEST_FORMAT", &cfg.Log.RequestFormat)
	str("GCP_PROJECT", &cfg.Log.GCPProject)

	if err := boolean("DEBUG", &cfg.Log.Debug); err != nil {
		return err
	}
	if err := boolean("LOG_COMPRESS", &cfg.Log.Compress); err != nil {
		return err
	}

	if v, ok := lookup(envPrefix + "LOG_RETENTION_DAYS"); ok {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sLOG_RETENTION_DAYS: %w", envPrefix, err)
		}
		cfg.Log.RetentionDays = days
	}

	return nil
}

// Validate checks the settings and fills in zero values with defaults.
func Validate(cfg *Config) error {
	if err := validateAddress(cfg.Server.Address); err != nil {
		return err
	}

	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Log.RetentionDays < 1 {
		return errInvalidRetention
	}

	switch logging.ColorMode(cfg.Log.Color) {
	case "":
		cfg.Log.Color = string(logging.ColorAuto)
	case logging.ColorAuto, logging.ColorAlways, logging.ColorNever:
	default:
		return fmt.Errorf("%w: %q", errInvalidColor, cfg.Log.Color)
	}

	if _, err := cfg.Log.componentLevels(); err != nil {
		return err
	}

	return nil
}

func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidAddress, addr, err)
	}

	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("%w %q: bad port", ErrInvalidAddress, addr)
	}

	return nil
}

func (l *Log) componentLevels() (map[string]zapcore.Level, error) {
	levels := logging.DefaultComponents()
	for name, text := range l.Components {
		lvl, err := zapcore.ParseLevel(text)
		if err != nil {
			return nil, fmt.Errorf("%w for component %s: %q", ErrInvalidLevel, name, text)
		}
		levels[name] = lvl
	}
	return levels, nil
}

// Logging converts the settings into a logging pipeline configuration.
func (c *Config) Logging() (logging.Config, error) {
	components, err := c.Log.componentLevels()
	if err != nil {
		return logging.Config{}, err
	}

	return logging.Config{
		Debug:         c.Log.Debug,
		Dir:           c.Log.Dir,
		RetentionDays: c.Log.RetentionDays,
		Compress:      c.Log.Compress,
		Color:         logging.ColorMode(c.Log.Color),
		BufferSize:    c.Log.BufferSize,
		FlushInterval: c.Log.FlushInterval,
		Components:    components,
	}, nil
}
