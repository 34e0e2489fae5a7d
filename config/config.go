// Package config loads the settings of a bindengine run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides a setting.
const EnvPrefix = "BINDENGINE_"

var (
	// ErrUnsupportedFormat is returned for files that are neither TOML nor
	// YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidValue is returned when a setting fails validation.
	ErrInvalidValue = errors.New("invalid config value")
)

// Config holds every setting.
type Config struct {
	Engine    EngineConfig    `toml:"engine" yaml:"engine"`
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Monitor   MonitorConfig   `toml:"monitor" yaml:"monitor"`
	Recording RecordingConfig `toml:"recording" yaml:"recording"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Scripts   ScriptsConfig   `toml:"scripts" yaml:"scripts"`
}

// EngineConfig configures the host that steps frames.
type EngineConfig struct {
	FrameDelta   time.Duration `toml:"frame_delta" yaml:"frame_delta"`
	TimeScale    float64       `toml:"time_scale" yaml:"time_scale"`
	StartPlaying bool          `toml:"start_playing" yaml:"start_playing"`
	Frames       int           `toml:"frames" yaml:"frames"`
}

// SchedulerConfig configures the binding context.
type SchedulerConfig struct {
	Profiling bool `toml:"profiling" yaml:"profiling"`
}

// MonitorConfig configures the monitoring server.
type MonitorConfig struct {
	Enabled bool          `toml:"enabled" yaml:"enabled"`
	Port    int           `toml:"port" yaml:"port"`
	Timeout time.Duration `toml:"timeout" yaml:"timeout"`
}

// RecordingConfig configures the SQLite recorder. Path is the database name
// without the .sqlite3 extension; an empty path picks a unique name.
type RecordingConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // "json" or "console"
}

// ScriptsConfig points at the Lua files that declare bindings.
type ScriptsConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			FrameDelta:   time.Second / 60,
			TimeScale:    1,
			StartPlaying: true,
			Frames:       600,
		},
		Scheduler: SchedulerConfig{
			Profiling: false,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Port:    0,
			Timeout: 2 * time.Second,
		},
		Recording: RecordingConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scripts: ScriptsConfig{
			Dir: "scripts",
		},
	}
}

// Load reads a TOML or YAML file over the defaults, chosen by extension, and
// then applies environment overrides. An empty path yields the defaults with
// overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped and variables already set are kept.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}

		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides settings from BINDENGINE_* environment variables.
func (c *Config) ApplyEnv() error {
	var err error

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Recording.Path, "RECORD_PATH")
	setString(&c.Scripts.Dir, "SCRIPTS_DIR")

	for _, set := range []func() error{
		func() error { return setDuration(&c.Engine.FrameDelta, "FRAME_DELTA") },
		func() error { return setFloat(&c.Engine.TimeScale, "TIME_SCALE") },
		func() error { return setBool(&c.Engine.StartPlaying, "START_PLAYING") },
		func() error { return setInt(&c.Engine.Frames, "FRAMES") },
		func() error { return setBool(&c.Scheduler.Profiling, "PROFILING") },
		func() error { return setBool(&c.Monitor.Enabled, "MONITOR") },
		func() error { return setInt(&c.Monitor.Port, "MONITOR_PORT") },
		func() error { return setDuration(&c.Monitor.Timeout, "MONITOR_TIMEOUT") },
		func() error { return setBool(&c.Recording.Enabled, "RECORD") },
	} {
		if err = set(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that the settings can build a host.
func (c *Config) Validate() error {
	if c.Engine.FrameDelta <= 0 {
		return fmt.Errorf("%w: engine.frame_delta must be positive",
			ErrInvalidValue)
	}

	if c.Engine.TimeScale < 0 {
		return fmt.Errorf("%w: engine.time_scale cannot be negative",
			ErrInvalidValue)
	}

	if c.Engine.Frames < 0 {
		return fmt.Errorf("%w: engine.frames cannot be negative",
			ErrInvalidValue)
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("%w: monitor.port %d out of range",
			ErrInvalidValue, c.Monitor.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidValue,
			c.Logging.Format)
	}

	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}

	return v, true
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setBool(dst *bool, name string) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v)
	}

	*dst = b

	return nil
}

func setInt(dst *int, name string) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v)
	}

	*dst = n

	return nil
}

func setFloat(dst *float64, name string) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v)
	}

	*dst = f

	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s%s=%q", ErrInvalidValue, EnvPrefix, name, v)
	}

	*dst = d

	return nil
}
