package logging

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Sink selects where records go. SinkOutput writes kiauto.log into the
// output dir of the run, next to any recording.
type Sink string

const (
	SinkStderr Sink = "stderr"
	SinkFile   Sink = "file"
	SinkOutput Sink = "output"
	SinkNone   Sink = "none"
)

const (
	EnvLogLevel      = "KIAUTO_LOG_LEVEL"
	EnvLogFormat     = "KIAUTO_LOG_FORMAT"
	EnvLogSink       = "KIAUTO_LOG_SINK"
	EnvLogFile       = "KIAUTO_LOG_FILE"
	EnvLogAddSource  = "KIAUTO_LOG_ADD_SOURCE"
	EnvLogMaxSizeMB  = "KIAUTO_LOG_MAX_SIZE_MB"
	EnvLogMaxBackups = "KIAUTO_LOG_MAX_BACKUPS"
	EnvLogMaxAgeDays = "KIAUTO_LOG_MAX_AGE_DAYS"
	EnvLogCompress   = "KIAUTO_LOG_COMPRESS"
)

// Config is the logging section of config.yml. Empty fields take the
// DefaultConfig values.
type Config struct {
	Level     string   `yaml:"level,omitempty" toml:"level,omitempty"`
	Format    Format   `yaml:"format,omitempty" toml:"format,omitempty"`
	Sink      Sink     `yaml:"sink,omitempty" toml:"sink,omitempty"`
	File      string   `yaml:"file,omitempty" toml:"file,omitempty"`
	AddSource bool     `yaml:"add_source,omitempty" toml:"add_source,omitempty"`
	Rotate    Rotation `yaml:"rotate,omitempty" toml:"rotate,omitempty"`
}

// Rotation bounds the files kept by the file and output sinks.
type Rotation struct {
	MaxSizeMB  int   `yaml:"max_size_mb,omitempty" toml:"max_size_mb,omitempty"`
	MaxBackups int   `yaml:"max_backups,omitempty" toml:"max_backups,omitempty"`
	MaxAgeDays int   `yaml:"max_age_days,omitempty" toml:"max_age_days,omitempty"`
	Compress   *bool `yaml:"compress,omitempty" toml:"compress,omitempty"`
}

// DefaultConfig is quiet on stderr: only warnings and errors reach the
// terminal unless -v/--debug or the config raise the level.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: FormatText,
		Sink:   SinkStderr,
		Rotate: Rotation{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 14},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.Sink == "" {
		c.Sink = def.Sink
	}
	if c.Rotate.MaxSizeMB == 0 {
		c.Rotate.MaxSizeMB = def.Rotate.MaxSizeMB
	}
	if c.Rotate.MaxBackups == 0 {
		c.Rotate.MaxBackups = def.Rotate.MaxBackups
	}
	if c.Rotate.MaxAgeDays == 0 {
		c.Rotate.MaxAgeDays = def.Rotate.MaxAgeDays
	}
	return c
}

var envOverrides = []struct {
	name  string
	apply func(c *Config, v string) error
}{
	{EnvLogLevel, func(c *Config, v string) error { c.Level = v; return nil }},
	{EnvLogFormat, func(c *Config, v string) error { c.Format = Format(v); return nil }},
	{EnvLogSink, func(c *Config, v string) error { c.Sink = Sink(v); return nil }},
	{EnvLogFile, func(c *Config, v string) error { c.File = v; return nil }},
	{EnvLogAddSource, func(c *Config, v string) error { c.AddSource = enabled(v); return nil }},
	{EnvLogMaxSizeMB, func(c *Config, v string) error { return atoi(v, &c.Rotate.MaxSizeMB) }},
	{EnvLogMaxBackups, func(c *Config, v string) error { return atoi(v, &c.Rotate.MaxBackups) }},
	{EnvLogMaxAgeDays, func(c *Config, v string) error { return atoi(v, &c.Rotate.MaxAgeDays) }},
	{EnvLogCompress, func(c *Config, v string) error { on := enabled(v); c.Rotate.Compress = &on; return nil }},
}

// WithEnv applies the KIAUTO_LOG_* variables that are set.
func (c Config) WithEnv() (Config, error) {
	for _, o := range envOverrides {
		v := strings.TrimSpace(os.Getenv(o.name))
		if v == "" {
			continue
		}
		if err := o.apply(&c, v); err != nil {
			return c, fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return c, nil
}

// Normalize lower-cases the enumerations, clamps negative rotation
// bounds to zero and validates the result.
func (c Config) Normalize() (Config, error) {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	c.Format = Format(strings.ToLower(strings.TrimSpace(string(c.Format))))
	c.Sink = Sink(strings.ToLower(strings.TrimSpace(string(c.Sink))))
	c.File = strings.TrimSpace(c.File)
	for _, n := range []*int{&c.Rotate.MaxSizeMB, &c.Rotate.MaxBackups, &c.Rotate.MaxAgeDays} {
		*n = max(*n, 0)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: invalid %q", c.Level)
	}
	switch c.Format {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("logging.format: invalid %q", c.Format)
	}
	switch c.Sink {
	case "", SinkStderr, SinkFile, SinkOutput, SinkNone:
	default:
		return fmt.Errorf("logging.sink: invalid %q", c.Sink)
	}
	return nil
}

func enabled(v string) bool {
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func atoi(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not a number: %q", v)
	}
	*dst = n
	return nil
}
