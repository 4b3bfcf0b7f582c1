// Package config loads the optional kiauto config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/regenrek/kiauto/internal/appdirs"
	"github.com/regenrek/kiauto/internal/identity"
	"github.com/regenrek/kiauto/internal/limits"
	"github.com/regenrek/kiauto/internal/logging"
	"github.com/regenrek/kiauto/internal/timeouts"
	"github.com/regenrek/kiauto/internal/userpath"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	defaultDepth  = 24
)

// Duration accepts Go duration strings ("40s", "1m30s") in YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents ~/.config/kiauto/config.yml.
type Config struct {
	Logging  logging.Config `yaml:"logging" toml:"logging"`
	Timeouts Timeouts       `yaml:"timeouts" toml:"timeouts"`
	Binaries Binaries       `yaml:"binaries" toml:"binaries"`
	Display  Display        `yaml:"display" toml:"display"`
}

// Timeouts overrides the wait budgets and poll intervals.
type Timeouts struct {
	WaitStart  Duration `yaml:"wait_start" toml:"wait_start"`
	Window     Duration `yaml:"window" toml:"window"`
	Focus      Duration `yaml:"focus" toml:"focus"`
	File       Duration `yaml:"file" toml:"file"`
	Close      Duration `yaml:"close" toml:"close"`
	WindowPoll Duration `yaml:"window_poll" toml:"window_poll"`
	FilePoll   Duration `yaml:"file_poll" toml:"file_poll"`
	KeyDelay   Duration `yaml:"key_delay" toml:"key_delay"`
}

// Binaries overrides helper program paths.
type Binaries struct {
	Xdotool  string `yaml:"xdotool" toml:"xdotool"`
	Xvfb     string `yaml:"xvfb" toml:"xvfb"`
	X11vnc   string `yaml:"x11vnc" toml:"x11vnc"`
	Fluxbox  string `yaml:"fluxbox" toml:"fluxbox"`
	Recorder string `yaml:"recorder" toml:"recorder"`
	Eeschema string `yaml:"eeschema" toml:"eeschema"`
	Pcbnew   string `yaml:"pcbnew" toml:"pcbnew"`
	Python   string `yaml:"python" toml:"python"`
}

// Display sizes the virtual screen.
type Display struct {
	Width    int      `yaml:"width" toml:"width"`
	Height   int      `yaml:"height" toml:"height"`
	Depth    int      `yaml:"depth" toml:"depth"`
	XvfbArgs []string `yaml:"xvfb_args" toml:"xvfb_args"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Logging: logging.DefaultConfig(),
		Timeouts: Timeouts{
			WaitStart:  Duration(timeouts.WaitStart),
			Window:     Duration(timeouts.Window),
			Focus:      Duration(timeouts.Focus),
			File:       Duration(timeouts.File),
			Close:      Duration(timeouts.Close),
			WindowPoll: Duration(timeouts.WindowPoll),
			FilePoll:   Duration(timeouts.FilePoll),
			KeyDelay:   Duration(timeouts.KeyDelay),
		},
		Display: Display{Width: defaultWidth, Height: defaultHeight, Depth: defaultDepth},
	}
}

// DefaultPath returns the config file inside appdirs.ConfigDir.
func DefaultPath() (string, error) {
	dir, err := appdirs.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, identity.GlobalConfigFile), nil
}

// Load reads path. A missing file yields the defaults. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	path, err := userpath.Resolve(path)
	if err != nil {
		return Defaults(), err
	}
	if path == "" {
		return Defaults(), errors.New("empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Defaults(), fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Defaults(), fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if _, err := cfg.Logging.Normalize(); err != nil {
		return Defaults(), fmt.Errorf("config %s: %w", path, err)
	}
	if err := limits.ValidateDisplay(cfg.Display.Width, cfg.Display.Height); err != nil {
		return Defaults(), fmt.Errorf("config %s: %w", path, err)
	}
	if err := limits.ValidateDepth(cfg.Display.Depth); err != nil {
		return Defaults(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Defaults()
	fill := func(v *Duration, d Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&cfg.Timeouts.WaitStart, def.Timeouts.WaitStart)
	fill(&cfg.Timeouts.Window, def.Timeouts.Window)
	fill(&cfg.Timeouts.Focus, def.Timeouts.Focus)
	fill(&cfg.Timeouts.File, def.Timeouts.File)
	fill(&cfg.Timeouts.Close, def.Timeouts.Close)
	fill(&cfg.Timeouts.WindowPoll, def.Timeouts.WindowPoll)
	fill(&cfg.Timeouts.FilePoll, def.Timeouts.FilePoll)
	fill(&cfg.Timeouts.KeyDelay, def.Timeouts.KeyDelay)
	if cfg.Display.Width <= 0 {
		cfg.Display.Width = defaultWidth
	}
	if cfg.Display.Height <= 0 {
		cfg.Display.Height = defaultHeight
	}
	if cfg.Display.Depth <= 0 {
		cfg.Display.Depth = defaultDepth
	}
}
