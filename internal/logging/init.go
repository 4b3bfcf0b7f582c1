package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/regenrek/kiauto/internal/appdirs"
	"github.com/regenrek/kiauto/internal/identity"
)

// Verbosity is the level requested on the command line. It wins over the
// config file and the environment when set.
type Verbosity uint8

const (
	VerbosityDefault Verbosity = iota
	VerbosityInfo
	VerbosityDebug
)

func (v Verbosity) level() string {
	switch v {
	case VerbosityInfo:
		return "info"
	case VerbosityDebug:
		return "debug"
	default:
		return ""
	}
}

type InitOptions struct {
	App       string
	Version   string
	Verbosity Verbosity
	// Stderr replaces os.Stderr for the stderr sink.
	Stderr io.Writer
	// OutputDir is the run's output dir, used by SinkOutput.
	OutputDir string
}

// Init installs the default slog logger described by cfg, the
// KIAUTO_LOG_* variables and opts. The returned func closes the sink.
func Init(_ context.Context, cfg Config, opts InitOptions) (func() error, error) {
	if opts.App == "" {
		opts.App = identity.CLIName
	}
	cfg, err := cfg.withDefaults().WithEnv()
	if err != nil {
		return nil, err
	}
	if lvl := opts.Verbosity.level(); lvl != "" {
		cfg.Level = lvl
	}
	if cfg, err = cfg.Normalize(); err != nil {
		return nil, err
	}

	w, closeFn, err := openSink(cfg, opts)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h).With(
		slog.String("app", opts.App),
		slog.String("version", opts.Version),
	))
	return closeFn, nil
}

func parseLevel(value string) slog.Level {
	switch value {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func noClose() error { return nil }

func openSink(cfg Config, opts InitOptions) (io.Writer, func() error, error) {
	var path string
	switch cfg.Sink {
	case SinkNone:
		return io.Discard, noClose, nil
	case SinkStderr:
		if opts.Stderr != nil {
			return opts.Stderr, noClose, nil
		}
		return os.Stderr, noClose, nil
	case SinkOutput:
		if opts.OutputDir == "" {
			return nil, nil, fmt.Errorf("logging: sink %q needs an output dir", cfg.Sink)
		}
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
		path = filepath.Join(opts.OutputDir, identity.LogFile)
	case SinkFile:
		path = cfg.File
		if path == "" {
			dir, err := appdirs.LogDir()
			if err != nil {
				return nil, nil, err
			}
			path = filepath.Join(dir, identity.LogFile)
		} else if _, err := appdirs.EnsurePrivate(filepath.Dir(path), true); err != nil {
			return nil, nil, fmt.Errorf("logging: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("logging: unknown sink %q", cfg.Sink)
	}
	compress := cfg.Rotate.Compress == nil || *cfg.Rotate.Compress
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.Rotate.MaxSizeMB,
		MaxBackups: cfg.Rotate.MaxBackups,
		MaxAge:     cfg.Rotate.MaxAgeDays,
		Compress:   compress,
	}
	return rot, rot.Close, nil
}
