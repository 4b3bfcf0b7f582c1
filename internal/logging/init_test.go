package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	orig := slog.Default()
	t.Cleanup(func() { slog.SetDefault(orig) })
}

func TestInitDefaultsToWarn(t *testing.T) {
	restoreDefaultLogger(t)
	var buf bytes.Buffer
	closeFn, err := Init(context.Background(), Config{}, InitOptions{Version: "test", Stderr: &buf})
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer func() { _ = closeFn() }()

	slog.Info("hidden")
	slog.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message leaked at default level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "app=kiauto") {
		t.Fatalf("missing warn output: %q", out)
	}
}

func TestInitVerbosityOverridesConfigAndEnv(t *testing.T) {
	restoreDefaultLogger(t)
	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	closeFn, err := Init(context.Background(), Config{Level: "warn"}, InitOptions{Verbosity: VerbosityDebug, Stderr: &buf})
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer func() { _ = closeFn() }()

	slog.Debug("xdotool search")
	if !strings.Contains(buf.String(), "xdotool search") {
		t.Fatalf("debug message missing: %q", buf.String())
	}
}

func TestInitRejectsInvalidLevel(t *testing.T) {
	restoreDefaultLogger(t)
	if _, err := Init(context.Background(), Config{Level: "loud"}, InitOptions{}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestInitFileSink(t *testing.T) {
	restoreDefaultLogger(t)
	path := filepath.Join(t.TempDir(), "logs", "kiauto.log")
	t.Setenv(EnvLogSink, "file")
	t.Setenv(EnvLogFile, path)
	t.Setenv(EnvLogFormat, "json")
	closeFn, err := Init(context.Background(), Config{}, InitOptions{Verbosity: VerbosityInfo})
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	slog.Info("started eeschema", slog.Int("pid", 42))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"started eeschema"`) {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestInitOutputSink(t *testing.T) {
	restoreDefaultLogger(t)
	out := filepath.Join(t.TempDir(), "out")
	closeFn, err := Init(context.Background(), Config{Sink: SinkOutput}, InitOptions{OutputDir: out})
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	slog.Warn("eeschema died")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "kiauto.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "eeschema died") {
		t.Fatalf("unexpected log content: %s", data)
	}
	if _, err := Init(context.Background(), Config{Sink: SinkOutput}, InitOptions{}); err == nil {
		t.Fatalf("output sink without a dir accepted")
	}
}

func TestInitRejectsBadEnvNumber(t *testing.T) {
	restoreDefaultLogger(t)
	t.Setenv(EnvLogMaxBackups, "many")
	if _, err := Init(context.Background(), Config{}, InitOptions{}); err == nil || !strings.Contains(err.Error(), EnvLogMaxBackups) {
		t.Fatalf("Init() error = %v", err)
	}
}

func TestWithDefaultsKeepsExplicitValues(t *testing.T) {
	off := false
	cfg := Config{Sink: SinkFile, Rotate: Rotation{MaxBackups: 7, Compress: &off}}.withDefaults()
	if cfg.Level != "warn" || cfg.Format != FormatText || cfg.Sink != SinkFile {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Rotate.MaxBackups != 7 || cfg.Rotate.MaxSizeMB != 10 || *cfg.Rotate.Compress {
		t.Fatalf("rotate = %+v", cfg.Rotate)
	}
}

func TestNormalizeClampsNegatives(t *testing.T) {
	cfg, err := Config{Rotate: Rotation{MaxBackups: -4}, Sink: " FILE "}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if cfg.Rotate.MaxBackups != 0 {
		t.Fatalf("MaxBackups = %d, want 0", cfg.Rotate.MaxBackups)
	}
	if cfg.Sink != SinkFile {
		t.Fatalf("Sink = %q, want file", cfg.Sink)
	}
}
