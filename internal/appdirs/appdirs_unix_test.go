//go:build !windows

package appdirs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/regenrek/kiauto/internal/runenv"
)

func TestLogDirPermissions(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "logs")
	t.Setenv(runenv.LogDirEnv, dir)

	got, err := LogDir()
	if err != nil {
		t.Fatalf("LogDir() error: %v", err)
	}
	if got != dir {
		t.Fatalf("LogDir() = %q, want %q", got, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat log dir: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("log dir perm = %o, want 0700", info.Mode().Perm())
	}
}

func TestEnsurePrivateDirTightensDefaultPerms(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "state")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir state dir: %v", err)
	}
	if err := os.Chmod(dir, 0o755); err != nil {
		t.Fatalf("chmod state dir: %v", err)
	}

	got, err := EnsurePrivate(dir, false)
	if err != nil {
		t.Fatalf("EnsurePrivate() error: %v", err)
	}
	if got != dir {
		t.Fatalf("EnsurePrivate() = %q, want %q", got, dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat state dir: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("state dir perm = %o, want 0700", info.Mode().Perm())
	}
}

func TestEnsurePrivateDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := EnsurePrivate(path, false); err == nil {
		t.Fatalf("expected error for non-directory")
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")
	t.Setenv(runenv.ConfigDirEnv, dir)
	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error: %v", err)
	}
	if got != dir {
		t.Fatalf("ConfigDir() = %q, want %q", got, dir)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("ConfigDir() must not create %q", dir)
	}
}

func TestEnsurePrivateLeavesOverrideAlone(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "override")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := EnsurePrivate(dir, true); err != nil {
		t.Fatalf("EnsurePrivate: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("override dir mode changed to %v", info.Mode().Perm())
	}
}
