//go:build !windows

package appdirs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/regenrek/kiauto/internal/identity"
	"github.com/regenrek/kiauto/internal/runenv"
)

var permsWarnOnce sync.Once

// ConfigDir returns the directory holding kiauto's own config.yml.
// It is never created here; a missing config simply means defaults.
func ConfigDir() (string, error) {
	if override := runenv.ConfigDir(); override != "" {
		return override, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, identity.AppSlug), nil
}

// LogDir returns the directory used for rotated log files.
func LogDir() (string, error) {
	if override := runenv.LogDir(); override != "" {
		return EnsurePrivate(override, true)
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return EnsurePrivate(filepath.Join(dir, identity.AppSlug), false)
}

// EnsurePrivate creates dir with mode 0700, or tightens an existing dir
// we own. Dirs named by the user (isOverride) only get a warning.
func EnsurePrivate(dir string, isOverride bool) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("state dir is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat state dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create state dir: %w", err)
		}
		return dir, nil
	}
	if !info.IsDir() {
		return "", fmt.Errorf("state dir %q is not a directory", dir)
	}
	mode := info.Mode().Perm()
	if mode&0o077 == 0 {
		return dir, nil
	}
	if isOverride {
		permsWarnOnce.Do(func() {
			slog.Warn("state dir is group/world accessible; consider chmod 0700", "path", dir, "mode", mode.String())
		})
		return dir, nil
	}
	if ownedByCurrentUser(info) {
		if err := os.Chmod(dir, 0o700); err != nil {
			return "", fmt.Errorf("chmod state dir: %w", err)
		}
		return dir, nil
	}
	permsWarnOnce.Do(func() {
		slog.Warn("state dir is not owned by current user; permissions unchanged", "path", dir, "mode", mode.String())
	})
	return dir, nil
}

func ownedByCurrentUser(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Uid == uint32(os.Getuid())
}
