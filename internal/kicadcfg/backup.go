// Package kicadcfg swaps KiCad's user configuration for a known one while
// kiauto drives the GUI, and puts the user's files back afterwards.
package kicadcfg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// BackupSuffix is appended to a config file moved aside.
const BackupSuffix = ".pre_script"

// StaleBackupError reports a backup left by an earlier run. It may hold the
// user's real configuration, so kiauto refuses to touch it.
type StaleBackupError struct {
	Name   string
	Path   string
	Backup string
	Code   int
}

func (e *StaleBackupError) Error() string {
	return fmt.Sprintf("%s config back-up found (%s); it could contain your %s configuration, rename it to %s or discard it",
		e.Name, e.Backup, strings.ToLower(e.Name), e.Path)
}

func (e *StaleBackupError) ExitCode() int { return e.Code }

// Restorer puts one config file back in place.
type Restorer struct {
	Name   string
	Path   string
	Backup string
	// moved is set when an original file was renamed to Backup.
	moved bool
	once  sync.Once
	err   error
}

// Backup moves path aside to path+suffix. A missing path is fine: Release
// then just removes whatever replacement was written.
func Backup(name, path, suffix string, code int) (*Restorer, error) {
	if suffix == "" {
		suffix = BackupSuffix
	}
	r := &Restorer{Name: name, Path: path, Backup: path + suffix}
	slog.Debug(name+" config", slog.String("path", path))
	if _, err := os.Stat(r.Backup); err == nil {
		return nil, &StaleBackupError{Name: name, Path: path, Backup: r.Backup, Code: code}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("check %s backup: %w", name, err)
	}
	if _, err := os.Stat(path); err == nil {
		slog.Debug("moving current config aside", slog.String("backup", r.Backup))
		if err := os.Rename(path, r.Backup); err != nil {
			return nil, fmt.Errorf("back up %s config: %w", name, err)
		}
		r.moved = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s config: %w", name, err)
	}
	return r, nil
}

// Release restores the original file. Only the first call has an effect.
func (r *Restorer) Release() error {
	r.once.Do(func() {
		if err := os.Remove(r.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.err = fmt.Errorf("remove replacement %s config: %w", r.Name, err)
			return
		}
		if !r.moved {
			return
		}
		if err := os.Rename(r.Backup, r.Path); err != nil {
			r.err = fmt.Errorf("restore %s config: %w", r.Name, err)
			return
		}
		slog.Debug("restored old "+r.Name+" config", slog.String("path", r.Path))
	})
	return r.err
}

// Releaser is anything Guard can undo.
type Releaser interface {
	Release() error
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func() error

func (f ReleaseFunc) Release() error { return f() }

// Guard undoes registered changes in reverse order.
type Guard struct {
	mu    sync.Mutex
	stack []Releaser
}

// Push registers r. Nil releasers are ignored.
func (g *Guard) Push(r Releaser) {
	if r == nil {
		return
	}
	g.mu.Lock()
	g.stack = append(g.stack, r)
	g.mu.Unlock()
}

// Close releases everything pushed so far, last in first out, and keeps
// going past failures. The stack is empty afterwards.
func (g *Guard) Close() error {
	g.mu.Lock()
	stack := g.stack
	g.stack = nil
	g.mu.Unlock()
	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		if err := stack[i].Release(); err != nil {
			slog.Error("restore failed", slog.Any("err", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
