// Package procwatch waits for files produced by a child process.
package procwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/regenrek/kiauto/internal/poll"
)

// ErrProcessDied is returned once the watched process is gone. It wraps
// poll.ErrFatal so waits stop immediately.
var ErrProcessDied = fmt.Errorf("KiCad unexpectedly died: %w", poll.ErrFatal)

// FileOwner reports the files a process currently holds open.
type FileOwner interface {
	OpenFiles(ctx context.Context) ([]string, error)
}

// Process is a handle on a running pid, pinned to its create time so a
// recycled pid is not mistaken for the original process.
type Process struct {
	pid     int32
	created int64
	proc    *process.Process
}

// Watch attaches to pid.
func Watch(ctx context.Context, pid int) (*Process, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("watch pid %d: %w", pid, err)
	}
	created, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch pid %d: create time: %w", pid, err)
	}
	return &Process{pid: int32(pid), created: created, proc: proc}, nil
}

func (p *Process) Pid() int { return int(p.pid) }

// Alive reports whether the original process is still running.
func (p *Process) Alive(ctx context.Context) bool {
	running, err := p.proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}
	created, err := p.proc.CreateTimeWithContext(ctx)
	return err == nil && created == p.created
}

// OpenFiles lists the paths the process holds open.
func (p *Process) OpenFiles(ctx context.Context) ([]string, error) {
	if !p.Alive(ctx) {
		return nil, ErrProcessDied
	}
	stats, err := p.proc.OpenFilesWithContext(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, ErrProcessDied
		}
		return nil, fmt.Errorf("open files of pid %d: %w", p.pid, err)
	}
	paths := make([]string, 0, len(stats))
	for _, st := range stats {
		paths = append(paths, st.Path)
	}
	return paths, nil
}

// WaitForFile waits until path exists and owner no longer holds it open.
// The owner is asked first on every attempt so a process that dies
// before writing path ends the wait with ErrProcessDied.
func WaitForFile(ctx context.Context, owner FileOwner, path string, timeout, interval time.Duration) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	slog.Info("waiting for file", slog.String("path", abs), slog.Duration("timeout", timeout))
	opts := poll.Options{What: "creation of " + abs, Timeout: timeout, Interval: interval}
	_, err = poll.Until(ctx, opts, poll.Check(func(ctx context.Context) (bool, error) {
		open, err := owner.OpenFiles(ctx)
		if err != nil {
			return false, err
		}
		if _, err := os.Stat(abs); err != nil {
			return false, nil
		}
		if held(open, abs) {
			slog.Debug("file still open by KiCad", slog.String("path", abs))
			return false, nil
		}
		return true, nil
	}))
	return err
}

// held reports whether open contains path. The kernel lists open files
// by their resolved path, so path is compared with its parent dir's
// symlinks evaluated too.
func held(open []string, path string) bool {
	if slices.Contains(open, path) {
		return true
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return false
	}
	return slices.Contains(open, filepath.Join(dir, filepath.Base(path)))
}
