// Package pgroup runs helper programs in their own process group so the
// whole tree can be signalled at once.
package pgroup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/regenrek/kiauto/internal/logging"
	"github.com/regenrek/kiauto/internal/timeouts"
)

// Runner builds commands. exec.CommandContext in production.
type Runner func(ctx context.Context, name string, args ...string) *exec.Cmd

// Options configure Start.
type Options struct {
	// Env is appended to the inherited environment.
	Env []string
	// Output receives stdout and stderr. Discarded when nil.
	Output io.Writer
	// ExtraFiles are passed to the child starting at fd 3.
	ExtraFiles []*os.File
	// Grace is the SIGTERM to SIGKILL delay used by Stop.
	Grace time.Duration
}

// Process is a started program and its process group.
type Process struct {
	Name  string
	cmd   *exec.Cmd
	done  chan struct{}
	err   error
	grace time.Duration
}

// Start launches bin. The child keeps running when ctx is canceled;
// callers stop it with Stop.
func Start(ctx context.Context, run Runner, bin string, args []string, opts Options) (*Process, error) {
	if run == nil {
		run = exec.CommandContext
	}
	cmd := run(context.WithoutCancel(ctx), bin, args...)
	if len(opts.Env) > 0 {
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		cmd.Env = append(env, opts.Env...)
	}
	cmd.Stdout = opts.Output
	cmd.Stderr = opts.Output
	cmd.ExtraFiles = opts.ExtraFiles
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	slog.Debug("starting "+bin, slog.String("cmd", logging.CommandLine(bin, args...)))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = timeouts.TerminateGrace
	}
	p := &Process{Name: bin, cmd: cmd, done: make(chan struct{}), grace: grace}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	slog.Debug("started "+bin, slog.Int("pid", cmd.Process.Pid))
	return p, nil
}

// Pid returns the process id of the group leader.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has terminated.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits or timeout elapses.
func (p *Process) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.exitErr()
	case <-timer.C:
		return fmt.Errorf("%s did not exit within %s", p.Name, timeout)
	}
}

func (p *Process) exitErr() error {
	var exitErr *exec.ExitError
	if errors.As(p.err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return nil
		}
	}
	return p.err
}

// Stop sends SIGTERM to the group and SIGKILL when it is still alive after
// the grace period. Calling Stop on an exited process is a no-op.
func (p *Process) Stop() error {
	return p.stop(unix.SIGTERM)
}

// Kill sends SIGKILL to the group right away. fluxbox sometimes ignores SIGTERM.
func (p *Process) Kill() error {
	return p.stop(unix.SIGKILL)
}

func (p *Process) stop(first unix.Signal) error {
	if p.Exited() {
		return nil
	}
	pid := p.Pid()
	slog.Debug("terminating "+p.Name, slog.Int("pid", pid), slog.String("signal", first.String()))
	if err := signalGroup(pid, first); err != nil {
		return err
	}
	if first != unix.SIGKILL {
		if err := p.Wait(p.grace); err == nil || p.Exited() {
			return nil
		}
		slog.Debug("killing "+p.Name, slog.Int("pid", pid))
		if err := signalGroup(pid, unix.SIGKILL); err != nil {
			return err
		}
	}
	if err := p.Wait(timeouts.Close); err != nil && !p.Exited() {
		return err
	}
	return nil
}

func signalGroup(pid int, sig unix.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("getpgid %d: %w", pid, err)
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal group %d: %w", pgid, err)
	}
	return nil
}
