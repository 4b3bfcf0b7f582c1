// Package xsession runs KiCad inside a private virtual X display.
package xsession

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/regenrek/kiauto/internal/pgroup"
	"github.com/regenrek/kiauto/internal/poll"
	"github.com/regenrek/kiauto/internal/runenv"
	"github.com/regenrek/kiauto/internal/timeouts"
)

const displayEnv = "DISPLAY"

// Binaries names the helper programs. Empty fields use the default name.
type Binaries struct {
	Xvfb      string
	X11vnc    string
	Fluxbox   string
	Recorder  string
	Setxkbmap string
	Xset      string
	Wmctrl    string
}

func (b Binaries) withDefaults() Binaries {
	def := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	return Binaries{
		Xvfb:      def(b.Xvfb, "Xvfb"),
		X11vnc:    def(b.X11vnc, "x11vnc"),
		Fluxbox:   def(b.Fluxbox, "fluxbox"),
		Recorder:  def(b.Recorder, "recordmydesktop"),
		Setxkbmap: def(b.Setxkbmap, "setxkbmap"),
		Xset:      def(b.Xset, "xset"),
		Wmctrl:    def(b.Wmctrl, "wmctrl"),
	}
}

// Options configure Start.
type Options struct {
	Width  int
	Height int
	Depth  int

	// ExtraArgs are appended to the Xvfb command line. KIAUTO_XVFB_ARGS
	// adds more after these.
	ExtraArgs []string

	VNC           bool
	WindowManager bool
	// Record is the video file. Empty disables recording.
	Record string

	// KeepDisplay drives the DISPLAY already set instead of starting Xvfb.
	KeepDisplay bool

	Binaries Binaries
	Run      pgroup.Runner
	LookPath func(string) (string, error)

	ServerTimeout time.Duration
	WMTimeout     time.Duration
	Interval      time.Duration
}

func (o Options) normalized() Options {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.Depth <= 0 {
		o.Depth = 24
	}
	if o.Run == nil {
		o.Run = exec.CommandContext
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = timeouts.XServer
	}
	if o.WMTimeout <= 0 {
		o.WMTimeout = timeouts.WindowManager
	}
	if o.Interval <= 0 {
		o.Interval = timeouts.ServerPoll
	}
	o.Binaries = o.Binaries.withDefaults()
	return o
}

// Session is a running display plus its helpers.
type Session struct {
	Display string

	oldDisplay string
	hadDisplay bool
	displaySet bool
	// stack of started helpers, stopped in reverse order
	procs []helper
}

type helper struct {
	proc *pgroup.Process
	kill bool
}

// Start brings up the display and the optional helpers. On failure
// everything already started is torn down again.
func Start(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.normalized()
	s := &Session{}
	s.oldDisplay, s.hadDisplay = os.LookupEnv(displayEnv)

	if err := s.start(ctx, opts); err != nil {
		if cerr := s.Close(); cerr != nil {
			slog.Warn("display teardown failed", slog.Any("err", cerr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) start(ctx context.Context, opts Options) error {
	if opts.KeepDisplay && s.hadDisplay {
		s.Display = s.oldDisplay
		slog.Debug("using existing display", slog.String("display", s.Display))
	} else {
		if err := s.startXvfb(ctx, opts); err != nil {
			return err
		}
	}
	if err := waitServer(ctx, opts); err != nil {
		return err
	}
	if opts.VNC {
		s.startVNC(ctx, opts)
	}
	if opts.WindowManager {
		if err := s.startWM(ctx, opts); err != nil {
			return err
		}
	}
	if opts.Record != "" {
		args := []string{"--overwrite", "--no-sound", "--no-frame", "--on-the-fly-encoding", "-o", opts.Record}
		p, err := pgroup.Start(ctx, opts.Run, opts.Binaries.Recorder, args, pgroup.Options{})
		if err != nil {
			return fmt.Errorf("start session recorder: %w", err)
		}
		s.procs = append(s.procs, helper{proc: p})
		slog.Info("recording session", slog.String("file", opts.Record))
	}
	return nil
}

// XvfbArgs builds the Xvfb argument list. fd is the descriptor the server
// writes its display number to.
func XvfbArgs(opts Options, fd int) ([]string, error) {
	args := []string{
		"-displayfd", strconv.Itoa(fd),
		"-screen", "0", fmt.Sprintf("%dx%dx%d", opts.Width, opts.Height, opts.Depth),
		"-nolisten", "tcp",
	}
	args = append(args, opts.ExtraArgs...)
	if raw := runenv.XvfbArgs(); raw != "" {
		extra, err := shellquote.Split(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", runenv.XvfbArgsEnv, err)
		}
		args = append(args, extra...)
	}
	return args, nil
}

func (s *Session) startXvfb(ctx context.Context, opts Options) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("display pipe: %w", err)
	}
	defer r.Close()
	// ExtraFiles[0] is fd 3 in the child.
	args, err := XvfbArgs(opts, 3)
	if err != nil {
		_ = w.Close()
		return err
	}
	p, err := pgroup.Start(ctx, opts.Run, opts.Binaries.Xvfb, args, pgroup.Options{ExtraFiles: []*os.File{w}})
	_ = w.Close()
	if err != nil {
		return fmt.Errorf("start virtual X server: %w", err)
	}
	s.procs = append(s.procs, helper{proc: p})

	display, err := readDisplay(r, p, opts.ServerTimeout)
	if err != nil {
		return err
	}
	s.Display = display
	if err := os.Setenv(displayEnv, display); err != nil {
		return fmt.Errorf("set %s: %w", displayEnv, err)
	}
	s.displaySet = true
	slog.Debug("virtual X server started", slog.String("display", display), slog.Int("pid", p.Pid()))
	return nil
}

func readDisplay(r *os.File, p *pgroup.Process, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		ch <- result{line: line, err: err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		num := strings.TrimSpace(res.line)
		if num == "" {
			if res.err != nil {
				return "", fmt.Errorf("virtual X server did not report a display: %w", res.err)
			}
			return "", errors.New("virtual X server did not report a display")
		}
		if _, err := strconv.Atoi(num); err != nil {
			return "", fmt.Errorf("virtual X server reported bad display %q", num)
		}
		return ":" + num, nil
	case <-p.Done():
		return "", errors.New("virtual X server exited during startup")
	case <-timer.C:
		return "", fmt.Errorf("timed out waiting for virtual X server display after %s", timeout)
	}
}

func waitServer(ctx context.Context, opts Options) error {
	bin, args := opts.Binaries.Setxkbmap, []string{"-query"}
	if _, err := opts.LookPath(bin); err != nil {
		bin, args = opts.Binaries.Xset, []string{"q"}
		if _, err := opts.LookPath(bin); err != nil {
			slog.Warn("no setxkbmap nor xset available, unable to verify if X is running")
			return nil
		}
	}
	slog.Debug("waiting for virtual X server", slog.String("display", os.Getenv(displayEnv)))
	_, err := poll.Until(ctx, poll.Options{What: "virtual X server", Timeout: opts.ServerTimeout, Interval: opts.Interval},
		probe(opts.Run, bin, args...))
	return err
}

func (s *Session) startVNC(ctx context.Context, opts Options) {
	if _, err := opts.LookPath(opts.Binaries.X11vnc); err != nil {
		slog.Error("x11vnc isn't installed, please install it")
		return
	}
	p, err := pgroup.Start(ctx, opts.Run, opts.Binaries.X11vnc, []string{"-display", s.Display, "-localhost"}, pgroup.Options{})
	if err != nil {
		slog.Error("x11vnc failed to start", slog.Any("err", err))
		return
	}
	s.procs = append(s.procs, helper{proc: p})
	viewer := s.oldDisplay
	if viewer == "" {
		viewer = ":0"
	}
	slog.Info("VNC server started", slog.String("viewer", "ssvncviewer "+viewer))
}

func (s *Session) startWM(ctx context.Context, opts Options) error {
	p, err := pgroup.Start(ctx, opts.Run, opts.Binaries.Fluxbox, nil, pgroup.Options{})
	if err != nil {
		return fmt.Errorf("start window manager: %w", err)
	}
	// fluxbox sometimes ignores SIGTERM
	s.procs = append(s.procs, helper{proc: p, kill: true})
	if _, err := opts.LookPath(opts.Binaries.Wmctrl); err != nil {
		slog.Warn("no wmctrl, unable to verify if the window manager is running")
		return nil
	}
	slog.Debug("waiting for window manager")
	_, err = poll.Until(ctx, poll.Options{What: "window manager", Timeout: opts.WMTimeout, Interval: opts.Interval},
		probe(opts.Run, opts.Binaries.Wmctrl, "-m"))
	return err
}

func probe(run pgroup.Runner, bin string, args ...string) poll.Query[struct{}] {
	return poll.Check(func(ctx context.Context) (bool, error) {
		cmd := run(ctx, bin, args...)
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return false, nil
			}
			return false, fmt.Errorf("%s: %w", bin, err)
		}
		return true, nil
	})
}

// Close stops the helpers in reverse start order and restores DISPLAY.
// It is safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.procs) - 1; i >= 0; i-- {
		h := s.procs[i]
		var err error
		if h.kill {
			err = h.proc.Kill()
		} else {
			err = h.proc.Stop()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", h.proc.Name, err))
		}
	}
	s.procs = nil
	if s.displaySet {
		if s.hadDisplay {
			errs = append(errs, os.Setenv(displayEnv, s.oldDisplay))
		} else {
			errs = append(errs, os.Unsetenv(displayEnv))
		}
		s.displaySet = false
	}
	return errors.Join(errs...)
}
