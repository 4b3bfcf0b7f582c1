// Package session holds the state of one eeschema or pcbnew run: input
// paths, the detected KiCad flavour, replaced configs and the UI handles.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/regenrek/kiauto/internal/config"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/filter"
	"github.com/regenrek/kiauto/internal/kicad"
	"github.com/regenrek/kiauto/internal/kicadcfg"
	"github.com/regenrek/kiauto/internal/limits"
	"github.com/regenrek/kiauto/internal/pgroup"
	"github.com/regenrek/kiauto/internal/procwatch"
	"github.com/regenrek/kiauto/internal/report"
	"github.com/regenrek/kiauto/internal/runenv"
	"github.com/regenrek/kiauto/internal/userpath"
	"github.com/regenrek/kiauto/internal/xdo"
	"github.com/regenrek/kiauto/internal/xsession"
)

// Kind selects the KiCad program a session drives.
type Kind string

const (
	Schematic Kind = "eeschema"
	Board     Kind = "pcbnew"
)

// UI is the subset of xdo.Client the flows use.
type UI interface {
	WaitForWindow(ctx context.Context, t xdo.Target) (xdo.Match, error)
	WaitNotFocused(ctx context.Context, id string, timeout time.Duration) error
	Focus(ctx context.Context, id string) error
	Key(ctx context.Context, keys ...string) error
}

// App is a running KiCad program.
type App interface {
	procwatch.FileOwner
	Wait(timeout time.Duration) error
	Stop() error
}

// Launcher starts bin on input.
type Launcher func(ctx context.Context, bin, input string) (App, error)

// DisplayOptions configure the virtual display.
type DisplayOptions struct {
	Record      bool
	VNC         bool
	WM          bool
	Width       int
	Height      int
	KeepDisplay bool
}

// Options configure New.
type Options struct {
	Kind      Kind
	Input     string
	OutputDir string
	// FilterFile is the optional errors filter.
	FilterFile string
	Config     config.Config
	Display    DisplayOptions
	// Home defaults to the user home directory.
	Home string
	// Run builds every external command. exec.CommandContext when nil.
	Run pgroup.Runner
}

// Session is one automation run.
type Session struct {
	Kind      Kind
	Input     string
	OutputDir string
	// Base is the input file name without directory and extension.
	Base string

	Version  kicad.Version
	Paths    kicad.Paths
	Timeouts config.Timeouts
	Filters  []filter.Rule

	UI        UI
	Clipboard xdo.Clipboard
	Launch    Launcher
	// StartDisplay brings up the X session. Nil skips it.
	StartDisplay func(ctx context.Context, video string) (io.Closer, error)

	guard kicadcfg.Guard
}

// New validates the input and prepares everything that does not touch
// the user's KiCad configuration yet.
func New(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{Kind: opts.Kind, Timeouts: opts.Config.Timeouts}
	if err := s.resolveInput(opts.Input); err != nil {
		return nil, err
	}
	if d := opts.Display; d.Width > 0 || d.Height > 0 {
		w, h := d.Width, d.Height
		if w <= 0 {
			w = opts.Config.Display.Width
		}
		if h <= 0 {
			h = opts.Config.Display.Height
		}
		if err := limits.ValidateDisplay(w, h); err != nil {
			return nil, exitcode.Wrap(exitcode.WrongArguments, err)
		}
	}
	out, err := userpath.Resolve(opts.OutputDir)
	if err != nil || out == "" {
		return nil, exitcode.Errorf(exitcode.WrongArguments, "invalid output dir %q", opts.OutputDir)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, exitcode.Wrap(exitcode.WrongArguments, fmt.Errorf("create output dir: %w", err))
	}
	s.OutputDir = out

	if opts.FilterFile != "" {
		path, err := userpath.Resolve(opts.FilterFile)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.WrongArguments, err)
		}
		rules, err := filter.Load(path)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.WrongArguments, err)
		}
		s.Filters = rules
	}

	nightly := runenv.Nightly()
	s.Version, err = kicad.DetectVersion(ctx, kicad.Runner(opts.Run), kicad.DetectOptions{
		Python:   opts.Config.Binaries.Python,
		Override: runenv.KicadVersion(),
		Nightly:  nightly,
	})
	if err != nil {
		return nil, exitcode.Wrap(exitcode.NoPcbnewModule, err)
	}
	home := opts.Home
	if home == "" {
		if home, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
	}
	s.Paths = kicad.NewPaths(home, s.Version, nightly)
	if b := opts.Config.Binaries.Eeschema; b != "" {
		s.Paths.Eeschema = b
	}
	if b := opts.Config.Binaries.Pcbnew; b != "" {
		s.Paths.Pcbnew = b
	}

	client, err := xdo.NewClient(opts.Config.Binaries.Xdotool)
	if err != nil {
		return nil, s.Fail(err)
	}
	client.Tune(s.Timeouts.WindowPoll.Std(), s.Timeouts.Focus.Std(), s.Timeouts.KeyDelay.Std())
	if opts.Run != nil {
		client.WithExec(opts.Run)
	}
	s.UI = client
	s.Clipboard = xdo.SystemClipboard{}
	s.Launch = launcher(opts.Run)
	s.StartDisplay = displayStarter(opts, s.OutputDir)
	return s, nil
}

func (s *Session) resolveInput(input string) error {
	missing, noExt := exitcode.NoSchematic, exitcode.WrongSchName
	if s.Kind == Board {
		missing, noExt = exitcode.NoPcb, exitcode.WrongPcbName
	}
	path, err := userpath.Resolve(input)
	if err != nil || path == "" {
		return exitcode.Errorf(missing, "invalid input file %q", input)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return exitcode.Errorf(missing, "%s does not exist", input)
	}
	ext := filepath.Ext(path)
	if ext == "" {
		return exitcode.Errorf(noExt, "input files must use an extension, otherwise KiCad will reject them (%s)", input)
	}
	s.Input = path
	s.Base = strings.TrimSuffix(filepath.Base(path), ext)
	return nil
}

// ErrorCode is the exit status for failures of the driven program.
func (s *Session) ErrorCode() int {
	if s.Kind == Board {
		return exitcode.PcbnewError
	}
	return exitcode.EeschemaError
}

// Fail tags err with ErrorCode unless it already carries a status.
func (s *Session) Fail(err error) error {
	if err == nil {
		return nil
	}
	var coder exitcode.Coder
	if errors.As(err, &coder) {
		return err
	}
	return exitcode.Wrap(s.ErrorCode(), err)
}

// Binary returns the KiCad program for this session.
func (s *Session) Binary() string {
	if s.Kind == Board {
		return s.Paths.Pcbnew
	}
	return s.Paths.Eeschema
}

// ConfigFile is one KiCad config replaced for the duration of the run.
type ConfigFile struct {
	Name  string
	Path  string
	Code  int
	Write func(path string) error
}

// Replace backs up each file and writes its replacement. Every backup is
// registered for restoration before the next file is touched.
func (s *Session) Replace(files ...ConfigFile) error {
	if err := os.MkdirAll(s.Paths.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create KiCad config dir: %w", err)
	}
	for _, f := range files {
		r, err := kicadcfg.Backup(f.Name, f.Path, kicadcfg.BackupSuffix, f.Code)
		if err != nil {
			return err
		}
		s.guard.Push(r)
		if err := f.Write(f.Path); err != nil {
			return fmt.Errorf("write %s config: %w", f.Name, err)
		}
	}
	return nil
}

// CommonConfig is the kicad_common replacement shared by both programs.
func (s *Session) CommonConfig() ConfigFile {
	return ConfigFile{
		Name: "KiCad common",
		Path: s.Paths.CommonCfg,
		Code: exitcode.KicadCfgPresent,
		Write: func(path string) error {
			return kicadcfg.WriteCommon(path, s.Paths.JSON)
		},
	}
}

// HotkeysConfig is the user.hotkeys replacement.
func (s *Session) HotkeysConfig() ConfigFile {
	return ConfigFile{
		Name:  "user hotkeys",
		Path:  s.Paths.Hotkeys,
		Code:  exitcode.UserHotkeysPresent,
		Write: kicadcfg.WriteHotkeys,
	}
}

// SeedLibTables installs the default symbol and footprint tables when the
// user has none.
func (s *Session) SeedLibTables() error {
	if err := kicadcfg.EnsureLibTable(s.Paths.UserSymLibTable, s.Paths.SysSymLibTables); err != nil {
		return err
	}
	return kicadcfg.EnsureLibTable(s.Paths.UserFpLibTable, s.Paths.SysFpLibTables)
}

// MemorizeProject snapshots the project files so changes KiCad makes to
// them are undone on Close.
func (s *Session) MemorizeProject() error {
	p, err := kicadcfg.MemorizeProject(s.Input, s.Paths.ProjectExt, s.Paths.LocalExt)
	if err != nil {
		return err
	}
	s.guard.Push(p)
	return nil
}

// Display starts the virtual X session. video names the recording inside
// the output dir when recording is enabled.
func (s *Session) Display(ctx context.Context, video string) error {
	if s.StartDisplay == nil {
		return nil
	}
	c, err := s.StartDisplay(ctx, video)
	if err != nil {
		return s.Fail(err)
	}
	s.guard.Push(kicadcfg.ReleaseFunc(c.Close))
	return nil
}

// Start launches the KiCad program. It is stopped on Close when the flow
// does not stop it first.
func (s *Session) Start(ctx context.Context) (App, error) {
	app, err := s.Launch(ctx, s.Binary(), s.Input)
	if err != nil {
		return nil, s.Fail(err)
	}
	s.guard.Push(kicadcfg.ReleaseFunc(app.Stop))
	return app, nil
}

// RemoveStale deletes a previous output so the file wait cannot succeed on it.
func RemoveStale(path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		slog.Debug("removed old file", slog.String("path", path))
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("remove old %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WaitForFile waits until app has written and closed path.
func (s *Session) WaitForFile(ctx context.Context, app App, path string) error {
	slog.Info("waiting for file", slog.String("path", path))
	err := procwatch.WaitForFile(ctx, app, path, s.Timeouts.File.Std(), s.Timeouts.FilePoll.Std())
	return s.Fail(err)
}

// Apply runs the loaded filters over rep.
func (s *Session) Apply(rep *report.Report) filter.Result {
	return filter.Apply(s.Filters, rep)
}

// Close stops the program and the display and restores every replaced
// file, in reverse order.
func (s *Session) Close() error {
	return s.guard.Close()
}

func launcher(run pgroup.Runner) Launcher {
	return func(ctx context.Context, bin, input string) (App, error) {
		proc, err := kicad.Launch(ctx, kicad.Runner(run), bin, input, nil)
		if err != nil {
			return nil, err
		}
		watch, err := procwatch.Watch(ctx, proc.Pid())
		if err != nil {
			_ = proc.Stop()
			return nil, err
		}
		return &kicadApp{proc: proc, watch: watch}, nil
	}
}

type kicadApp struct {
	proc  *pgroup.Process
	watch *procwatch.Process
}

func (a *kicadApp) OpenFiles(ctx context.Context) ([]string, error) { return a.watch.OpenFiles(ctx) }

func (a *kicadApp) Wait(timeout time.Duration) error { return a.proc.Wait(timeout) }

func (a *kicadApp) Stop() error { return a.proc.Stop() }

func displayStarter(opts Options, outputDir string) func(context.Context, string) (io.Closer, error) {
	d := opts.Display
	cfg := opts.Config
	return func(ctx context.Context, video string) (io.Closer, error) {
		xo := xsession.Options{
			Width:         d.Width,
			Height:        d.Height,
			Depth:         cfg.Display.Depth,
			ExtraArgs:     cfg.Display.XvfbArgs,
			VNC:           d.VNC,
			WindowManager: d.WM,
			KeepDisplay:   d.KeepDisplay || runenv.KeepDisplay(),
			Binaries: xsession.Binaries{
				Xvfb:     cfg.Binaries.Xvfb,
				X11vnc:   cfg.Binaries.X11vnc,
				Fluxbox:  cfg.Binaries.Fluxbox,
				Recorder: cfg.Binaries.Recorder,
			},
			Run: opts.Run,
		}
		if xo.Width <= 0 {
			xo.Width = cfg.Display.Width
		}
		if xo.Height <= 0 {
			xo.Height = cfg.Display.Height
		}
		if d.Record && video != "" {
			xo.Record = filepath.Join(outputDir, video)
		}
		return xsession.Start(ctx, xo)
	}
}
