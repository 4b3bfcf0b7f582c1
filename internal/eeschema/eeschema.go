// Package eeschema drives KiCad's schematic editor: plotting, ERC,
// netlist and XML BoM generation.
package eeschema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/regenrek/kiauto/internal/atomicfile"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/kicadcfg"
	"github.com/regenrek/kiauto/internal/report"
	"github.com/regenrek/kiauto/internal/session"
	"github.com/regenrek/kiauto/internal/xdo"
)

// Command names a schematic sub-command.
type Command string

const (
	Export  Command = "export"
	RunERC  Command = "run_erc"
	Netlist Command = "netlist"
	BOMXML  Command = "bom_xml"
)

// Options select what Run does.
type Options struct {
	Command Command
	// Format is pdf or svg for Export.
	Format   string
	AllPages bool
	// WarningsAsErrors counts ERC warnings in the result.
	WarningsAsErrors bool
	// OutputName overrides the output file name inside the output dir.
	OutputName string
	// WaitStart bounds the wait for the main window.
	WaitStart time.Duration
}

// Result is the outcome of a successful Run.
type Result struct {
	Output string
	// Violations is the number of unfiltered ERC errors (plus warnings
	// when requested). Zero for the other commands.
	Violations int
	Report     *report.Report
}

var dialogs = []session.Dialog{
	{Name: "already running", Pattern: `^Confirmation$`, Keys: []string{"Return"}},
	{Name: "remap symbols", Pattern: `^Remap Symbols$`, Keys: []string{"Escape"}},
	{Name: "library not found", Pattern: `^Not Found$`, Keys: []string{"Return"}},
	{Name: "library error", Pattern: `^Error$`, Keys: []string{"Escape"}},
	{Name: "file open error", Pattern: `^File Open Error$`},
}

// Run prepares the configuration, starts eeschema inside the session's
// display and performs opts.Command. The caller closes s.
func Run(ctx context.Context, s *session.Session, opts Options) (Result, error) {
	if opts.WaitStart <= 0 {
		opts.WaitStart = s.Timeouts.WaitStart.Std()
	}
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	if opts.Command == Export && opts.Format != "pdf" && opts.Format != "svg" {
		return Result{}, exitcode.Errorf(exitcode.WrongArguments, "file format should be 'pdf' or 'svg', not %q", opts.Format)
	}
	if err := prepare(s, opts); err != nil {
		return Result{}, err
	}
	if err := s.Display(ctx, string(opts.Command)+"_eeschema_screencast.ogv"); err != nil {
		return Result{}, err
	}
	f := &flow{s: s, opts: opts}
	switch opts.Command {
	case Export:
		return f.export(ctx)
	case RunERC:
		return f.runERC(ctx)
	case Netlist:
		return f.netlist(ctx)
	case BOMXML:
		return f.bomXML(ctx)
	default:
		return Result{}, exitcode.Errorf(exitcode.WrongArguments, "unknown eeschema command %q", opts.Command)
	}
}

func prepare(s *session.Session, opts Options) error {
	if s.Version.NextGen() && strings.EqualFold(filepath.Ext(s.Input), ".sch") {
		slog.Warn("using old format files is not recommended, convert them first", slog.String("input", s.Input))
	}
	eeschemaCfg := session.ConfigFile{
		Name: "eeschema",
		Path: s.Paths.EeschemaCfg,
		Code: exitcode.EeschemaCfgPresent,
		Write: func(path string) error {
			return kicadcfg.WriteEeschema(path, s.Paths.JSON, kicadcfg.EeschemaOptions{PlotFormat: opts.Format})
		},
	}
	if err := s.Replace(eeschemaCfg, s.CommonConfig(), s.HotkeysConfig()); err != nil {
		return err
	}
	if err := s.SeedLibTables(); err != nil {
		return err
	}
	return s.MemorizeProject()
}

type flow struct {
	s    *session.Session
	opts Options
	app  session.App
	main xdo.Match
}

func (f *flow) start(ctx context.Context) error {
	app, err := f.s.Start(ctx)
	if err != nil {
		return err
	}
	f.app = app
	f.main, err = f.s.WaitMain(ctx, f.s.Paths.EeschemaTitle, f.opts.WaitStart, dialogs)
	return err
}

// menu picks the hotkey on 5.99+ and the menu accelerators before.
func (f *flow) menu(hotkey string, accel ...string) []string {
	if f.s.Version.NextGen() {
		return []string{hotkey}
	}
	return accel
}

func (f *flow) output(def string) string {
	name := def
	if f.opts.OutputName != "" {
		name = f.opts.OutputName
	}
	return filepath.Join(f.s.OutputDir, name)
}

func (f *flow) quit(ctx context.Context) error {
	slog.Info("quitting eeschema")
	if err := f.s.Keys(ctx, "Escape", "Escape", "Escape"); err != nil {
		return err
	}
	if _, err := f.s.WaitMain(ctx, f.s.Paths.EeschemaTitle, f.s.Timeouts.Window.Std(), nil); err != nil {
		slog.Debug("main window lost while quitting", slog.Any("err", err))
		return f.app.Stop()
	}
	return f.s.Quit(ctx, f.app, "ctrl+q")
}

func (f *flow) export(ctx context.Context) (Result, error) {
	format := f.opts.Format
	plotted := filepath.Join(f.s.OutputDir, f.s.Base+"."+format)
	if err := session.RemoveStale(plotted); err != nil {
		return Result{}, err
	}
	if err := f.s.Clipboard.Store(f.s.OutputDir + string(filepath.Separator)); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open File->pLot")
	if err := f.s.Keys(ctx, f.menu("ctrl+shift+p", "alt+f", "l")...); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "plot", `Plot`, f.main.ID); err != nil {
		return Result{}, err
	}
	slog.Info("paste output directory")
	if err := f.s.Keys(ctx, "ctrl+v"); err != nil {
		return Result{}, err
	}
	// The plot button is 14 tabs away; one more reaches "plot current page".
	tabs := 14
	if !f.opts.AllPages {
		tabs++
	}
	if err := f.s.Keys(ctx, repeat("Tab", tabs)...); err != nil {
		return Result{}, err
	}
	slog.Info("plot")
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, plotted); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Escape"); err != nil {
		return Result{}, err
	}
	if err := f.quit(ctx); err != nil {
		return Result{}, f.s.Fail(err)
	}
	out, err := f.rename(plotted, f.output(f.s.Base+"."+format))
	return Result{Output: out}, err
}

func (f *flow) runERC(ctx context.Context) (Result, error) {
	// KiCad appends .erc unconditionally.
	base := strings.TrimSuffix(f.output(f.s.Base), ".erc")
	ercFile := base + ".erc"
	if err := session.RemoveStale(ercFile); err != nil {
		return Result{}, err
	}
	if err := f.s.Clipboard.Store(base); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open Tools->Electrical Rules Checker")
	if err := f.s.Keys(ctx, f.menu("ctrl+shift+i", "alt+i", "c")...); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "Electrical Rules Checker dialog", `Electrical Rules Checker`, f.main.ID); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Tab", "Tab", "Tab", "Tab", "space", "Return"); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "ERC File save dialog", `ERC File`); err != nil {
		return Result{}, err
	}
	slog.Info("pasting output file")
	if err := f.s.Keys(ctx, "ctrl+v"); err != nil {
		return Result{}, err
	}
	slog.Info("run ERC")
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, ercFile); err != nil {
		return Result{}, err
	}
	slog.Info("exit ERC")
	if err := f.s.Keys(ctx, "shift+Tab", "Return"); err != nil {
		return Result{}, err
	}
	if err := f.app.Stop(); err != nil {
		slog.Debug("stopping eeschema", slog.Any("err", err))
	}

	rep, summary, err := report.ParseERCFile(ercFile)
	if err != nil {
		if errors.Is(err, report.ErrCorrupted) {
			return Result{}, exitcode.Wrap(exitcode.EeschemaError, fmt.Errorf("%s: %w", ercFile, err))
		}
		return Result{}, f.s.Fail(err)
	}
	f.s.Apply(rep)
	errs, warns := rep.ActiveErrors(), rep.ActiveWarnings()
	for _, e := range errs {
		slog.Error(e.Text)
	}
	for _, w := range warns {
		slog.Warn(w.Text)
	}
	nErrs, nWarns := len(errs), len(warns)
	// The summary is written by KiCad itself, entries it failed to
	// describe in a known form still count.
	if summary.Errors != len(rep.Errors) || summary.Warnings != len(rep.Warnings) {
		slog.Warn("ERC summary differs from parsed entries, using the summary",
			slog.Int("summary_errors", summary.Errors), slog.Int("errors", len(rep.Errors)),
			slog.Int("summary_warnings", summary.Warnings), slog.Int("warnings", len(rep.Warnings)))
		nErrs = max(summary.Errors-(len(rep.Errors)-len(errs)), 0)
		nWarns = max(summary.Warnings-(len(rep.Warnings)-len(warns)), 0)
	}
	violations := nErrs
	if f.opts.WarningsAsErrors {
		violations += nWarns
	}
	return Result{Output: ercFile, Violations: violations, Report: rep}, nil
}

func (f *flow) netlist(ctx context.Context) (Result, error) {
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open Tools->Generate Netlist File")
	if err := f.s.Keys(ctx, f.menu("ctrl+shift+n", "alt+t", "n")...); err != nil {
		return Result{}, err
	}
	target := f.output(f.s.Base)
	if err := f.s.Clipboard.Store(target); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if _, err := f.s.WaitWindow(ctx, "Netlist", `Netlist`, f.main.ID); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Tab", "Tab", "Return"); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "Netlist File save dialog", `Save Netlist File`); err != nil {
		return Result{}, err
	}
	slog.Info("pasting output file")
	if err := f.s.Keys(ctx, "ctrl+v"); err != nil {
		return Result{}, err
	}
	// Copy back the name with the extension the dialog added.
	if err := f.s.Keys(ctx, "ctrl+a", "ctrl+c"); err != nil {
		return Result{}, err
	}
	netFile, err := f.s.Clipboard.Retrieve()
	if err != nil {
		return Result{}, f.s.Fail(err)
	}
	netFile = strings.TrimSpace(netFile)
	if netFile == "" || netFile == target {
		netFile = target + ".net"
	}
	if err := session.RemoveStale(netFile); err != nil {
		return Result{}, err
	}
	slog.Info("generate netlist")
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, netFile); err != nil {
		return Result{}, err
	}
	if err := f.quit(ctx); err != nil {
		return Result{}, f.s.Fail(err)
	}
	return Result{Output: netFile}, nil
}

func (f *flow) bomXML(ctx context.Context) (Result, error) {
	// The BoM generator writes next to the schematic.
	generated := strings.TrimSuffix(f.s.Input, filepath.Ext(f.s.Input)) + ".xml"
	if err := session.RemoveStale(generated); err != nil {
		return Result{}, err
	}
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open Tools->Generate Bill of Materials")
	if err := f.s.Keys(ctx, f.menu("ctrl+shift+b", "alt+t", "m")...); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "Bill of Material", `Bill of Material`, f.main.ID); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, generated); err != nil {
		return Result{}, err
	}
	if err := f.app.Stop(); err != nil {
		slog.Debug("stopping eeschema", slog.Any("err", err))
	}
	out, err := f.rename(generated, f.output(f.s.Base+".xml"))
	return Result{Output: out}, err
}

// rename moves a produced file to its final name.
func (f *flow) rename(from, to string) (string, error) {
	if from == to {
		return to, nil
	}
	if err := os.Rename(from, to); err != nil {
		// crossing filesystems
		data, rerr := os.ReadFile(from)
		if rerr != nil {
			return from, f.s.Fail(fmt.Errorf("move output: %w", err))
		}
		if err := atomicfile.Save(to, data, 0o644); err != nil {
			return from, f.s.Fail(fmt.Errorf("move output: %w", err))
		}
		_ = os.Remove(from)
	}
	slog.Debug("moved output", slog.String("from", from), slog.String("to", to))
	return to, nil
}

func repeat(key string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = key
	}
	return keys
}
