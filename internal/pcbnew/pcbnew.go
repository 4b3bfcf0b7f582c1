// Package pcbnew drives KiCad's board editor: DRC and layer printing.
package pcbnew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/kicadcfg"
	"github.com/regenrek/kiauto/internal/layers"
	"github.com/regenrek/kiauto/internal/report"
	"github.com/regenrek/kiauto/internal/session"
	"github.com/regenrek/kiauto/internal/xdo"
)

// Command names a board sub-command.
type Command string

const (
	RunDRC Command = "run_drc"
	Export Command = "export"
)

const (
	drcReportName = "drc_result.rpt"
	printName     = "printed.pdf"
)

// Options select what Run does.
type Options struct {
	Command Command
	// IgnoreUnconnected leaves unconnected pads out of the DRC result.
	IgnoreUnconnected bool
	// Layers are the layer names printed by Export.
	Layers     []string
	OutputName string
	WaitStart  time.Duration
}

// Result is the outcome of a successful Run.
type Result struct {
	Output string
	// Violations is the number of unfiltered DRC errors plus unconnected
	// pads unless those are ignored.
	Violations int
	Report     *report.Report
}

var dialogs = []session.Dialog{
	{Name: "already running", Pattern: `^Confirmation$`, Keys: []string{"Return"}},
	{Name: "warning", Pattern: `^Warning$`, Keys: []string{"Return"}},
	{Name: "pcbnew error", Pattern: `^pcbnew Error$`, Keys: []string{"Return"}},
	{Name: "file open error", Pattern: `^File Open Error$`, Code: exitcode.CorruptedPcb},
}

// Run prepares the configuration, starts pcbnew and performs opts.Command.
// The caller closes s.
func Run(ctx context.Context, s *session.Session, opts Options) (Result, error) {
	if opts.WaitStart <= 0 {
		opts.WaitStart = s.Timeouts.WaitStart.Std()
	}
	f := &flow{s: s, opts: opts}
	cfg := kicadcfg.PcbnewOptions{}
	switch opts.Command {
	case RunDRC:
	case Export:
		mask, err := selectLayers(s.Input, opts.Layers)
		if err != nil {
			return Result{}, err
		}
		cfg.Print = true
		cfg.Layers = mask
	default:
		return Result{}, exitcode.Errorf(exitcode.WrongArguments, "unknown pcbnew command %q", opts.Command)
	}
	if err := prepare(s, cfg); err != nil {
		return Result{}, err
	}
	if err := s.Display(ctx, string(opts.Command)+"_pcbnew_screencast.ogv"); err != nil {
		return Result{}, err
	}
	if opts.Command == RunDRC {
		return f.runDRC(ctx)
	}
	return f.print(ctx)
}

func selectLayers(board string, names []string) ([layers.MaxLayers]bool, error) {
	var mask [layers.MaxLayers]bool
	if len(names) == 0 {
		return mask, exitcode.Errorf(exitcode.WrongArguments, "no layers to print")
	}
	table, err := layers.ParseFile(board)
	if err != nil {
		return mask, exitcode.Wrap(exitcode.CorruptedPcb, err)
	}
	ids, err := table.Select(names)
	if err != nil {
		var unknown *layers.UnknownLayerError
		if errors.As(err, &unknown) {
			return mask, exitcode.Wrap(exitcode.WrongLayerName, err)
		}
		return mask, exitcode.Wrap(exitcode.WrongArguments, err)
	}
	slog.Debug("selected layers", slog.Any("names", names), slog.Any("ids", ids))
	return layers.Mask(ids), nil
}

func prepare(s *session.Session, opts kicadcfg.PcbnewOptions) error {
	pcbnewCfg := session.ConfigFile{
		Name: "pcbnew",
		Path: s.Paths.PcbnewCfg,
		Code: exitcode.PcbnewCfgPresent,
		Write: func(path string) error {
			return kicadcfg.WritePcbnew(path, s.Paths.JSON, opts)
		},
	}
	if err := s.Replace(pcbnewCfg, s.CommonConfig(), s.HotkeysConfig()); err != nil {
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
	f.main, err = f.s.WaitMain(ctx, f.s.Paths.PcbnewTitle, f.opts.WaitStart, dialogs)
	return err
}

func (f *flow) menu(hotkey string, accel ...string) []string {
	if f.s.Version.NextGen() {
		return []string{hotkey}
	}
	return accel
}

func (f *flow) output(def string) string {
	if f.opts.OutputName != "" {
		def = f.opts.OutputName
	}
	return filepath.Join(f.s.OutputDir, def)
}

func (f *flow) runDRC(ctx context.Context) (Result, error) {
	drcFile := f.output(drcReportName)
	if err := session.RemoveStale(drcFile); err != nil {
		return Result{}, err
	}
	if err := f.s.Clipboard.Store(drcFile); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open Inspect->DRC")
	if err := f.s.Keys(ctx, f.menu("ctrl+shift+i", "alt+i", "d")...); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "DRC modal window", `DRC Control`, f.main.ID); err != nil {
		return Result{}, err
	}
	// The fourth tab lands on "refill zones", saved as RefillZonesBeforeDrc.
	if err := f.s.Keys(ctx, "Tab", "Tab", "Tab", "Tab"); err != nil {
		return Result{}, err
	}
	slog.Info("enable reporting all errors for tracks")
	if err := f.s.Keys(ctx, "space"); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Tab", "Tab", "Tab", "Tab"); err != nil {
		return Result{}, err
	}
	slog.Info("pasting output file")
	if err := f.s.Keys(ctx, "ctrl+v"); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitWindow(ctx, "Report completed dialog", `Disk File Report Completed`); err != nil {
		return Result{}, err
	}
	if err := f.s.Keys(ctx, "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, drcFile); err != nil {
		return Result{}, err
	}
	if err := f.app.Stop(); err != nil {
		slog.Debug("stopping pcbnew", slog.Any("err", err))
	}

	rep, err := report.ParseDRCFile(drcFile)
	if err != nil {
		if errors.Is(err, report.ErrCorrupted) {
			return Result{}, exitcode.Wrap(exitcode.PcbnewError, fmt.Errorf("%s: %w", drcFile, err))
		}
		return Result{}, f.s.Fail(err)
	}
	f.s.Apply(rep)
	errs, unconnected := rep.ActiveErrors(), rep.ActiveWarnings()
	for _, e := range errs {
		slog.Error(e.Text)
	}
	violations := len(errs)
	if f.opts.IgnoreUnconnected {
		if len(unconnected) > 0 {
			slog.Info("ignoring unconnected pads", slog.Int("count", len(unconnected)))
		}
	} else {
		for _, w := range unconnected {
			slog.Warn(w.Text)
		}
		violations += len(unconnected)
	}
	if violations > 0 {
		slog.Error("DRC violations found", slog.Int("errors", len(errs)), slog.Int("unconnected", len(unconnected)))
	}
	return Result{Output: drcFile, Violations: violations, Report: rep}, nil
}

func (f *flow) print(ctx context.Context) (Result, error) {
	out := f.output(printName)
	if err := session.RemoveStale(out); err != nil {
		return Result{}, err
	}
	if err := f.s.Clipboard.Store(out); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if err := f.start(ctx); err != nil {
		return Result{}, err
	}
	slog.Info("open File->Print")
	if err := f.s.Keys(ctx, f.menu("ctrl+p", "alt+f", "p")...); err != nil {
		return Result{}, err
	}
	printDlg, err := f.s.WaitWindow(ctx, "Print modal window", `Print`, f.main.ID)
	if err != nil {
		return Result{}, err
	}
	// Color is already selected in the config; eight tabs reach the print button.
	if err := f.s.Keys(ctx, "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Return"); err != nil {
		return Result{}, err
	}
	// The GTK printer dialog has the same title as KiCad's print dialog.
	printer, err := f.s.WaitWindow(ctx, "Printer modal window", `^Print$`, f.main.ID, printDlg.ID)
	if err != nil {
		return Result{}, err
	}
	// printer list, top entry ("Print to File"), output file name, open the chooser
	if err := f.s.Keys(ctx, "Tab", "Home", "Tab", "Return"); err != nil {
		return Result{}, err
	}
	chooser, err := f.s.WaitWindow(ctx, "Select a filename", `Select a filename`)
	if err != nil {
		return Result{}, err
	}
	slog.Info("pasting output file")
	if err := f.s.Keys(ctx, "ctrl+a", "ctrl+v", "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.UI.WaitNotFocused(ctx, chooser.ID, f.s.Timeouts.Focus.Std()); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if _, err := f.s.WaitWindow(ctx, "Printer modal window", `^Print$`, f.main.ID, printDlg.ID); err != nil {
		return Result{}, err
	}
	// format options, leftmost is PDF, then print
	if err := f.s.Keys(ctx, "Tab", "Left", "Left", "Left", "Return"); err != nil {
		return Result{}, err
	}
	if err := f.s.WaitForFile(ctx, f.app, out); err != nil {
		return Result{}, err
	}
	if err := f.s.UI.WaitNotFocused(ctx, printer.ID, f.s.Timeouts.Focus.Std()); err != nil {
		return Result{}, f.s.Fail(err)
	}
	if _, err := f.s.WaitWindow(ctx, "Print modal window", `Print`, f.main.ID); err != nil {
		return Result{}, err
	}
	slog.Info("closing the print dialog")
	if err := f.s.Keys(ctx, "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Tab", "Return"); err != nil {
		return Result{}, err
	}
	if _, err := f.s.WaitMain(ctx, f.s.Paths.PcbnewTitle, f.s.Timeouts.Window.Std(), nil); err != nil {
		slog.Debug("main window not back after printing", slog.Any("err", err))
	}
	if err := f.app.Stop(); err != nil {
		slog.Debug("stopping pcbnew", slog.Any("err", err))
	}
	return Result{Output: out}, nil
}
