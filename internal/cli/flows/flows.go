// Package flows registers the eeschema and pcbnew command handlers.
package flows

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/output"
	"github.com/regenrek/kiauto/internal/cli/root"
	"github.com/regenrek/kiauto/internal/eeschema"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/pcbnew"
	"github.com/regenrek/kiauto/internal/report"
	"github.com/regenrek/kiauto/internal/runenv"
	"github.com/regenrek/kiauto/internal/session"
)

// Register adds every flow command to reg.
func Register(reg *root.Registry) {
	for _, cmd := range []eeschema.Command{eeschema.Export, eeschema.RunERC, eeschema.Netlist, eeschema.BOMXML} {
		reg.Register("eeschema."+string(cmd), schematic(cmd))
	}
	for _, cmd := range []pcbnew.Command{pcbnew.RunDRC, pcbnew.Export} {
		reg.Register("pcbnew."+string(cmd), board(cmd))
	}
}

type flowFunc func(ctx context.Context, s *session.Session, waitStart time.Duration) (output.RunResult, error)

func schematic(command eeschema.Command) root.Handler {
	return func(ctx root.CommandContext) error {
		opts := eeschema.Options{Command: command, OutputName: ctx.Cmd.String("output-name")}
		filters := ""
		switch command {
		case eeschema.Export:
			opts.Format = ctx.Cmd.String("file-format")
			opts.AllPages = ctx.Cmd.Bool("all-pages")
		case eeschema.RunERC:
			opts.WarningsAsErrors = ctx.Cmd.Bool("warnings-as-errors")
			filters = ctx.Cmd.String("errors-filter")
		}
		return run(ctx, session.Schematic, "schematic", filters, func(c context.Context, s *session.Session, wait time.Duration) (output.RunResult, error) {
			opts.WaitStart = wait
			res, err := eeschema.Run(c, s, opts)
			if err != nil {
				return output.RunResult{}, err
			}
			out := output.RunResult{Output: res.Output, Violations: res.Violations}
			if res.Report != nil {
				out.Report = summarize(res.Report, false)
			}
			return out, nil
		})
	}
}

func board(command pcbnew.Command) root.Handler {
	return func(ctx root.CommandContext) error {
		opts := pcbnew.Options{Command: command, OutputName: ctx.Cmd.String("output-name")}
		filters := ""
		switch command {
		case pcbnew.RunDRC:
			opts.IgnoreUnconnected = ctx.Cmd.Bool("ignore-unconnected")
			filters = ctx.Cmd.String("errors-filter")
		case pcbnew.Export:
			opts.Layers = ctx.Cmd.StringArgs("layers")
		}
		return run(ctx, session.Board, "board", filters, func(c context.Context, s *session.Session, wait time.Duration) (output.RunResult, error) {
			opts.WaitStart = wait
			res, err := pcbnew.Run(c, s, opts)
			if err != nil {
				return output.RunResult{}, err
			}
			out := output.RunResult{Output: res.Output, Violations: res.Violations}
			if res.Report != nil {
				out.Report = summarize(res.Report, true)
			}
			return out, nil
		})
	}
}

func run(ctx root.CommandContext, kind session.Kind, inputArg, filters string, do flowFunc) error {
	start := time.Now()
	fallback := exitcode.EeschemaError
	if kind == session.Board {
		fallback = exitcode.PcbnewError
	}
	newSession := ctx.Deps.NewSession
	if newSession == nil {
		newSession = session.New
	}
	s, err := newSession(ctx.Context, session.Options{
		Kind:       kind,
		Input:      strings.TrimSpace(ctx.Cmd.StringArg(inputArg)),
		OutputDir:  strings.TrimSpace(ctx.Cmd.StringArg("output_dir")),
		FilterFile: strings.TrimSpace(filters),
		Config:     ctx.Config,
		Display: session.DisplayOptions{
			Record: ctx.Cmd.Bool("record"),
			VNC:    ctx.Cmd.Bool("start-x11vnc"),
			WM:     ctx.Cmd.Bool("use-wm"),
			Width:  ctx.Cmd.Int("rec-width"),
			Height: ctx.Cmd.Int("rec-height"),
		},
	})
	if err != nil {
		return fail(err, fallback)
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("cleanup incomplete", slog.Any("err", err))
		}
	}()

	res, err := do(ctx.Context, s, waitStart(ctx))
	if err != nil {
		return fail(err, fallback)
	}
	res.Command = ctx.Spec.ID
	res.Input = s.Input
	res.KicadVersion = s.Version.String()
	res.ExitCode = exitcode.Count(res.Violations)
	if res.Violations > 0 {
		slog.Warn("violations found", slog.String("command", ctx.Spec.ID), slog.Int("count", res.Violations))
	}
	if ctx.JSON {
		env := output.Envelope{W: ctx.Out, Command: ctx.Spec.ID, Version: ctx.Deps.Version, Start: start}
		if err := env.Success(res); err != nil {
			return err
		}
	}
	if res.ExitCode != exitcode.OK {
		return cli.Exit("", res.ExitCode)
	}
	return nil
}

// waitStart prefers --wait-start, then KIAUTO_WAIT_START, then the config.
func waitStart(ctx root.CommandContext) time.Duration {
	if secs := ctx.Cmd.Int("wait-start"); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return runenv.WaitStart(ctx.Config.Timeouts.WaitStart.Std())
}

func fail(err error, fallback int) error {
	code := exitcode.Of(err, fallback)
	slog.Debug("run failed", slog.Int("code", code), slog.Any("err", err))
	return cli.Exit(err.Error(), code)
}

func summarize(rep *report.Report, drc bool) *output.CheckReport {
	errs, warns := len(rep.ActiveErrors()), len(rep.ActiveWarnings())
	out := &output.CheckReport{
		Errors:   errs,
		Filtered: len(rep.Errors) + len(rep.Warnings) - errs - warns,
	}
	if drc {
		out.Unconnected = warns
	} else {
		out.Warnings = warns
	}
	return out
}
