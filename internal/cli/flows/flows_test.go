package flows_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/flows"
	"github.com/regenrek/kiauto/internal/cli/output"
	"github.com/regenrek/kiauto/internal/cli/root"
	"github.com/regenrek/kiauto/internal/cli/spec"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/session"
	"github.com/regenrek/kiauto/internal/session/testkit"
)

const drcReport = `** Drc report for /tmp/good.kicad_pcb **
** Found 1 DRC errors **
ErrType(45): Courtyards overlap
    @(144.500 mm, 102.000 mm): Footprint C2 on F.Cu

** Found 1 unconnected pads **
ErrType(2): Unconnected items
    @(10.000 mm, 10.000 mm): Pad 1 of R1 on All copper layers

** End of Report **
`

type harness struct {
	env  *testkit.Env
	opts []session.Options
	out  bytes.Buffer
	err  error
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	specDoc, err := spec.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	reg := root.NewRegistry()
	flows.Register(reg)
	reg.Register("version", func(root.CommandContext) error { return nil })
	deps := root.Dependencies{
		Version: "test",
		AppName: "kiauto",
		Stdout:  &h.out,
		Stderr:  &h.out,
		NewSession: func(_ context.Context, opts session.Options) (*session.Session, error) {
			h.opts = append(h.opts, opts)
			if h.err != nil {
				return nil, h.err
			}
			return h.env.Session, nil
		},
	}
	runner, err := root.NewRunner(specDoc, deps, reg)
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	return runner.Run(context.Background(), args)
}

func drcHarness(t *testing.T) *harness {
	t.Helper()
	input := filepath.Join(t.TempDir(), "good.kicad_pcb")
	testkit.WriteFile(t, input, "(kicad_pcb (layers (0 F.Cu signal)))")
	env := testkit.New(t, session.Board, input, "5.1.6")
	env.UI.Windows[env.Session.Paths.PcbnewTitle] = []string{"100"}
	env.UI.Windows[`DRC Control`] = []string{"200"}
	env.UI.Windows[`Disk File Report Completed`] = []string{"300"}
	drcFile := filepath.Join(env.Session.OutputDir, "drc_result.rpt")
	env.UI.OnKey["Return"] = func() {
		if _, err := os.Stat(drcFile); os.IsNotExist(err) {
			testkit.WriteFile(t, drcFile, drcReport)
		}
	}
	return &harness{env: env}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %T %v", err, err)
	}
	return exitErr.ExitCode()
}

func TestRunDRCExitsWithViolationCount(t *testing.T) {
	h := drcHarness(t)
	err := h.run(t, "kiauto", "-r", "--rec-width", "800", "pcbnew", "/tmp/good.kicad_pcb", "/tmp/out", "run_drc")
	if got := exitCode(t, err); got != 2 {
		t.Fatalf("exit = %d, want 2", got)
	}
	if len(h.opts) != 1 {
		t.Fatalf("sessions = %d", len(h.opts))
	}
	opts := h.opts[0]
	if opts.Kind != session.Board || opts.Input != "/tmp/good.kicad_pcb" || opts.OutputDir != "/tmp/out" {
		t.Fatalf("session options = %+v", opts)
	}
	if !opts.Display.Record || opts.Display.Width != 800 || opts.Display.Height != 0 {
		t.Fatalf("display options = %+v", opts.Display)
	}
	if h.env.App.Stopped() == 0 {
		t.Fatalf("pcbnew not stopped")
	}
	if _, err := os.Stat(h.env.Session.Paths.PcbnewCfg); !os.IsNotExist(err) {
		t.Fatalf("pcbnew config not restored after the run: %v", err)
	}
}

func TestRunDRCIgnoreUnconnectedJSON(t *testing.T) {
	h := drcHarness(t)
	err := h.run(t, "kiauto", "pcbnew", "run_drc", "-i", "--json", "/tmp/good.kicad_pcb", "/tmp/out")
	if got := exitCode(t, err); got != 1 {
		t.Fatalf("exit = %d, want 1", got)
	}
	var payload struct {
		Ok   bool             `json:"ok"`
		Data output.RunResult `json:"data"`
	}
	if err := json.Unmarshal(h.out.Bytes(), &payload); err != nil {
		t.Fatalf("decode %q: %v", h.out.String(), err)
	}
	if !payload.Ok || payload.Data.Command != "pcbnew.run_drc" || payload.Data.Violations != 1 || payload.Data.ExitCode != 1 {
		t.Fatalf("payload = %+v", payload.Data)
	}
	if payload.Data.Report == nil || payload.Data.Report.Errors != 1 || payload.Data.Report.Unconnected != 1 {
		t.Fatalf("report = %+v", payload.Data.Report)
	}
	if payload.Data.KicadVersion != "5.1.6" {
		t.Fatalf("kicad version = %q", payload.Data.KicadVersion)
	}
}

func TestRunFilterFileReachesSession(t *testing.T) {
	h := drcHarness(t)
	h.err = exitcode.Errorf(exitcode.WrongArguments, "bad filter")
	err := h.run(t, "kiauto", "pcbnew", "run_drc", "-F", "/tmp/filters.txt", "/tmp/good.kicad_pcb", "/tmp/out")
	if got := exitCode(t, err); got != exitcode.WrongArguments {
		t.Fatalf("exit = %d", got)
	}
	if h.opts[0].FilterFile != "/tmp/filters.txt" {
		t.Fatalf("filter file = %q", h.opts[0].FilterFile)
	}
}

func TestRunSessionErrorFallsBackToProgramCode(t *testing.T) {
	h := drcHarness(t)
	h.err = errors.New("no home")
	err := h.run(t, "kiauto", "eeschema", "a.sch", "out", "netlist")
	if got := exitCode(t, err); got != exitcode.EeschemaError {
		t.Fatalf("exit = %d, want EeschemaError", got)
	}
	if h.opts[0].Kind != session.Schematic {
		t.Fatalf("kind = %q", h.opts[0].Kind)
	}
}

func TestWaitStartFlag(t *testing.T) {
	h := drcHarness(t)
	// Only the DRC dialog is missing, so the run fails after the main window.
	delete(h.env.UI.Windows, `DRC Control`)
	err := h.run(t, "kiauto", "--wait-start", "5", "pcbnew", "good.kicad_pcb", "out", "run_drc")
	if got := exitCode(t, err); got != exitcode.PcbnewError {
		t.Fatalf("exit = %d, want PcbnewError", got)
	}
	waits := h.env.UI.Waits()
	if len(waits) == 0 || waits[0].Timeout != 5*time.Second {
		t.Fatalf("main window wait = %+v", waits)
	}
}
