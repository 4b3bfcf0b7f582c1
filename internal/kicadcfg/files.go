package kicadcfg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/regenrek/kiauto/internal/atomicfile"
	"github.com/regenrek/kiauto/internal/layers"
)

// plotFormats is the order of eeschema's plot format radio box.
var plotFormats = []string{"ps", "---", "dxf", "pdf", "svg"}

// PlotFormatIndex returns the radio box index for format, 0 when unknown.
func PlotFormatIndex(format string) int {
	if i := slices.Index(plotFormats, format); i >= 0 {
		return i
	}
	return 0
}

// EeschemaOptions shape the replacement eeschema config.
type EeschemaOptions struct {
	PlotFormat string
}

// WriteEeschema writes the replacement eeschema config.
func WriteEeschema(path string, jsonFormat bool, opts EeschemaOptions) error {
	index := PlotFormatIndex(opts.PlotFormat)
	slog.Debug("creating an eeschema config", slog.String("plot_format", opts.PlotFormat), slog.Int("index", index))
	if jsonFormat {
		return writeJSON(path, map[string]any{
			"plot":   map[string]any{"format": index},
			"system": map[string]any{"first_run_shown": true, "never_show_rescue_dialog": true},
		})
	}
	return atomicfile.WriteLines(path, []string{
		"RescueNeverShow=1",
		fmt.Sprintf("PlotFormat=%d", index),
	}, 0o644)
}

// WriteCommon writes the replacement kicad_common config.
func WriteCommon(path string, jsonFormat bool) error {
	slog.Debug("creating a KiCad common config")
	if jsonFormat {
		return writeJSON(path, map[string]any{
			"environment": map[string]any{"show_warning_dialog": false},
			"system":      map[string]any{"editor_name": "/bin/cat"},
		})
	}
	return atomicfile.WriteLines(path, []string{
		"ShowEnvVarWarningDialog=0",
		"Editor=/bin/cat",
	}, 0o644)
}

// PcbnewOptions shape the replacement pcbnew config.
type PcbnewOptions struct {
	// Print enables the print section; Layers selects PlotLayer_N entries.
	Print  bool
	Layers [layers.MaxLayers]bool
}

// WritePcbnew writes the replacement pcbnew config.
func WritePcbnew(path string, jsonFormat bool, opts PcbnewOptions) error {
	slog.Debug("creating a pcbnew config", slog.Bool("print", opts.Print))
	if jsonFormat {
		doc := map[string]any{
			"graphics":   map[string]any{"canvas_type": 2},
			"drc_dialog": map[string]any{"refill_zones": true},
			"system":     map[string]any{"first_run_shown": true},
		}
		if opts.Print {
			var selected []int
			for id, on := range opts.Layers {
				if on {
					selected = append(selected, id)
				}
			}
			doc["printing"] = map[string]any{
				"monochrome":  false,
				"title_block": true,
				"drill_marks": 2,
				"single_page": true,
				"layers":      selected,
			}
		}
		return writeJSON(path, doc)
	}
	lines := []string{
		"canvas_type=2",
		"RefillZonesBeforeDrc=1",
		"PcbFrameFirstRunShown=1",
	}
	if opts.Print {
		lines = append(lines,
			"PrintMonochrome=0",
			"PrintPageFrame=1",
			"PrintPadsDrillOpt=2",
			"PrintSinglePage=1",
		)
		for id, on := range opts.Layers {
			v := 0
			if on {
				v = 1
			}
			lines = append(lines, fmt.Sprintf("PlotLayer_%d=%d", id, v))
		}
	}
	return atomicfile.WriteLines(path, lines, 0o644)
}

// hotkeys binds the actions kiauto triggers to fixed chords.
var hotkeys = []string{
	"common.Control.print\tCtrl+P",
	"common.Control.plot\tCtrl+Shift+P",
	"eeschema.EditorControl.exportNetlist\tCtrl+Shift+N",
	"eeschema.EditorControl.generateBOM\tCtrl+Shift+B",
	"eeschema.InspectionTool.runERC\tCtrl+Shift+I",
	"pcbnew.DRCTool.runDRC\tCtrl+Shift+I",
	"pcbnew.ZoneFiller.zoneFillAll\tB",
}

// WriteHotkeys writes the replacement user.hotkeys file.
func WriteHotkeys(path string) error {
	slog.Debug("creating a user hotkeys config")
	return atomicfile.WriteLines(path, hotkeys, 0o644)
}

// EnsureLibTable seeds user from the first existing system template when
// the user has no table yet. A missing template is only logged: KiCad
// asks about it with a dialog, which the caller's window waits report.
func EnsureLibTable(user string, system []string) error {
	if _, err := os.Stat(user); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", user, err)
	}
	slog.Debug("missing default lib table", slog.String("path", user))
	for _, src := range system {
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		if err := atomicfile.Save(user, data, 0o644); err != nil {
			return fmt.Errorf("seed %s: %w", filepath.Base(user), err)
		}
		return nil
	}
	if len(system) > 0 {
		slog.Warn("missing default system lib table, KiCad will most probably fail", slog.String("path", system[0]))
	}
	return nil
}

func writeJSON(path string, doc map[string]any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return atomicfile.Save(path, buf.Bytes(), 0o644)
}
