package kicad

import (
	"context"
	"io"
	"log/slog"

	"github.com/regenrek/kiauto/internal/pgroup"
)

// Launch starts a KiCad program on input with LANG=C.UTF-8 so dialog
// titles are the English ones the flows look for.
func Launch(ctx context.Context, run Runner, bin, input string, output io.Writer) (*pgroup.Process, error) {
	slog.Info("starting "+bin, slog.String("input", input))
	return pgroup.Start(ctx, pgroup.Runner(run), bin, []string{input}, pgroup.Options{
		Env:    []string{"LANG=C.UTF-8"},
		Output: output,
	})
}
