// Package version implements `kiauto version`.
package version

import (
	"fmt"
	"runtime"

	"github.com/regenrek/kiauto/internal/cli/output"
	"github.com/regenrek/kiauto/internal/cli/root"
)

// Info is the --json payload of the version command.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// Register binds the version handler.
func Register(reg *root.Registry) {
	reg.Register("version", run)
}

func run(ctx root.CommandContext) error {
	info := Info{
		Name:     ctx.Deps.AppName,
		Version:  ctx.Deps.Version,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if ctx.JSON {
		return output.Envelope{W: ctx.Out, Command: "version", Version: info.Version}.Success(info)
	}
	_, err := fmt.Fprintf(ctx.Out, "%s %s (%s %s)\n", info.Name, info.Version, info.Go, info.Platform)
	return err
}
