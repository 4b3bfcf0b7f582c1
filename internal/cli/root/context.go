package root

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/spec"
	"github.com/regenrek/kiauto/internal/config"
)

// CommandContext wraps a command invocation.
type CommandContext struct {
	Context context.Context
	Args    []string
	Spec    spec.Command
	Cmd     *cli.Command
	Deps    Dependencies
	// Config is the loaded config file, defaults when there is none.
	Config config.Config
	JSON   bool
	Out    io.Writer
	ErrOut io.Writer
}
