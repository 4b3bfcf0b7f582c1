package root

import (
	"context"
	"io"
	"os"

	"github.com/regenrek/kiauto/internal/config"
	"github.com/regenrek/kiauto/internal/identity"
	"github.com/regenrek/kiauto/internal/logging"
	"github.com/regenrek/kiauto/internal/session"
)

// Dependencies provides external services for CLI handlers.
type Dependencies struct {
	Version string
	AppName string

	Stdout io.Writer
	Stderr io.Writer

	LoadConfig  func(path string) (config.Config, error)
	DefaultPath func() (string, error)
	InitLogging func(ctx context.Context, cfg logging.Config, opts logging.InitOptions) (func() error, error)

	// NewSession prepares one eeschema or pcbnew run.
	NewSession func(ctx context.Context, opts session.Options) (*session.Session, error)
}

// DefaultDependencies returns dependencies wired to production services.
func DefaultDependencies(version string) Dependencies {
	return Dependencies{
		Version:     version,
		AppName:     identity.CLIName,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		LoadConfig:  config.Load,
		DefaultPath: config.DefaultPath,
		InitLogging: logging.Init,
		NewSession:  session.New,
	}
}
