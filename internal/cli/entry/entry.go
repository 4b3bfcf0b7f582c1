package entry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"
	"golang.org/x/sys/unix"

	"github.com/regenrek/kiauto/internal/cli/app"
	"github.com/regenrek/kiauto/internal/cli/root"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/identity"
)

// Run starts the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the run so the KiCad configuration is still restored.
func Run(args []string, version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	return run(ctx, args, root.DefaultDependencies(version))
}

func run(ctx context.Context, args []string, deps root.Dependencies) int {
	deps.AppName = identity.ResolveBinaryName(args)
	runner, err := app.NewRunner(deps)
	if err != nil {
		fmt.Fprintf(stderr(deps), "%s: %v\n", deps.AppName, err)
		return 1
	}
	return exitStatus(stderr(deps), deps.AppName, runner.Run(ctx, args))
}

// exitStatus turns a runner error into a process status. Errors that
// carry no code come from argument parsing.
func exitStatus(w io.Writer, name string, err error) int {
	if err == nil {
		return exitcode.OK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintf(w, "%s: %s\n", name, msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintf(w, "%s: %v\n", name, err)
	return exitcode.WrongArguments
}

func stderr(deps root.Dependencies) io.Writer {
	if deps.Stderr != nil {
		return deps.Stderr
	}
	return os.Stderr
}
