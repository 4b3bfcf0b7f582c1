package root

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/config"
	"github.com/regenrek/kiauto/internal/exitcode"
	"github.com/regenrek/kiauto/internal/identity"
	"github.com/regenrek/kiauto/internal/logging"
)

// verbosityFromFlags maps -v and --debug. --debug wins.
func verbosityFromFlags(cmd *cli.Command) logging.Verbosity {
	switch {
	case cmd.Bool("debug"):
		return logging.VerbosityDebug
	case cmd.Bool("verbose"):
		return logging.VerbosityInfo
	default:
		return logging.VerbosityDefault
	}
}

// setup loads the config file and installs the logger. It runs in the
// leaf command so global flags given after the subcommand count too.
func setup(ctx context.Context, cmd *cli.Command, deps Dependencies) (config.Config, func(), error) {
	path := strings.TrimSpace(cmd.String("config"))
	if path == "" && deps.DefaultPath != nil {
		p, err := deps.DefaultPath()
		if err != nil {
			return config.Config{}, nil, cli.Exit(fmt.Sprintf("resolve config path: %v", err), exitcode.WrongArguments)
		}
		path = p
	}
	cfg := config.Defaults()
	if path != "" && deps.LoadConfig != nil {
		loaded, err := deps.LoadConfig(path)
		if err != nil {
			return config.Config{}, nil, cli.Exit(fmt.Sprintf("load config: %v", err), exitcode.WrongArguments)
		}
		cfg = loaded
	}

	closeLog := func() {}
	if deps.InitLogging == nil {
		return cfg, closeLog, nil
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	closer, err := deps.InitLogging(ctx, cfg.Logging, logging.InitOptions{
		App:       identity.AppSlug,
		Version:   deps.Version,
		Verbosity: verbosityFromFlags(cmd),
		Stderr:    stderr,
		OutputDir: outputDir(cmd),
	})
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		slog.Error("init logging failed; using stderr fallback", "err", err)
	} else if closer != nil {
		closeLog = func() { _ = closer() }
	}
	return cfg, closeLog, nil
}

// outputDir is the OUTPUT_DIR argument of flow commands, empty for the
// others.
func outputDir(cmd *cli.Command) string {
	for _, arg := range cmd.Arguments {
		if a, ok := arg.(*cli.StringArg); ok && a.Name == "output_dir" {
			return strings.TrimSpace(cmd.StringArg("output_dir"))
		}
	}
	return ""
}

func printVersion(w io.Writer, name, version string) {
	if w == nil {
		w = io.Discard
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", name, version)
}
