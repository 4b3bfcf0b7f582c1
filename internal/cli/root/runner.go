package root

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/spec"
	"github.com/regenrek/kiauto/internal/identity"
)

// Runner executes the CLI using the spec and registry.
type Runner struct {
	specDoc *spec.Spec
	deps    Dependencies
	app     *cli.Command
}

// NewRunner builds the CLI runner.
func NewRunner(specDoc *spec.Spec, deps Dependencies, reg *Registry) (*Runner, error) {
	app, err := BuildApp(specDoc, deps, reg)
	if err != nil {
		return nil, err
	}
	return &Runner{specDoc: specDoc, deps: deps, app: app}, nil
}

// Run executes the CLI with the given arguments.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if r == nil || r.app == nil {
		return fmt.Errorf("runner is not initialized")
	}
	if r.specDoc != nil {
		appName := identity.ResolveBinaryName(args)
		r.specDoc.App.Name = appName
		r.app.Name = appName
	}
	args = applyLegacyBinary(r.specDoc, args)
	args = hoistSubcommand(r.specDoc, args)
	return r.app.Run(ctx, args)
}

// applyLegacyBinary inserts the command implied by an eeschema_do or
// pcbnew_do link unless the caller already named it.
func applyLegacyBinary(specDoc *spec.Spec, args []string) []string {
	cmd, ok := identity.LegacyCommand(args)
	if !ok {
		return args
	}
	for _, arg := range args[1:] {
		if arg == "--" {
			break
		}
		if found := specDoc.Find(arg); found != nil && found.Name == cmd {
			return args
		}
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], cmd)
	return append(out, args[1:]...)
}

// hoistSubcommand moves the subcommand of a command with leading
// arguments in front of them: `pcbnew BOARD DIR export L1` becomes
// `pcbnew export BOARD DIR L1`.
func hoistSubcommand(specDoc *spec.Spec, args []string) []string {
	if specDoc == nil || len(args) < 2 {
		return args
	}
	parent := -1
	var cmd *spec.Command
	for i := 1; i < len(args); i++ {
		if args[i] == "--" {
			return args
		}
		if cmd = specDoc.Find(args[i]); cmd != nil {
			parent = i
			break
		}
	}
	if cmd == nil || !cmd.LeadingArgs {
		return args
	}
	for j := parent + 1; j < len(args); j++ {
		if args[j] == "--" {
			return args
		}
		if !isSubcommand(cmd, args[j]) {
			continue
		}
		if j == parent+1 {
			return args
		}
		out := make([]string, 0, len(args))
		out = append(out, args[:parent+1]...)
		out = append(out, args[j])
		out = append(out, args[parent+1:j]...)
		return append(out, args[j+1:]...)
	}
	return args
}

func isSubcommand(cmd *spec.Command, value string) bool {
	for _, sub := range cmd.Subcommands {
		if sub.Name == value {
			return true
		}
		for _, alias := range sub.Aliases {
			if alias == value {
				return true
			}
		}
	}
	return false
}
