package root

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/output"
	"github.com/regenrek/kiauto/internal/cli/spec"
	"github.com/regenrek/kiauto/internal/exitcode"
)

type builder struct {
	doc  *spec.Spec
	deps Dependencies
	reg  *Registry
}

// BuildApp turns the command tree into a urfave root command whose leaf
// actions run the registered handlers.
func BuildApp(doc *spec.Spec, deps Dependencies, reg *Registry) (*cli.Command, error) {
	switch {
	case doc == nil:
		return nil, errors.New("command definitions are nil")
	case reg == nil:
		return nil, errors.New("registry is nil")
	}
	if err := reg.EnsureHandlers(doc); err != nil {
		return nil, err
	}
	b := builder{doc: doc, deps: deps, reg: reg}
	return b.root()
}

func (b builder) root() (*cli.Command, error) {
	flags, err := buildFlags(b.doc.GlobalFlags)
	if err != nil {
		return nil, fmt.Errorf("global flags: %w", err)
	}
	app := &cli.Command{
		Name:      b.doc.App.Name,
		Usage:     b.doc.App.Summary,
		Flags:     flags,
		Writer:    b.deps.Stdout,
		ErrWriter: b.deps.Stderr,
		// entry turns errors into exit statuses; urfave must not exit.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Before:         b.versionFlag,
		Action: func(context.Context, *cli.Command) error {
			return missingCommand(b.doc.Commands)
		},
	}
	for _, cs := range b.doc.Commands {
		cmd, err := b.command(cs)
		if err != nil {
			return nil, err
		}
		app.Commands = append(app.Commands, cmd)
	}
	return app, nil
}

func (b builder) versionFlag(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if !cmd.Bool("version") {
		return ctx, nil
	}
	printVersion(b.deps.Stdout, b.doc.App.Name, b.deps.Version)
	return ctx, cli.Exit("", exitcode.OK)
}

func (b builder) command(cs spec.Command) (*cli.Command, error) {
	flags, err := buildFlags(cs.Flags)
	if err != nil {
		return nil, fmt.Errorf("flags for %s: %w", cs.ID, err)
	}
	cmd := &cli.Command{
		Name:        cs.Name,
		Aliases:     cs.Aliases,
		Usage:       cs.Summary,
		Description: cs.Description,
		Hidden:      cs.Hidden,
		Flags:       flags,
		ArgsUsage:   argsUsage(cs.Args),
		Arguments:   arguments(cs.Args),
	}
	for _, child := range cs.Subcommands {
		sub, err := b.command(child)
		if err != nil {
			return nil, err
		}
		cmd.Commands = append(cmd.Commands, sub)
	}
	switch handler, ok := b.reg.HandlerFor(cs.ID); {
	case ok:
		cmd.Action = func(ctx context.Context, c *cli.Command) error {
			return b.run(ctx, c, cs, handler)
		}
	case len(cs.Subcommands) > 0:
		cmd.Action = func(context.Context, *cli.Command) error {
			return missingCommand(cs.Subcommands)
		}
	}
	return cmd, nil
}

func missingCommand(options []spec.Command) error {
	names := make([]string, 0, len(options))
	for _, opt := range options {
		if !opt.Hidden {
			names = append(names, opt.Name)
		}
	}
	return usageErrorf("missing command (one of: %s)", strings.Join(names, ", "))
}

// run checks the arguments, loads config and logging, then calls the
// handler. With --json a failure is written as an error document and
// the exit status is kept without a message.
func (b builder) run(ctx context.Context, c *cli.Command, cs spec.Command, handler Handler) error {
	if err := checkArguments(cs, c); err != nil {
		return err
	}
	jsonOut := c.Bool("json")
	if jsonOut && (cs.JSON == nil || !cs.JSON.Supported) {
		return usageErrorf("command %s does not support --json", cs.Name)
	}
	cfg, closeLog, err := setup(ctx, c, b.deps)
	if err != nil {
		return err
	}
	defer closeLog()

	start := time.Now()
	err = handler(CommandContext{
		Context: ctx,
		Args:    c.Args().Slice(),
		Spec:    cs,
		Cmd:     c,
		Deps:    b.deps,
		Config:  cfg,
		JSON:    jsonOut,
		Out:     b.deps.Stdout,
		ErrOut:  b.deps.Stderr,
	})
	if err == nil || !jsonOut || reported(err) {
		return err
	}
	code := exitcode.Of(err, 1)
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	env := output.Envelope{W: b.deps.Stdout, Command: cs.ID, Version: b.deps.Version, Start: start}
	_ = env.Failure(failureKind(code), err.Error(), code)
	return cli.Exit("", code)
}

// failureKind tells bad input apart from failed runs in the JSON error
// body.
func failureKind(code int) string {
	if code == exitcode.WrongArguments {
		return "usage"
	}
	return "command_failed"
}

// reported is true for exits whose message was already written, such as
// a violation count after a successful run.
func reported(err error) bool {
	var exitErr cli.ExitCoder
	return errors.As(err, &exitErr) && exitErr.Error() == ""
}
