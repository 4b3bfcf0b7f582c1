package root

import (
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/spec"
)

// arguments turns positional args into urfave Arguments. Only the last
// arg of a command may be variadic.
func arguments(args []spec.Arg) []cli.Argument {
	if len(args) == 0 {
		return nil
	}
	out := make([]cli.Argument, 0, len(args))
	for _, a := range args {
		name := strings.TrimSpace(a.Name)
		if !a.Variadic {
			out = append(out, &cli.StringArg{Name: name})
			continue
		}
		least := 0
		if a.Required {
			least = 1
		}
		out = append(out, &cli.StringArgs{Name: name, Min: least, Max: -1})
	}
	return out
}

// checkArguments reports the first required argument left blank.
func checkArguments(cmdSpec spec.Command, cmd *cli.Command) error {
	for _, a := range cmdSpec.Args {
		name := strings.TrimSpace(a.Name)
		if !a.Required || name == "" {
			continue
		}
		var present bool
		if a.Variadic {
			present = slices.ContainsFunc(cmd.StringArgs(name), func(v string) bool {
				return strings.TrimSpace(v) != ""
			})
		} else {
			present = strings.TrimSpace(cmd.StringArg(name)) != ""
		}
		if !present {
			return usageErrorf("missing argument %s", strings.ToUpper(name))
		}
	}
	return nil
}

// argsUsage renders "BOARD OUTPUT_DIR LAYERS..." for help output.
func argsUsage(args []spec.Arg) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		name := strings.ToUpper(a.Name)
		if a.Variadic {
			name += "..."
		}
		if !a.Required {
			name = fmt.Sprintf("[%s]", name)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " ")
}
