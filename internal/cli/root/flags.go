package root

import (
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/regenrek/kiauto/internal/cli/spec"
)

func buildFlags(flags []spec.Flag) ([]cli.Flag, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make([]cli.Flag, 0, len(flags))
	for _, f := range flags {
		built, err := buildFlag(f)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

// buildFlag maps one commands.yaml flag to its urfave type. path and enum
// are strings; path flags complete as files and enum flags reject values
// outside their list.
func buildFlag(f spec.Flag) (cli.Flag, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil, fmt.Errorf("flag name is required")
	}
	var sources cli.ValueSourceChain
	if env := strings.TrimSpace(f.Env); env != "" {
		sources = cli.EnvVars(env)
	}
	switch f.Type {
	case "bool":
		v, _ := f.Default.(bool)
		return &cli.BoolFlag{Name: name, Aliases: f.Aliases, Usage: f.Description, Required: f.Required, Hidden: f.Hidden, Sources: sources, Value: v}, nil
	case "int":
		v, err := intValue(name, f.Default)
		if err != nil {
			return nil, err
		}
		return &cli.IntFlag{Name: name, Aliases: f.Aliases, Usage: f.Description, Required: f.Required, Hidden: f.Hidden, Sources: sources, Value: v}, nil
	case "string", "path", "enum":
		v, _ := f.Default.(string)
		fl := &cli.StringFlag{Name: name, Aliases: f.Aliases, Usage: f.Description, Required: f.Required, Hidden: f.Hidden, Sources: sources, Value: v}
		fl.TakesFile = f.Type == "path"
		if f.Type == "enum" {
			if len(f.Enum) == 0 {
				return nil, fmt.Errorf("enum flag %s has no values", name)
			}
			fl.Validator = oneOf(f.Enum)
		}
		return fl, nil
	default:
		return nil, fmt.Errorf("unsupported flag type %q for %s", f.Type, name)
	}
}

// intValue accepts the numeric types yaml.v3 may decode a default into.
func intValue(name string, v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("default of %s is not an integer: %v", name, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("default of %s is not an integer: %v", name, v)
	}
}

func oneOf(values []string) func(string) error {
	return func(val string) error {
		if slices.Contains(values, val) {
			return nil
		}
		return fmt.Errorf("invalid value %q (allowed: %s)", val, strings.Join(values, ", "))
	}
}
