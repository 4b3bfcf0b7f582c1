// Package spec loads the kiauto command tree from the embedded
// commands.yaml.
package spec

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml commands.schema.json
var embeddedFS embed.FS

const schemaName = "commands.schema.json"

// Spec is the decoded command tree.
type Spec struct {
	Version     int       `yaml:"version"`
	App         AppSpec   `yaml:"app"`
	GlobalFlags []Flag    `yaml:"global_flags"`
	Commands    []Command `yaml:"commands"`
}

type AppSpec struct {
	Name    string `yaml:"name"`
	Summary string `yaml:"summary"`
}

// Flag is a command line flag. Type is bool, int, string, path or enum.
type Flag struct {
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases"`
	Type        string   `yaml:"type"`
	Required    bool     `yaml:"required"`
	Default     any      `yaml:"default"`
	Enum        []string `yaml:"enum"`
	Description string   `yaml:"description"`
	Env         string   `yaml:"env"`
	Hidden      bool     `yaml:"hidden"`
}

// Arg is a positional argument. Only the last one may be variadic.
type Arg struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Variadic    bool   `yaml:"variadic"`
	Description string `yaml:"description"`
}

type JSONSpec struct {
	Supported bool   `yaml:"supported"`
	SchemaRef string `yaml:"schema_ref"`
}

// Command is one node of the tree. ID is the dotted path of names, such
// as "pcbnew.run_drc".
type Command struct {
	Name        string   `yaml:"name"`
	ID          string   `yaml:"id"`
	Summary     string   `yaml:"summary"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	Flags       []Flag   `yaml:"flags"`
	Args        []Arg    `yaml:"args"`
	// LeadingArgs lets the subcommand name follow positional arguments,
	// as in `pcbnew BOARD DIR export`.
	LeadingArgs bool      `yaml:"leading_args"`
	JSON        *JSONSpec `yaml:"json"`
	Hidden      bool      `yaml:"hidden"`
	Subcommands []Command `yaml:"subcommands"`
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := embeddedFS.ReadFile(schemaName)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaName, doc); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return c.Compile(schemaName)
})

// LoadDefault parses the embedded commands.yaml.
func LoadDefault() (*Spec, error) {
	data, err := embeddedFS.ReadFile("commands.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded commands: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the schema, decodes it and checks the
// rules the schema cannot express.
func Parse(data []byte) (*Spec, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	doc := &Spec{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks YAML data against commands.schema.json.
func Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("command definitions are empty")
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	// yaml.v3 resolves anchors and yields string keys, so a JSON round
	// trip gives the validator the value types it expects.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse commands yaml: %w", err)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("convert commands to json: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("convert commands to json: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("commands schema: %w", err)
	}
	return nil
}

func (s *Spec) check() error {
	var errs []error
	seen := make(map[string]bool)
	var walk func(prefix string, cmds []Command)
	walk = func(prefix string, cmds []Command) {
		for _, cmd := range cmds {
			want := cmd.Name
			if prefix != "" {
				want = prefix + "." + cmd.Name
			}
			if cmd.ID != want {
				errs = append(errs, fmt.Errorf("command %s: id %q, want %q", cmd.Name, cmd.ID, want))
			}
			if seen[cmd.ID] {
				errs = append(errs, fmt.Errorf("duplicate command id %q", cmd.ID))
			}
			seen[cmd.ID] = true
			for i, arg := range cmd.Args {
				if arg.Variadic && i != len(cmd.Args)-1 {
					errs = append(errs, fmt.Errorf("command %s: variadic arg %s is not last", cmd.ID, arg.Name))
				}
			}
			if cmd.LeadingArgs && len(cmd.Subcommands) == 0 {
				errs = append(errs, fmt.Errorf("command %s: leading_args without subcommands", cmd.ID))
			}
			walk(want, cmd.Subcommands)
		}
	}
	walk("", s.Commands)
	return errors.Join(errs...)
}

// AllCommands returns every command, parents before their subcommands.
func (s *Spec) AllCommands() []Command {
	if s == nil {
		return nil
	}
	var out []Command
	var walk func(cmds []Command)
	walk = func(cmds []Command) {
		for _, cmd := range cmds {
			out = append(out, cmd)
			walk(cmd.Subcommands)
		}
	}
	walk(s.Commands)
	return out
}

// FindByID returns a copy of the command with the given id.
func (s *Spec) FindByID(id string) *Command {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	for _, cmd := range s.AllCommands() {
		if cmd.ID == id {
			return &cmd
		}
	}
	return nil
}

// Find returns the top-level command named name or carrying it as alias,
// ignoring case.
func (s *Spec) Find(name string) *Command {
	name = strings.TrimSpace(name)
	if name == "" || s == nil {
		return nil
	}
	for i := range s.Commands {
		cmd := &s.Commands[i]
		if strings.EqualFold(cmd.Name, name) {
			return cmd
		}
		for _, alias := range cmd.Aliases {
			if strings.EqualFold(alias, name) {
				return cmd
			}
		}
	}
	return nil
}
