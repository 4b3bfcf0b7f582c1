// Package app wires every command handler to the embedded command tree.
package app

import (
	"fmt"

	"github.com/regenrek/kiauto/internal/cli/flows"
	"github.com/regenrek/kiauto/internal/cli/root"
	"github.com/regenrek/kiauto/internal/cli/spec"
	"github.com/regenrek/kiauto/internal/cli/version"
)

// NewRunner loads commands.yaml and binds the kiauto handlers to it.
func NewRunner(deps root.Dependencies) (*root.Runner, error) {
	doc, err := spec.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("load commands: %w", err)
	}
	return root.NewRunner(doc, deps, Registry())
}

// Registry returns the handlers of every kiauto command.
func Registry() *root.Registry {
	reg := root.NewRegistry()
	flows.Register(reg)
	version.Register(reg)
	return reg
}
