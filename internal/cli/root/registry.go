package root

import (
	"errors"
	"fmt"

	"github.com/regenrek/kiauto/internal/cli/spec"
)

// Handler runs one leaf command.
type Handler func(ctx CommandContext) error

// Registry maps command ids from commands.yaml to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds id to handler. A second registration replaces the first.
func (r *Registry) Register(id string, handler Handler) {
	if r == nil || id == "" || handler == nil {
		return
	}
	r.handlers[id] = handler
}

// HandlerFor returns the handler bound to id.
func (r *Registry) HandlerFor(id string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[id]
	return h, ok
}

// EnsureHandlers checks that every leaf command has a handler and that
// every handler belongs to a command.
func (r *Registry) EnsureHandlers(doc *spec.Spec) error {
	if r == nil || doc == nil {
		return nil
	}
	var errs []error
	known := make(map[string]bool)
	for _, cmd := range doc.AllCommands() {
		known[cmd.ID] = true
		if len(cmd.Subcommands) > 0 {
			continue
		}
		if _, ok := r.handlers[cmd.ID]; !ok {
			errs = append(errs, missingHandlerError(cmd.ID))
		}
	}
	for id := range r.handlers {
		if !known[id] {
			errs = append(errs, fmt.Errorf("handler registered for unknown command %s", id))
		}
	}
	return errors.Join(errs...)
}
