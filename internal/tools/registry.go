// Package tools defines the side-effecting operations the assistant can
// invoke and the static registry they are looked up in.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Call carries one invocation's arguments and the identity it runs as.
type Call struct {
	SessionID string
	UserID    string
	Args      Args
}

// Tool is a named operation. Parameters is a JSON schema object describing Args.
type Tool struct {
	Name              string
	Description       string
	Parameters        map[string]any
	NeedsConfirmation bool
	Run               func(ctx context.Context, call Call) (any, error)
}

// Registry is an immutable set of tools built once at startup.
type Registry struct {
	byName map[string]Tool
	order  []string
}

// NewRegistry builds a registry, rejecting empty or duplicate names and
// tools without a Run function.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		if t.Name == "" {
			return nil, errors.New("tool name is required")
		}
		if t.Run == nil {
			return nil, fmt.Errorf("tool %q has no run function", t.Name)
		}
		if _, dup := r.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		if t.Parameters == nil {
			t.Parameters = Object(nil)
		}
		r.byName[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ConfirmationRequired returns the sorted names of tools that need explicit
// user approval before they run.
func (r *Registry) ConfirmationRequired() []string {
	var names []string
	for name, t := range r.byName {
		if t.NeedsConfirmation {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Object builds a JSON schema object with the given properties.
func Object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Prop builds a single JSON schema property.
func Prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
