// Package tools holds the lookup tools the agent can call and the registry
// that resolves them by name.
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is a named capability the agent can invoke with a single text input
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
}

// Registry keeps tools in registration order
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry builds a registry, rejecting duplicate names
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, ok := r.byName[t.Name()]; ok {
			return nil, fmt.Errorf("duplicate tool %q", t.Name())
		}
		r.tools = append(r.tools, t)
		r.byName[t.Name()] = t
	}
	return r, nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Tools() []Tool {
	return r.tools
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Describe renders one "name: description" line per tool
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, t := range r.tools {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", t.Name(), t.Description())
	}
	return b.String()
}

// Call runs the named tool and always returns text the agent can read back.
// Unknown tools and tool failures become observations instead of errors.
func (r *Registry) Call(ctx context.Context, name, input string) string {
	t, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", name, strings.Join(r.Names(), ", "))
	}
	out, err := t.Call(ctx, input)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}

// cleanInput strips the whitespace and quoting models tend to wrap arguments in
func cleanInput(input string) string {
	return strings.Trim(strings.TrimSpace(input), "\"'` \t\r\n")
}
