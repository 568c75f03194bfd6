package course

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/service/index"
)

// Registry maps tool names to tools. It is built once and read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry registers the given tools. Registering two tools under the same name panics.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Spec().Name
		if _, exists := r.tools[name]; exists {
			panic(fmt.Sprintf("tool %q is already registered", name))
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// NewDefaultRegistry builds the registry of retrieval tools backed by idx.
func NewDefaultRegistry(idx *index.Service) *Registry {
	return NewRegistry(
		NewSearchTool(idx),
		NewOutlineTool(idx),
	)
}

// Specs returns tool specs in registration order.
func (r *Registry) Specs() []gollem.ToolSpec {
	specs := make([]gollem.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Tools returns the registered tools for a gollem session.
func (r *Registry) Tools() []gollem.Tool {
	tools := make([]gollem.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Execute dispatches a call by name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, goerr.Wrap(ErrUnknownTool, "tool is not registered", goerr.V("tool", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Execute(ctx, args)
}
