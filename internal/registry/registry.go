// Package registry holds named tool tables and the lookup-and-invoke
// machinery shared by every toolset the gateway mounts.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrUnknownTool is returned by Invoke when no tool has the requested name
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned by Invoke when the arguments do not
	// satisfy the tool's declared schema
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Handler executes a tool with validated arguments and returns its payload.
// A returned error is converted into a Failure envelope by the registry.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool describes a single named operation exposed by a registry
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Handler     Handler
}

// Failure is the uniform failure envelope returned as a tool payload when a
// handler reports an error. Both toolsets share this one shape.
type Failure struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Failuref builds a Failure with a formatted message
func Failuref(format string, args ...any) Failure {
	return Failure{Status: "error", Message: fmt.Sprintf(format, args...)}
}

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry is an immutable-after-startup mapping from tool name to
// schema and handler
type Registry struct {
	name    string
	version string
	tools   map[string]*entry
	order   []string
	logger  *slog.Logger
}

// New creates an empty registry with the given server name and version
func New(name, version string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		name:    name,
		version: version,
		tools:   make(map[string]*entry),
		logger:  logger,
	}
}

// Name returns the registry's server name
func (r *Registry) Name() string { return r.name }

// Register adds a tool to the registry. Registration happens once at
// startup; a duplicate name, missing handler, or unresolvable schema is
// a boot-time error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if t.Schema == nil {
		return fmt.Errorf("tool %q has no input schema", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}

	// Resolve a detached copy: resolving marks the schema root as
	// resolved, and the MCP bridge needs to hand AddTool a schema it can
	// still resolve itself.
	clone, err := cloneSchema(t.Schema)
	if err != nil {
		return fmt.Errorf("tool %q has an invalid schema: %w", t.Name, err)
	}
	resolved, err := clone.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %q has an invalid schema: %w", t.Name, err)
	}

	r.tools[t.Name] = &entry{tool: t, resolved: resolved}
	r.order = append(r.order, t.Name)
	return nil
}

// Tools returns the registered tools in registration order
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Invoke looks up a tool by name, fills schema defaults for absent
// arguments, validates the result against the declared schema, and calls
// the handler. Handler errors and panics never propagate; they come back
// as a Failure payload.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	merged := make(map[string]any, len(args))
	for k, v := range args {
		merged[k] = v
	}
	for prop, ps := range e.tool.Schema.Properties {
		if ps == nil || len(ps.Default) == 0 {
			continue
		}
		if _, present := merged[prop]; present {
			continue
		}
		var v any
		if err := json.Unmarshal(ps.Default, &v); err != nil {
			return nil, fmt.Errorf("%w: bad default for %q: %v", ErrInvalidArguments, prop, err)
		}
		merged[prop] = v
	}

	if err := e.resolved.Validate(merged); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	r.logger.Debug("invoking tool", "registry", r.name, "tool", name)
	return r.call(ctx, e.tool, merged), nil
}

func (r *Registry) call(ctx context.Context, t Tool, args map[string]any) (out any) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked", "registry", r.name, "tool", t.Name, "panic", p)
			out = Failuref("%v", p)
		}
	}()

	res, err := t.Handler(ctx, args)
	if err != nil {
		r.logger.Debug("tool handler failed", "registry", r.name, "tool", t.Name, "error", err)
		return Failure{Status: "error", Message: err.Error()}
	}
	return res
}

// Server bridges the registry to an MCP server exposing every registered
// tool with its declared schema. Tool calls delegate to Invoke and the
// payload is serialized as JSON text content.
func (r *Registry) Server() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: r.name, Version: r.version}, nil)
	for _, name := range r.order {
		t := r.tools[name].tool
		mcp.AddTool(srv, &mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		}, func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
			out, err := r.Invoke(ctx, t.Name, params.Arguments)
			if err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("error encoding tool result: %w", err)
			}
			return &mcp.CallToolResultFor[any]{
				Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			}, nil
		})
	}
	return srv
}

func cloneSchema(s *jsonschema.Schema) (*jsonschema.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var clone jsonschema.Schema
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}
