package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	// MaxToolNameLength is the maximum allowed length for tool names.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum allowed size for tool parameters (10MB).
	MaxToolParamsSize = 10 * 1024 * 1024
)

// ToolRegistry holds the static name → tool mapping for a runtime.
//
// Tools are registered once at startup; after that the registry is
// effectively read-only and safe for concurrent readers. Each tool's JSON
// Schema is compiled at registration time so argument validation on the hot
// path never re-parses schema text.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*registeredTool),
	}
}

// Register adds a tool to the registry, compiling its schema.
// Registering a second tool under an existing name replaces the first.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name exceeds maximum length of %d", MaxToolNameLength)
	}

	schema, err := compileSchema(name, tool.Schema())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &registeredTool{tool: tool, schema: schema}
	return nil
}

// Get returns a registered tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// Has reports whether a tool is registered under name.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all registered tools sorted by name, so the tool block sent
// to providers is stable across runs.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		tools = append(tools, rt.tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Validate checks raw call arguments against the named tool's compiled
// schema without invoking the tool. It is deterministic: the same arguments
// validate to the same outcome every time.
//
// Returns ErrToolNotFound (wrapped) when the tool is unknown and
// ErrInvalidArguments (wrapped) when the payload is not valid JSON or
// violates the schema.
func (r *ToolRegistry) Validate(name string, params json.RawMessage) error {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if len(params) > MaxToolParamsSize {
		return fmt.Errorf("%w: parameters exceed maximum size of %d bytes", ErrInvalidArguments, MaxToolParamsSize)
	}

	// Providers occasionally hand back an empty argument payload for
	// zero-parameter tools; treat it as the empty object.
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}

	var value any
	if err := json.Unmarshal(params, &value); err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", ErrInvalidArguments, err)
	}

	if err := rt.schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// compileSchema compiles a tool's JSON Schema under draft 2020-12.
func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name + "-schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return schema, nil
}
