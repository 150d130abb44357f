package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Group names a family of tools for discovery and bootstrap logging.
type Group string

const (
	GroupFormula   Group = "formula"
	GroupAssistant Group = "assistant"
	GroupAdmin     Group = "admin"
)

type entry struct {
	group Group
	tool  mcp.Tool
}

// Registry keeps the tool definitions the server exposes.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tools: map[string]entry{}}
}

// Register stores a tool definition under group. A later registration with
// the same name replaces the earlier one.
func (r *Registry) Register(group Group, tool mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = entry{group: group, tool: tool}
}

// Get returns a tool by name when present.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.tool, ok
}

// Tools returns the registered definitions sorted by name.
func (r *Registry) Tools(_ context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// Groups returns the sorted tool names of each group.
func (r *Registry) Groups() map[Group][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[Group][]string{}
	for name, e := range r.tools {
		out[e.group] = append(out[e.group], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

// RegisterTools wires every tool group the server exposes.
func RegisterTools(s *server.MCPServer, reg *Registry, d Deps) {
	RegisterFormulaTools(s, reg, d)
	RegisterAssistantTools(s, reg, d)
	RegisterSessionTools(s, reg, d)
}
