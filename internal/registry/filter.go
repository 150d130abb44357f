package registry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// adminTools reach across conversations and are hidden unless enabled.
var adminTools = map[string]struct{}{
	"list_sessions": {},
	"clear_session": {},
}

// AdminToolFilter hides session administration tools from discovery unless
// the configuration enables them.
type AdminToolFilter struct {
	allowAdmin bool
}

// NewAdminToolFilter builds a filter from the enable_admin_tools setting.
func NewAdminToolFilter(allowAdmin bool) *AdminToolFilter {
	return &AdminToolFilter{allowAdmin: allowAdmin}
}

// Allows reports whether name may be listed and called.
func (f *AdminToolFilter) Allows(name string) bool {
	if f.allowAdmin {
		return true
	}
	_, admin := adminTools[name]
	return !admin
}

// FilterTools implements server tool filtering semantics.
func (f *AdminToolFilter) FilterTools(_ context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowAdmin {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if f.Allows(t.Name) {
			out = append(out, t)
		}
	}
	return out
}
