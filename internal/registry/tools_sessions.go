package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/pkg/mcperr"
	"github.com/vinodismyname/sheetmind/pkg/pagination"
	"github.com/vinodismyname/sheetmind/pkg/validation"
)

const (
	defaultSessionPage = 20
	maxSessionPage     = 100
)

// ListSessionsInput defines parameters for list_sessions.
type ListSessionsInput struct {
	PageSize int    `json:"page_size,omitempty" validate:"gte=0,lte=100" jsonschema_description:"Sessions per page (default 20, max 100)"`
	Cursor   string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Cursor from a previous page"`
}

// ListSessionsOutput lists cached sessions, most recently used first.
type ListSessionsOutput struct {
	Sessions []memory.Info `json:"sessions"`
	Meta     PageMeta      `json:"meta"`
}

// ClearSessionInput defines parameters for clear_session.
type ClearSessionInput struct {
	SessionID string `json:"session_id" validate:"required" jsonschema:"required" jsonschema_description:"Conversation id to clear"`
	Remove    bool   `json:"remove,omitempty" jsonschema_description:"Drop the session entirely instead of only forgetting its exchanges"`
}

// ClearSessionOutput reports the session state after the call.
type ClearSessionOutput struct {
	SessionID string          `json:"session_id"`
	Removed   bool            `json:"removed"`
	Summary   *memory.Summary `json:"summary,omitempty"`
}

// RegisterSessionTools wires the session administration tools. They are
// hidden and refused unless the filter allows them.
func RegisterSessionTools(s *server.MCPServer, reg *Registry, d Deps) {
	if d.Memory == nil {
		return
	}
	filter := d.Filter
	if filter == nil {
		filter = NewAdminToolFilter(false)
	}

	listTool := mcp.NewTool(
		"list_sessions",
		mcp.WithDescription("List cached conversation sessions (id, created, last used, exchange count), most recently used first. Paged with an opaque cursor. Errors: CURSOR_INVALID."),
		mcp.WithInputSchema[ListSessionsInput](),
		mcp.WithOutputSchema[ListSessionsOutput](),
	)
	s.AddTool(listTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ListSessionsInput) (*mcp.CallToolResult, error) {
		if !filter.Allows(listTool.Name) {
			return mcperr.New(mcperr.PermissionDenied, "session administration is disabled"), nil
		}
		return listSessions(d.Memory, in), nil
	}))
	reg.Register(GroupAdmin, listTool)

	clearTool := mcp.NewTool(
		"clear_session",
		mcp.WithDescription("Forget the exchanges of one conversation, or remove it with remove=true. Errors: SESSION_NOT_FOUND."),
		mcp.WithInputSchema[ClearSessionInput](),
		mcp.WithOutputSchema[ClearSessionOutput](),
	)
	s.AddTool(clearTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in ClearSessionInput) (*mcp.CallToolResult, error) {
		if !filter.Allows(clearTool.Name) {
			return mcperr.New(mcperr.PermissionDenied, "session administration is disabled"), nil
		}
		return clearSession(d.Memory, in), nil
	}))
	reg.Register(GroupAdmin, clearTool)
}

func listSessions(mem *memory.Manager, in ListSessionsInput) *mcp.CallToolResult {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg)
	}
	size := in.PageSize
	if size <= 0 {
		size = defaultSessionPage
	}
	size = min(size, maxSessionPage)

	off := 0
	if in.Cursor != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil || c.U != pagination.UnitSessions {
			return mcperr.New(mcperr.CursorInvalid, "")
		}
		off, size = c.Off, c.Ps
	}

	all := mem.Sessions()
	page, more := pagination.Slice(all, off, size)
	out := ListSessionsOutput{
		Sessions: page,
		Meta:     PageMeta{Total: len(all), Returned: len(page), Truncated: more},
	}
	if more {
		next, err := pagination.EncodeCursor(pagination.Cursor{
			U:   pagination.UnitSessions,
			Off: pagination.NextOffset(off, len(page)),
			Ps:  size,
			Iat: time.Now().Unix(),
		})
		if err == nil {
			out.Meta.NextCursor = next
		}
	}
	return structured(out, fmt.Sprintf("sessions=%d returned=%d truncated=%v", len(all), len(page), more))
}

func clearSession(mem *memory.Manager, in ClearSessionInput) *mcp.CallToolResult {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg)
	}
	var err error
	if in.Remove {
		err = mem.Remove(in.SessionID)
	} else {
		err = mem.Clear(in.SessionID)
	}
	if errors.Is(err, memory.ErrSessionNotFound) {
		return mcperr.New(mcperr.SessionNotFound, "")
	}
	if err != nil {
		return mcperr.Wrapf(mcperr.Validation, "%v", err)
	}

	out := ClearSessionOutput{SessionID: in.SessionID, Removed: in.Remove}
	if !in.Remove {
		if sum, err := mem.Summary(in.SessionID); err == nil {
			out.Summary = &sum
		}
	}
	verb := "cleared"
	if in.Remove {
		verb = "removed"
	}
	return structured(out, fmt.Sprintf("session %s %s", in.SessionID, verb))
}
