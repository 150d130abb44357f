package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vinodismyname/sheetmind/internal/assistant"
	"github.com/vinodismyname/sheetmind/internal/llm"
	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/internal/ratelimit"
	"github.com/vinodismyname/sheetmind/internal/router"
	"github.com/vinodismyname/sheetmind/internal/security"
	"github.com/vinodismyname/sheetmind/internal/sheet"
	"github.com/vinodismyname/sheetmind/pkg/mcperr"
	"github.com/vinodismyname/sheetmind/pkg/validation"
)

// Deps are the collaborators tool handlers close over. Nil members disable
// the tools that need them.
type Deps struct {
	Assistant *assistant.Assistant
	LLM       *llm.Service
	Memory    *memory.Manager
	Catalog   *patterns.Catalog
	Loader    *sheet.Loader
	Filter    *AdminToolFilter
}

// SheetSource is the sheet a tool call reads: an inline A1 cell map or a
// workbook path inside the allow-list.
type SheetSource struct {
	Cells         map[string]any `json:"cells,omitempty" jsonschema_description:"A1 cell map, e.g. {\"A1\":\"Region\",\"B1\":\"Sales\"}"`
	SheetName     string         `json:"sheet_name,omitempty" jsonschema_description:"Sheet name (default Sheet1, or the first worksheet of path)"`
	DataRange     string         `json:"data_range,omitempty" validate:"omitempty,a1range" jsonschema_description:"Used range, e.g. A1:D50"`
	SelectedRange string         `json:"selected_range,omitempty" jsonschema_description:"Current selection, e.g. B2:B10"`
	Path          string         `json:"path,omitempty" jsonschema_description:"Workbook (.xlsx) or saved JSON snapshot inside the allowed directories; used when cells is empty"`
}

// AskInput defines parameters for ask.
type AskInput struct {
	Message        string           `json:"message" validate:"required,max=5000" jsonschema:"required" jsonschema_description:"User message"`
	ConversationID string           `json:"conversation_id,omitempty" jsonschema_description:"Conversation to continue; omit to start one"`
	UserID         string           `json:"user_id,omitempty" jsonschema_description:"Caller identity for rate limiting"`
	Tier           string           `json:"tier,omitempty" validate:"omitempty,tier" jsonschema_description:"Plan tier: free, pro or team"`
	Mode           string           `json:"mode,omitempty" validate:"omitempty,mode" jsonschema_description:"auto (default), chat or action"`
	History        []memory.Message `json:"history,omitempty" jsonschema_description:"Prior turns used when the server has no cached session"`
	Sheets         []string         `json:"sheets,omitempty" jsonschema_description:"Workbook sheet names, offered when the question is ambiguous"`
	SheetSource
}

// AnalyzeSheetInput defines parameters for analyze_sheet.
type AnalyzeSheetInput struct {
	SheetSource
}

// AnalyzeSheetOutput is the derived column metadata and suggested prompts.
type AnalyzeSheetOutput struct {
	Metadata     sheet.Metadata       `json:"metadata"`
	Description  string               `json:"description"`
	QuickActions []router.QuickAction `json:"quick_actions,omitempty"`
}

// RegisterAssistantTools wires ask and analyze_sheet.
func RegisterAssistantTools(s *server.MCPServer, reg *Registry, d Deps) {
	analyzeTool := mcp.NewTool(
		"analyze_sheet",
		mcp.WithDescription("Profile a sheet without calling a model: per column type, header, unique counts and numeric stats, suggested group-by, aggregate and date columns, plus one-click prompts. Provide cells or path. Errors: PERMISSION_DENIED, UNSUPPORTED_FORMAT, SNAPSHOT_FAILED."),
		mcp.WithInputSchema[AnalyzeSheetInput](),
		mcp.WithOutputSchema[AnalyzeSheetOutput](),
	)
	s.AddTool(analyzeTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in AnalyzeSheetInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		sin, res := loadSheet(ctx, d.Loader, in.SheetSource)
		if res != nil {
			return res, nil
		}
		if sin == nil || len(sin.Cells) == 0 {
			return mcperr.New(mcperr.Validation, "cells or path is required"), nil
		}
		snap := sheet.NewSnapshot(*sin)
		out := AnalyzeSheetOutput{
			Metadata:     snap.Meta,
			Description:  snap.Meta.Describe(),
			QuickActions: router.QuickActions(snap),
		}
		summary := fmt.Sprintf("sheet=%s columns=%d dataRows=%d lastRow=%d", snap.Meta.SheetName, snap.Meta.TotalColumns, snap.Meta.DataRows, snap.Meta.LastRow)
		r := mcp.NewToolResultStructured(out, summary)
		r.Content = []mcp.Content{mcp.NewTextContent(summary + "\n" + out.Description)}
		return r, nil
	}))
	reg.Register(GroupAssistant, analyzeTool)

	if d.Assistant == nil {
		return
	}

	askTool := mcp.NewTool(
		"ask",
		mcp.WithDescription("Ask the spreadsheet assistant. The message is routed to a direct answer or a multi-step reasoning loop that inspects the sheet and returns verified actions (insert formula, create sheet, sort, filter, chart). Pass the sheet as cells or a workbook path, and conversation_id to continue a conversation. Errors: VALIDATION, RATE_LIMITED, SERVICE_UNAVAILABLE, TIMEOUT, PERMISSION_DENIED."),
		mcp.WithInputSchema[AskInput](),
		mcp.WithOutputSchema[assistant.Response](),
	)
	s.AddTool(askTool, mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcperr.FromText(msg), nil
		}
		sin, res := loadSheet(ctx, d.Loader, in.SheetSource)
		if res != nil {
			return res, nil
		}
		resp, err := d.Assistant.Handle(ctx, assistant.Request{
			Message:        in.Message,
			ConversationID: in.ConversationID,
			UserID:         in.UserID,
			Tier:           in.Tier,
			Mode:           in.Mode,
			History:        in.History,
			Sheet:          sin,
			Sheets:         in.Sheets,
		})
		if err != nil {
			return assistantError(err), nil
		}
		summary := fmt.Sprintf("conversation=%s route=%s actions=%d", resp.ConversationID, resp.Route.Intent, len(resp.Actions))
		r := mcp.NewToolResultStructured(resp, summary)
		r.Content = []mcp.Content{mcp.NewTextContent(resp.Content)}
		return r, nil
	}))
	reg.Register(GroupAssistant, askTool)
}

// loadSheet resolves the sheet source. Inline cells win over a path; a nil
// input with a nil result means no sheet was supplied.
func loadSheet(ctx context.Context, loader *sheet.Loader, src SheetSource) (*sheet.Input, *mcp.CallToolResult) {
	if len(src.Cells) > 0 {
		return &sheet.Input{
			SheetName: src.SheetName,
			DataRange: src.DataRange,
			Cells:     src.Cells,
			Selected:  src.SelectedRange,
		}, nil
	}
	if strings.TrimSpace(src.Path) == "" {
		return nil, nil
	}
	if loader == nil {
		return nil, mcperr.New(mcperr.SnapshotFailed, "workbook import is not configured")
	}
	in, err := loader.Load(ctx, src.Path, src.SheetName)
	if err != nil {
		return nil, loadError(err)
	}
	if src.SelectedRange != "" {
		in.Selected = src.SelectedRange
	}
	return &in, nil
}

func loadError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, security.ErrNotAllowed):
		return mcperr.New(mcperr.PermissionDenied, "")
	case errors.Is(err, security.ErrUnsupportedExtension):
		return mcperr.New(mcperr.UnsupportedFormat, "")
	case errors.Is(err, security.ErrNotFound):
		return mcperr.New(mcperr.SnapshotFailed, "file not found")
	case errors.Is(err, security.ErrTooLarge):
		return mcperr.Wrapf(mcperr.SnapshotFailed, "%v; send a smaller range as inline cells", err)
	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.New(mcperr.Timeout, "")
	default:
		return mcperr.Wrapf(mcperr.SnapshotFailed, "%v", err)
	}
}

// assistantError maps Handle failures to tool error codes.
func assistantError(err error) *mcp.CallToolResult {
	var limited *ratelimit.LimitedError
	switch {
	case errors.As(err, &limited):
		return mcperr.Wrapf(mcperr.RateLimited, "limit %d per minute, retry after %ds", limited.Limit, int(limited.RetryAfter.Seconds()+0.999))
	case errors.Is(err, assistant.ErrInvalidRequest):
		text := strings.TrimPrefix(err.Error(), assistant.ErrInvalidRequest.Error()+": ")
		if code, _, ok := strings.Cut(text, ":"); ok {
			if _, known := mcperr.Lookup(mcperr.Code(code)); known {
				return mcperr.FromText(text)
			}
		}
		return mcperr.New(mcperr.Validation, text)
	default:
		return completionError(err)
	}
}

// completionError maps completion failures to tool error codes.
func completionError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.New(mcperr.Timeout, "")
	case errors.Is(err, assistant.ErrServiceUnavailable), errors.Is(err, llm.ErrUnavailable):
		return mcperr.New(mcperr.ServiceUnavailable, "")
	default:
		return mcperr.Wrapf(mcperr.ServiceUnavailable, "%v", err)
	}
}
