package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/agent"
	"github.com/vinodismyname/sheetmind/internal/llm"
	"github.com/vinodismyname/sheetmind/internal/memory"
	"github.com/vinodismyname/sheetmind/internal/ratelimit"
	"github.com/vinodismyname/sheetmind/internal/router"
	"github.com/vinodismyname/sheetmind/internal/runtime"
	"github.com/vinodismyname/sheetmind/internal/sheet"
	"github.com/vinodismyname/sheetmind/pkg/validation"
)

var (
	// ErrServiceUnavailable means no completion tier answered or a
	// background task did not finish in time. Callers should retry later.
	ErrServiceUnavailable = errors.New("assistant: service unavailable")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("assistant: invalid request")
)

const (
	// maxHistory keeps the most recent 25 exchanges of caller history.
	maxHistory    = 50
	anonymousUser = "anonymous"
)

// Request is one inbound chat message.
type Request struct {
	Message        string           `json:"message" validate:"required,max=5000"`
	ConversationID string           `json:"conversation_id,omitempty" validate:"omitempty,max=128"`
	UserID         string           `json:"user_id,omitempty"`
	Tier           string           `json:"tier,omitempty" validate:"omitempty,tier"`
	Mode           string           `json:"mode,omitempty" validate:"omitempty,mode"`
	History        []memory.Message `json:"history,omitempty" validate:"dive"`
	Sheet          *sheet.Input     `json:"sheet,omitempty"`
	// Sheets names the workbook's sheets, for clarification options.
	Sheets []string `json:"sheets,omitempty"`
}

// Response is the assembled answer.
type Response struct {
	ConversationID string                `json:"conversation_id"`
	MessageID      string                `json:"message_id"`
	Content        string                `json:"content"`
	Route          router.Route          `json:"route"`
	Source         string                `json:"source,omitempty"`
	ChartConfig    json.RawMessage       `json:"chart_config,omitempty"`
	SheetAction    json.RawMessage       `json:"sheet_action,omitempty"`
	Actions        actions.List          `json:"actions,omitempty"`
	Verification   *actions.Report       `json:"verification,omitempty"`
	ReasoningSteps []agent.Step          `json:"reasoning_steps,omitempty"`
	Termination    agent.Termination     `json:"termination,omitempty"`
	Iterations     int                   `json:"iterations,omitempty"`
	QuickActions   []router.QuickAction  `json:"quick_actions,omitempty"`
	Metadata       *sheet.Metadata       `json:"sheet_metadata,omitempty"`
	Clarification  *router.Clarification `json:"clarification,omitempty"`
}

// ConversationStore persists new conversations. It runs alongside the
// completion call and must finish within the background join timeout.
type ConversationStore interface {
	Create(ctx context.Context, id, userID, title string) error
}

// Hooks receive routing events; nil fields are skipped.
type Hooks struct {
	Routed  func(intent, rule string)
	Limited func(userID, tier string, retryAfter time.Duration)
}

// Options wires an Assistant. Memory is required; everything else has a
// default.
type Options struct {
	Memory        *memory.Manager
	Router        *router.Router
	Limiter       *ratelimit.Limiter
	Pool          *runtime.Pool
	Conversations ConversationStore
	JoinTimeout   time.Duration
	MaxCells      int
	Logger        zerolog.Logger
	Hooks         Hooks
}

// Assistant routes each message to a direct completion or a reasoning loop
// run and assembles the response.
type Assistant struct {
	llm   *llm.Service
	agent *agent.Agent

	mem         *memory.Manager
	router      *router.Router
	limiter     *ratelimit.Limiter
	pool        *runtime.Pool
	store       ConversationStore
	joinTimeout time.Duration
	maxCells    int
	log         zerolog.Logger
	hooks       Hooks
}

// New builds an Assistant.
func New(svc *llm.Service, ag *agent.Agent, opts Options) *Assistant {
	if opts.Memory == nil {
		opts.Memory = memory.NewManager(memory.Options{Logger: opts.Logger})
	}
	if opts.Router == nil {
		opts.Router = router.New(router.DefaultOptions())
	}
	if opts.Pool == nil {
		opts.Pool = runtime.NewPool(config.DefaultWorkerPoolSize)
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = config.DefaultBackgroundJoinTimeout
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = config.DefaultMaxCells
	}
	return &Assistant{
		llm:         svc,
		agent:       ag,
		mem:         opts.Memory,
		router:      opts.Router,
		limiter:     opts.Limiter,
		pool:        opts.Pool,
		store:       opts.Conversations,
		joinTimeout: opts.JoinTimeout,
		maxCells:    opts.MaxCells,
		log:         opts.Logger,
		hooks:       opts.Hooks,
	}
}

// Memory exposes the session cache.
func (a *Assistant) Memory() *memory.Manager { return a.mem }

// Handle answers one message. Rate limit rejections return a
// *ratelimit.LimitedError; exhausted completion tiers and background
// timeouts return ErrServiceUnavailable.
func (a *Assistant) Handle(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("sheetmind/assistant").Start(ctx, "assistant.Handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("tier", req.Tier), attribute.Bool("has_sheet", req.Sheet != nil)),
	)
	defer span.End()

	if err := a.check(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	user := req.UserID
	if user == "" {
		user = anonymousUser
	}
	if a.limiter != nil {
		if err := a.limiter.Allow(user, req.Tier); err != nil {
			var le *ratelimit.LimitedError
			if errors.As(err, &le) && a.hooks.Limited != nil {
				a.hooks.Limited(user, req.Tier, le.RetryAfter)
			}
			span.SetStatus(codes.Error, "rate limited")
			return nil, err
		}
	}

	history := req.History
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	fresh := req.ConversationID == ""
	convID := req.ConversationID
	if fresh {
		convID = uuid.NewString()
	}
	session := a.mem.Get(convID)
	session.Prepopulate(history)
	if session.Len() > 0 {
		history = session.Messages()
	}

	mode := router.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "auto" {
		mode = router.ModeAuto
	}
	route := a.router.Classify(router.Input{Message: req.Message, History: history, Mode: mode})
	if a.hooks.Routed != nil {
		a.hooks.Routed(string(route.Intent), route.Rule)
	}
	span.SetAttributes(
		attribute.String("intent", string(route.Intent)),
		attribute.String("rule", route.Rule),
		attribute.Bool("new_conversation", fresh),
	)

	var snap *sheet.Snapshot
	if req.Sheet != nil && len(req.Sheet.Cells) > 0 && !route.SkipsSheetContext() {
		snap = sheet.NewSnapshot(*req.Sheet)
	}

	log := a.log.With().Str("conversation_id", convID).Str("intent", string(route.Intent)).Logger()
	log.Info().Int("history", len(history)).Int("cells", snapCells(snap)).Str("rule", route.Rule).Msg("chat request")

	bg := a.startBackground(ctx, backgroundJob{
		fresh:   fresh,
		convID:  convID,
		userID:  user,
		title:   req.Message,
		chart:   route.Intent == router.IntentChart,
		message: req.Message,
		snap:    snap,
	})

	resp := &Response{ConversationID: convID, MessageID: uuid.NewString(), Route: route}
	err := a.answer(ctx, req.Message, route, snap, history, session, resp)
	bgErr := bg.wait(a.joinTimeout)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if bgErr != nil {
		log.Error().Err(bgErr).Msg("background work failed")
		span.SetStatus(codes.Error, bgErr.Error())
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, bgErr)
	}
	if bg.chartConfig != nil {
		resp.ChartConfig = bg.chartConfig
	}

	if snap != nil {
		meta := snap.Meta
		resp.Metadata = &meta
		if fresh && route.Intent != router.IntentGreeting {
			resp.QuickActions = router.QuickActions(snap)
		}
	}
	if len(resp.Actions) == 0 {
		resp.Clarification = router.DetectClarification(resp.Content, resp.Metadata, req.Sheets, history)
	}

	session.Add(req.Message, resp.Content)
	if resp.Source != "" {
		session.SetSource(resp.Source)
	}
	log.Info().
		Int("content_len", len(resp.Content)).
		Int("actions", len(resp.Actions)).
		Bool("chart", resp.ChartConfig != nil).
		Str("source", resp.Source).
		Msg("chat response")
	return resp, nil
}

func (a *Assistant) check(req Request) error {
	if msg := validation.ValidateStruct(req); msg != "" {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}
	if req.Sheet != nil && len(req.Sheet.Cells) > a.maxCells {
		return fmt.Errorf("%w: sheet data too large (%d cells), maximum is %d", ErrInvalidRequest, len(req.Sheet.Cells), a.maxCells)
	}
	return nil
}

// answer fills the content, actions and trace of resp along the route.
func (a *Assistant) answer(ctx context.Context, message string, route router.Route, snap *sheet.Snapshot, history []memory.Message, session *memory.Session, resp *Response) error {
	switch route.Intent {
	case router.IntentAgent, router.IntentChart:
		if a.agent != nil {
			return a.runAgent(ctx, message, snap, history, session, resp)
		}
	}
	return a.chat(ctx, message, snap, history, resp)
}

func (a *Assistant) runAgent(ctx context.Context, message string, snap *sheet.Snapshot, history []memory.Message, session *memory.Session, resp *Response) error {
	var res agent.Result
	err := a.pool.Do(ctx, func(ctx context.Context) error {
		res = a.agent.Run(ctx, agent.Request{Message: message, History: session.Transcript(), Snapshot: snap})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	if res.Termination == agent.TerminationError {
		a.log.Error().Err(res.Err).Msg("reasoning loop failed, falling back to chat")
		return a.chat(ctx, message, snap, history, resp)
	}

	resp.Content = res.Answer
	resp.Source = "agent"
	resp.Actions = res.Actions
	resp.Verification = res.Verification
	resp.ReasoningSteps = res.Trace
	resp.Termination = res.Termination
	resp.Iterations = res.Iterations
	return nil
}

func (a *Assistant) chat(ctx context.Context, message string, snap *sheet.Snapshot, history []memory.Message, resp *Response) error {
	var out llm.Completion
	err := a.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.llm.Chat(ctx, history, message, snap.Context())
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	content := out.Text
	if cleaned, act, ok := router.ExtractAction(content); ok {
		raw, err := actions.Marshal(act)
		if err == nil {
			content = cleaned
			resp.SheetAction = raw
		}
	}
	resp.Content = content
	resp.Source = out.Source
	return nil
}

func snapCells(s *sheet.Snapshot) int {
	if s == nil || s.Grid == nil {
		return 0
	}
	return s.Grid.Len()
}
