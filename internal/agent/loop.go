package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/patterns"
	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// User-facing messages for loops that did not reach a final answer.
const (
	MsgTimeout       = "This request took too long. Try a simpler question or smaller dataset."
	MsgTooComplex    = "This request was too complex. Try breaking it into smaller steps."
	MsgUnexpectedErr = "Something went wrong while processing your request. Please try again."
)

// Termination records how a run ended.
type Termination string

const (
	TerminationFinal         Termination = "final_answer"
	TerminationTimeout       Termination = "timeout"
	TerminationMaxIterations Termination = "max_iterations"
	TerminationError         Termination = "error"
)

// Limits bounds one run. Whichever limit is hit first ends the loop.
type Limits struct {
	MaxIterations int
	MaxDuration   time.Duration
}

// DefaultLimits returns the configured reasoning budgets.
func DefaultLimits() Limits {
	return Limits{MaxIterations: config.DefaultAgentMaxIterations, MaxDuration: config.DefaultAgentMaxDuration}
}

// Step is one tool call in the reasoning trace.
type Step struct {
	Step      int    `json:"step"`
	Thought   string `json:"thought"`
	Tool      string `json:"tool"`
	ToolInput string `json:"tool_input"`
	Result    string `json:"result"`
}

// Request is one reasoning run.
type Request struct {
	Message  string
	History  string
	Snapshot *sheet.Snapshot
}

// Result is what a run produced. Runs never fail outright: budget and
// decider failures are reported through Termination and Answer.
type Result struct {
	Answer       string          `json:"response"`
	Actions      actions.List    `json:"actions"`
	Trace        []Step          `json:"reasoning_trace"`
	Verification *actions.Report `json:"verification,omitempty"`
	Termination  Termination     `json:"termination"`
	Iterations   int             `json:"iterations"`
	Err          error           `json:"-"`
}

// Hooks receive loop events; nil fields are skipped.
type Hooks struct {
	ToolCalled func(tool string)
	Finished   func(t Termination, iterations int)
}

// Options configures an Agent.
type Options struct {
	Limits  Limits
	Policy  actions.Policy
	Catalog *patterns.Catalog
	Logger  zerolog.Logger
	Hooks   Hooks
}

// Agent runs the think, act, observe loop against a tool registry.
type Agent struct {
	decider Decider
	tools   *Registry
	limits  Limits
	policy  actions.Policy
	catalog *patterns.Catalog
	log     zerolog.Logger
	hooks   Hooks
}

// New wires an agent. Zero limits fall back to the configured budgets.
func New(decider Decider, tools *Registry, opts Options) *Agent {
	def := DefaultLimits()
	if opts.Limits.MaxIterations <= 0 {
		opts.Limits.MaxIterations = def.MaxIterations
	}
	if opts.Limits.MaxDuration <= 0 {
		opts.Limits.MaxDuration = def.MaxDuration
	}
	if opts.Catalog == nil {
		opts.Catalog = patterns.Default()
	}
	return &Agent{
		decider: decider,
		tools:   tools,
		limits:  opts.Limits,
		policy:  opts.Policy,
		catalog: opts.Catalog,
		log:     opts.Logger,
		hooks:   opts.Hooks,
	}
}

// Run drives the loop to a final answer or a budget exit. On success the
// queued actions are verified and drained into the result.
func (a *Agent) Run(ctx context.Context, req Request) (res Result) {
	ctx, span := otel.Tracer("sheetmind/agent").Start(ctx, "agent.Run")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.limits.MaxDuration)
	defer cancel()

	inv := NewInvocation(req.Snapshot, a.catalog)
	log := a.log.With().Str("sheet", inv.SheetName()).Int("last_row", inv.LastRow()).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("reasoning loop panicked")
			res = a.abort(inv, res.Trace, res.Iterations, TerminationError, fmt.Errorf("agent: panic: %v", p))
		}
		span.SetAttributes(
			attribute.String("agent.termination", string(res.Termination)),
			attribute.Int("agent.iterations", res.Iterations),
			attribute.Int("agent.actions", len(res.Actions)),
		)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Termination))
		}
		if a.hooks.Finished != nil {
			a.hooks.Finished(res.Termination, res.Iterations)
		}
	}()

	var (
		scratch   strings.Builder
		trace     []Step
		corrected bool
	)
	for iter := 0; ; iter++ {
		if iter >= a.limits.MaxIterations {
			log.Warn().Int("iterations", iter).Msg("reasoning loop hit iteration limit")
			return a.abort(inv, trace, iter, TerminationMaxIterations, nil)
		}
		if ctx.Err() != nil {
			log.Warn().Int("iterations", iter).Msg("reasoning loop timed out")
			return a.abort(inv, trace, iter, TerminationTimeout, ctx.Err())
		}

		prompt, err := BuildPrompt(a.tools, inv, req.Message, req.History, scratch.String())
		if err != nil {
			return a.abort(inv, trace, iter, TerminationError, err)
		}
		d, err := a.decider.Decide(ctx, prompt)
		switch {
		case IsFormatError(err):
			log.Warn().Err(err).Int("iteration", iter+1).Msg("malformed model turn")
			writeTurn(&scratch, d.Thought, "", "", err.Error())
			continue
		case err != nil && ctx.Err() != nil:
			log.Warn().Int("iterations", iter+1).Msg("reasoning loop timed out")
			return a.abort(inv, trace, iter+1, TerminationTimeout, err)
		case err != nil:
			log.Error().Err(err).Int("iteration", iter+1).Msg("decider failed")
			return a.abort(inv, trace, iter+1, TerminationError, err)
		}

		if d.IsFinal {
			rep := inv.Queue.Verify(actions.VerifyOptions{
				Policy:      a.policy,
				LastRow:     inv.LastRow(),
				SourceSheet: inv.SheetName(),
			})
			if rep.Blocking && !corrected {
				// One corrective pass: drop the broken actions and let the
				// model re-issue them within the remaining budget.
				corrected = true
				inv.Queue.Discard(rep.BlockingActions)
				log.Warn().Strs("critical", rep.Critical).Msg("verification blocked plan, requesting correction")
				writeTurn(&scratch, d.Thought, "", "", correctionObservation(rep.Critical))
				continue
			}
			return Result{
				Answer:       d.Final,
				Actions:      inv.Queue.Drain(),
				Trace:        nonNilTrace(trace),
				Verification: &rep,
				Termination:  TerminationFinal,
				Iterations:   iter + 1,
			}
		}

		obs := a.call(ctx, inv, d, &log)
		trace = append(trace, Step{
			Step:      len(trace) + 1,
			Thought:   d.Thought,
			Tool:      d.Tool,
			ToolInput: truncate(d.Input, config.DefaultTraceToolInputCap),
			Result:    truncate(obs, config.DefaultTraceObservationCap),
		})
		writeTurn(&scratch, d.Thought, d.Tool, d.Input, obs)
	}
}

func (a *Agent) call(ctx context.Context, inv *Invocation, d Decision, log *zerolog.Logger) string {
	if a.hooks.ToolCalled != nil {
		a.hooks.ToolCalled(d.Tool)
	}
	obs, err := a.tools.Call(ctx, inv, d.Tool, d.Input)
	if errors.Is(err, ErrUnknownTool) {
		log.Warn().Str("tool", d.Tool).Msg("model requested unknown tool")
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", d.Tool, strings.Join(a.tools.Names(), ", "))
	}
	if err != nil {
		return errorObservation(err.Error())
	}
	return obs
}

// abort ends a run without a plan. Queued actions are discarded so a
// half-built plan never reaches the caller.
func (a *Agent) abort(inv *Invocation, trace []Step, iterations int, t Termination, err error) Result {
	inv.Queue.Reset()
	msg := MsgUnexpectedErr
	switch t {
	case TerminationTimeout:
		msg = MsgTimeout
	case TerminationMaxIterations:
		msg = MsgTooComplex
	}
	return Result{
		Answer:      msg,
		Actions:     actions.List{},
		Trace:       nonNilTrace(trace),
		Termination: t,
		Iterations:  iterations,
		Err:         err,
	}
}

func writeTurn(b *strings.Builder, thought, tool, input, obs string) {
	if thought != "" {
		b.WriteString("Thought: " + thought + "\n")
	}
	if tool != "" {
		b.WriteString("Action: " + tool + "\nAction Input: " + input + "\n")
	}
	b.WriteString("Observation: " + obs + "\n")
}

func correctionObservation(critical []string) string {
	return "Verification rejected the plan. These actions were removed: " +
		strings.Join(critical, "; ") +
		". Re-issue corrected versions of them, then give the Final Answer."
}

func nonNilTrace(t []Step) []Step {
	if t == nil {
		return []Step{}
	}
	return t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
