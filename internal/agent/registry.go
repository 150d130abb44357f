package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownTool is returned when a tool name is not registered.
var ErrUnknownTool = errors.New("agent: unknown tool")

// Handler runs one tool call against the invocation. The returned string is
// the observation fed back to the model; failures are observations too.
type Handler func(ctx context.Context, inv *Invocation, args json.RawMessage) string

// Tool describes one callable operation.
type Tool struct {
	Name        string
	Description string
	// Schema is the JSON schema of the argument object.
	Schema string
	// Primary names the argument a bare text input is bound to. Tools
	// without one require a JSON object.
	Primary string
	// InvalidInput is the error reported when input cannot be parsed.
	InvalidInput string
	Handler      Handler

	compiled *jsonschema.Schema
}

// Registry maps tool names to tools and keeps registration order for
// prompts.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register compiles the tool's schema and stores it. Registering a name twice
// replaces the earlier tool in place.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("agent: tool needs a name and handler")
	}
	if t.Schema == "" {
		t.Schema = `{"type":"object"}`
	}
	compiled, err := jsonschema.CompileString(t.Name+".schema.json", t.Schema)
	if err != nil {
		return fmt.Errorf("agent: compile schema for %s: %w", t.Name, err)
	}
	t.compiled = compiled
	if t.InvalidInput == "" {
		t.InvalidInput = "Invalid JSON input"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = &t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Catalog renders "name: description" lines for prompts.
func (r *Registry) Catalog() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lines := make([]string, 0, len(r.order))
	for _, n := range r.order {
		lines = append(lines, n+": "+r.tools[n].Description)
	}
	return strings.Join(lines, "\n")
}

// Call resolves the raw model input into an argument object, validates it
// against the tool schema and runs the handler. Every failure, including a
// panicking handler, comes back as an error observation.
func (r *Registry) Call(ctx context.Context, inv *Invocation, name, input string) (obs string, err error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	args, msg := t.arguments(input)
	if msg != "" {
		return errorObservation(msg), nil
	}
	defer func() {
		if p := recover(); p != nil {
			obs = errorObservation(fmt.Sprintf("tool %s failed: %v", name, p))
		}
	}()
	return t.Handler(ctx, inv, args), nil
}

func (t *Tool) arguments(input string) (json.RawMessage, string) {
	obj, ok := ParseObject(input)
	if !ok {
		text := unquote(stripParamPrefix(input))
		switch {
		case t.Primary != "" && text != "":
			obj = map[string]any{t.Primary: text}
		case t.Primary == "" && !t.requiresInput():
			// No-argument tools ignore whatever filler text the model sends.
			obj = map[string]any{}
		default:
			return nil, t.InvalidInput
		}
	}
	if err := t.compiled.Validate(any(obj)); err != nil {
		return nil, t.InvalidInput + ": " + firstLine(err.Error())
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, t.InvalidInput
	}
	return raw, ""
}

func (t *Tool) requiresInput() bool {
	return strings.Contains(t.Schema, `"required"`)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// typed adapts a handler over a decoded argument struct.
func typed[T any](fn func(ctx context.Context, inv *Invocation, in T) string) Handler {
	return func(ctx context.Context, inv *Invocation, args json.RawMessage) string {
		var in T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return errorObservation("Invalid input: " + err.Error())
			}
		}
		return fn(ctx, inv, in)
	}
}
