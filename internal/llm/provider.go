package llm

import (
	"context"
	"errors"

	"github.com/vinodismyname/sheetmind/internal/memory"
)

// ErrUnavailable is returned when every completion tier failed.
var ErrUnavailable = errors.New("AI service unavailable. Please try again later.")

// ErrEmptyResponse is returned by adapters when a provider answered with no
// text at all.
var ErrEmptyResponse = errors.New("llm: empty response")

// Request is one completion call in provider-neutral form. Messages are the
// history followed by the current user turn.
type Request struct {
	System      string
	Messages    []memory.Message
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Provider is one completion tier. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (string, error)
}

func (p ProviderFunc) Name() string { return p.ID }

func (p ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return p.Fn(ctx, req)
}

// lastUser returns the index of the final user message, or -1.
func lastUser(msgs []memory.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == memory.RoleUser {
			return i
		}
	}
	return -1
}
