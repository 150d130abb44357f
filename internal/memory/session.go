package memory

import (
	"strings"
	"sync"
	"time"
)

// Conversation roles accepted in caller supplied history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of caller supplied conversation history.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// Exchange is a user message paired with the answer it received.
type Exchange struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// Session is the rolling short-term memory of one conversation. Only the
// most recent window exchanges are kept.
type Session struct {
	ID      string
	Created time.Time

	mu        sync.Mutex
	window    int
	exchanges []Exchange
	source    string
	clock     func() time.Time

	// lastUsed is guarded by the owning Manager's lock.
	lastUsed time.Time
}

func newSession(id string, window int, clock func() time.Time) *Session {
	now := clock()
	return &Session{ID: id, Created: now, lastUsed: now, window: window, clock: clock}
}

// Add records one exchange and drops the oldest past the window.
func (s *Session) Add(user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, Exchange{User: user, Assistant: assistant, At: s.clock()})
	if over := len(s.exchanges) - s.window; over > 0 {
		s.exchanges = append([]Exchange(nil), s.exchanges[over:]...)
	}
}

// Exchanges returns a copy of the retained exchanges, oldest first.
func (s *Session) Exchanges() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.exchanges...)
}

// Len is the number of retained exchanges.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}

// Window is the maximum number of exchanges kept.
func (s *Session) Window() int { return s.window }

// Clear forgets every exchange but keeps the session.
func (s *Session) Clear() {
	s.mu.Lock()
	s.exchanges = nil
	s.mu.Unlock()
}

// SetSource records which completion tier served the session last.
func (s *Session) SetSource(src string) {
	s.mu.Lock()
	s.source = src
	s.mu.Unlock()
}

// Source is the completion tier that served the session last.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Messages flattens the window into alternating user and assistant turns.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, 2*len(s.exchanges))
	for _, e := range s.exchanges {
		out = append(out, Message{Role: RoleUser, Content: e.User}, Message{Role: RoleAssistant, Content: e.Assistant})
	}
	return out
}

// Transcript renders the window as alternating Human/AI lines for prompts.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, e := range s.exchanges {
		b.WriteString("Human: " + e.User + "\n")
		b.WriteString("AI: " + e.Assistant + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Prepopulate seeds an empty session from caller history: every user turn
// followed by an assistant turn becomes one exchange. It returns the number
// of exchanges added; a session that already remembers something is left
// alone.
func (s *Session) Prepopulate(history []Message) int {
	if s.Len() > 0 {
		return 0
	}
	added := 0
	for i := 0; i+1 < len(history); i++ {
		if history[i].Role != RoleUser || history[i+1].Role != RoleAssistant {
			continue
		}
		if history[i].Content == "" || history[i+1].Content == "" {
			continue
		}
		s.Add(history[i].Content, history[i+1].Content)
		added++
		i++
	}
	return added
}
