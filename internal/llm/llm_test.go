package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/vinodismyname/sheetmind/config"
	"github.com/vinodismyname/sheetmind/internal/actions"
	"github.com/vinodismyname/sheetmind/internal/memory"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fn    func(n int, req Request) (string, error)

	mu   sync.Mutex
	last Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.fn(n, req)
}

func (f *fakeProvider) lastUserText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last.Messages[len(f.last.Messages)-1].Content
}

func answer(text string) func(int, Request) (string, error) {
	return func(int, Request) (string, error) { return text, nil }
}

func failing(int, Request) (string, error) { return "", errors.New("boom") }

func newService(opts Options, tiers ...Provider) *Service {
	return NewService(tiers, opts)
}

func TestComplete_FirstTierAnswers(t *testing.T) {
	a := &fakeProvider{name: "a", fn: answer("The average age is 30.")}
	b := &fakeProvider{name: "b", fn: answer("unused")}
	svc := newService(Options{}, a, b)

	c, err := svc.Complete(context.Background(), Call{Message: "what is the average age?"})
	require.NoError(t, err)
	require.Equal(t, Completion{Text: "The average age is 30.", Source: "a"}, c)
	require.EqualValues(t, 0, b.calls.Load())
	require.Equal(t, []string{"a", "b"}, svc.Tiers())
}

func TestComplete_RefusalRetriedOnSameTier(t *testing.T) {
	a := &fakeProvider{name: "a", fn: func(n int, req Request) (string, error) {
		if strings.Contains(req.Messages[len(req.Messages)-1].Content, "Do NOT say you cannot") {
			return "There are 8 rows.", nil
		}
		return "I cannot view your spreadsheet.", nil
	}}
	b := &fakeProvider{name: "b", fn: answer("unused")}

	c, err := newService(Options{}, a, b).Complete(context.Background(), Call{Message: "how many rows are there?"})
	require.NoError(t, err)
	require.Equal(t, "There are 8 rows.", c.Text)
	require.True(t, c.Retried)
	require.EqualValues(t, 2, a.calls.Load())
	require.EqualValues(t, 0, b.calls.Load())
}

func TestComplete_PersistentRefusalFallsThrough(t *testing.T) {
	a := &fakeProvider{name: "a", fn: answer("As an AI, I don't have access to files.")}
	b := &fakeProvider{name: "b", fn: answer("Total is 2100.")}

	c, err := newService(Options{}, a, b).Complete(context.Background(), Call{Message: "total revenue?"})
	require.NoError(t, err)
	require.Equal(t, "b", c.Source)
	require.False(t, c.Retried)
	require.EqualValues(t, 2, a.calls.Load())
}

func TestComplete_FinalTierTakenAsIs(t *testing.T) {
	only := &fakeProvider{name: "only", fn: answer("I can't do that.")}

	c, err := newService(Options{}, only).Complete(context.Background(), Call{Message: "sum it"})
	require.NoError(t, err)
	require.Equal(t, "I can't do that.", c.Text)
	require.EqualValues(t, 1, only.calls.Load())
}

func TestComplete_ErrorsFallThroughThenUnavailable(t *testing.T) {
	a := &fakeProvider{name: "a", fn: failing}
	b := &fakeProvider{name: "b", fn: answer("ok")}
	c, err := newService(Options{}, a, b).Complete(context.Background(), Call{Message: "hi there"})
	require.NoError(t, err)
	require.Equal(t, "b", c.Source)

	x := &fakeProvider{name: "x", fn: failing}
	y := &fakeProvider{name: "y", fn: failing}
	_, err = newService(Options{}, x, y).Complete(context.Background(), Call{Message: "hi there"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.EqualValues(t, 1, x.calls.Load())
	require.EqualValues(t, 1, y.calls.Load())

	_, err = newService(Options{}).Complete(context.Background(), Call{Message: "hi"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestComplete_TierTimeout(t *testing.T) {
	slow := ProviderFunc{ID: "slow", Fn: func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	fast := &fakeProvider{name: "fast", fn: answer("done")}

	var mu sync.Mutex
	outcomes := map[string]string{}
	svc := newService(Options{
		Timeout: 20 * time.Millisecond,
		Observe: func(tier, outcome string, _ time.Duration) {
			mu.Lock()
			outcomes[tier] = outcome
			mu.Unlock()
		},
	}, slow, fast)

	c, err := svc.Complete(context.Background(), Call{Message: "anything"})
	require.NoError(t, err)
	require.Equal(t, "fast", c.Source)
	require.Equal(t, map[string]string{"slow": OutcomeError, "fast": OutcomeOK}, outcomes)
}

func TestComplete_ProviderSeesDeadline(t *testing.T) {
	var deadline atomic.Bool
	p := ProviderFunc{ID: "p", Fn: func(ctx context.Context, _ Request) (string, error) {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return "ok", nil
	}}
	_, err := newService(Options{}, p).Complete(context.Background(), Call{Message: "ping"})
	require.NoError(t, err)
	require.True(t, deadline.Load())
}

func TestComplete_Caps(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer(strings.Repeat("x", 40))}
	svc := newService(Options{MaxMessageChars: 30, MaxContextChars: 8, MaxResponseChars: 10}, p)

	c, err := svc.Complete(context.Background(), Call{
		Message: strings.Repeat("q", 50),
		Context: "0123456789abcdef",
	})
	require.NoError(t, err)
	require.True(t, c.Truncated)
	require.Equal(t, strings.Repeat("x", 10)+"\n\n[Response truncated]", c.Text)
	require.Equal(t, "SPREADSHEET DATA:\n01234567\n\nQUESTION:\n"+strings.Repeat("q", 30), p.lastUserText())
}

func TestComplete_MessageLayout(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("ok")}
	svc := newService(Options{Temperature: 0.3}, p)
	history := []memory.Message{
		{Role: "system", Content: "ignored"},
		{Role: memory.RoleUser, Content: "sort the sales by amount"},
		{Role: memory.RoleAssistant, Content: ""},
		{Role: memory.RoleAssistant, Content: "Sorted ascending."},
	}
	_, err := svc.Complete(context.Background(), Call{System: "sys", History: history, Message: "total revenue for the year?"})
	require.NoError(t, err)

	p.mu.Lock()
	req := p.last
	p.mu.Unlock()
	require.Equal(t, "sys", req.System)
	require.Equal(t, 0.3, req.Temperature)
	require.Equal(t, 2000, req.MaxTokens)
	require.Equal(t, []memory.Message{
		{Role: memory.RoleUser, Content: "sort the sales by amount"},
		{Role: memory.RoleAssistant, Content: "Sorted ascending."},
		{Role: memory.RoleUser, Content: "total revenue for the year?"},
	}, req.Messages)
}

func TestEnrichShortMessage(t *testing.T) {
	history := []memory.Message{
		{Role: memory.RoleUser, Content: "sort the sales by amount"},
		{Role: memory.RoleAssistant, Content: "Sorted ascending by column F."},
	}
	got := EnrichShortMessage("descending", history)
	require.Equal(t, "[CONTEXT FROM PREVIOUS MESSAGES - use this to understand the follow-up below]\n"+
		"Previous user message: sort the sales by amount\n"+
		"Previous AI response: Sorted ascending by column F.\n"+
		"\n[CURRENT FOLLOW-UP MESSAGE]\ndescending", got)

	require.Equal(t, "descending", EnrichShortMessage("descending", nil))
	long := "please sort it the other way around"
	require.Equal(t, long, EnrichShortMessage(long, history))

	huge := []memory.Message{{Role: memory.RoleAssistant, Content: strings.Repeat("a", 500)}}
	got = EnrichShortMessage("yes", huge)
	require.Contains(t, got, "Previous AI response: "+strings.Repeat("a", 300)+"\n")
	require.NotContains(t, got, "Previous user message")
}

func TestIsRefusal(t *testing.T) {
	require.True(t, IsRefusal("I'm unable to open the file."))
	require.True(t, IsRefusal("Sorry, as a language model I can only guess."))
	require.False(t, IsRefusal("The total is 42."))
	require.False(t, IsRefusal(strings.Repeat("Revenue rose. ", 20)+"I cannot stress this enough."))
}

func TestUnwrapJSON(t *testing.T) {
	require.Equal(t, `{"a":1}`, UnwrapJSON("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, UnwrapJSON("  {\"a\":1} "))
	require.Equal(t, `{"a":1}`, UnwrapJSON("```\n{\"a\":1}\n```\ntrailing"))
}

func TestFixFormula(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("```json\n{\"fixed_formula\":\"=VLOOKUP(A2,B2:D50,2,FALSE)\",\"what_was_wrong\":\"typo\",\"explanation\":\"looks up\"}\n```")}
	svc := newService(Options{}, p)
	fr, err := svc.FixFormula(context.Background(), "=VLOKUP(A2,B:D,2,FALSE)", "#NAME?", "")
	require.NoError(t, err)
	require.Equal(t, FixResult{FixedFormula: "=VLOOKUP(A2,B2:D50,2,FALSE)", WhatWasWrong: "typo", Explanation: "looks up"}, fr)
	require.Equal(t, "Broken formula:\n=VLOKUP(A2,B:D,2,FALSE)\n\nError message:\n#NAME?", p.lastUserText())

	raw := &fakeProvider{name: "raw", fn: answer("Use VLOOKUP instead.")}
	fr, err = newService(Options{}, raw).FixFormula(context.Background(), "=X()", "bad", "Sheet1")
	require.NoError(t, err)
	require.Equal(t, FixResult{WhatWasWrong: "Could not parse AI response", Explanation: "Use VLOOKUP instead."}, fr)
	require.True(t, strings.HasSuffix(raw.lastUserText(), "\n\nSheet context:\nSheet1"))
}

func TestExplainEnhancedFallback(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("It sums column B.")}
	ex, err := newService(Options{}, p).ExplainEnhanced(context.Background(), "=SUM(B2:B9)")
	require.NoError(t, err)
	require.Equal(t, "It sums column B.", ex.Summary)
	require.Equal(t, ex.Summary, ex.FullExplanation)
	require.Empty(t, ex.Steps)
	require.NotNil(t, ex.Steps)
	require.Nil(t, ex.SimplerAlternative)
}

func TestAgentPlan(t *testing.T) {
	plan := "```json\n" + `{"thinking":"group","steps":[` +
		`{"step":1,"description":"sheet","action":{"action":"createSheet","name":"Summary"}},` +
		`{"step":2,"description":"keys","action":{"action":"setFormula","sheet":"Summary","cell":"A2","formula":"=UNIQUE(Data!A2:A9)"}},` +
		`{"step":3,"description":"bad","action":{"action":"teleport"}}` +
		`],"verification":"check","summary":"done"}` + "\n```"
	p := &fakeProvider{name: "p", fn: answer(plan)}
	svc := newService(Options{}, p)

	got, err := svc.AgentPlan(context.Background(), nil, "sum sales by region", "Active sheet: Data")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "done", got.Summary)
	list, problems := got.Actions()
	require.Len(t, list, 2)
	require.Equal(t, actions.CreateSheet{Name: "Summary"}, list[0])
	require.Len(t, problems, 1)
	require.True(t, strings.HasPrefix(problems[0], "Step 3: "))

	notPlan := &fakeProvider{name: "n", fn: answer("Sure, here is how.")}
	got, err = newService(Options{}, notPlan).AgentPlan(context.Background(), nil, "sum sales by region", "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGenerateChart(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("```json\n{\"type\":\"pie\",\"data\":{\"labels\":[\"East\"]}}\n```")}
	cfg, err := newService(Options{}, p).GenerateChart(context.Background(), map[string]any{"East": 3}, "pie", "Expenses")
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"pie","data":{"labels":["East"]}}`, string(cfg.Config))
	require.Contains(t, p.lastUserText(), "Chart type requested: pie\nChart title: Expenses")
	require.Contains(t, p.lastUserText(), `Data:
{"East":3}`)

	bad := &fakeProvider{name: "b", fn: answer("no chart")}
	cfg, err = newService(Options{}, bad).GenerateChart(context.Background(), []int{1}, "", "")
	require.NoError(t, err)
	require.Nil(t, cfg.Config)
	require.Equal(t, "no chart", cfg.Raw)
}

func TestFormulaCompletion(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("  Positive \n")}
	got, err := newService(Options{}, p).FormulaCompletion(context.Background(), "classify sentiment", [][]any{{"great product"}, {"ok", 3}})
	require.NoError(t, err)
	require.Equal(t, "Positive", got)
	require.Equal(t, "SPREADSHEET DATA:\nCell data:\n  Row 1: [\"great product\"]\n  Row 2: [\"ok\",3]\n\n\nQUESTION:\nclassify sentiment", p.lastUserText())
}

func TestServiceAsModel(t *testing.T) {
	p := &fakeProvider{name: "p", fn: answer("Thought: done\nFinal Answer: 42")}
	svc := newService(Options{}, p)

	text, err := llms.GenerateFromSinglePrompt(context.Background(), svc, "Question: total?",
		llms.WithStopWords([]string{"\nObservation:"}), llms.WithTemperature(0.2))
	require.NoError(t, err)
	require.Equal(t, "Thought: done\nFinal Answer: 42", text)

	p.mu.Lock()
	req := p.last
	p.mu.Unlock()
	require.Equal(t, []string{"\nObservation:"}, req.Stop)
	require.Equal(t, 0.2, req.Temperature)
	require.Equal(t, []memory.Message{{Role: memory.RoleUser, Content: "Question: total?"}}, req.Messages)
}

type fakeModel struct {
	got  []llms.MessageContent
	opts llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.got = msgs
	for _, o := range options {
		o(&m.opts)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "from langchain"}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangChainProvider(t *testing.T) {
	m := &fakeModel{}
	p := NewLangChain("", m)
	require.Equal(t, "langchain", p.Name())

	text, err := p.Complete(context.Background(), Request{
		System:      "sys",
		Messages:    []memory.Message{{Role: memory.RoleUser, Content: "q1"}, {Role: memory.RoleAssistant, Content: "a1"}, {Role: memory.RoleUser, Content: "q2"}},
		Temperature: 0.3,
		MaxTokens:   100,
	})
	require.NoError(t, err)
	require.Equal(t, "from langchain", text)
	require.Len(t, m.got, 4)
	require.Equal(t, llms.ChatMessageTypeSystem, m.got[0].Role)
	require.Equal(t, llms.ChatMessageTypeAI, m.got[2].Role)
	require.Equal(t, 100, m.opts.MaxTokens)

	back := requestFromContent(m.got, m.opts)
	require.Equal(t, "sys", back.System)
	require.Len(t, back.Messages, 3)
	require.Equal(t, memory.RoleAssistant, back.Messages[1].Role)
}

func TestClipKeepsRunes(t *testing.T) {
	require.Equal(t, "ab", clip("abé", 3))
	require.Equal(t, "abé", clip("abé", 4))
	require.Equal(t, "abc", clip("abc", 0))
}

func TestTiersFromConfig(t *testing.T) {
	require.Empty(t, TiersFromConfig(context.Background(), config.ProvidersConfig{}, zerolog.Nop()))

	tiers := TiersFromConfig(context.Background(), config.ProvidersConfig{
		OpenAIAPIKey: "sk-test",
		OpenAIModel:  "gpt-4o-mini",
		OllamaModel:  "llama3.2",
		OllamaURL:    "http://127.0.0.1:11434",
	}, zerolog.Nop())
	names := make([]string, len(tiers))
	for i, p := range tiers {
		names[i] = p.Name()
	}
	require.Equal(t, []string{"openai", "ollama"}, names)
}
