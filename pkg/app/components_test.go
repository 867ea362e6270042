package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/chainstore"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

const testConfig = `
wake_prefix: ["/"]
admins_id: ["admin"]
chains:
  source: inline
  inline:
    - chain_id: greet
      sort_order: 10
      match_rule:
        type: condition
        condition: {type: text_regex, value: "^hello"}
      nodes:
        - name: echo
          config: {prefix: "echo: "}
    - chain_id: chat
      sort_order: 1
      nodes: [llm_chat]
`

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(ctx context.Context, e *platform.MessageEvent, r *platform.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r.Text())
	return nil
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fixedProvider struct{ reply string }

func (p fixedProvider) TextChat(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{CompletionText: p.reply}, nil
}

func newComponents(t *testing.T, opts Options) (*Components, *recordingSender) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	sender := &recordingSender{}
	if opts.Sender == nil {
		opts.Sender = sender
	}
	c, err := Initialize(context.Background(), cfg, opts)
	require.NoError(t, err)
	return c, sender
}

func TestInitialize_RequiresSender(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	_, err = Initialize(context.Background(), cfg, Options{})
	assert.Error(t, err)
}

func TestInitialize_LoadsInlineChains(t *testing.T) {
	c, _ := newComponents(t, Options{Provider: fixedProvider{reply: "hi"}})

	var ids []string
	for _, ch := range c.Router.Chains() {
		ids = append(ids, ch.ID)
	}
	assert.Equal(t, []string{"greet", "chat", chain.DefaultChainID}, ids)
	assert.ElementsMatch(t, []string{"ask", "echo", "llm_chat"}, c.Registry.List())
	assert.True(t, c.Limiter.Enabled(), "default rate limit is applied")
}

func TestHandle_RoutesByText(t *testing.T) {
	c, sender := newComponents(t, Options{Provider: fixedProvider{reply: "from model"}})

	out := c.Handle(context.Background(), ConsoleEvent("hello there"))
	assert.Equal(t, pipeline.StatusSent, out.Status)
	assert.Equal(t, "greet", out.ChainID)

	out = c.Handle(context.Background(), ConsoleEvent("what is up"))
	assert.Equal(t, pipeline.StatusSent, out.Status)
	assert.Equal(t, "chat", out.ChainID)

	assert.Equal(t, []string{"echo: hello there", "from model"}, sender.Sent())
	assert.Len(t, c.History.Conversations(), 1)
}

func TestHandle_ResetCommandClearsHistory(t *testing.T) {
	c, sender := newComponents(t, Options{Provider: fixedProvider{reply: "ok"}})

	c.Handle(context.Background(), ConsoleEvent("remember me"))
	out := c.Handle(context.Background(), ConsoleEvent("/reset"))
	assert.Equal(t, pipeline.StatusSent, out.Status)
	assert.True(t, out.Handled)
	assert.Empty(t, c.History.Conversations())
	assert.Equal(t, "История очищена (2 сообщений)", sender.Sent()[1])
}

func TestRun_DrainsBusOnClose(t *testing.T) {
	var mu sync.Mutex
	var outcomes []pipeline.Status
	c, sender := newComponents(t, Options{
		Provider: fixedProvider{reply: "x"},
		OnOutcome: func(e *platform.MessageEvent, out pipeline.Outcome) {
			mu.Lock()
			outcomes = append(outcomes, out.Status)
			mu.Unlock()
		},
	})

	require.NoError(t, c.Bus.Publish(ConsoleEvent("hello 1")))
	require.NoError(t, c.Bus.Publish(ConsoleEvent("hello 2")))
	c.Bus.Close()

	require.NoError(t, c.Run(context.Background()))
	assert.ElementsMatch(t, []string{"echo: hello 1", "echo: hello 2"}, sender.Sent())
	mu.Lock()
	assert.Equal(t, []pipeline.Status{pipeline.StatusSent, pipeline.StatusSent}, outcomes)
	mu.Unlock()
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _ := newComponents(t, Options{Provider: fixedProvider{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestReloadChains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	store := chainstore.NewFileStore(path)
	c, sender := newComponents(t, Options{Provider: fixedProvider{reply: "model"}, Store: store})

	assert.Equal(t, []string{chain.DefaultChainID}, chainIDs(c.Router.Chains()))

	require.NoError(t, os.WriteFile(path, []byte(`
- chain_id: all
  nodes:
    - name: echo
      config: {prefix: "file: "}
`), 0o644))
	active, err := c.ReloadChains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"all", chain.DefaultChainID}, chainIDs(active))

	c.Handle(context.Background(), ConsoleEvent("ping"))
	assert.Equal(t, []string{"file: ping"}, sender.Sent())
}

func TestRunConsole(t *testing.T) {
	var out bytes.Buffer
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	c, err := Initialize(context.Background(), cfg, Options{
		Sender:   NewConsoleSender(&out),
		Provider: fixedProvider{reply: "model says"},
	})
	require.NoError(t, err)

	in := strings.NewReader("hello world\n\nanything\nquit\nnever read\n")
	require.NoError(t, RunConsole(context.Background(), c, in, &out, "> "))

	text := out.String()
	assert.Contains(t, text, "echo: hello world\n")
	assert.Contains(t, text, "model says\n")
	assert.Contains(t, text, "Goodbye!")
	assert.NotContains(t, text, "never read")
}

func chainIDs(chains []*chain.Config) []string {
	out := make([]string, 0, len(chains))
	for _, c := range chains {
		out = append(out, c.ID)
	}
	return out
}

func TestHandle_WritesDebugTrace(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "traces")
	cfg.App.Debug = true
	cfg.App.DebugDir = dir

	c, err := Initialize(context.Background(), cfg, Options{
		Sender:   &recordingSender{},
		Provider: fixedProvider{reply: "ok"},
	})
	require.NoError(t, err)
	require.NotNil(t, c.Recorder)

	out := c.Handle(context.Background(), ConsoleEvent("hello trace"))
	require.Equal(t, pipeline.StatusSent, out.Status)

	files, err := filepath.Glob(filepath.Join(dir, "trace_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chain_id": "greet"`)
	assert.Contains(t, string(data), `"status": "sent"`)
	assert.Contains(t, string(data), `"echo: hello trace"`)
	assert.Equal(t, 0, c.Recorder.Pending())
}

func TestInitialize_ModelRegistry(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig + `
models:
  default_chat: main
  definitions:
    main: {provider: openai, model_name: gpt-4o-mini, api_key: test}
    alt: {provider: deepseek, model_name: deepseek-chat, api_key: test}
`))
	require.NoError(t, err)

	c, err := Initialize(context.Background(), cfg, Options{Sender: &recordingSender{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alt", "main"}, c.Models.ListNames())
	assert.NotNil(t, c.LLM)
}

func TestConsoleSender_Wraps(t *testing.T) {
	tests := []struct {
		name  string
		width int
		text  string
		want  string
	}{
		{"latin", 11, "hello there world", "hello there\nworld"},
		{"cyrillic fits by characters", 10, "привет мир", "привет мир"},
		{"cjk counts two columns per character", 9, "你好 世界 再见", "你好 世界\n再见"},
		{"long word is cut", 4, "abcdefghij", "abcd\nefgh\nij"},
		{"disabled", 0, "hello there world", "hello there world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := NewConsoleSender(&out)
			s.Width = tt.width

			require.NoError(t, s.Send(context.Background(), ConsoleEvent("hi"), platform.NewTextResult(tt.text)))
			assert.Equal(t, tt.want+"\n", out.String())
		})
	}
}
