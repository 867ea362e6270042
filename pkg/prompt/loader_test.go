package prompt_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/prompt"
)

func writePrompt(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const greeterPrompt = `
config:
  model: fast
  temperature: 0.3
  max_tokens: 256
messages:
  - role: system
    content: "Ты помощник в чате {{.PlatformID}}. Собеседник: {{.SenderName}}."
  - role: user
    content: "Привет"
  - role: assistant
    content: "Здравствуйте!"
`

func TestLoadAndRender(t *testing.T) {
	pf, err := prompt.Load(writePrompt(t, greeterPrompt))
	require.NoError(t, err)
	assert.Equal(t, "fast", pf.Config.Model)
	assert.Equal(t, 256, pf.Config.MaxTokens)
	require.Len(t, pf.Messages, 3)

	msgs, err := pf.RenderMessages(prompt.Data{PlatformID: "telegram", SenderName: "Аня"})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "Ты помощник в чате telegram. Собеседник: Аня."},
		{Role: llm.RoleUser, Content: "Привет"},
		{Role: llm.RoleAssistant, Content: "Здравствуйте!"},
	}, msgs)
}

func TestLoad_Errors(t *testing.T) {
	_, err := prompt.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "prompt file not found")

	_, err = prompt.Load(writePrompt(t, "messages: [oops"))
	assert.ErrorContains(t, err, "yaml parse error")

	_, err = prompt.Load(writePrompt(t, "config:\n  model: x\n"))
	assert.ErrorContains(t, err, "no messages")

	_, err = prompt.Load(writePrompt(t, "messages:\n  - role: tool\n    content: hi\n"))
	assert.ErrorContains(t, err, "unsupported role")

	_, err = prompt.Load(writePrompt(t, "messages:\n  - role: system\n    content: \"{{.SenderName\"\n"))
	assert.ErrorContains(t, err, "template parse error")
}

func TestRender(t *testing.T) {
	out, err := prompt.Render("без шаблона {}", nil)
	require.NoError(t, err)
	assert.Equal(t, "без шаблона {}", out)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out, err = prompt.Render(`{{.ChainID}} {{.Time.Format "2006-01-02"}}`, prompt.Data{ChainID: "quiz", Time: ts})
	require.NoError(t, err)
	assert.Equal(t, "quiz 2024-05-01", out)

	_, err = prompt.Render("{{.Unknown}}", prompt.Data{})
	assert.ErrorContains(t, err, "template execute error")
}

func TestCache(t *testing.T) {
	path := writePrompt(t, greeterPrompt)
	cache := prompt.NewCache()

	first, err := cache.Get(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	second, err := cache.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	cache.Reset()
	_, err = cache.Get(path)
	assert.Error(t, err)
}
