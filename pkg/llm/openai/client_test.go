package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// TestNewClient тестирует создание клиента.
func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		modelDef    config.ModelDef
		wantLimiter bool
	}{
		{
			name:     "minimal config",
			modelDef: config.ModelDef{APIKey: "test-key", ModelName: "gpt-4"},
		},
		{
			name: "with custom base url and rate limit",
			modelDef: config.ModelDef{
				APIKey:    "test-key",
				ModelName: "deepseek-chat",
				BaseURL:   "https://api.deepseek.com/v1",
				RateLimit: 60,
			},
			wantLimiter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.modelDef)
			require.NotNil(t, client)
			assert.Equal(t, tt.modelDef.ModelName, client.defaults.Model)
			assert.NotNil(t, client.api)
			assert.Equal(t, tt.wantLimiter, client.limiter != nil)
		})
	}
}

// TestMapToOpenAI тестирует конвертацию сообщений.
func TestMapToOpenAI(t *testing.T) {
	t.Run("simple text message", func(t *testing.T) {
		msg := mapToOpenAI(llm.Message{Role: llm.RoleUser, Content: "Hello"})
		assert.Equal(t, "user", msg.Role)
		assert.Equal(t, "Hello", msg.Content)
		assert.Nil(t, msg.MultiContent)
	})

	t.Run("message with tool calls", func(t *testing.T) {
		msg := mapToOpenAI(llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:       "call_123",
				Function: llm.FunctionCall{Name: "test_tool", Arguments: `{"a":1}`},
			}},
		})
		require.Len(t, msg.ToolCalls, 1)
		assert.Equal(t, "call_123", msg.ToolCalls[0].ID)
		assert.Equal(t, "function", string(msg.ToolCalls[0].Type))
		assert.Equal(t, "test_tool", msg.ToolCalls[0].Function.Name)
	})

	t.Run("multimodal message", func(t *testing.T) {
		msg := mapToOpenAI(llm.Message{
			Role: llm.RoleUser,
			Parts: []llm.ContentPart{
				{Type: llm.TypeText, Text: "what is it?"},
				{Type: llm.TypeImage, ImageURL: "http://example.com/a.jpg"},
			},
		})
		require.Len(t, msg.MultiContent, 2)
		assert.Equal(t, "", msg.Content)
		assert.Equal(t, "http://example.com/a.jpg", msg.MultiContent[1].ImageURL.URL)
	})

	t.Run("tool result message", func(t *testing.T) {
		msg := mapToOpenAI(llm.Message{Role: llm.RoleTool, ToolCallID: "call_123", Content: "ok"})
		assert.Equal(t, "tool", msg.Role)
		assert.Equal(t, "call_123", msg.ToolCallID)
	})
}

// TestTextChat_FakeServer проверяет полный цикл запроса на локальном сервере.
func TestTextChat_FakeServer(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		gotModel, _ = req["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "fake",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "summary text"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(config.ModelDef{
		APIKey:    "test-key",
		ModelName: "default-model",
		BaseURL:   srv.URL,
		RateLimit: 600,
	})

	resp, err := client.TextChat(context.Background(),
		[]llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		llm.WithModel("override-model"))
	require.NoError(t, err)
	assert.Equal(t, "summary text", resp.CompletionText)
	assert.Equal(t, "override-model", gotModel)
}

// TestTextChat_ServerError — ошибка API возвращается, а не паникует.
func TestTextChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	client := NewClient(config.ModelDef{APIKey: "k", ModelName: "m", BaseURL: srv.URL})
	_, err := client.TextChat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api error")
}
