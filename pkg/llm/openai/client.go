// Package openai реализует адаптер LLM провайдера для OpenAI-совместимых API.
//
// Используется summary-компрессором контекста и узлом llm_chat.
// Работает только через интерфейс llm.Provider.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Client реализует интерфейс llm.Provider для OpenAI-совместимых API.
//
// Запросы ограничиваются rate.Limiter, если в ModelDef задан rate_limit
// (запросов в минуту), по аналогии с лимитерами WB клиента.
type Client struct {
	api      *openai.Client
	defaults llm.GenerateOptions
	timeout  time.Duration
	limiter  *rate.Limiter
}

// Проверка что Client реализует llm.Provider
var _ llm.Provider = (*Client)(nil)

// NewClient создает OpenAI клиент на основе конфигурации модели.
//
// Поддерживает custom BaseURL для non-OpenAI провайдеров (DeepSeek, Zai и т.д.).
func NewClient(modelDef config.ModelDef) *Client {
	cfg := openai.DefaultConfig(modelDef.APIKey)
	if modelDef.BaseURL != "" {
		cfg.BaseURL = modelDef.BaseURL
	}

	c := &Client{
		api: openai.NewClientWithConfig(cfg),
		defaults: llm.GenerateOptions{
			Model:       modelDef.ModelName,
			Temperature: modelDef.Temperature,
			MaxTokens:   modelDef.MaxTokens,
		},
		timeout: modelDef.Timeout,
	}

	if modelDef.RateLimit > 0 {
		burst := modelDef.BurstLimit
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(modelDef.RateLimit)), burst)
	}

	return c
}

// TextChat выполняет запрос к API и возвращает ответ модели.
//
// Алгоритм:
//  1. Ждёт слот rate limiter (уважая ctx)
//  2. Конвертирует сообщения в формат OpenAI SDK
//  3. Вызывает API с таймаутом модели
//  4. Конвертирует ответ обратно
func (c *Client) TextChat(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.Response, error) {
	startTime := time.Now()
	options := llm.ApplyOptions(c.defaults, opts...)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	openaiMsgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		openaiMsgs[i] = mapToOpenAI(m)
	}

	req := openai.ChatCompletionRequest{
		Model:       options.Model,
		Messages:    openaiMsgs,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}

	utils.Debug("LLM request started",
		"model", options.Model,
		"messages_count", len(messages))

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		utils.Error("LLM API request failed",
			"error", err,
			"model", options.Model,
			"duration_ms", time.Since(startTime).Milliseconds())
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0].Message
	result := &llm.Response{CompletionText: choice.Content}

	if len(choice.ToolCalls) > 0 {
		result.ToolCalls = make([]llm.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			result.ToolCalls[i] = llm.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	utils.Info("LLM response received",
		"model", options.Model,
		"tool_calls_count", len(result.ToolCalls),
		"content_length", len(result.CompletionText),
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}

// mapToOpenAI конвертирует наше внутреннее сообщение в формат SDK.
//
// Мультимодальные сообщения (Parts != nil) превращаются в MultiContent.
func mapToOpenAI(m llm.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}

	if m.IsMultimodal() {
		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case llm.TypeImage:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    p.ImageURL,
						Detail: openai.ImageURLDetailAuto,
					},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		msg.MultiContent = parts
	} else {
		msg.Content = m.Content
	}

	for _, tc := range m.ToolCalls {
		typ := openai.ToolType(tc.Type)
		if typ == "" {
			typ = openai.ToolTypeFunction
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return msg
}
