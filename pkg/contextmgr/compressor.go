package contextmgr

import (
	"context"
	"strings"

	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// DefaultKeepRecent — сколько последних сообщений summary не трогает.
const DefaultKeepRecent = 4

// DefaultSummaryInstruction — запрос к модели на сжатие истории.
const DefaultSummaryInstruction = "Summarize the conversation above into a concise paragraph. " +
	"Keep names, facts, decisions, open questions and anything the user asked to remember. " +
	"Write in the language of the conversation. Output only the summary."

// Compressor уменьшает историю.
//
// Compress не возвращает ошибку: при любой проблеме возвращается вход.
type Compressor interface {
	Compress(ctx context.Context, messages []llm.Message) []llm.Message
}

// LLMSummaryCompressor заменяет середину истории кратким изложением от модели.
type LLMSummaryCompressor struct {
	provider    llm.Provider
	keepRecent  int
	instruction string
	opts        []llm.GenerateOption
}

var _ Compressor = (*LLMSummaryCompressor)(nil)

// NewLLMSummaryCompressor создаёт компрессор. keepRecent <= 0 означает DefaultKeepRecent.
func NewLLMSummaryCompressor(provider llm.Provider, keepRecent int, opts ...llm.GenerateOption) *LLMSummaryCompressor {
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	return &LLMSummaryCompressor{
		provider:    provider,
		keepRecent:  keepRecent,
		instruction: DefaultSummaryInstruction,
		opts:        opts,
	}
}

// WithInstruction заменяет инструкцию для модели.
func (c *LLMSummaryCompressor) WithInstruction(s string) *LLMSummaryCompressor {
	if s != "" {
		c.instruction = s
	}
	return c
}

// Compress возвращает [system?, summary, последние keepRecent сообщений].
//
// Ничего не делает, если сообщений не больше keepRecent+1. При ошибке
// провайдера или пустом ответе возвращает исходную историю.
func (c *LLMSummaryCompressor) Compress(ctx context.Context, messages []llm.Message) []llm.Message {
	if c.provider == nil || len(messages) <= c.keepRecent+1 {
		return messages
	}

	var system *llm.Message
	rest := messages
	if messages[0].Role == llm.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}
	if len(rest) <= c.keepRecent {
		return messages
	}

	middle := rest[:len(rest)-c.keepRecent]
	tail := rest[len(rest)-c.keepRecent:]

	request := make([]llm.Message, 0, len(middle)+1)
	request = append(request, middle...)
	request = append(request, llm.Message{Role: llm.RoleUser, Content: c.instruction})

	resp, err := c.provider.TextChat(ctx, request, c.opts...)
	if err != nil {
		utils.Warn("Context summary failed, keeping history",
			"error", err,
			"messages", len(messages))
		return messages
	}
	summary := ""
	if resp != nil {
		summary = strings.TrimSpace(resp.CompletionText)
	}
	if summary == "" {
		utils.Warn("Context summary is empty, keeping history", "messages", len(messages))
		return messages
	}

	out := make([]llm.Message, 0, len(tail)+2)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: summary})
	out = append(out, tail...)

	utils.Debug("Context summarized",
		"before", len(messages),
		"after", len(out),
		"summarized", len(middle))
	return out
}

// TurnsCompressor удаляет самые старые ходы без обращения к модели.
type TurnsCompressor struct {
	turns int
}

var _ Compressor = TurnsCompressor{}

// NewTurnsCompressor создаёт компрессор, удаляющий turns ходов за раз.
func NewTurnsCompressor(turns int) TurnsCompressor {
	if turns <= 0 {
		turns = 1
	}
	return TurnsCompressor{turns: turns}
}

// Compress удаляет turns самых старых ходов.
func (c TurnsCompressor) Compress(_ context.Context, messages []llm.Message) []llm.Message {
	return TruncateByTurns(messages, c.turns)
}
