// Package state хранит историю разговоров для LLM узлов.
//
// Ключ разговора — UMO (unified message origin). Реализации должны быть
// thread-safe: одну историю читают и дописывают задачи pipeline разных
// событий одного разговора.
package state

import "github.com/ilkoid/poncho-relay/pkg/llm"

// MessageRepository — история диалогов, ключ — UMO.
type MessageRepository interface {
	// Append добавляет сообщения в конец истории разговора.
	Append(umo string, msgs ...llm.Message)

	// History возвращает копию истории (nil, если разговора нет).
	History(umo string) []llm.Message

	// Replace заменяет историю целиком (например, после сжатия контекста).
	Replace(umo string, msgs []llm.Message)

	// Reset удаляет историю и возвращает число удалённых сообщений.
	Reset(umo string) int

	// Conversations возвращает ключи разговоров с непустой историей.
	Conversations() []string
}
