// Базовые типы - универсальный язык общения с моделями.
package llm

// Role — роль автора сообщения.
type Role string

// Роли chat-completion API.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Типы частей мультимодального содержимого.
const (
	TypeText  = "text"
	TypeImage = "image_url"
)

// Message — одно сообщение истории в формате chat-completion.
//
// Content — строковое содержимое. Если Parts не nil, сообщение мультимодальное
// и Content игнорируется провайдером.
type Message struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content,omitempty"`
	Parts      []ContentPart `json:"parts,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// IsMultimodal сообщает, задано ли содержимое списком частей.
func (m Message) IsMultimodal() bool {
	return m.Parts != nil
}

// ContentPart — часть мультимодального сообщения (текст или картинка).
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ToolCall — вызов функции, запрошенный моделью.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall — имя функции и сырые JSON аргументы.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response — ответ модели.
type Response struct {
	// CompletionText — текст ответа.
	CompletionText string

	// ToolCalls — вызовы функций, если модель их запросила.
	ToolCalls []ToolCall
}

// Clone возвращает глубокую копию списка сообщений.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Parts != nil {
			out[i].Parts = append([]ContentPart{}, m.Parts...)
		}
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall{}, m.ToolCalls...)
		}
	}
	return out
}
