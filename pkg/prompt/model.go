// Структуры данных - описывает формат YAML файла промпта.
package prompt

import "time"

// PromptFile описывает структуру YAML-файла с промптом.
type PromptFile struct {
	Config   PromptConfig `yaml:"config"`
	Messages []Message    `yaml:"messages"`
}

// PromptConfig - настройки модели для конкретного промпта.
type PromptConfig struct {
	Model       string  `yaml:"model"` // Алиас из models.definitions или имя модели в API
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Message - одно сообщение в чате.
type Message struct {
	Role    string `yaml:"role"`    // system, user, assistant
	Content string `yaml:"content"` // Шаблон с {{.Variables}}
}

// Data — переменные, доступные в шаблонах промптов.
type Data struct {
	SenderName string
	SenderID   string
	GroupID    string
	PlatformID string
	UMO        string
	ChainID    string
	Time       time.Time
}
