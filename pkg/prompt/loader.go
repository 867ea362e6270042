// Загрузка и Рендер - чтение файла и text/template.

package prompt

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// Load загружает и парсит YAML файл промпта
func Load(path string) (*PromptFile, error) {
	// 1. Проверяем наличие
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("prompt file not found: %s", path)
	}

	// 2. Читаем байты
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	// 3. Парсим YAML
	var pf PromptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}

	if err := pf.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &pf, nil
}

// Validate проверяет роли и шаблоны сообщений.
func (pf *PromptFile) Validate() error {
	if len(pf.Messages) == 0 {
		return fmt.Errorf("prompt has no messages")
	}
	for i, msg := range pf.Messages {
		switch llm.Role(msg.Role) {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return fmt.Errorf("message #%d: unsupported role %q", i, msg.Role)
		}
		if _, err := template.New("msg").Parse(msg.Content); err != nil {
			return fmt.Errorf("template parse error in message #%d (%s): %w", i, msg.Role, err)
		}
	}
	return nil
}

// RenderMessages принимает данные (struct или map) и возвращает готовые сообщения
// где все {{.Field}} заменены на значения.
func (pf *PromptFile) RenderMessages(data any) ([]llm.Message, error) {
	rendered := make([]llm.Message, len(pf.Messages))

	for i, msg := range pf.Messages {
		content, err := Render(msg.Content, data)
		if err != nil {
			return nil, fmt.Errorf("message #%d (%s): %w", i, msg.Role, err)
		}
		rendered[i] = llm.Message{
			Role:    llm.Role(msg.Role),
			Content: content,
		}
	}

	return rendered, nil
}

// Render выполняет один шаблон. Текст без "{{" возвращается как есть.
func Render(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execute error: %w", err)
	}
	return buf.String(), nil
}

// Cache хранит загруженные файлы промптов по пути.
//
// Файлы читаются один раз; Reset сбрасывает кеш (например, при перезагрузке цепочек).
type Cache struct {
	mu    sync.RWMutex
	files map[string]*PromptFile
}

// NewCache создаёт пустой кеш.
func NewCache() *Cache {
	return &Cache{files: make(map[string]*PromptFile)}
}

// Get возвращает файл из кеша или загружает его.
func (c *Cache) Get(path string) (*PromptFile, error) {
	c.mu.RLock()
	pf, ok := c.files[path]
	c.mu.RUnlock()
	if ok {
		return pf, nil
	}

	pf, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.files[path] = pf
	c.mu.Unlock()
	return pf, nil
}

// Reset очищает кеш.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.files = make(map[string]*PromptFile)
	c.mu.Unlock()
}
