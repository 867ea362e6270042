package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// HandlerKind — способ сопоставления обработчика с событием.
type HandlerKind int

const (
	// HandlerCommand — первое слово текста равно имени команды.
	// Срабатывает только для разбуженных событий.
	HandlerCommand HandlerKind = iota

	// HandlerPattern — текст совпадает с регулярным выражением.
	// Не требует пробуждения.
	HandlerPattern
)

const patternMatchTimeout = 200 * time.Millisecond

// HandlerFunc обрабатывает событие.
//
// handled=true вместе с установленным результатом завершает обработку
// без запуска цепочки.
type HandlerFunc func(ctx context.Context, hc *HandlerContext) (handled bool, err error)

// Handler — зарегистрированная команда или слушатель.
type Handler struct {
	Name        string
	Plugin      string // Имя плагина для plugin_filter цепочки
	Kind        HandlerKind
	Pattern     string // Для HandlerPattern
	Description string
	AdminOnly   bool
	Fn          HandlerFunc

	re *regexp2.Regexp
}

// HandlerContext — данные, доступные обработчику.
type HandlerContext struct {
	Event    *platform.MessageEvent
	Scope    *chain.Scope
	Chain    *chain.Config
	Args     []string
	Handlers *HandlerRegistry
}

// Reply устанавливает текстовый ответ.
func (hc *HandlerContext) Reply(text string) {
	hc.Event.SetResult(platform.NewTextResult(text))
}

// Match — обработчик, подошедший к событию, с разобранными аргументами.
type Match struct {
	Handler *Handler
	Args    []string
}

// HandlerRegistry — реестр команд и слушателей.
//
// Thread-safe: одновременные вызовы безопасны.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewHandlerRegistry создаёт пустой реестр.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]*Handler)}
}

// Register добавляет обработчик.
//
// Обработчик с тем же именем перезаписывается. Для HandlerPattern
// выражение компилируется сразу.
func (r *HandlerRegistry) Register(h Handler) error {
	if h.Name == "" {
		return fmt.Errorf("handler name is required")
	}
	if h.Fn == nil {
		return fmt.Errorf("handler '%s': function is required", h.Name)
	}
	if h.Plugin == "" {
		h.Plugin = h.Name
	}
	if h.Kind == HandlerPattern {
		re, err := regexp2.Compile(h.Pattern, regexp2.None)
		if err != nil {
			return fmt.Errorf("handler '%s': invalid pattern: %w", h.Name, err)
		}
		re.MatchTimeout = patternMatchTimeout
		h.re = re
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name] = &h
	return nil
}

// Visible возвращает обработчики, разрешённые plugin_filter цепочки, по имени.
func (r *HandlerRegistry) Visible(c *chain.Config) []*Handler {
	r.mu.RLock()
	out := make([]*Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		if c == nil || c.PluginFilter.Allows(h.Plugin) {
			out = append(out, h)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match находит обработчики для события в рамках цепочки.
//
// Команды требуют IsAtOrWakeCommand. Команды только для администраторов
// не совпадают для остальных отправителей.
func (r *HandlerRegistry) Match(event *platform.MessageEvent, c *chain.Config) []Match {
	text := strings.TrimSpace(event.MessageStr())
	fields := strings.Fields(text)

	var out []Match
	for _, h := range r.Visible(c) {
		if h.AdminOnly && !event.IsAdmin() {
			continue
		}
		switch h.Kind {
		case HandlerCommand:
			if !event.IsAtOrWakeCommand() || len(fields) == 0 || fields[0] != h.Name {
				continue
			}
			out = append(out, Match{Handler: h, Args: fields[1:]})

		case HandlerPattern:
			ok, err := h.re.MatchString(text)
			if err != nil || !ok {
				continue
			}
			out = append(out, Match{Handler: h, Args: fields})
		}
	}
	return out
}
