package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/contextmgr"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/models"
	"github.com/ilkoid/poncho-relay/pkg/prompt"
	"github.com/ilkoid/poncho-relay/pkg/state"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// ErrNoProvider — модель для llm_chat не настроена.
var ErrNoProvider = errors.New("llm_chat: no provider configured")

// LLMChat — диалог с моделью.
//
// Для каждого вызова:
//  1. Пропускается (SKIP), если в цепочке выключен llm_enabled
//  2. Собирает [префикс, история разговора, новое сообщение]; префикс —
//     system_prompt или сообщения prompt_file, оба рендерятся как text/template
//  3. Прогоняет через contextmgr.Manager (сжатие, склейка, обрезка)
//  4. Вызывает Provider.TextChat, ответ становится TEXT выходом
//  5. Сохраняет сжатую историю с ответом, без префикса
//
// Настройки узла: system_prompt, prompt_file, model, max_context_length,
// max_messages_to_keep. model — алиас из models.definitions; неизвестное
// имя передаётся провайдеру по умолчанию как имя модели в API.
type LLMChat struct {
	provider llm.Provider
	models   *models.Registry
	prompts  *prompt.Cache
	history  state.MessageRepository
	ctxmgr   *contextmgr.Manager
	settings config.ProviderSettings
}

// NewLLMChat создаёт узел.
func NewLLMChat(deps Deps) *LLMChat {
	history := deps.History
	if history == nil {
		history = state.NewMemoryStore(0)
	}
	provider := deps.Provider
	if provider == nil && deps.Models != nil {
		provider = deps.Models.Default()
	}
	mgr := deps.Context
	if mgr == nil {
		mgr = contextmgr.FromConfig(deps.Settings, provider)
	}
	prompts := deps.Prompts
	if prompts == nil {
		prompts = prompt.NewCache()
	}
	return &LLMChat{
		provider: provider,
		models:   deps.Models,
		prompts:  prompts,
		history:  history,
		ctxmgr:   mgr,
		settings: deps.Settings,
	}
}

// History возвращает хранилище истории (для команды reset).
func (n *LLMChat) History() state.MessageRepository {
	return n.history
}

// Initialize реализует chain.Initializable.
func (n *LLMChat) Initialize(ctx context.Context, chainID string) error {
	if n.provider == nil {
		return ErrNoProvider
	}
	utils.Debug("llm_chat initialized", "chain_id", chainID)
	return nil
}

// ConfigDefaults реализует chain.SchemaProvider.
func (n *LLMChat) ConfigDefaults() map[string]any {
	return map[string]any{
		"system_prompt":        n.settings.SystemPrompt,
		"prompt_file":          "",
		"model":                "",
		"max_context_length":   n.settings.MaxContextLength,
		"max_messages_to_keep": n.settings.MaxMessagesToKeep,
	}
}

// Process реализует chain.Node.
func (n *LLMChat) Process(ctx context.Context, call *chain.Call) (chain.Result, error) {
	if !call.Chain.LLMEnabled {
		return chain.ResultSkip, nil
	}

	text := call.Event.MessageStr()
	if in := call.Input(); in != nil {
		if s := in.AsText(); s != "" {
			text = s
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return chain.ResultSkip, nil
	}

	umo := call.Event.UnifiedMsgOrigin()
	prefix, promptCfg, err := n.prefix(call)
	if err != nil {
		return 0, fmt.Errorf("llm_chat: %w", err)
	}

	msgs := llm.Clone(prefix)
	msgs = append(msgs, n.history.History(umo)...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text, Name: call.Event.SenderName()})

	limit := call.ConfigInt("max_context_length", n.settings.MaxContextLength)
	maxKeep := call.ConfigInt("max_messages_to_keep", n.settings.MaxMessagesToKeep)
	msgs = n.ctxmgr.Process(ctx, msgs, limit, maxKeep)

	provider, opts := n.selectModel(call.ConfigString("model", ""), promptCfg)

	start := time.Now()
	resp, err := provider.TextChat(ctx, msgs, opts...)
	if err != nil {
		return 0, fmt.Errorf("llm_chat: %w", err)
	}
	reply := strings.TrimSpace(resp.CompletionText)
	utils.Debug("llm_chat reply",
		"umo", umo,
		"messages", len(msgs),
		"duration_ms", time.Since(start).Milliseconds())

	stored := append(llm.Clone(trimPrefix(msgs, prefix)), llm.Message{Role: llm.RoleAssistant, Content: reply})
	n.history.Replace(umo, stored)

	if reply == "" {
		return chain.ResultContinue, nil
	}
	call.SetOutput(chain.TextPacket(reply))
	return chain.ResultContinue, nil
}

// prefix собирает сообщения перед историей: prompt_file, если задан, иначе
// system_prompt.
func (n *LLMChat) prefix(call *chain.Call) ([]llm.Message, prompt.PromptConfig, error) {
	ev := call.Event
	data := prompt.Data{
		SenderName: ev.SenderName(),
		SenderID:   ev.SenderID(),
		GroupID:    ev.GroupID(),
		PlatformID: ev.PlatformID(),
		UMO:        ev.UnifiedMsgOrigin(),
		ChainID:    call.Chain.ID,
		Time:       time.Now(),
	}

	if path := call.ConfigString("prompt_file", ""); path != "" {
		pf, err := n.prompts.Get(path)
		if err != nil {
			return nil, prompt.PromptConfig{}, err
		}
		msgs, err := pf.RenderMessages(data)
		if err != nil {
			return nil, prompt.PromptConfig{}, fmt.Errorf("render %s: %w", path, err)
		}
		return msgs, pf.Config, nil
	}

	systemPrompt, err := prompt.Render(call.ConfigString("system_prompt", n.settings.SystemPrompt), data)
	if err != nil {
		return nil, prompt.PromptConfig{}, fmt.Errorf("system_prompt: %w", err)
	}
	if systemPrompt == "" {
		return nil, prompt.PromptConfig{}, nil
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, prompt.PromptConfig{}, nil
}

// selectModel выбирает провайдера по алиасу; настройка узла важнее prompt_file.
func (n *LLMChat) selectModel(model string, pc prompt.PromptConfig) (llm.Provider, []llm.GenerateOption) {
	provider := n.provider
	var opts []llm.GenerateOption

	if model == "" {
		model = pc.Model
	}
	if model != "" {
		if n.models != nil && n.models.Has(model) {
			provider, _, _ = n.models.Get(model)
		} else {
			opts = append(opts, llm.WithModel(model))
		}
	}
	if pc.Temperature > 0 {
		opts = append(opts, llm.WithTemperature(pc.Temperature))
	}
	if pc.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(pc.MaxTokens))
	}
	return provider, opts
}

// trimPrefix отрезает от msgs ведущие сообщения, совпадающие с prefix.
func trimPrefix(msgs, prefix []llm.Message) []llm.Message {
	i := 0
	for i < len(prefix) && i < len(msgs) && sameMessage(msgs[i], prefix[i]) {
		i++
	}
	return msgs[i:]
}

func sameMessage(a, b llm.Message) bool {
	return a.Role == b.Role && a.Content == b.Content && a.Name == b.Name && len(a.Parts) == 0 && len(b.Parts) == 0
}
