// Package nodes — встроенные узлы цепочек.
//
//   - echo      — отвечает входом узла или текстом сообщения
//   - ask       — отправляет вопрос и ждёт следующего сообщения (WAIT)
//   - llm_chat  — диалог с LLM с историей и сжатием контекста
package nodes

import (
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/contextmgr"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/models"
	"github.com/ilkoid/poncho-relay/pkg/prompt"
	"github.com/ilkoid/poncho-relay/pkg/state"
)

// Имена встроенных узлов.
const (
	EchoName    = "echo"
	AskName     = "ask"
	LLMChatName = "llm_chat"
)

// Deps — зависимости встроенных узлов.
type Deps struct {
	Provider llm.Provider     // nil — берётся Models.Default()
	Models   *models.Registry // алиасы для настройки "model"
	Prompts  *prompt.Cache
	History  state.MessageRepository
	Context  *contextmgr.Manager
	Settings config.ProviderSettings
}

// RegisterBuiltins регистрирует echo, ask и llm_chat.
func RegisterBuiltins(reg *chain.Registry, deps Deps) error {
	builtins := []struct {
		name string
		node chain.Node
	}{
		{EchoName, Echo{}},
		{AskName, Ask{}},
		{LLMChatName, NewLLMChat(deps)},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.node); err != nil {
			return fmt.Errorf("register builtin node: %w", err)
		}
	}
	return nil
}
