package pipeline

import (
	"context"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// DefaultPreprocessor — стандартная подготовка события.
//
//   - отбрасывает сообщения самого бота (ignore_bot_self_message)
//   - помечает отправителей из admins_id ролью admin
//   - в группах при unique_session делает сессию отдельной для каждого участника
type DefaultPreprocessor struct {
	IgnoreSelf    bool
	Admins        []string
	UniqueSession bool
}

var _ Preprocessor = (*DefaultPreprocessor)(nil)

// NewDefaultPreprocessor создаёт препроцессор из конфигурации.
func NewDefaultPreprocessor(cfg *config.AppConfig) *DefaultPreprocessor {
	return &DefaultPreprocessor{
		IgnoreSelf:    cfg.PlatformSettings.IgnoresSelfMessages(),
		Admins:        append([]string(nil), cfg.AdminsID...),
		UniqueSession: cfg.PlatformSettings.UniqueSession,
	}
}

// Preprocess реализует Preprocessor.
func (p *DefaultPreprocessor) Preprocess(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error) {
	if p.IgnoreSelf && event.SelfID() != "" && event.SenderID() == event.SelfID() {
		utils.Debug("Self message ignored", "event_id", event.ID())
		return Stop, nil
	}

	for _, id := range p.Admins {
		if id == event.SenderID() {
			event.SetRole(platform.RoleAdmin)
			break
		}
	}

	if p.UniqueSession && event.MessageType() == platform.GroupMessage && event.GroupID() != "" {
		event.SetSessionID(event.SenderID() + "_" + event.GroupID())
	}

	return Continue, nil
}
