package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ilkoid/poncho-relay/pkg/chain"
)

// HistoryResetter очищает историю разговора.
type HistoryResetter interface {
	Reset(umo string) int
}

// BuiltinPlugin — имя плагина встроенных команд для plugin_filter.
const BuiltinPlugin = "builtin"

// RegisterBuiltinCommands регистрирует команды:
//   - help            — список команд, доступных в цепочке
//   - reset           — очистить историю llm_chat (если history != nil)
//   - chains          — порядок маршрутизации (только администраторы)
func RegisterBuiltinCommands(reg *HandlerRegistry, router *chain.Router, history HistoryResetter) error {
	cmds := []Handler{
		{
			Name:        "help",
			Description: "список команд",
			Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
				var sb strings.Builder
				sb.WriteString("Команды:")
				for _, h := range hc.Handlers.Visible(hc.Chain) {
					if h.Kind != HandlerCommand || (h.AdminOnly && !hc.Event.IsAdmin()) {
						continue
					}
					fmt.Fprintf(&sb, "\n%s — %s", h.Name, h.Description)
				}
				hc.Reply(sb.String())
				return true, nil
			},
		},
		{
			Name:        "chains",
			Description: "порядок маршрутизации цепочек",
			AdminOnly:   true,
			Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
				var sb strings.Builder
				for i, c := range router.Chains() {
					state := "on"
					if !c.Enabled {
						state = "off"
					}
					if i > 0 {
						sb.WriteString("\n")
					}
					fmt.Fprintf(&sb, "%d. %s [%s] sort=%d nodes=%d", i+1, c.ID, state, c.SortOrder, len(c.Nodes))
				}
				hc.Reply(sb.String())
				return true, nil
			},
		},
	}

	if history != nil {
		cmds = append(cmds, Handler{
			Name:        "reset",
			Description: "очистить историю разговора",
			Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
				n := history.Reset(hc.Event.UnifiedMsgOrigin())
				hc.Reply(fmt.Sprintf("История очищена (%d сообщений)", n))
				return true, nil
			},
		})
	}

	for _, h := range cmds {
		h.Plugin = BuiltinPlugin
		h.Kind = HandlerCommand
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
