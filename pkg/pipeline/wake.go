package pipeline

import (
	"strings"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// WakeDetector решает, адресовано ли сообщение боту.
//
// Событие разбужено, если:
//   - текст начинается с wake-префикса (кроме случая, когда первый сегмент
//     упоминает не бота); префикс срезается с MessageStr
//   - бот упомянут, упомянуты все (если не ignore_at_all) или это ответ боту
//   - это личное сообщение и friend_message_needs_wake_prefix выключен
type WakeDetector struct {
	Prefixes              []string
	FriendNeedsWakePrefix bool
	IgnoreAtAll           bool
}

// Detect вычисляет пробуждение и помечает событие.
func (w *WakeDetector) Detect(event *platform.MessageEvent) bool {
	comps := event.Messages()
	text := event.MessageStr()
	woken := false

	if !(len(comps) > 0 && comps[0].Type == platform.ComponentAt && comps[0].Target != event.SelfID()) {
		trimmed := strings.TrimLeft(text, " ")
		for _, p := range w.Prefixes {
			if p != "" && strings.HasPrefix(trimmed, p) {
				event.SetMessageStr(strings.TrimSpace(trimmed[len(p):]))
				woken = true
				break
			}
		}
	}

	if !woken {
		for _, c := range comps {
			switch c.Type {
			case platform.ComponentAt:
				woken = event.SelfID() != "" && c.Target == event.SelfID()
			case platform.ComponentAtAll:
				woken = !w.IgnoreAtAll
			case platform.ComponentReply:
				woken = event.SelfID() != "" && c.SenderID == event.SelfID()
			}
			if woken {
				break
			}
		}
		if woken {
			event.SetMessageStr(strings.TrimSpace(event.MessageStr()))
		}
	}

	if !woken && event.IsPrivateChat() && !w.FriendNeedsWakePrefix {
		woken = true
	}

	if woken {
		event.SetAtOrWakeCommand(true)
		event.SetWake(true)
	}
	return woken
}
