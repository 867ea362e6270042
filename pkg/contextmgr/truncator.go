package contextmgr

import (
	"strings"

	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// HalveNonSystem удаляет старшую половину сообщений после ведущих системных.
//
// k — индекс первого не-системного сообщения; удаляются messages[k : k+(len-k)/2].
func HalveNonSystem(messages []llm.Message) []llm.Message {
	k := firstNonSystem(messages)
	if k < 0 {
		return messages
	}
	deleteCount := (len(messages) - k) / 2
	if deleteCount == 0 {
		return messages
	}

	out := make([]llm.Message, 0, len(messages)-deleteCount)
	out = append(out, messages[:k]...)
	out = append(out, messages[k+deleteCount:]...)
	return out
}

// MergeConsecutive склеивает подряд идущие user или assistant сообщения
// одной роли через перевод строки.
//
// Не склеиваются системные сообщения, сообщения с tool_calls или
// tool_call_id и мультимодальные. Name не учитывается: у склеенного
// сообщения остаётся Name первого.
func MergeConsecutive(messages []llm.Message) []llm.Message {
	if len(messages) < 2 {
		return messages
	}

	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		if n := len(out); n > 0 && mergeable(out[n-1], m) {
			prev := &out[n-1]
			prev.Content = strings.Join([]string{prev.Content, m.Content}, "\n")
			continue
		}
		out = append(out, m)
	}
	return out
}

func mergeable(a, b llm.Message) bool {
	if a.Role != b.Role {
		return false
	}
	if a.Role != llm.RoleUser && a.Role != llm.RoleAssistant {
		return false
	}
	if len(a.ToolCalls) > 0 || len(b.ToolCalls) > 0 || a.ToolCallID != "" || b.ToolCallID != "" {
		return false
	}
	return !a.IsMultimodal() && !b.IsMultimodal()
}

// CleanToolCalls удаляет tool_calls, на которые нет ответа role=tool.
//
// Последнее сообщение с tool_calls во всём списке не трогается: это вызов
// текущего хода, ответ на который ещё не получен. Assistant сообщение,
// оставшееся без tool_calls и без текста, удаляется. Ответы tool, чей
// tool_call_id больше не встречается ни в одном tool_call, тоже удаляются.
func CleanToolCalls(messages []llm.Message) []llm.Message {
	answered := make(map[string]struct{})
	lastWithCalls := -1
	for i, m := range messages {
		if m.Role == llm.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = struct{}{}
		}
		if len(m.ToolCalls) > 0 {
			lastWithCalls = i
		}
	}

	cleaned := make([]llm.Message, 0, len(messages))
	callIDs := make(map[string]struct{})
	for i, m := range messages {
		if len(m.ToolCalls) > 0 && i != lastWithCalls {
			kept := make([]llm.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if _, ok := answered[tc.ID]; ok {
					kept = append(kept, tc)
				}
			}
			if len(kept) == 0 && m.Content == "" && !m.IsMultimodal() {
				continue
			}
			if len(kept) == 0 {
				kept = nil
			}
			m.ToolCalls = kept
		}
		for _, tc := range m.ToolCalls {
			callIDs[tc.ID] = struct{}{}
		}
		cleaned = append(cleaned, m)
	}

	out := cleaned[:0]
	for _, m := range cleaned {
		if m.Role == llm.RoleTool {
			if _, ok := callIDs[m.ToolCallID]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// TruncateByCount оставляет все системные сообщения и последние
// (max - system) остальных в исходном порядке. max <= 0 отключает обрезку.
func TruncateByCount(messages []llm.Message, max int) []llm.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}

	system := 0
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system++
		}
	}
	keep := max - system
	if keep < 0 {
		keep = 0
	}

	// Индекс, начиная с которого не-системные сообщения сохраняются.
	nonSystemTotal := len(messages) - system
	skip := nonSystemTotal - keep

	out := make([]llm.Message, 0, system+keep)
	seen := 0
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			out = append(out, m)
			continue
		}
		if seen >= skip {
			out = append(out, m)
		}
		seen++
	}
	return out
}

// TruncateByTurns удаляет turns самых старых ходов.
//
// Ход начинается с user сообщения и включает всё до следующего user.
// Системные сообщения сохраняются, последний ход не удаляется никогда.
func TruncateByTurns(messages []llm.Message, turns int) []llm.Message {
	if turns <= 0 {
		return messages
	}

	var starts []int
	for i, m := range messages {
		if m.Role == llm.RoleUser {
			starts = append(starts, i)
		}
	}
	if len(starts) <= 1 {
		return messages
	}
	if turns > len(starts)-1 {
		turns = len(starts) - 1
	}
	cut := starts[turns]

	out := make([]llm.Message, 0, len(messages))
	for i, m := range messages {
		if i < cut && m.Role != llm.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func firstNonSystem(messages []llm.Message) int {
	for i, m := range messages {
		if m.Role != llm.RoleSystem {
			return i
		}
	}
	return -1
}
