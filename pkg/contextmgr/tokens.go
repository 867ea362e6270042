// Package contextmgr удерживает историю LLM разговора в пределах контекста модели.
//
// Manager.Process выполняет:
//  1. Оценку токенов (TokenCounter)
//  2. Сжатие, если занято больше 82% лимита (Compressor), затем деление
//     пополам, если сжатия не хватило
//  3. Финальную обработку, всегда: склейка подряд идущих сообщений одной роли,
//     чистка tool_calls без ответов, обрезка по количеству
//
// Ошибки провайдера при сжатии не пробрасываются: история возвращается как есть.
package contextmgr

import (
	"encoding/json"

	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// Веса оценки токенов на символ.
const (
	cjkTokenWeight   = 0.6
	otherTokenWeight = 0.3
)

// TokenCounter оценивает размер истории в токенах.
type TokenCounter interface {
	Count(messages []llm.Message) int
}

// EstimateCounter — эвристическая оценка без токенизатора.
//
// Иероглиф CJK (U+4E00..U+9FFF) весит 0.6 токена, любой другой символ 0.3.
// Оценка каждого текстового фрагмента округляется вниз.
type EstimateCounter struct{}

var _ TokenCounter = EstimateCounter{}

// Count суммирует оценку по содержимому, частям и tool_calls всех сообщений.
func (EstimateCounter) Count(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		if m.IsMultimodal() {
			for _, p := range m.Parts {
				if p.Type == llm.TypeText {
					total += EstimateText(p.Text)
				}
			}
		} else {
			total += EstimateText(m.Content)
		}

		for _, tc := range m.ToolCalls {
			data, err := json.Marshal(tc)
			if err != nil {
				total += EstimateText(tc.Function.Name + tc.Function.Arguments)
				continue
			}
			total += EstimateText(string(data))
		}
	}
	return total
}

// EstimateText оценивает одну строку.
func EstimateText(s string) int {
	cjk, other := 0, 0
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)*cjkTokenWeight + float64(other)*otherTokenWeight)
}
