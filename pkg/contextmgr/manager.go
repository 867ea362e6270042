package contextmgr

import (
	"context"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// CompressionThreshold — доля лимита, после которой нужно сжатие.
const CompressionThreshold = 0.82

// Disabled — значение лимита, отключающее управление контекстом.
const Disabled = -1

// Manager удерживает историю в пределах контекста модели.
//
// Не хранит состояния между вызовами и безопасен для конкурентного использования,
// если безопасны Compressor и TokenCounter.
type Manager struct {
	counter    TokenCounter
	compressor Compressor
}

// NewManager создаёт Manager. nil counter означает EstimateCounter,
// nil compressor отключает сжатие (остаётся деление пополам).
func NewManager(counter TokenCounter, compressor Compressor) *Manager {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Manager{counter: counter, compressor: compressor}
}

// FromConfig собирает Manager по provider_settings.
//
// Для llm_summary нужен provider; без него сжатие сводится к делению пополам.
func FromConfig(ps config.ProviderSettings, provider llm.Provider) *Manager {
	var compressor Compressor
	switch ps.CompressStrategy {
	case config.CompressTruncateByTurn:
		compressor = NewTurnsCompressor(ps.TruncateTurns)
	default:
		if provider != nil {
			compressor = NewLLMSummaryCompressor(provider, ps.CompressKeepRecent)
		}
	}
	return NewManager(EstimateCounter{}, compressor)
}

// Counter возвращает используемый TokenCounter.
func (m *Manager) Counter() TokenCounter {
	return m.counter
}

// Process возвращает подготовленную историю. Вход не изменяется.
//
// Алгоритм:
//  1. limit == -1: вернуть как есть
//  2. Если tokens/limit > 0.82: Compressor, затем (если всё ещё больше)
//     удаление старшей половины не-системных сообщений
//  3. Всегда: MergeConsecutive, CleanToolCalls, TruncateByCount(maxKeep)
func (m *Manager) Process(ctx context.Context, messages []llm.Message, limit, maxKeep int) []llm.Message {
	if limit == Disabled {
		return messages
	}

	out := llm.Clone(messages)

	if limit > 0 && m.overThreshold(out, limit) {
		before := len(out)
		if m.compressor != nil {
			out = m.compressor.Compress(ctx, out)
		}
		if m.overThreshold(out, limit) {
			out = HalveNonSystem(out)
		}
		utils.Info("Context compressed",
			"before", before,
			"after", len(out),
			"tokens", m.counter.Count(out),
			"limit", limit)
	}

	out = MergeConsecutive(out)
	out = CleanToolCalls(out)
	out = TruncateByCount(out, maxKeep)
	return out
}

// NeedsCompression сообщает, превышен ли порог для limit.
func (m *Manager) NeedsCompression(messages []llm.Message, limit int) bool {
	if limit <= 0 {
		return false
	}
	return m.overThreshold(messages, limit)
}

func (m *Manager) overThreshold(messages []llm.Message, limit int) bool {
	return float64(m.counter.Count(messages))/float64(limit) > CompressionThreshold
}
