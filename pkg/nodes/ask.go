package nodes

import (
	"context"
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// Ask задаёт вопрос (настройка question) и приостанавливает цепочку.
//
// Следующее сообщение того же собеседника возобновляет цепочку с этого
// узла: текст ответа становится TEXT выходом, цепочка продолжается.
type Ask struct{}

// ConfigDefaults реализует chain.SchemaProvider.
func (Ask) ConfigDefaults() map[string]any {
	return map[string]any{"question": "?"}
}

// Process реализует chain.Node.
func (Ask) Process(ctx context.Context, call *chain.Call) (chain.Result, error) {
	if call.Resumed() {
		call.SetOutput(chain.TextPacket(call.Event.MessageStr()))
		return chain.ResultContinue, nil
	}

	question := call.ConfigString("question", "?")
	if err := call.Send(ctx, platform.NewTextResult(question)); err != nil {
		return 0, fmt.Errorf("send question: %w", err)
	}
	return chain.ResultWait, nil
}
