package nodes

import (
	"context"

	"github.com/ilkoid/poncho-relay/pkg/chain"
)

// Echo отвечает текстом входа (выход ближайшего выполненного узла)
// или, если входа нет, текстом сообщения. Настройка prefix добавляется в начало.
type Echo struct{}

// ConfigDefaults реализует chain.SchemaProvider.
func (Echo) ConfigDefaults() map[string]any {
	return map[string]any{"prefix": ""}
}

// Process реализует chain.Node.
func (Echo) Process(ctx context.Context, call *chain.Call) (chain.Result, error) {
	text := call.Event.MessageStr()
	if in := call.Input(); in != nil {
		if s := in.AsText(); s != "" {
			text = s
		}
	}
	if text == "" {
		return chain.ResultSkip, nil
	}
	call.SetOutput(chain.TextPacket(call.ConfigString("prefix", "") + text))
	return chain.ResultContinue, nil
}
