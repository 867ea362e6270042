package platform

import "context"

// Sender — обратный канал адаптера платформы.
//
// Pipeline вызывает Send в конце обработки, если есть что отправить.
// Узлы могут отправлять промежуточные сообщения (например, вопрос перед WAIT).
type Sender interface {
	Send(ctx context.Context, event *MessageEvent, result *Result) error
}

// PreAcker — опциональная возможность адаптера: подтвердить приём
// (например, поставить реакцию-эмодзи) до долгой обработки.
type PreAcker interface {
	PreAck(ctx context.Context, event *MessageEvent, emoji string) error
}

// SenderFunc — функциональная обёртка над Sender.
type SenderFunc func(ctx context.Context, event *MessageEvent, result *Result) error

// Send вызывает функцию.
func (f SenderFunc) Send(ctx context.Context, event *MessageEvent, result *Result) error {
	return f(ctx, event, result)
}

// WaitKey строит ключ разговора для WaitRegistry.
//
// Ключ зависит только от исходных полей события (platform, type, sender, group),
// поэтому перезапись session id или текста препроцессором не ломает возобновление.
func WaitKey(e *MessageEvent) string {
	return e.platformID + ":" + string(e.messageType) + ":" + e.senderID + ":" + e.groupID
}
