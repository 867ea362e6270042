// Интерфейс Провайдера через который работает всё приложение.

package llm

import "context"

// Provider — контракт для любого AI-сервиса.
//
// Ошибки провайдера не ретраятся ядром: повтор — забота реализации.
type Provider interface {
	// TextChat отправляет историю и возвращает ответ модели.
	TextChat(ctx context.Context, messages []Message, opts ...GenerateOption) (*Response, error)
}
