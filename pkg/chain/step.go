package chain

import (
	"context"
	"fmt"
)

// Result определяет поведение Executor после выполнения узла.
type Result int

const (
	// ResultContinue — узел выполнен, перейти к следующему.
	ResultContinue Result = iota

	// ResultStop — узел выполнен, остальные узлы не запускать.
	ResultStop

	// ResultWait — приостановить разговор до следующего сообщения.
	// Следующее сообщение того же разговора возобновит цепочку с этого узла.
	ResultWait

	// ResultSkip — узел ничего не сделал, перейти к следующему.
	ResultSkip
)

// String возвращает строковое представление Result (для дебага).
func (r Result) String() string {
	switch r {
	case ResultContinue:
		return "CONTINUE"
	case ResultStop:
		return "STOP"
	case ResultWait:
		return "WAIT"
	case ResultSkip:
		return "SKIP"
	default:
		return fmt.Sprintf("Unknown(%d)", r)
	}
}

// Node — стадия обработки внутри цепочки.
//
// Узел должен вернуть ResultWait, а не блокироваться в ожидании ответа
// пользователя. Ошибка из Process прерывает цепочку и не повторяется.
//
// Узел не меняет NodeContext напрямую: выход пишется через Call.SetOutput,
// ответ через Call.Event.SetResult.
type Node interface {
	Process(ctx context.Context, call *Call) (Result, error)
}

// Initializable — опциональная ленивая инициализация узла.
//
// Initialize вызывается один раз на пару (узел, chain_id) перед первым
// использованием. Ошибка прерывает цепочку, при следующем событии
// инициализация повторяется.
type Initializable interface {
	Initialize(ctx context.Context, chainID string) error
}

// SchemaProvider — опциональные значения настроек узла по умолчанию.
type SchemaProvider interface {
	ConfigDefaults() map[string]any
}

// NodeFunc — функциональная обёртка для простых узлов.
//
// Пример:
//
//	reg.Register("hello", chain.NodeFunc(func(ctx context.Context, c *chain.Call) (chain.Result, error) {
//		c.SetOutput(chain.TextPacket("hello"))
//		return chain.ResultContinue, nil
//	}))
type NodeFunc func(ctx context.Context, call *Call) (Result, error)

// Process вызывает функцию.
func (f NodeFunc) Process(ctx context.Context, call *Call) (Result, error) {
	return f(ctx, call)
}
