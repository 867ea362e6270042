// Package pipeline оркестрирует обработку одного входящего события.
//
// Порядок для нового события:
//
//	preprocess → route → wake → match handlers → rate limit → access →
//	pre-ack → handlers → chain → send
//
// Для возобновлённого события (найдено ожидание) wake и handlers
// пропускаются, цепочка продолжается с сохранённого узла.
//
// Результат возвращается явным Outcome, а не флагами на событии.
package pipeline

import (
	"context"
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// Verdict — решение стадии.
type Verdict int

const (
	// Continue — перейти к следующей стадии.
	Continue Verdict = iota

	// Stop — завершить обработку (отправить ответ, если он есть и разрешён).
	Stop
)

// String возвращает строковое представление Verdict.
func (v Verdict) String() string {
	switch v {
	case Continue:
		return "CONTINUE"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("Unknown(%d)", v)
	}
}

// Mechanism — системная стадия (лимит, доступ), применяемая перед обработчиками.
type Mechanism interface {
	Apply(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error)
}

// MechanismFunc — функциональная обёртка Mechanism.
type MechanismFunc func(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error)

// Apply вызывает функцию.
func (f MechanismFunc) Apply(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error) {
	return f(ctx, event, scope)
}

// Preprocessor подготавливает событие (session id, роль, фильтр своих сообщений).
//
// Stop отбрасывает событие молча.
type Preprocessor interface {
	Preprocess(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error)
}

// Status — итог обработки события.
type Status int

const (
	// StatusDropped — событие отброшено до выполнения (Reason объясняет).
	StatusDropped Status = iota

	// StatusSent — ответ отправлен.
	StatusSent

	// StatusSilent — обработано, отправлять нечего или нельзя.
	StatusSilent

	// StatusWaiting — цепочка ждёт следующего сообщения.
	StatusWaiting

	// StatusFailed — цепочка или отправка упали.
	StatusFailed
)

// String возвращает строковое представление Status.
func (s Status) String() string {
	switch s {
	case StatusDropped:
		return "dropped"
	case StatusSent:
		return "sent"
	case StatusSilent:
		return "silent"
	case StatusWaiting:
		return "waiting"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Причины отбрасывания.
const (
	ReasonPreprocess = "preprocess"
	ReasonNoChain    = "no_chain"
	ReasonNotWoken   = "not_woken"
	ReasonRateLimit  = "rate_limit"
	ReasonAccess     = "access_denied"
)

// Outcome — итог Executor.Execute.
type Outcome struct {
	Status    Status
	Reason    string
	ChainID   string
	Resumed   bool
	Handled   bool // обработчик завершил событие без цепочки
	Execution *chain.Execution
	Err       error
}
