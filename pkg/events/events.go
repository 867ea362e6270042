// Package events предоставляет Port & Adapter интерфейсы для наблюдения
// за pipeline.
//
// Pipeline и ChainExecutor отправляют события жизненного цикла (маршрутизация,
// выполнение узлов, ожидание, отправка ответа) в Emitter. Адаптеры (консоль,
// HTTP, метрики) подписываются и решают, что с ними делать.
//
// # Basic Usage
//
//	emitter := events.NewChanEmitter(256)
//	sub := emitter.Subscribe()
//	go func() {
//	    for ev := range sub.Events() {
//	        switch ev.Type {
//	        case events.EventNodeFailed:
//	            log(ev.Data.(events.NodeData).Err)
//	        }
//	    }
//	}()
//
// # Thread Safety
//
// Все реализации интерфейсов должны быть thread-safe.
package events

import (
	"context"
	"time"
)

// EventType представляет тип события pipeline.
type EventType string

const (
	// EventRouted — событию назначена цепочка (или найдено ожидание).
	EventRouted EventType = "routed"

	// EventDropped — событие отброшено (нет цепочки, не разбужено, препроцессор, лимит).
	EventDropped EventType = "dropped"

	// EventNodeExecuted — узел завершился со статусом EXECUTED или SKIPPED.
	EventNodeExecuted EventType = "node_executed"

	// EventNodeWaiting — узел вернул WAIT, разговор приостановлен.
	EventNodeWaiting EventType = "node_waiting"

	// EventNodeFailed — узел не найден, не инициализировался или вернул ошибку.
	EventNodeFailed EventType = "node_failed"

	// EventSent — ответ отправлен в платформу.
	EventSent EventType = "sent"
)

// EventData — sealed interface для данных события.
//
// Только типы из пакета events могут реализовать этот интерфейс.
type EventData interface {
	eventData()
}

// RouteData содержит данные для EventRouted.
type RouteData struct {
	ChainID string
	Resumed bool
	NodeID  string // узел возобновления, если Resumed
}

func (RouteData) eventData() {}

// DropData содержит причину для EventDropped.
type DropData struct {
	Reason string
}

func (DropData) eventData() {}

// NodeData содержит данные о выполнении узла.
type NodeData struct {
	ChainID  string
	NodeName string
	NodeUUID string
	Index    int
	Status   string
	Duration time.Duration
	Err      error
}

func (NodeData) eventData() {}

// MessageData содержит текст отправленного ответа.
type MessageData struct {
	Content string
}

func (MessageData) eventData() {}

// Event представляет событие pipeline.
type Event struct {
	Type      EventType
	EventID   string // id входящего MessageEvent
	UMO       string
	Data      EventData
	Timestamp time.Time
}

// Emitter — это Port для отправки событий.
type Emitter interface {
	// Emit отправляет событие. Реализация не должна блокировать pipeline надолго.
	Emit(ctx context.Context, event Event)
}

// Subscriber позволяет читать события из канала.
type Subscriber interface {
	// Events возвращает read-only канал событий.
	Events() <-chan Event

	// Close освобождает ресурсы подписчика.
	Close()
}

// Nop — Emitter, который ничего не делает.
type Nop struct{}

// Emit ничего не делает.
func (Nop) Emit(context.Context, Event) {}

// Multi рассылает событие всем вложенным эмиттерам по порядку.
type Multi []Emitter

// Emit реализует Emitter.
func (m Multi) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}
