package chain

import (
	"context"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/events"
)

// Observer наблюдает за выполнением узлов.
//
// Выносит сквозную логику (события UI, метрики) из Executor.
// Вызывается синхронно в горутине цепочки, поэтому не должен блокироваться.
type Observer interface {
	// OnNodeStart вызывается перед поиском реализации узла.
	OnNodeStart(ctx context.Context, call *Call)

	// OnNodeFinish вызывается после выставления статуса узла.
	OnNodeFinish(ctx context.Context, call *Call, status NodeStatus, d time.Duration, err error)
}

// EmitterObserver — наблюдатель, который отправляет события узлов в Emitter.
//
// # Event Emission
//
//   - OnNodeStart: (no event)
//   - OnNodeFinish: EventNodeExecuted (EXECUTED, SKIPPED), EventNodeWaiting, EventNodeFailed
//
// # Thread Safety
//
// Thread-safe при thread-safe events.Emitter.
type EmitterObserver struct {
	emitter events.Emitter
}

// NewEmitterObserver создаёт новый EmitterObserver.
func NewEmitterObserver(emitter events.Emitter) *EmitterObserver {
	return &EmitterObserver{emitter: emitter}
}

// OnNodeStart ничего не отправляет.
func (o *EmitterObserver) OnNodeStart(ctx context.Context, call *Call) {}

// OnNodeFinish отправляет событие со статусом узла.
func (o *EmitterObserver) OnNodeFinish(ctx context.Context, call *Call, status NodeStatus, d time.Duration, err error) {
	if o.emitter == nil {
		return
	}

	typ := events.EventNodeExecuted
	switch status {
	case StatusWaiting:
		typ = events.EventNodeWaiting
	case StatusFailed:
		typ = events.EventNodeFailed
	}

	o.emitter.Emit(ctx, events.Event{
		Type:    typ,
		EventID: call.Event.ID(),
		UMO:     call.Event.UnifiedMsgOrigin(),
		Data: events.NodeData{
			ChainID:  call.Chain.ID,
			NodeName: call.Node.Name,
			NodeUUID: call.Node.UUID,
			Index:    call.Index,
			Status:   status.String(),
			Duration: d,
			Err:      err,
		},
		Timestamp: time.Now(),
	})
}
