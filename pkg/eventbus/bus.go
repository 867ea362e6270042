// Package eventbus — входная очередь событий и dispatch-цикл.
//
// Адаптеры платформ публикуют события в Bus. Единственный цикл Run
// забирает их по порядку, синхронно разрешает маршрут (ожидание или
// цепочка, без I/O) и запускает pipeline отдельной горутиной, не дожидаясь
// её завершения. Так разговоры обрабатываются параллельно, а порядок
// разрешения ожиданий совпадает с порядком поступления.
package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// ErrClosed возвращается Publish после Close.
var ErrClosed = errors.New("event bus closed")

// Processor — то, что Bus делает с событием. Реализуется pipeline.Executor.
type Processor interface {
	Resolve(event *platform.MessageEvent) pipeline.Route
	Execute(ctx context.Context, event *platform.MessageEvent, route pipeline.Route) pipeline.Outcome
}

// OutcomeFunc получает итог обработки каждого события.
type OutcomeFunc func(event *platform.MessageEvent, out pipeline.Outcome)

// Bus — неограниченная очередь событий.
//
// Publish никогда не блокирует отправителя. Thread-safe.
type Bus struct {
	proc      Processor
	onOutcome OutcomeFunc

	mu     sync.Mutex
	queue  []*platform.MessageEvent
	closed bool
	notify chan struct{}

	inflight sync.WaitGroup
}

// Option настраивает Bus.
type Option func(*Bus)

// WithOutcome задаёт получателя итогов.
func WithOutcome(fn OutcomeFunc) Option {
	return func(b *Bus) { b.onOutcome = fn }
}

// New создаёт Bus.
func New(proc Processor, opts ...Option) *Bus {
	b := &Bus{
		proc:   proc,
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish ставит событие в очередь.
func (b *Bus) Publish(event *platform.MessageEvent) error {
	if event == nil {
		return errors.New("publish: nil event")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len возвращает число событий в очереди.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close запрещает новые публикации. Run разберёт оставшуюся очередь и вернётся.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run — dispatch-цикл. Блокирует до отмены ctx или до Close с пустой очередью.
//
// Задачи pipeline получают контекст без отмены: при остановке они
// дорабатывают, дождаться их можно через Wait.
func (b *Bus) Run(ctx context.Context) error {
	utils.Info("Event bus started")
	taskCtx := context.WithoutCancel(ctx)

	for {
		event, closed := b.next()
		if event != nil {
			b.dispatch(taskCtx, event)
			continue
		}
		if closed {
			utils.Info("Event bus drained")
			return nil
		}

		select {
		case <-ctx.Done():
			utils.Info("Event bus stopped", "pending", b.Len())
			return ctx.Err()
		case <-b.notify:
		}
	}
}

// Wait ждёт завершения запущенных задач pipeline.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

func (b *Bus) next() (*platform.MessageEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, b.closed
	}
	event := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return event, b.closed
}

// dispatch разрешает маршрут синхронно и запускает pipeline в фоне.
func (b *Bus) dispatch(ctx context.Context, event *platform.MessageEvent) {
	route := b.proc.Resolve(event)

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				utils.Error("Pipeline task panicked", "event_id", event.ID(), "panic", r)
			}
		}()

		out := b.proc.Execute(ctx, event, route)
		utils.Debug("Event processed",
			"event_id", event.ID(),
			"status", out.Status.String(),
			"chain_id", out.ChainID)
		if b.onOutcome != nil {
			b.onOutcome(event, out)
		}
	}()
}
