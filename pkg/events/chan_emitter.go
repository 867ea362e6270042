package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChanEmitter — стандартная реализация Emitter через буферизованный канал.
//
// Thread-safe. Если буфер заполнен, событие отбрасывается: наблюдатель
// не должен тормозить обработку сообщений. Счётчик отброшенных доступен
// через Dropped().
type ChanEmitter struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewChanEmitter создаёт новый ChanEmitter с буфером размера buffer.
func NewChanEmitter(buffer int) *ChanEmitter {
	return &ChanEmitter{
		ch: make(chan Event, buffer),
	}
}

// Emit отправляет событие в канал без блокировки.
func (e *ChanEmitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.ch <- event:
	case <-ctx.Done():
	default:
		e.dropped.Add(1)
	}
}

// Dropped возвращает число событий, не поместившихся в буфер.
func (e *ChanEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// Subscribe возвращает Subscriber для чтения событий.
//
// Канал общий: несколько подписчиков делят поток событий между собой.
func (e *ChanEmitter) Subscribe() Subscriber {
	return &chanSubscriber{ch: e.ch}
}

// Close закрывает канал. После закрытия Emit ничего не отправляет.
func (e *ChanEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

// chanSubscriber реализует Subscriber интерфейс.
type chanSubscriber struct {
	ch <-chan Event
}

// Events возвращает read-only канал событий.
func (s *chanSubscriber) Events() <-chan Event {
	return s.ch
}

// Close — no-op: канал закрывается только через ChanEmitter.Close().
func (s *chanSubscriber) Close() {}

var _ Emitter = (*ChanEmitter)(nil)
var _ Subscriber = (*chanSubscriber)(nil)
