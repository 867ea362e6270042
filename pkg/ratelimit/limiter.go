// Package ratelimit реализует fixed window лимит допусков на сессию.
//
// В окне длиной Window допускается не больше Count событий одной сессии.
// При превышении работает одна из стратегий:
//   - stall: подождать, пока освободится слот, и проверить снова
//   - discard: сразу отказать (событие останавливается без ответа)
//
// Это admission control для pipeline, не путать с x/time/rate в LLM клиенте,
// который ограничивает частоту запросов к API.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Strategy — поведение при исчерпании окна.
type Strategy string

const (
	Stall   Strategy = config.StrategyStall
	Discard Strategy = config.StrategyDiscard
)

// DefaultMargin добавляется к расчётному ожиданию stall.
const DefaultMargin = 300 * time.Millisecond

// Verdict — решение лимитера.
type Verdict int

const (
	// Continue — событие допущено.
	Continue Verdict = iota

	// Stop — событие отклонено (только discard).
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

// Limiter — fixed window лимитер по сессиям.
//
// Thread-safe. Каждая сессия имеет свой замок; stall ждёт, удерживая его,
// поэтому конкурентные вызовы одной сессии проходят строго по очереди
// и не допускают больше Count за окно.
type Limiter struct {
	count    int
	window   time.Duration
	strategy Strategy
	margin   time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	lock   chan struct{}
	stamps []time.Time
}

// Option настраивает Limiter.
type Option func(*Limiter)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSleep подменяет ожидание (для тестов).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = sleep }
}

// WithMargin задаёт запас к расчётному ожиданию.
func WithMargin(d time.Duration) Option {
	return func(l *Limiter) { l.margin = d }
}

// New создаёт лимитер. count <= 0 или window <= 0 отключает лимит.
func New(count int, window time.Duration, strategy Strategy, opts ...Option) *Limiter {
	if strategy == "" {
		strategy = Stall
	}
	l := &Limiter{
		count:    count,
		window:   window,
		strategy: strategy,
		margin:   DefaultMargin,
		now:      time.Now,
		sleep:    sleepCtx,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig создаёт лимитер из platform_settings.rate_limit.
func FromConfig(cfg config.RateLimitConfig, opts ...Option) *Limiter {
	return New(cfg.Count, cfg.Window(), Strategy(cfg.Strategy), opts...)
}

// Enabled сообщает, ограничивает ли лимитер что-либо.
func (l *Limiter) Enabled() bool {
	return l.count > 0 && l.window > 0
}

// Apply проверяет допуск события сессии sessionID.
//
// Алгоритм под замком сессии:
//  1. Удаляет отметки старше now - window
//  2. Если отметок меньше count, добавляет now и допускает
//  3. Иначе stall ждёт (oldest + window - now + margin, не больше window)
//     и повторяет проверку, discard возвращает Stop
//
// Ошибка возвращается только при отмене ctx.
func (l *Limiter) Apply(ctx context.Context, sessionID string) (Verdict, error) {
	if !l.Enabled() {
		return Continue, nil
	}

	var s *session
	for {
		s = l.session(sessionID)
		select {
		case s.lock <- struct{}{}:
		case <-ctx.Done():
			return Stop, ctx.Err()
		}
		if l.current(sessionID, s) {
			break
		}
		// Сессию удалил Sweep, пока мы ждали замок.
		<-s.lock
	}
	defer func() { <-s.lock }()

	for {
		now := l.now()
		s.evict(now, l.window)

		if len(s.stamps) < l.count {
			s.stamps = append(s.stamps, now)
			return Continue, nil
		}

		if l.strategy == Discard {
			utils.Debug("Rate limit: event discarded",
				"session_id", sessionID,
				"count", l.count,
				"window", l.window.String())
			return Stop, nil
		}

		wait := s.stamps[0].Add(l.window).Sub(now) + l.margin
		if wait > l.window {
			wait = l.window
		}
		if wait <= 0 {
			continue
		}

		utils.Debug("Rate limit: stalling",
			"session_id", sessionID,
			"wait_ms", wait.Milliseconds())

		if err := l.sleep(ctx, wait); err != nil {
			return Stop, err
		}
	}
}

// Sweep удаляет сессии, у которых все отметки устарели. Возвращает число удалённых.
//
// Сессии, занятые Apply, пропускаются.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, s := range l.sessions {
		select {
		case s.lock <- struct{}{}:
		default:
			continue
		}
		s.evict(now, l.window)
		if len(s.stamps) == 0 {
			delete(l.sessions, id)
			removed++
		}
		<-s.lock
	}
	return removed
}

// Sessions возвращает число отслеживаемых сессий.
func (l *Limiter) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Limiter) session(id string) *session {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		s = &session{lock: make(chan struct{}, 1)}
		l.sessions[id] = s
	}
	return s
}

func (l *Limiter) current(id string, s *session) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[id] == s
}

// evict удаляет отметки, не попадающие в окно (now - window, now].
func (s *session) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.stamps) && !s.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.stamps = append(s.stamps[:0], s.stamps[i:]...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
