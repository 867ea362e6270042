package chain

import (
	"sync"
	"time"
)

// WaitState — точка приостановки разговора.
//
// Следующее сообщение с тем же ключом возобновит Chain с узла NodeUUID,
// если конфигурация цепочки за это время не изменилась.
type WaitState struct {
	Chain     *Config
	NodeUUID  string
	ConfigID  string
	CreatedAt time.Time
}

// WaitRegistry — ключ разговора → точка приостановки.
//
// Set и Pop выполняются под одним мьютексом, поэтому два сообщения подряд
// не могут оба забрать одно ожидание. Не больше одного ожидания на ключ.
// Собственного таймаута нет: истечение делает ExpireOlderThan по вызову.
type WaitRegistry struct {
	mu     sync.Mutex
	states map[string]WaitState
}

// NewWaitRegistry создаёт пустой реестр.
func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{states: make(map[string]WaitState)}
}

// Set сохраняет ожидание, перезаписывая предыдущее для ключа.
func (w *WaitRegistry) Set(key string, state WaitState) {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states[key] = state
}

// Pop забирает ожидание. Повторный Pop вернёт false.
func (w *WaitRegistry) Pop(key string) (WaitState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.states[key]
	if ok {
		delete(w.states, key)
	}
	return s, ok
}

// Len возвращает количество ожиданий.
func (w *WaitRegistry) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.states)
}

// ExpireOlderThan удаляет ожидания, созданные раньше cutoff, и возвращает их ключи.
func (w *WaitRegistry) ExpireOlderThan(cutoff time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var expired []string
	for k, s := range w.states {
		if s.CreatedAt.Before(cutoff) {
			delete(w.states, k)
			expired = append(expired, k)
		}
	}
	return expired
}
