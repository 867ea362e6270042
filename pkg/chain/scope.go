package chain

import "sync"

// Scope — состояние одного прохода события через pipeline.
//
// Заменяет произвольные атрибуты события явными полями. Создаётся
// на каждое событие и передаётся вниз по стеку вызовов.
type Scope struct {
	// WaitKey — ключ разговора для WaitRegistry.
	WaitKey string

	// ResumeNodeUUID — узел, с которого возобновлена цепочка (пусто для нового прохода).
	ResumeNodeUUID string

	// ChainID и ConfigID выбранной цепочки.
	ChainID  string
	ConfigID string

	mu                 sync.Mutex
	nodeStop           bool
	stopped            bool
	deliverWhenStopped bool
	suppressSend       bool
}

// NewScope создаёт Scope для ключа разговора.
func NewScope(waitKey string) *Scope {
	return &Scope{WaitKey: waitKey}
}

// Resumed сообщает, что проход продолжает приостановленную цепочку.
func (s *Scope) Resumed() bool {
	return s.ResumeNodeUUID != ""
}

// RequestNodeStop — узел просит завершить цепочку без STOP
// (например, уже отправив ответ сам). Финальная отправка остаётся разрешена.
func (s *Scope) RequestNodeStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStop = true
}

// NodeStopRequested сообщает, запрошена ли остановка узлом.
func (s *Scope) NodeStopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeStop
}

// Stop помечает событие завершённым (лимит, доступ, обработчик).
func (s *Scope) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Stopped сообщает, остановлено ли событие.
func (s *Scope) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// SetDeliverWhenStopped разрешает отправку ответа остановленного события.
func (s *Scope) SetDeliverWhenStopped(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliverWhenStopped = v
}

// DeliverWhenStopped сообщает, разрешена ли отправка после остановки.
func (s *Scope) DeliverWhenStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverWhenStopped
}

// SuppressSend запрещает финальную отправку (например, при WAIT).
func (s *Scope) SuppressSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressSend = true
}

// SendSuppressed сообщает, запрещена ли финальная отправка.
func (s *Scope) SendSuppressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressSend
}

// SendAllowed — итоговое правило отправки: не запрещено и либо событие
// не остановлено, либо разрешена доставка после остановки.
func (s *Scope) SendAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suppressSend {
		return false
	}
	return !s.stopped || s.deliverWhenStopped
}
