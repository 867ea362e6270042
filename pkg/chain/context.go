package chain

import (
	"fmt"
	"sync"
)

// NodeStatus — состояние узла в рамках одного выполнения.
type NodeStatus int

const (
	StatusPending NodeStatus = iota
	StatusExecuted
	StatusSkipped
	StatusFailed
	StatusWaiting
)

// String возвращает строковое представление NodeStatus.
func (s NodeStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusExecuted:
		return "EXECUTED"
	case StatusSkipped:
		return "SKIPPED"
	case StatusFailed:
		return "FAILED"
	case StatusWaiting:
		return "WAITING"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// InputStrategy определяет, какие выходы upstream узлов видит узел.
type InputStrategy int

const (
	// InputLast — выход ближайшего предыдущего EXECUTED узла.
	InputLast InputStrategy = iota

	// InputFirst — выход самого раннего EXECUTED узла.
	InputFirst

	// InputAll — выходы всех предыдущих EXECUTED узлов по порядку.
	InputAll
)

// NodeContext — запись о выполнении одного узла.
//
// Изменяется только Executor. Узел пишет выход через Call.SetOutput.
type NodeContext struct {
	NodeName   string
	NodeUUID   string
	ChainIndex int
	Status     NodeStatus
	Input      *Packet
	Output     *Packet
}

// NodeContextStack — упорядоченная история выполнения узлов.
//
// Thread-safe через sync.RWMutex: узел может читать стек из своих горутин.
type NodeContextStack struct {
	mu    sync.RWMutex
	items []*NodeContext
}

// NewNodeContextStack создаёт пустой стек.
func NewNodeContextStack() *NodeContextStack {
	return &NodeContextStack{}
}

// Push добавляет контекст узла.
func (s *NodeContextStack) Push(nc *NodeContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, nc)
}

// Len возвращает количество записей.
func (s *NodeContextStack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All возвращает копию списка записей.
func (s *NodeContextStack) All() []*NodeContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*NodeContext, len(s.items))
	copy(out, s.items)
	return out
}

// Current возвращает последнюю запись или nil.
func (s *NodeContextStack) Current() *NodeContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return nil
	}
	return s.items[len(s.items)-1]
}

// LastExecuted ищет назад ближайшую EXECUTED запись до позиции before
// (исключительно). before < 0 означает весь стек.
func (s *NodeContextStack) LastExecuted(before int) *NodeContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	end := len(s.items)
	if before >= 0 && before < end {
		end = before
	}
	for i := end - 1; i >= 0; i-- {
		if s.items[i].Status == StatusExecuted {
			return s.items[i]
		}
	}
	return nil
}

// Outputs возвращает выходы EXECUTED записей до позиции before
// по стратегии strategy. Записи без выхода пропускаются.
func (s *NodeContextStack) Outputs(before int, strategy InputStrategy) []*Packet {
	if strategy == InputLast {
		if nc := s.LastExecuted(before); nc != nil && nc.Output != nil {
			return []*Packet{nc.Output}
		}
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	end := len(s.items)
	if before >= 0 && before < end {
		end = before
	}
	var out []*Packet
	for i := 0; i < end; i++ {
		nc := s.items[i]
		if nc.Status != StatusExecuted || nc.Output == nil {
			continue
		}
		out = append(out, nc.Output)
		if strategy == InputFirst {
			break
		}
	}
	return out
}

// FindByUUID ищет запись узла по uuid.
func (s *NodeContextStack) FindByUUID(uuid string) *NodeContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, nc := range s.items {
		if nc.NodeUUID == uuid {
			return nc
		}
	}
	return nil
}
