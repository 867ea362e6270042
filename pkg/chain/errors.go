package chain

import (
	"errors"
	"fmt"
)

// Ошибки выполнения цепочки.

// ErrNodeNotFound возвращается, если имя узла не зарегистрировано.
var ErrNodeNotFound = errors.New("node not found")

// ErrNodeDisabled возвращается, если узел зарегистрирован, но выключен.
var ErrNodeDisabled = errors.New("node disabled")

// ErrNodeInit возвращается при ошибке ленивой инициализации узла.
var ErrNodeInit = errors.New("node initialization failed")

// ErrNodeFailed возвращается, если Process вернул ошибку или запаниковал.
var ErrNodeFailed = errors.New("node execution failed")

// ErrStartNodeNotFound возвращается, если узел возобновления отсутствует в цепочке.
var ErrStartNodeNotFound = errors.New("start node not found in chain")

// ErrDuplicateNode возвращается при повторной регистрации имени.
var ErrDuplicateNode = errors.New("node already registered")

// NodeError — структурированная ошибка узла с позицией в цепочке.
//
// Поддерживает errors.Is для Kind (одна из Err* выше) и errors.Unwrap
// для исходной причины.
//
// Пример использования:
//
//	var nerr *chain.NodeError
//	if errors.As(err, &nerr) {
//		log(nerr.Node, nerr.Index)
//	}
//	if errors.Is(err, chain.ErrNodeNotFound) { ... }
type NodeError struct {
	ChainID string
	Node    string
	UUID    string
	Index   int
	Kind    error
	Err     error
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain '%s' node #%d '%s': %v: %v", e.ChainID, e.Index, e.Node, e.Kind, e.Err)
	}
	return fmt.Sprintf("chain '%s' node #%d '%s': %v", e.ChainID, e.Index, e.Node, e.Kind)
}

// Is сопоставляет ошибку с её Kind.
func (e *NodeError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap возвращает исходную причину.
func (e *NodeError) Unwrap() error {
	return e.Err
}
