package chain

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// Call — всё, что видит узел при вызове Process.
//
// Создаётся Executor на каждый узел.
type Call struct {
	// Event — обрабатываемое событие.
	Event *platform.MessageEvent

	// Chain — выполняемая цепочка.
	Chain *Config

	// Node — описание экземпляра узла в цепочке.
	Node ChainNode

	// Index — позиция узла в цепочке.
	Index int

	// NodeConfig — итоговые настройки экземпляра узла.
	NodeConfig map[string]any

	// Scope — состояние прохода события.
	Scope *Scope

	// Sender — обратный канал платформы (может быть nil).
	Sender platform.Sender

	stack *NodeContextStack
	nc    *NodeContext
	pos   int
}

// Input возвращает выход ближайшего предыдущего EXECUTED узла.
func (c *Call) Input() *Packet {
	if c.nc != nil {
		return c.nc.Input
	}
	return nil
}

// Inputs возвращает выходы предыдущих узлов по стратегии.
func (c *Call) Inputs(strategy InputStrategy) []*Packet {
	if c.stack == nil {
		return nil
	}
	return c.stack.Outputs(c.pos, strategy)
}

// SetOutput записывает выход узла.
func (c *Call) SetOutput(p *Packet) {
	if c.nc != nil {
		c.nc.Output = p
	}
}

// Output возвращает текущий выход узла.
func (c *Call) Output() *Packet {
	if c.nc != nil {
		return c.nc.Output
	}
	return nil
}

// Resumed сообщает, что этот узел продолжает разговор после своего WAIT.
func (c *Call) Resumed() bool {
	return c.Scope != nil && c.Scope.ResumeNodeUUID != "" && c.Scope.ResumeNodeUUID == c.Node.UUID
}

// StopChain просит завершить цепочку после этого узла, сохранив отправку.
func (c *Call) StopChain() {
	if c.Scope != nil {
		c.Scope.RequestNodeStop()
	}
}

// Send отправляет промежуточный ответ напрямую в платформу.
func (c *Call) Send(ctx context.Context, r *platform.Result) error {
	if c.Sender == nil {
		return fmt.Errorf("no sender configured")
	}
	return c.Sender.Send(ctx, c.Event, r)
}

// ConfigString читает строковую настройку узла.
func (c *Call) ConfigString(key, def string) string {
	v, ok := c.NodeConfig[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ConfigInt читает целочисленную настройку узла.
func (c *Call) ConfigInt(key string, def int) int {
	switch v := c.NodeConfig[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// ConfigBool читает логическую настройку узла.
func (c *Call) ConfigBool(key string, def bool) bool {
	switch v := c.NodeConfig[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
