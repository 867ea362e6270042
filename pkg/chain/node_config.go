package chain

import "sync"

type nodeConfigKey struct {
	name    string
	chainID string
	uuid    string
}

// NodeConfigs хранит явные переопределения настроек экземпляров узлов.
//
// Итоговые настройки узла собираются в порядке возрастания приоритета:
// ConfigDefaults() узла, config из определения цепочки, Set.
type NodeConfigs struct {
	mu        sync.RWMutex
	overrides map[nodeConfigKey]map[string]any
}

// NewNodeConfigs создаёт пустое хранилище.
func NewNodeConfigs() *NodeConfigs {
	return &NodeConfigs{overrides: make(map[nodeConfigKey]map[string]any)}
}

// Set задаёт переопределения для (name, chainID, uuid). nil удаляет их.
func (c *NodeConfigs) Set(name, chainID, uuid string, cfg map[string]any) {
	key := nodeConfigKey{name: name, chainID: chainID, uuid: uuid}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == nil {
		delete(c.overrides, key)
		return
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	c.overrides[key] = cp
}

// Resolve собирает настройки экземпляра узла.
func (c *NodeConfigs) Resolve(h *NodeHandle, chainID string, node ChainNode) map[string]any {
	out := make(map[string]any)
	if sp, ok := h.Node.(SchemaProvider); ok {
		for k, v := range sp.ConfigDefaults() {
			out[k] = v
		}
	}
	for k, v := range node.Config {
		out[k] = v
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.overrides[nodeConfigKey{name: node.Name, chainID: chainID, uuid: node.UUID}] {
		out[k] = v
	}
	return out
}
