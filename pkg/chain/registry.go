package chain

import (
	"fmt"
	"sort"
	"sync"
)

// NodeHandle — зарегистрированная реализация узла.
//
// Generation растёт при каждой замене реализации (Replace), поэтому
// ленивая инициализация повторяется для новой версии.
type NodeHandle struct {
	Name       string
	Node       Node
	Generation uint64
}

// NodeRegistry — источник реализаций узлов для Executor.
type NodeRegistry interface {
	// Resolve ищет реализацию по имени.
	Resolve(name string) (*NodeHandle, bool)

	// IsEnabled сообщает, можно ли сейчас использовать реализацию.
	IsEnabled(h *NodeHandle) bool
}

// Registry — потокобезопасное хранилище узлов.
//
// Поддерживает горячее включение, выключение и замену реализаций.
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]*NodeHandle
	disabled map[string]bool
	gen      uint64
}

// Проверка что Registry реализует NodeRegistry
var _ NodeRegistry = (*Registry)(nil)

// NewRegistry создаёт пустой реестр узлов.
func NewRegistry() *Registry {
	return &Registry{
		handles:  make(map[string]*NodeHandle),
		disabled: make(map[string]bool),
	}
}

// Register добавляет узел. Имя должно быть уникальным.
func (r *Registry) Register(name string, node Node) error {
	if name == "" {
		return fmt.Errorf("node name is required")
	}
	if node == nil {
		return fmt.Errorf("node '%s' is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	r.gen++
	r.handles[name] = &NodeHandle{Name: name, Node: node, Generation: r.gen}
	return nil
}

// Replace заменяет реализацию (или регистрирует новую) с новым поколением.
func (r *Registry) Replace(name string, node Node) error {
	if name == "" || node == nil {
		return fmt.Errorf("node name and implementation are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.handles[name] = &NodeHandle{Name: name, Node: node, Generation: r.gen}
	return nil
}

// Unregister удаляет узел.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, name)
	delete(r.disabled, name)
}

// Enable включает узел.
func (r *Registry) Enable(name string) error {
	return r.setDisabled(name, false)
}

// Disable выключает узел. Цепочки с ним будут падать с ErrNodeDisabled.
func (r *Registry) Disable(name string) error {
	return r.setDisabled(name, true)
}

func (r *Registry) setDisabled(name string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	if disabled {
		r.disabled[name] = true
	} else {
		delete(r.disabled, name)
	}
	return nil
}

// Resolve реализует NodeRegistry.
func (r *Registry) Resolve(name string) (*NodeHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	return h, ok
}

// IsEnabled реализует NodeRegistry.
func (r *Registry) IsEnabled(h *NodeHandle) bool {
	if h == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[h.Name]
}

// List возвращает отсортированные имена узлов.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
