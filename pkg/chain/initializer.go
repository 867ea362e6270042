package chain

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type initKey struct {
	name       string
	generation uint64
	chainID    string
}

func (k initKey) String() string {
	return fmt.Sprintf("%s#%d@%s", k.name, k.generation, k.chainID)
}

// Initializer отслеживает ленивую инициализацию узлов по цепочкам.
//
// Состояние хранится здесь, а не в узле: один узел может использоваться
// несколькими цепочками и инициализируется для каждой отдельно.
// Конкурентные первые вызовы для одной пары объединяются singleflight.
type Initializer struct {
	mu    sync.RWMutex
	done  map[initKey]struct{}
	group singleflight.Group
}

// NewInitializer создаёт пустой Initializer.
func NewInitializer() *Initializer {
	return &Initializer{done: make(map[initKey]struct{})}
}

// Ensure инициализирует h для chainID, если это ещё не сделано.
//
// Узлы без Initializable считаются инициализированными. Ошибка
// не запоминается: следующий вызов попробует снова.
func (i *Initializer) Ensure(ctx context.Context, h *NodeHandle, chainID string) error {
	node, ok := h.Node.(Initializable)
	if !ok {
		return nil
	}

	key := initKey{name: h.Name, generation: h.Generation, chainID: chainID}
	if i.IsInitialized(key.name, key.generation, chainID) {
		return nil
	}

	_, err, _ := i.group.Do(key.String(), func() (any, error) {
		if i.IsInitialized(key.name, key.generation, chainID) {
			return nil, nil
		}
		if err := node.Initialize(ctx, chainID); err != nil {
			return nil, err
		}
		i.mu.Lock()
		i.done[key] = struct{}{}
		i.mu.Unlock()
		return nil, nil
	})
	return err
}

// IsInitialized сообщает, инициализирована ли версия узла для цепочки.
func (i *Initializer) IsInitialized(name string, generation uint64, chainID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.done[initKey{name: name, generation: generation, chainID: chainID}]
	return ok
}

// Forget сбрасывает состояние всех узлов для цепочки (например, после её удаления).
func (i *Initializer) Forget(chainID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for k := range i.done {
		if k.chainID == chainID {
			delete(i.done, k)
		}
	}
}
