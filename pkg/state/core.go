package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// MemoryStore — MessageRepository в памяти процесса.
//
// Thread-safe через sync.RWMutex. Наружу отдаются только копии.
// MaxMessages > 0 ограничивает длину каждой истории (старые сообщения
// отбрасываются при Append).
type MemoryStore struct {
	mu          sync.RWMutex
	histories   map[string][]llm.Message
	maxMessages int
}

var _ MessageRepository = (*MemoryStore)(nil)

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore(maxMessages int) *MemoryStore {
	return &MemoryStore{
		histories:   make(map[string][]llm.Message),
		maxMessages: maxMessages,
	}
}

// Append добавляет сообщения.
func (s *MemoryStore) Append(umo string, msgs ...llm.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.histories[umo], llm.Clone(msgs)...)
	if s.maxMessages > 0 && len(h) > s.maxMessages {
		h = append([]llm.Message(nil), h[len(h)-s.maxMessages:]...)
	}
	s.histories[umo] = h
}

// History возвращает копию истории.
func (s *MemoryStore) History(umo string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return llm.Clone(s.histories[umo])
}

// Replace заменяет историю. Пустой список удаляет разговор.
func (s *MemoryStore) Replace(umo string, msgs []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msgs) == 0 {
		delete(s.histories, umo)
		return
	}
	s.histories[umo] = llm.Clone(msgs)
}

// Reset удаляет историю разговора.
func (s *MemoryStore) Reset(umo string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.histories[umo])
	delete(s.histories, umo)
	return n
}

// Conversations возвращает отсортированные ключи разговоров.
func (s *MemoryStore) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.histories))
	for k := range s.histories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Last возвращает последнее сообщение разговора.
func Last(repo MessageRepository, umo string) (llm.Message, error) {
	h := repo.History(umo)
	if len(h) == 0 {
		return llm.Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, umo)
	}
	return h[len(h)-1], nil
}
