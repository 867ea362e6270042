package platform

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageType — тип чата, из которого пришло сообщение.
type MessageType string

const (
	GroupMessage  MessageType = "GroupMessage"
	FriendMessage MessageType = "FriendMessage"
	OtherMessage  MessageType = "OtherMessage"
)

// Роли отправителя.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// EventInit — данные, которые адаптер платформы заполняет при приёме сообщения.
type EventInit struct {
	PlatformID  string
	MessageType MessageType
	MessageID   string
	SenderID    string
	SenderName  string
	GroupID     string
	SelfID      string // id бота на платформе
	Components  []Component
	Timestamp   time.Time
}

// MessageEvent — нормализованное входящее событие.
//
// Thread-safe через sync.RWMutex: событие читается dispatch-циклом и
// изменяется задачей pipeline.
type MessageEvent struct {
	mu sync.RWMutex

	id          string
	platformID  string
	messageType MessageType
	messageID   string
	senderID    string
	senderName  string
	groupID     string
	selfID      string
	timestamp   time.Time
	components  []Component

	messageStr        string
	sessionID         string
	role              string
	isAtOrWakeCommand bool
	isWake            bool
	result            *Result
}

// NewMessageEvent создаёт событие. ID генерируется как ULID.
func NewMessageEvent(init EventInit) *MessageEvent {
	if init.MessageType == "" {
		init.MessageType = OtherMessage
	}
	if init.Timestamp.IsZero() {
		init.Timestamp = time.Now()
	}
	comps := make([]Component, len(init.Components))
	copy(comps, init.Components)

	sessionID := init.GroupID
	if sessionID == "" {
		sessionID = init.SenderID
	}

	return &MessageEvent{
		id:          ulid.Make().String(),
		platformID:  init.PlatformID,
		messageType: init.MessageType,
		messageID:   init.MessageID,
		senderID:    init.SenderID,
		senderName:  init.SenderName,
		groupID:     init.GroupID,
		selfID:      init.SelfID,
		timestamp:   init.Timestamp,
		components:  comps,
		messageStr:  PlainText(comps),
		sessionID:   sessionID,
		role:        RoleMember,
	}
}

// ID возвращает уникальный идентификатор события.
func (e *MessageEvent) ID() string { return e.id }

// PlatformID возвращает id экземпляра платформы.
func (e *MessageEvent) PlatformID() string { return e.platformID }

// MessageType возвращает тип чата.
func (e *MessageEvent) MessageType() MessageType { return e.messageType }

// MessageID возвращает id сообщения на платформе.
func (e *MessageEvent) MessageID() string { return e.messageID }

// SenderID возвращает id отправителя.
func (e *MessageEvent) SenderID() string { return e.senderID }

// SenderName возвращает отображаемое имя отправителя.
func (e *MessageEvent) SenderName() string { return e.senderName }

// GroupID возвращает id группы (пусто для личных сообщений).
func (e *MessageEvent) GroupID() string { return e.groupID }

// SelfID возвращает id бота.
func (e *MessageEvent) SelfID() string { return e.selfID }

// Timestamp возвращает время приёма.
func (e *MessageEvent) Timestamp() time.Time { return e.timestamp }

// IsPrivateChat сообщает, личное ли это сообщение.
func (e *MessageEvent) IsPrivateChat() bool { return e.messageType == FriendMessage }

// Messages возвращает копию сегментов сообщения.
func (e *MessageEvent) Messages() []Component {
	out := make([]Component, len(e.components))
	copy(out, e.components)
	return out
}

// Modalities возвращает множество модальностей сообщения.
func (e *MessageEvent) Modalities() ModalitySet {
	return ModalitiesOf(e.components)
}

// UnifiedMsgOrigin — платформо-независимый id разговора: platform:type:session.
func (e *MessageEvent) UnifiedMsgOrigin() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("%s:%s:%s", e.platformID, e.messageType, e.sessionID)
}

// SessionID возвращает текущий id сессии (может быть переписан препроцессором).
func (e *MessageEvent) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

// SetSessionID переписывает id сессии.
func (e *MessageEvent) SetSessionID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = id
}

// MessageStr возвращает текст сообщения (после обработки wake-префикса).
func (e *MessageEvent) MessageStr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.messageStr
}

// SetMessageStr заменяет текст сообщения.
func (e *MessageEvent) SetMessageStr(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageStr = s
}

// Role возвращает роль отправителя (member/admin).
func (e *MessageEvent) Role() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role
}

// SetRole устанавливает роль отправителя.
func (e *MessageEvent) SetRole(role string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.role = role
}

// IsAdmin сообщает, помечен ли отправитель администратором.
func (e *MessageEvent) IsAdmin() bool {
	return e.Role() == RoleAdmin
}

// IsAtOrWakeCommand — событие адресовано боту (префикс, упоминание, ответ, личка).
func (e *MessageEvent) IsAtOrWakeCommand() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isAtOrWakeCommand
}

// SetAtOrWakeCommand помечает событие как адресованное боту.
func (e *MessageEvent) SetAtOrWakeCommand(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isAtOrWakeCommand = v
}

// IsWake — событие должно быть обработано (разбужено или сработал обработчик).
func (e *MessageEvent) IsWake() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isWake
}

// SetWake устанавливает флаг пробуждения.
func (e *MessageEvent) SetWake(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isWake = v
}

// SetResult устанавливает ответ для отправки.
func (e *MessageEvent) SetResult(r *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = r
}

// Result возвращает текущий ответ (nil если не установлен).
func (e *MessageEvent) Result() *Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result
}

// ClearResult сбрасывает ответ.
func (e *MessageEvent) ClearResult() {
	e.SetResult(nil)
}

// String возвращает краткое представление события (для логов).
func (e *MessageEvent) String() string {
	return fmt.Sprintf("MessageEvent{id=%s umo=%s sender=%s text=%q}",
		e.id, e.UnifiedMsgOrigin(), e.senderID, e.MessageStr())
}
