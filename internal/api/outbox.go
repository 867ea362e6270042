package api

import (
	"context"
	"sync"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// DefaultOutboxLimit — сколько ответов хранится на разговор.
const DefaultOutboxLimit = 100

// OutboxMessage — ответ, ожидающий забора клиентом.
type OutboxMessage struct {
	EventID    string               `json:"event_id"`
	Text       string               `json:"text"`
	Components []platform.Component `json:"components"`
	Reaction   string               `json:"reaction,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Outbox — platform.Sender для HTTP клиентов: ответы копятся по UMO,
// клиент забирает их через GET /v1/outbox/{umo}.
//
// Thread-safe. При переполнении вытесняются самые старые ответы.
type Outbox struct {
	mu    sync.Mutex
	limit int
	boxes map[string][]OutboxMessage
	now   func() time.Time
}

var (
	_ platform.Sender   = (*Outbox)(nil)
	_ platform.PreAcker = (*Outbox)(nil)
)

// NewOutbox создаёт Outbox. limit <= 0 — DefaultOutboxLimit.
func NewOutbox(limit int) *Outbox {
	if limit <= 0 {
		limit = DefaultOutboxLimit
	}
	return &Outbox{limit: limit, boxes: make(map[string][]OutboxMessage), now: time.Now}
}

// Send реализует platform.Sender.
func (o *Outbox) Send(ctx context.Context, event *platform.MessageEvent, result *platform.Result) error {
	o.push(event.UnifiedMsgOrigin(), OutboxMessage{
		EventID:    event.ID(),
		Text:       result.Text(),
		Components: append([]platform.Component(nil), result.Components...),
	})
	return nil
}

// PreAck реализует platform.PreAcker: реакция тоже попадает в outbox.
func (o *Outbox) PreAck(ctx context.Context, event *platform.MessageEvent, emoji string) error {
	o.push(event.UnifiedMsgOrigin(), OutboxMessage{EventID: event.ID(), Reaction: emoji})
	return nil
}

func (o *Outbox) push(umo string, msg OutboxMessage) {
	msg.CreatedAt = o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	box := append(o.boxes[umo], msg)
	if len(box) > o.limit {
		box = append([]OutboxMessage(nil), box[len(box)-o.limit:]...)
	}
	o.boxes[umo] = box
}

// Drain забирает все ответы разговора.
func (o *Outbox) Drain(umo string) []OutboxMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	box := o.boxes[umo]
	delete(o.boxes, umo)
	return box
}

// Pending возвращает число неотданных ответов по всем разговорам.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, box := range o.boxes {
		n += len(box)
	}
	return n
}
