// Package platform описывает нормализованное событие, которое адаптеры
// мессенджеров передают в pipeline.
//
// Сами адаптеры (wire-протоколы конкретных платформ) живут вне этого модуля.
// Здесь только контракт: MessageEvent, компоненты сообщения, модальности,
// Sender/PreAcker для обратной отправки.
package platform

import "strings"

// ComponentType — тип сегмента сообщения.
type ComponentType string

const (
	ComponentPlain  ComponentType = "plain"
	ComponentAt     ComponentType = "at"
	ComponentAtAll  ComponentType = "at_all"
	ComponentReply  ComponentType = "reply"
	ComponentImage  ComponentType = "image"
	ComponentRecord ComponentType = "record"
	ComponentVideo  ComponentType = "video"
	ComponentFile   ComponentType = "file"
)

// Component — один сегмент сообщения.
//
// Поля заполняются в зависимости от Type:
//   - plain: Text
//   - at: Target (id упомянутого), Text (отображаемое имя, опционально)
//   - reply: Target (id сообщения), SenderID (автор исходного сообщения)
//   - image/record/video/file: URL
type Component struct {
	Type     ComponentType `json:"type"`
	Text     string        `json:"text,omitempty"`
	Target   string        `json:"target,omitempty"`
	SenderID string        `json:"sender_id,omitempty"`
	URL      string        `json:"url,omitempty"`
}

// Plain создаёт текстовый сегмент.
func Plain(text string) Component {
	return Component{Type: ComponentPlain, Text: text}
}

// At создаёт упоминание пользователя.
func At(target string) Component {
	return Component{Type: ComponentAt, Target: target}
}

// AtAll создаёт упоминание всех.
func AtAll() Component {
	return Component{Type: ComponentAtAll}
}

// Reply создаёт ссылку на сообщение, автор которого senderID.
func Reply(messageID, senderID string) Component {
	return Component{Type: ComponentReply, Target: messageID, SenderID: senderID}
}

// Image создаёт сегмент изображения.
func Image(url string) Component {
	return Component{Type: ComponentImage, URL: url}
}

// PlainText склеивает все plain-сегменты.
func PlainText(components []Component) string {
	var sb strings.Builder
	for _, c := range components {
		if c.Type == ComponentPlain {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// Result — ответ, который pipeline отправит обратно в платформу.
type Result struct {
	Components []Component
}

// NewTextResult создаёт Result из одной строки.
func NewTextResult(text string) *Result {
	return &Result{Components: []Component{Plain(text)}}
}

// IsEmpty сообщает, нечего ли отправлять.
func (r *Result) IsEmpty() bool {
	return r == nil || len(r.Components) == 0
}

// Text возвращает текстовую часть результата.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return PlainText(r.Components)
}
