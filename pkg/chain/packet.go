package chain

import (
	"fmt"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// PacketVersion — текущая версия конверта NodePacket.
const PacketVersion = 1

// PacketKind — вариант содержимого Packet.
type PacketKind int

const (
	// PacketMessage — готовый ответ (цепочка компонентов).
	PacketMessage PacketKind = iota

	// PacketText — строка.
	PacketText

	// PacketObject — произвольные данные.
	PacketObject
)

// String возвращает строковое представление PacketKind.
func (k PacketKind) String() string {
	switch k {
	case PacketMessage:
		return "message"
	case PacketText:
		return "text"
	case PacketObject:
		return "object"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Packet — конверт для передачи данных между узлами.
//
// Вариант выбирает тот, кто создаёт пакет, через MessagePacket, TextPacket
// или ObjectPacket. Неизменяем после создания.
type Packet struct {
	version int
	kind    PacketKind
	message *platform.Result
	text    string
	object  any
}

// MessagePacket оборачивает ответ.
func MessagePacket(r *platform.Result) *Packet {
	return &Packet{version: PacketVersion, kind: PacketMessage, message: r}
}

// TextPacket оборачивает строку.
func TextPacket(s string) *Packet {
	return &Packet{version: PacketVersion, kind: PacketText, text: s}
}

// ObjectPacket оборачивает произвольное значение.
func ObjectPacket(v any) *Packet {
	return &Packet{version: PacketVersion, kind: PacketObject, object: v}
}

// Version возвращает версию конверта.
func (p *Packet) Version() int { return p.version }

// Kind возвращает вариант содержимого.
func (p *Packet) Kind() PacketKind { return p.kind }

// Message возвращает ответ для PacketMessage.
func (p *Packet) Message() (*platform.Result, bool) {
	if p == nil || p.kind != PacketMessage {
		return nil, false
	}
	return p.message, true
}

// Text возвращает строку для PacketText.
func (p *Packet) Text() (string, bool) {
	if p == nil || p.kind != PacketText {
		return "", false
	}
	return p.text, true
}

// Object возвращает значение для PacketObject.
func (p *Packet) Object() (any, bool) {
	if p == nil || p.kind != PacketObject {
		return nil, false
	}
	return p.object, true
}

// AsText возвращает текстовое представление любого варианта.
func (p *Packet) AsText() string {
	if p == nil {
		return ""
	}
	switch p.kind {
	case PacketMessage:
		return p.message.Text()
	case PacketText:
		return p.text
	default:
		if p.object == nil {
			return ""
		}
		return fmt.Sprint(p.object)
	}
}

// AsResult превращает пакет в ответ для отправки.
//
// Только MESSAGE и TEXT пригодны для отправки; OBJECT даёт nil.
func (p *Packet) AsResult() *platform.Result {
	if p == nil {
		return nil
	}
	switch p.kind {
	case PacketMessage:
		return p.message
	case PacketText:
		return platform.NewTextResult(p.text)
	default:
		return nil
	}
}
