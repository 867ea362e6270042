// Package debug записывает трейсы прохождения событий через pipeline.
//
// Recorder подключается как events.Emitter, собирает события по EventID и
// по итогу обработки сохраняет один JSON файл на входящее сообщение.
package debug

import (
	"encoding/json"
	"time"
)

// Trace — полный трейс одного входящего события.
type Trace struct {
	// EventID — id входящего MessageEvent (используется в имени файла)
	EventID string `json:"event_id"`

	// UMO — unified message origin разговора
	UMO string `json:"umo,omitempty"`

	// Text — текст входящего сообщения
	Text string `json:"text,omitempty"`

	// StartedAt — время первого события pipeline
	StartedAt time.Time `json:"started_at"`

	// Duration — от первого события до итога, в миллисекундах
	Duration int64 `json:"duration_ms"`

	// ChainID — назначенная цепочка
	ChainID string `json:"chain_id,omitempty"`

	// Resumed — событие продолжило ожидающую цепочку
	Resumed bool `json:"resumed,omitempty"`

	// Nodes — выполненные узлы в порядке завершения
	Nodes []NodeTrace `json:"nodes"`

	// Sent — тексты отправленных ответов
	Sent []string `json:"sent,omitempty"`

	// Status — итог pipeline (sent, silent, waiting, dropped, failed)
	Status string `json:"status"`

	// Reason — причина отбрасывания
	Reason string `json:"reason,omitempty"`

	// Error — ошибка цепочки или обработчика
	Error string `json:"error,omitempty"`
}

// NodeTrace — выполнение одного узла.
type NodeTrace struct {
	Name     string `json:"name"`
	UUID     string `json:"uuid"`
	Index    int    `json:"index"`
	Status   string `json:"status"`
	Duration int64  `json:"duration_ms"`
	Error    string `json:"error,omitempty"`
}

// MarshalIndent сериализует трейс в читаемый JSON.
func (t *Trace) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
