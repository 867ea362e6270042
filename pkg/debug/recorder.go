package debug

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/events"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// DefaultMaxPending — сколько незавершённых трейсов держится в памяти.
const DefaultMaxPending = 1024

// Recorder собирает трейсы событий и сохраняет их в JSON файлы.
//
// Потокобезопасен — Emit вызывается из горутин pipeline.
type Recorder struct {
	mu sync.Mutex

	// config — конфигурация рекордера
	config RecorderConfig

	// traces — незавершённые трейсы по EventID
	traces map[string]*Trace

	now func() time.Time
}

// RecorderConfig конфигурация для создания Recorder.
type RecorderConfig struct {
	// LogsDir — директория для сохранения трейсов
	LogsDir string

	// MaxTextSize — максимальная длина сохраняемых текстов (превышение обрезается)
	// 0 означает без ограничений
	MaxTextSize int

	// MaxPending — лимит незавершённых трейсов, 0 = DefaultMaxPending
	MaxPending int
}

var _ events.Emitter = (*Recorder)(nil)

// NewRecorder создает новый Recorder с заданной конфигурацией.
//
// Если LogsDir не существует, пытается создать её.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}

	return &Recorder{
		config: cfg,
		traces: make(map[string]*Trace),
		now:    time.Now,
	}, nil
}

// Emit реализует events.Emitter.
func (r *Recorder) Emit(_ context.Context, ev events.Event) {
	if ev.EventID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.trace(ev.EventID, ev.Timestamp)
	switch data := ev.Data.(type) {
	case events.RouteData:
		t.ChainID = data.ChainID
		t.Resumed = data.Resumed
	case events.DropData:
		t.Reason = data.Reason
	case events.NodeData:
		nt := NodeTrace{
			Name:     data.NodeName,
			UUID:     data.NodeUUID,
			Index:    data.Index,
			Status:   data.Status,
			Duration: data.Duration.Milliseconds(),
		}
		if data.Err != nil {
			nt.Error = data.Err.Error()
		}
		t.Nodes = append(t.Nodes, nt)
	case events.MessageData:
		if ev.Type == events.EventSent {
			t.Sent = append(t.Sent, r.truncate(data.Content))
		}
	}
}

// Pending возвращает число незавершённых трейсов.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.traces)
}

// Finish дописывает итог обработки события и сохраняет трейс.
//
// Возвращает путь к сохраненному файлу или ошибку.
func (r *Recorder) Finish(event *platform.MessageEvent, out pipeline.Outcome) (string, error) {
	r.mu.Lock()
	t := r.trace(event.ID(), time.Time{})
	delete(r.traces, event.ID())
	r.mu.Unlock()

	t.UMO = event.UnifiedMsgOrigin()
	t.Text = r.truncate(event.MessageStr())
	t.Duration = r.now().Sub(t.StartedAt).Milliseconds()
	t.Status = out.Status.String()
	if out.ChainID != "" {
		t.ChainID = out.ChainID
	}
	if out.Resumed {
		t.Resumed = true
	}
	if out.Reason != "" {
		t.Reason = out.Reason
	}
	if out.Err != nil {
		t.Error = out.Err.Error()
	}
	if t.Nodes == nil {
		t.Nodes = []NodeTrace{}
	}

	data, err := t.MarshalIndent()
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	filePath := r.filePath(t)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	return filePath, nil
}

// trace возвращает трейс по id, создавая его при необходимости. Вызывается под mu.
func (r *Recorder) trace(id string, ts time.Time) *Trace {
	if t, ok := r.traces[id]; ok {
		return t
	}
	if len(r.traces) >= r.config.MaxPending {
		r.evictOldest()
	}
	if ts.IsZero() {
		ts = r.now()
	}
	t := &Trace{EventID: id, StartedAt: ts}
	r.traces[id] = t
	return t
}

func (r *Recorder) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, t := range r.traces {
		if oldestID == "" || t.StartedAt.Before(oldest) {
			oldestID, oldest = id, t.StartedAt
		}
	}
	delete(r.traces, oldestID)
}

func (r *Recorder) filePath(t *Trace) string {
	name := fmt.Sprintf("trace_%s_%s.json", t.StartedAt.Format("20060102_150405"), filepath.Base(t.EventID))
	if r.config.LogsDir != "" {
		return filepath.Join(r.config.LogsDir, name)
	}
	return name
}

func (r *Recorder) truncate(s string) string {
	if r.config.MaxTextSize <= 0 || len(s) <= r.config.MaxTextSize {
		return s
	}
	return s[:r.config.MaxTextSize] + "... (truncated)"
}
