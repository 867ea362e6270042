package chain

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Outcome — чем закончилось выполнение цепочки.
type Outcome int

const (
	// OutcomeCompleted — все узлы пройдены.
	OutcomeCompleted Outcome = iota

	// OutcomeStopped — узел вернул STOP или запросил остановку.
	OutcomeStopped

	// OutcomeWaiting — узел вернул WAIT, разговор приостановлен.
	OutcomeWaiting

	// OutcomeFailed — узел не найден, не инициализировался или упал.
	OutcomeFailed
)

// String возвращает строковое представление Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Unknown(%d)", o)
	}
}

// Request — входные данные одного выполнения цепочки.
type Request struct {
	Event  *platform.MessageEvent
	Chain  *Config
	Scope  *Scope
	Sender platform.Sender

	// StartNode — uuid или имя узла, с которого начать (пусто = с начала).
	// Узлы до него не выполняются.
	StartNode string
}

// Execution — итог выполнения цепочки.
type Execution struct {
	ChainID    string
	Outcome    Outcome
	ShouldSend bool
	Stack      *NodeContextStack
	Err        error
}

// Executor прогоняет узлы цепочки строго последовательно.
//
// Executor не хранит состояния события и безопасен для конкурентного
// использования: общие части (Registry, Initializer, NodeConfigs,
// WaitRegistry) потокобезопасны.
type Executor struct {
	registry  NodeRegistry
	waits     *WaitRegistry
	init      *Initializer
	configs   *NodeConfigs
	observers []Observer
	tracer    trace.Tracer
}

// ExecutorOption настраивает Executor.
type ExecutorOption func(*Executor)

// WithInitializer задаёт общий Initializer.
func WithInitializer(i *Initializer) ExecutorOption {
	return func(e *Executor) { e.init = i }
}

// WithNodeConfigs задаёт хранилище переопределений настроек узлов.
func WithNodeConfigs(c *NodeConfigs) ExecutorOption {
	return func(e *Executor) { e.configs = c }
}

// WithObserver добавляет наблюдателя за узлами.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithTracer задаёт tracer (по умолчанию глобальный otel).
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor создаёт Executor.
func NewExecutor(registry NodeRegistry, waits *WaitRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		waits:    waits,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.init == nil {
		e.init = NewInitializer()
	}
	if e.configs == nil {
		e.configs = NewNodeConfigs()
	}
	if e.waits == nil {
		e.waits = NewWaitRegistry()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/ilkoid/poncho-relay/pkg/chain")
	}
	return e
}

// Waits возвращает WaitRegistry исполнителя.
func (e *Executor) Waits() *WaitRegistry {
	return e.waits
}

// Execute выполняет цепочку для события.
//
// Алгоритм для каждого узла, начиная со StartNode:
//  1. Создаёт NodeContext, вход = выход ближайшего EXECUTED узла
//  2. Находит реализацию в NodeRegistry (нет или выключена = FAILED)
//  3. Лениво инициализирует её для chain_id (ошибка = FAILED)
//  4. Собирает настройки узла и вызывает Process
//  5. WAIT сохраняет WaitState и запрещает отправку, STOP завершает цепочку
//
// После цикла, если отправка разрешена и ответа нет, ответом становится
// выход последнего EXECUTED узла. Ошибка узла возвращается вызывающему
// и дублируется в Execution.Err.
func (e *Executor) Execute(ctx context.Context, req Request) (*Execution, error) {
	chain := req.Chain
	if chain == nil || req.Event == nil {
		return nil, fmt.Errorf("execute: event and chain are required")
	}
	scope := req.Scope
	if scope == nil {
		scope = NewScope(platform.WaitKey(req.Event))
	}

	exec := &Execution{
		ChainID:    chain.ID,
		Outcome:    OutcomeCompleted,
		ShouldSend: true,
		Stack:      NewNodeContextStack(),
	}

	start := 0
	if req.StartNode != "" {
		start = chain.IndexOf(req.StartNode)
		if start < 0 {
			err := fmt.Errorf("chain '%s': %w: %s", chain.ID, ErrStartNodeNotFound, req.StartNode)
			exec.Outcome = OutcomeFailed
			exec.ShouldSend = false
			exec.Err = err
			return exec, err
		}
	}

	ctx, span := e.tracer.Start(ctx, "chain.execute",
		trace.WithAttributes(
			attribute.String("chain.id", chain.ID),
			attribute.Int("chain.start_index", start),
			attribute.Bool("chain.resumed", scope.Resumed()),
		),
	)
	defer span.End()

	utils.Debug("Chain execution started",
		"chain_id", chain.ID,
		"event_id", req.Event.ID(),
		"start_index", start)

loop:
	for i := start; i < len(chain.Nodes); i++ {
		node := chain.Nodes[i]
		nc := &NodeContext{
			NodeName:   node.Name,
			NodeUUID:   node.UUID,
			ChainIndex: i,
			Status:     StatusPending,
		}
		if prev := exec.Stack.LastExecuted(-1); prev != nil {
			nc.Input = prev.Output
		}
		pos := exec.Stack.Len()
		exec.Stack.Push(nc)

		call := &Call{
			Event:  req.Event,
			Chain:  chain,
			Node:   node,
			Index:  i,
			Scope:  scope,
			Sender: req.Sender,
			stack:  exec.Stack,
			nc:     nc,
			pos:    pos,
		}

		result, err := e.runNode(ctx, call)
		if err != nil {
			exec.Outcome = OutcomeFailed
			exec.ShouldSend = false
			exec.Err = err
			scope.SuppressSend()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return exec, err
		}

		switch result {
		case ResultWait:
			e.waits.Set(scope.WaitKey, WaitState{
				Chain:     chain,
				NodeUUID:  node.UUID,
				ConfigID:  chain.ConfigID,
				CreatedAt: time.Now(),
			})
			scope.SuppressSend()
			exec.ShouldSend = false
			exec.Outcome = OutcomeWaiting
			break loop

		case ResultStop:
			exec.Outcome = OutcomeStopped
			break loop
		}

		if scope.NodeStopRequested() {
			exec.Outcome = OutcomeStopped
			break
		}
	}

	if exec.ShouldSend && req.Event.Result() == nil {
		if last := exec.Stack.LastExecuted(-1); last != nil && last.Output != nil {
			if r := last.Output.AsResult(); r != nil {
				req.Event.SetResult(r)
			}
		}
	}

	span.SetAttributes(attribute.String("chain.outcome", exec.Outcome.String()))
	utils.Debug("Chain execution finished",
		"chain_id", chain.ID,
		"event_id", req.Event.ID(),
		"outcome", exec.Outcome.String())

	return exec, nil
}

// runNode выполняет один узел и выставляет его статус.
func (e *Executor) runNode(ctx context.Context, call *Call) (Result, error) {
	nc := call.nc
	ctx, span := e.tracer.Start(ctx, "chain.node",
		trace.WithAttributes(
			attribute.String("chain.id", call.Chain.ID),
			attribute.String("node.name", call.Node.Name),
			attribute.String("node.uuid", call.Node.UUID),
			attribute.Int("node.index", call.Index),
		),
	)
	defer span.End()

	for _, o := range e.observers {
		o.OnNodeStart(ctx, call)
	}
	startTime := time.Now()

	result, err := e.invoke(ctx, call)
	if err != nil {
		nc.Status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		utils.Error("Chain node failed",
			"chain_id", call.Chain.ID,
			"node", call.Node.Name,
			"index", call.Index,
			"error", err)
	} else {
		switch result {
		case ResultWait:
			nc.Status = StatusWaiting
		case ResultSkip:
			nc.Status = StatusSkipped
		default:
			nc.Status = StatusExecuted
			reconcileOutput(call)
		}
		span.SetAttributes(attribute.String("node.result", result.String()))
	}

	duration := time.Since(startTime)
	for _, o := range e.observers {
		o.OnNodeFinish(ctx, call, nc.Status, duration, err)
	}
	return result, err
}

// invoke находит, инициализирует и вызывает реализацию узла.
func (e *Executor) invoke(ctx context.Context, call *Call) (result Result, err error) {
	nodeErr := func(kind, cause error) error {
		return &NodeError{
			ChainID: call.Chain.ID,
			Node:    call.Node.Name,
			UUID:    call.Node.UUID,
			Index:   call.Index,
			Kind:    kind,
			Err:     cause,
		}
	}

	if e.registry == nil {
		return 0, nodeErr(ErrNodeNotFound, nil)
	}
	h, ok := e.registry.Resolve(call.Node.Name)
	if !ok || h == nil {
		return 0, nodeErr(ErrNodeNotFound, nil)
	}
	if !e.registry.IsEnabled(h) {
		return 0, nodeErr(ErrNodeDisabled, nil)
	}

	if err := e.init.Ensure(ctx, h, call.Chain.ID); err != nil {
		return 0, nodeErr(ErrNodeInit, err)
	}

	call.NodeConfig = e.configs.Resolve(h, call.Chain.ID, call.Node)

	defer func() {
		if r := recover(); r != nil {
			result = 0
			err = nodeErr(ErrNodeFailed, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = h.Node.Process(ctx, call)
	if err != nil {
		return 0, nodeErr(ErrNodeFailed, err)
	}
	return result, nil
}

// reconcileOutput согласует выход узла и ответ события.
//
// Нет выхода, но есть ответ: ответ становится выходом.
// Есть выход, но нет ответа: выход (MESSAGE или TEXT) становится ответом.
// Есть оба: ничего не меняется.
func reconcileOutput(call *Call) {
	res := call.Event.Result()
	out := call.nc.Output
	switch {
	case out == nil && res != nil:
		call.nc.Output = MessagePacket(res)
	case out != nil && res == nil:
		if r := out.AsResult(); r != nil {
			call.Event.SetResult(r)
		}
	}
}
