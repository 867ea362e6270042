package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/events"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Options — необязательные стадии и настройки Executor.
type Options struct {
	Preprocessor Preprocessor
	Wake         *WakeDetector
	Handlers     *HandlerRegistry
	RateLimit    Mechanism
	Access       Mechanism
	Emitter      events.Emitter
	PreAckEmoji  string
	FailureReply string
	Tracer       trace.Tracer
}

// OptionsFromConfig заполняет настройки wake, pre-ack и failure reply из конфигурации.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	ps := cfg.PlatformSettings
	return Options{
		Preprocessor: NewDefaultPreprocessor(cfg),
		Wake: &WakeDetector{
			Prefixes:              append([]string(nil), cfg.WakePrefix...),
			FriendNeedsWakePrefix: ps.FriendMessageNeedsWakePrefix,
			IgnoreAtAll:           ps.IgnoreAtAll,
		},
		Access:       NewWhitelist(ps.IDWhitelist),
		PreAckEmoji:  ps.PreAckEmoji,
		FailureReply: ps.FailureReply,
	}
}

// Route — результат синхронного разрешения события в dispatch-цикле.
type Route struct {
	Chain *chain.Config
	Wait  *chain.WaitState // не nil — событие возобновляет цепочку
	UMO   string           // UMO на момент маршрутизации
}

// Resumed сообщает, найдено ли актуальное ожидание.
func (r Route) Resumed() bool {
	return r.Wait != nil
}

// Executor — PipelineExecutor: проводит одно событие через все стадии.
//
// Безопасен для конкурентного использования: состояние события живёт
// в chain.Scope, созданном на каждый вызов Execute.
type Executor struct {
	router *chain.Router
	chains *chain.Executor
	sender platform.Sender
	opts   Options
	tracer trace.Tracer
}

// NewExecutor создаёт Executor.
func NewExecutor(router *chain.Router, chains *chain.Executor, sender platform.Sender, opts Options) *Executor {
	if opts.Handlers == nil {
		opts.Handlers = NewHandlerRegistry()
	}
	if opts.Wake == nil {
		opts.Wake = &WakeDetector{}
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Nop{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/ilkoid/poncho-relay/pkg/pipeline")
	}
	return &Executor{
		router: router,
		chains: chains,
		sender: sender,
		opts:   opts,
		tracer: tracer,
	}
}

// Handlers возвращает реестр обработчиков.
func (p *Executor) Handlers() *HandlerRegistry {
	return p.opts.Handlers
}

// Resolve разрешает событие без I/O: ожидание или цепочка по правилам.
//
// Ожидание забирается из WaitRegistry. Если цепочка с тем же id больше
// не загружена, выключена или её конфигурация изменилась, ожидание
// считается устаревшим и событие маршрутизируется заново.
func (p *Executor) Resolve(event *platform.MessageEvent) Route {
	route := Route{UMO: event.UnifiedMsgOrigin()}

	if state, ok := p.chains.Waits().Pop(platform.WaitKey(event)); ok {
		if cur := p.validWait(state); cur != nil {
			route.Chain = cur
			route.Wait = &state
			return route
		}
		utils.Info("Stale wait state dropped",
			"event_id", event.ID(),
			"chain_id", chainID(state.Chain),
			"node_uuid", state.NodeUUID)
	}

	route.Chain = p.router.RouteEvent(event)
	return route
}

// keepWait возвращает ожидание в реестр, если возобновлённое событие
// остановлено до запуска цепочки.
func (p *Executor) keepWait(event *platform.MessageEvent, route Route) {
	if !route.Resumed() {
		return
	}
	p.chains.Waits().Set(platform.WaitKey(event), *route.Wait)
	utils.Debug("Wait state kept", "event_id", event.ID(), "node_uuid", route.Wait.NodeUUID)
}

func (p *Executor) validWait(state chain.WaitState) *chain.Config {
	if state.Chain == nil {
		return nil
	}
	cur, ok := p.router.Get(state.Chain.ID)
	if !ok || !cur.Enabled || !cur.Equal(state.Chain) {
		return nil
	}
	if cur.IndexOf(state.NodeUUID) < 0 {
		return nil
	}
	return cur
}

// Execute проводит событие через pipeline.
//
// Для нового события: preprocess → (повторная маршрутизация, если
// препроцессор сменил UMO) → wake → обработчики → rate limit → доступ →
// pre-ack → обработчики → цепочка → отправка.
// Для возобновлённого события wake и обработчики пропускаются,
// цепочка стартует с узла ожидания.
func (p *Executor) Execute(ctx context.Context, event *platform.MessageEvent, route Route) Outcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("event.id", event.ID()),
			attribute.String("event.umo", event.UnifiedMsgOrigin()),
			attribute.Bool("pipeline.resumed", route.Resumed()),
		),
	)
	defer span.End()

	out := p.execute(ctx, event, route)

	span.SetAttributes(
		attribute.String("pipeline.status", out.Status.String()),
		attribute.String("chain.id", out.ChainID),
	)
	if out.Reason != "" {
		span.SetAttributes(attribute.String("pipeline.reason", out.Reason))
	}
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (p *Executor) execute(ctx context.Context, event *platform.MessageEvent, route Route) Outcome {
	scope := chain.NewScope(platform.WaitKey(event))
	resumed := route.Resumed()
	if resumed {
		scope.ResumeNodeUUID = route.Wait.NodeUUID
	}

	if p.opts.Preprocessor != nil {
		v, err := p.opts.Preprocessor.Preprocess(ctx, event, scope)
		if err != nil {
			utils.Error("Preprocess failed", "event_id", event.ID(), "error", err)
			p.keepWait(event, route)
			return p.drop(ctx, event, Outcome{Reason: ReasonPreprocess, Err: err})
		}
		if v == Stop {
			p.keepWait(event, route)
			return p.drop(ctx, event, Outcome{Reason: ReasonPreprocess})
		}
	}

	ch := route.Chain
	if !resumed && event.UnifiedMsgOrigin() != route.UMO {
		ch = p.router.RouteEvent(event)
	}
	if ch == nil {
		utils.Debug("No chain for event", "event_id", event.ID(), "umo", event.UnifiedMsgOrigin())
		return p.drop(ctx, event, Outcome{Reason: ReasonNoChain})
	}
	scope.ChainID = ch.ID
	scope.ConfigID = ch.ConfigID

	p.emit(ctx, event, events.EventRouted, events.RouteData{
		ChainID: ch.ID,
		Resumed: resumed,
		NodeID:  scope.ResumeNodeUUID,
	})

	var matched []Match
	if !resumed {
		woken := p.opts.Wake.Detect(event)
		matched = p.opts.Handlers.Match(event, ch)
		if len(matched) == 0 && !woken {
			return p.drop(ctx, event, Outcome{Reason: ReasonNotWoken, ChainID: ch.ID})
		}
		event.SetWake(true)
	}

	for _, stage := range []struct {
		mech   Mechanism
		reason string
	}{
		{p.opts.RateLimit, ReasonRateLimit},
		{p.opts.Access, ReasonAccess},
	} {
		if stage.mech == nil {
			continue
		}
		v, err := stage.mech.Apply(ctx, event, scope)
		if err != nil {
			utils.Warn("Mechanism aborted event", "event_id", event.ID(), "reason", stage.reason, "error", err)
			p.keepWait(event, route)
			scope.Stop()
			return p.finish(ctx, event, scope, Outcome{Reason: stage.reason, ChainID: ch.ID, Resumed: resumed, Err: err})
		}
		if v == Stop {
			p.keepWait(event, route)
			scope.Stop()
			return p.finish(ctx, event, scope, Outcome{Reason: stage.reason, ChainID: ch.ID, Resumed: resumed})
		}
	}

	p.preAck(ctx, event)

	if len(matched) > 0 {
		handled, err := p.runHandlers(ctx, event, scope, ch, matched)
		if err != nil {
			return p.fail(ctx, event, Outcome{ChainID: ch.ID, Handled: true, Err: err})
		}
		if (handled && event.Result() != nil) || scope.Stopped() {
			return p.finish(ctx, event, scope, Outcome{ChainID: ch.ID, Handled: true})
		}
	}

	req := chain.Request{
		Event:  event,
		Chain:  ch,
		Scope:  scope,
		Sender: p.sender,
	}
	if resumed {
		req.StartNode = route.Wait.NodeUUID
	}

	exec, err := p.chains.Execute(ctx, req)
	out := Outcome{ChainID: ch.ID, Resumed: resumed, Execution: exec}
	if err != nil {
		utils.Error("Chain execution failed",
			"event_id", event.ID(),
			"chain_id", ch.ID,
			"error", err)
		out.Err = err
		return p.fail(ctx, event, out)
	}
	if exec.Outcome == chain.OutcomeWaiting {
		out.Status = StatusWaiting
		return out
	}
	if !exec.ShouldSend {
		out.Status = StatusSilent
		return out
	}
	return p.finish(ctx, event, scope, out)
}

// runHandlers выполняет совпавшие обработчики по порядку.
func (p *Executor) runHandlers(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope, ch *chain.Config, matched []Match) (bool, error) {
	handled := false
	for _, m := range matched {
		hc := &HandlerContext{
			Event:    event,
			Scope:    scope,
			Chain:    ch,
			Args:     m.Args,
			Handlers: p.opts.Handlers,
		}
		ok, err := m.Handler.Fn(ctx, hc)
		if err != nil {
			return handled, fmt.Errorf("handler '%s': %w", m.Handler.Name, err)
		}
		utils.Debug("Handler executed", "event_id", event.ID(), "handler", m.Handler.Name, "handled", ok)
		handled = handled || ok
		if scope.Stopped() {
			break
		}
	}
	return handled, nil
}

// finish отправляет результат, если он есть и отправка разрешена.
// Иначе событие считается отброшенным (при Reason) или обработанным молча.
func (p *Executor) finish(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope, out Outcome) Outcome {
	result := event.Result()
	if result.IsEmpty() || !scope.SendAllowed() {
		if out.Reason != "" {
			return p.drop(ctx, event, out)
		}
		out.Status = StatusSilent
		return out
	}

	if err := p.send(ctx, event, result); err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	out.Status = StatusSent
	return out
}

// fail сообщает о падении и, если задан failure_reply, уведомляет пользователя.
func (p *Executor) fail(ctx context.Context, event *platform.MessageEvent, out Outcome) Outcome {
	out.Status = StatusFailed
	if p.opts.FailureReply == "" {
		return out
	}
	if err := p.send(ctx, event, platform.NewTextResult(p.opts.FailureReply)); err != nil {
		utils.Warn("Failure reply not delivered", "event_id", event.ID(), "error", err)
	}
	return out
}

func (p *Executor) drop(ctx context.Context, event *platform.MessageEvent, out Outcome) Outcome {
	out.Status = StatusDropped
	p.emit(ctx, event, events.EventDropped, events.DropData{Reason: out.Reason})
	utils.Debug("Event dropped", "event_id", event.ID(), "reason", out.Reason)
	return out
}

func (p *Executor) send(ctx context.Context, event *platform.MessageEvent, result *platform.Result) error {
	if p.sender == nil {
		return fmt.Errorf("send: no sender configured")
	}
	if err := p.sender.Send(ctx, event, result); err != nil {
		utils.Error("Send failed", "event_id", event.ID(), "error", err)
		return fmt.Errorf("send: %w", err)
	}
	p.emit(ctx, event, events.EventSent, events.MessageData{Content: result.Text()})
	return nil
}

func (p *Executor) preAck(ctx context.Context, event *platform.MessageEvent) {
	if p.opts.PreAckEmoji == "" {
		return
	}
	acker, ok := p.sender.(platform.PreAcker)
	if !ok {
		return
	}
	if err := acker.PreAck(ctx, event, p.opts.PreAckEmoji); err != nil {
		utils.Warn("Pre-ack failed", "event_id", event.ID(), "error", err)
	}
}

func (p *Executor) emit(ctx context.Context, event *platform.MessageEvent, typ events.EventType, data events.EventData) {
	p.opts.Emitter.Emit(ctx, events.Event{
		Type:      typ,
		EventID:   event.ID(),
		UMO:       event.UnifiedMsgOrigin(),
		Data:      data,
		Timestamp: time.Now(),
	})
}

func chainID(c *chain.Config) string {
	if c == nil {
		return ""
	}
	return c.ID
}
