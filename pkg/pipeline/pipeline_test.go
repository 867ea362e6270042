package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/events"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/ratelimit"
)

// recordingSender запоминает отправленные ответы и pre-ack.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	acks []string
	err  error
}

func (s *recordingSender) Send(ctx context.Context, e *platform.MessageEvent, r *platform.Result) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r.Text())
	return nil
}

func (s *recordingSender) PreAck(ctx context.Context, e *platform.MessageEvent, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, emoji)
	return nil
}

func (s *recordingSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func privateEvent(text string) *platform.MessageEvent {
	return platform.NewMessageEvent(platform.EventInit{
		PlatformID:  "test",
		MessageType: platform.FriendMessage,
		SenderID:    "u1",
		SelfID:      "bot",
		Components:  []platform.Component{platform.Plain(text)},
	})
}

func groupEvent(comps ...platform.Component) *platform.MessageEvent {
	return platform.NewMessageEvent(platform.EventInit{
		PlatformID:  "test",
		MessageType: platform.GroupMessage,
		SenderID:    "u1",
		GroupID:     "g1",
		SelfID:      "bot",
		Components:  comps,
	})
}

// fixture — собранный pipeline с реестром узлов и роутером.
type fixture struct {
	nodes  *chain.Registry
	router *chain.Router
	chains *chain.Executor
	sender *recordingSender
}

func newFixture(t *testing.T, chains ...*chain.Config) *fixture {
	t.Helper()
	f := &fixture{
		nodes:  chain.NewRegistry(),
		router: chain.NewRouter(chain.NewMatcher()),
		sender: &recordingSender{},
	}
	require.NoError(t, f.router.Load(chains))
	f.chains = chain.NewExecutor(f.nodes, chain.NewWaitRegistry())
	return f
}

func (f *fixture) pipeline(opts Options) *Executor {
	return NewExecutor(f.router, f.chains, f.sender, opts)
}

func (f *fixture) run(p *Executor, ev *platform.MessageEvent) Outcome {
	return p.Execute(context.Background(), ev, p.Resolve(ev))
}

func makeChain(id string, sortOrder int, rule *chain.Rule, nodes ...string) *chain.Config {
	c := &chain.Config{ID: id, SortOrder: sortOrder, MatchRule: rule, Enabled: true, LLMEnabled: true}
	for _, n := range nodes {
		c.Nodes = append(c.Nodes, chain.ChainNode{Name: n})
	}
	return c
}

func replyNode(text string, calls *atomic.Int32) chain.Node {
	return chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		if calls != nil {
			calls.Add(1)
		}
		call.SetOutput(chain.TextPacket(text))
		return chain.ResultContinue, nil
	})
}

func TestExecute_PrivateMessageRunsChainAndSends(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("x", nil)))

	out := f.run(f.pipeline(Options{}), privateEvent("hello"))

	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, "main", out.ChainID)
	assert.False(t, out.Resumed)
	require.NotNil(t, out.Execution)
	assert.Equal(t, chain.OutcomeCompleted, out.Execution.Outcome)
	assert.Equal(t, []string{"x"}, f.sender.Sent())
}

func TestExecute_GroupMessageWithoutWakeIsDropped(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("x", &calls)))

	emitter := events.NewChanEmitter(16)
	p := f.pipeline(Options{
		Wake:    &WakeDetector{Prefixes: []string{"/"}},
		Emitter: emitter,
	})

	out := f.run(p, groupEvent(platform.Plain("just chatting")))

	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonNotWoken, out.Reason)
	assert.Zero(t, calls.Load())
	assert.Empty(t, f.sender.Sent())

	emitter.Close()
	var types []events.EventType
	for ev := range emitter.Subscribe().Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.EventType{events.EventRouted, events.EventDropped}, types)
}

func TestExecute_WakePrefixIsStrippedBeforeChain(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "echo"))
	require.NoError(t, f.nodes.Register("echo", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		call.SetOutput(chain.TextPacket("echo:" + call.Event.MessageStr()))
		return chain.ResultContinue, nil
	})))

	p := f.pipeline(Options{Wake: &WakeDetector{Prefixes: []string{"/"}}})
	out := f.run(p, groupEvent(platform.Plain("/ping me")))

	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{"echo:ping me"}, f.sender.Sent())
}

func TestExecute_NoChainDrops(t *testing.T) {
	def := makeChain(chain.DefaultChainID, -1, nil, "reply")
	def.Enabled = false
	f := newFixture(t,
		makeChain("only-images", 1, chain.Cond(chain.ConditionModality, "image"), "reply"),
		def,
	)

	out := f.run(f.pipeline(Options{}), privateEvent("text only"))

	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonNoChain, out.Reason)
}

func TestExecute_WaitAndResume(t *testing.T) {
	var preCalls, askCalls atomic.Int32
	f := newFixture(t, makeChain("survey", 1, nil, "pre", "ask"))
	require.NoError(t, f.nodes.Register("pre", replyNode("pre", &preCalls)))
	require.NoError(t, f.nodes.Register("ask", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		askCalls.Add(1)
		if !call.Resumed() {
			return chain.ResultWait, nil
		}
		call.SetOutput(chain.TextPacket("answer: " + call.Event.MessageStr()))
		return chain.ResultContinue, nil
	})))
	p := f.pipeline(Options{})

	first := f.run(p, privateEvent("start"))
	assert.Equal(t, StatusWaiting, first.Status)
	assert.Empty(t, f.sender.Sent())
	assert.Equal(t, 1, f.chains.Waits().Len())

	ev := privateEvent("blue")
	route := p.Resolve(ev)
	require.True(t, route.Resumed())
	assert.Equal(t, 0, f.chains.Waits().Len())

	second := p.Execute(context.Background(), ev, route)
	assert.Equal(t, StatusSent, second.Status)
	assert.True(t, second.Resumed)
	assert.Equal(t, []string{"answer: blue"}, f.sender.Sent())
	assert.EqualValues(t, 1, preCalls.Load(), "nodes before the wait point must not re-run")
	assert.EqualValues(t, 2, askCalls.Load())
}

func TestResolve_StaleWaitFallsBackToRouting(t *testing.T) {
	f := newFixture(t, makeChain("survey", 1, nil, "ask"))
	require.NoError(t, f.nodes.Register("ask", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		return chain.ResultWait, nil
	})))
	require.NoError(t, f.nodes.Register("reply", replyNode("fresh", nil)))
	p := f.pipeline(Options{})

	out := f.run(p, privateEvent("start"))
	require.Equal(t, StatusWaiting, out.Status)

	require.NoError(t, f.router.Load([]*chain.Config{makeChain("survey", 1, nil, "reply")}))

	ev := privateEvent("next")
	route := p.Resolve(ev)
	assert.False(t, route.Resumed())
	require.NotNil(t, route.Chain)
	assert.Equal(t, "survey", route.Chain.ID)
	assert.Equal(t, 0, f.chains.Waits().Len())

	out = p.Execute(context.Background(), ev, route)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{"fresh"}, f.sender.Sent())
}

func TestExecute_RateLimitDiscardDrops(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", nil)))

	p := f.pipeline(Options{
		RateLimit: NewRateLimit(ratelimit.New(1, time.Minute, ratelimit.Discard)),
	})

	assert.Equal(t, StatusSent, f.run(p, privateEvent("one")).Status)

	out := f.run(p, privateEvent("two"))
	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonRateLimit, out.Reason)
	assert.Equal(t, []string{"ok"}, f.sender.Sent())
}

func TestExecute_AccessDenied(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", &calls)))

	p := f.pipeline(Options{Access: NewWhitelist([]string{"someone-else"})})
	out := f.run(p, privateEvent("hi"))

	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonAccess, out.Reason)
	assert.Zero(t, calls.Load())
}

func TestExecute_StoppedResumeKeepsWait(t *testing.T) {
	f := newFixture(t, makeChain("survey", 1, nil, "ask"))
	require.NoError(t, f.nodes.Register("ask", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		if !call.Resumed() {
			return chain.ResultWait, nil
		}
		call.SetOutput(chain.TextPacket("answer: " + call.Event.MessageStr()))
		return chain.ResultContinue, nil
	})))

	var deny atomic.Bool
	gate := MechanismFunc(func(ctx context.Context, e *platform.MessageEvent, s *chain.Scope) (Verdict, error) {
		if deny.Load() {
			return Stop, nil
		}
		return Continue, nil
	})
	p := f.pipeline(Options{Access: gate})

	require.Equal(t, StatusWaiting, f.run(p, privateEvent("start")).Status)

	deny.Store(true)
	out := f.run(p, privateEvent("blocked"))
	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonAccess, out.Reason)
	assert.True(t, out.Resumed)
	assert.Equal(t, 1, f.chains.Waits().Len(), "wait must survive a stopped resume")

	deny.Store(false)
	out = f.run(p, privateEvent("blue"))
	assert.Equal(t, StatusSent, out.Status)
	assert.True(t, out.Resumed)
	assert.Equal(t, []string{"answer: blue"}, f.sender.Sent())
	assert.Equal(t, 0, f.chains.Waits().Len())
}

func TestExecute_RateLimitedResumeKeepsWait(t *testing.T) {
	f := newFixture(t, makeChain("survey", 1, nil, "ask"))
	require.NoError(t, f.nodes.Register("ask", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		return chain.ResultWait, nil
	})))
	p := f.pipeline(Options{
		RateLimit: NewRateLimit(ratelimit.New(1, time.Minute, ratelimit.Discard)),
	})

	require.Equal(t, StatusWaiting, f.run(p, privateEvent("start")).Status)

	out := f.run(p, privateEvent("again"))
	assert.Equal(t, ReasonRateLimit, out.Reason)
	assert.Equal(t, 1, f.chains.Waits().Len())
	assert.True(t, p.Resolve(privateEvent("later")).Resumed())
}

func TestExecute_StoppedMechanismMayDeliverWithOverride(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", nil)))

	deny := MechanismFunc(func(ctx context.Context, e *platform.MessageEvent, s *chain.Scope) (Verdict, error) {
		e.SetResult(platform.NewTextResult("denied"))
		s.SetDeliverWhenStopped(true)
		return Stop, nil
	})

	out := f.run(f.pipeline(Options{Access: deny}), privateEvent("hi"))

	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{"denied"}, f.sender.Sent())
}

func TestExecute_CommandHandlesEventWithoutChain(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("chain", &calls)))

	reg := NewHandlerRegistry()
	require.NoError(t, reg.Register(Handler{
		Name: "ping",
		Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
			hc.Reply("pong")
			return true, nil
		},
	}))

	p := f.pipeline(Options{Handlers: reg, Wake: &WakeDetector{Prefixes: []string{"/"}}})
	out := f.run(p, groupEvent(platform.Plain("/ping")))

	assert.Equal(t, StatusSent, out.Status)
	assert.True(t, out.Handled)
	assert.Zero(t, calls.Load())
	assert.Equal(t, []string{"pong"}, f.sender.Sent())
}

func TestExecute_PatternListenerWakesEvent(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("chain", nil)))

	var seen atomic.Int32
	reg := NewHandlerRegistry()
	require.NoError(t, reg.Register(Handler{
		Name:    "thanks",
		Kind:    HandlerPattern,
		Pattern: `(?i)\bthank`,
		Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
			seen.Add(1)
			return false, nil
		},
	}))

	p := f.pipeline(Options{Handlers: reg, Wake: &WakeDetector{Prefixes: []string{"/"}}})
	out := f.run(p, groupEvent(platform.Plain("Thanks everyone")))

	assert.EqualValues(t, 1, seen.Load())
	assert.Equal(t, StatusSent, out.Status)
	assert.False(t, out.Handled)
	assert.Equal(t, []string{"chain"}, f.sender.Sent())
}

func TestExecute_PluginFilterHidesCommand(t *testing.T) {
	c := makeChain("main", 1, nil, "reply")
	c.PluginFilter = chain.PluginFilter{Mode: chain.FilterWhitelist, Plugins: []string{"other"}}
	f := newFixture(t, c)
	require.NoError(t, f.nodes.Register("reply", replyNode("chain", nil)))

	reg := NewHandlerRegistry()
	require.NoError(t, reg.Register(Handler{
		Name: "ping",
		Fn: func(ctx context.Context, hc *HandlerContext) (bool, error) {
			hc.Reply("pong")
			return true, nil
		},
	}))

	out := f.run(f.pipeline(Options{Handlers: reg}), privateEvent("ping"))

	assert.False(t, out.Handled)
	assert.Equal(t, []string{"chain"}, f.sender.Sent())
}

func TestExecute_ChainFailureSendsFailureReply(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "boom"))
	require.NoError(t, f.nodes.Register("boom", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		call.Event.SetResult(platform.NewTextResult("partial"))
		return 0, errors.New("provider down")
	})))

	out := f.run(f.pipeline(Options{FailureReply: "Что-то пошло не так"}), privateEvent("hi"))

	assert.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, chain.ErrNodeFailed)
	assert.Equal(t, []string{"Что-то пошло не так"}, f.sender.Sent())
}

func TestExecute_ChainFailureIsSilentWithoutReply(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "missing"))

	out := f.run(f.pipeline(Options{}), privateEvent("hi"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, chain.ErrNodeNotFound)
	assert.Empty(t, f.sender.Sent())
}

func TestExecute_PreAck(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", nil)))

	f.run(f.pipeline(Options{PreAckEmoji: "👀"}), privateEvent("hi"))

	assert.Equal(t, []string{"👀"}, f.sender.acks)
}

func TestExecute_SendErrorFails(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", nil)))
	f.sender.err = errors.New("socket closed")

	out := f.run(f.pipeline(Options{}), privateEvent("hi"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.ErrorContains(t, out.Err, "socket closed")
}

func TestExecute_PreprocessorSessionRewriteReroutes(t *testing.T) {
	f := newFixture(t,
		makeChain("personal", 5, chain.Cond(chain.ConditionUMO, "test:GroupMessage:u1_g1"), "personal"),
		makeChain(chain.DefaultChainID, -1, nil, "shared"),
	)
	require.NoError(t, f.nodes.Register("personal", replyNode("personal", nil)))
	require.NoError(t, f.nodes.Register("shared", replyNode("shared", nil)))

	p := f.pipeline(Options{
		Preprocessor: &DefaultPreprocessor{UniqueSession: true},
		Wake:         &WakeDetector{Prefixes: []string{"/"}},
	})

	ev := groupEvent(platform.Plain("/hi"))
	route := p.Resolve(ev)
	require.Equal(t, chain.DefaultChainID, route.Chain.ID)

	out := p.Execute(context.Background(), ev, route)
	assert.Equal(t, "personal", out.ChainID)
	assert.Equal(t, []string{"personal"}, f.sender.Sent())
}

func TestExecute_SelfMessageDropped(t *testing.T) {
	f := newFixture(t, makeChain("main", 1, nil, "reply"))
	require.NoError(t, f.nodes.Register("reply", replyNode("ok", nil)))

	ev := platform.NewMessageEvent(platform.EventInit{
		PlatformID:  "test",
		MessageType: platform.FriendMessage,
		SenderID:    "bot",
		SelfID:      "bot",
		Components:  []platform.Component{platform.Plain("echo")},
	})
	out := f.run(f.pipeline(Options{Preprocessor: &DefaultPreprocessor{IgnoreSelf: true}}), ev)

	assert.Equal(t, StatusDropped, out.Status)
	assert.Equal(t, ReasonPreprocess, out.Reason)
}
