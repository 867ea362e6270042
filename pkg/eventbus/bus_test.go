package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/ratelimit"
)

// fakeProcessor фиксирует порядок Resolve и может блокировать Execute.
type fakeProcessor struct {
	mu       sync.Mutex
	resolved []string
	executed []string
	block    map[string]chan struct{}
}

func (p *fakeProcessor) Resolve(event *platform.MessageEvent) pipeline.Route {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, event.MessageStr())
	return pipeline.Route{UMO: event.UnifiedMsgOrigin()}
}

func (p *fakeProcessor) Execute(ctx context.Context, event *platform.MessageEvent, route pipeline.Route) pipeline.Outcome {
	p.mu.Lock()
	ch := p.block[event.MessageStr()]
	p.mu.Unlock()
	if ch != nil {
		<-ch
	}
	p.mu.Lock()
	p.executed = append(p.executed, event.MessageStr())
	p.mu.Unlock()
	return pipeline.Outcome{Status: pipeline.StatusSilent}
}

func (p *fakeProcessor) snapshot() (resolved, executed []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resolved...), append([]string(nil), p.executed...)
}

func event(text string) *platform.MessageEvent {
	return platform.NewMessageEvent(platform.EventInit{
		PlatformID:  "test",
		MessageType: platform.FriendMessage,
		SenderID:    "u1",
		Components:  []platform.Component{platform.Plain(text)},
	})
}

func TestBus_ResolvesInOrderAndDrainsOnClose(t *testing.T) {
	proc := &fakeProcessor{}
	var outcomes sync.WaitGroup
	outcomes.Add(3)
	bus := New(proc, WithOutcome(func(*platform.MessageEvent, pipeline.Outcome) { outcomes.Done() }))

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(event(s)))
	}
	assert.Equal(t, 3, bus.Len())
	bus.Close()

	require.NoError(t, bus.Run(context.Background()))
	bus.Wait()
	outcomes.Wait()

	resolved, executed := proc.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, resolved)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, executed)
	assert.Zero(t, bus.Len())
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New(&fakeProcessor{})
	bus.Close()
	bus.Close()

	assert.ErrorIs(t, bus.Publish(event("late")), ErrClosed)
	assert.Error(t, bus.Publish(nil))
}

func TestBus_DispatchDoesNotWaitForPipelines(t *testing.T) {
	release := make(chan struct{})
	proc := &fakeProcessor{block: map[string]chan struct{}{"slow": release}}

	done := make(chan string, 2)
	bus := New(proc, WithOutcome(func(e *platform.MessageEvent, _ pipeline.Outcome) { done <- e.MessageStr() }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- bus.Run(ctx) }()

	require.NoError(t, bus.Publish(event("slow")))
	require.NoError(t, bus.Publish(event("fast")))

	select {
	case got := <-done:
		assert.Equal(t, "fast", got, "fast event must finish while slow one is blocked")
	case <-time.After(2 * time.Second):
		t.Fatal("fast event was not processed")
	}

	close(release)
	select {
	case got := <-done:
		assert.Equal(t, "slow", got)
	case <-time.After(2 * time.Second):
		t.Fatal("slow event was not processed")
	}

	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)
	bus.Wait()
}

func TestBus_RunStopsOnCancel(t *testing.T) {
	bus := New(&fakeProcessor{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Run(ctx), context.Canceled)
}

func TestBus_WithPipelineExecutor(t *testing.T) {
	nodes := chain.NewRegistry()
	require.NoError(t, nodes.Register("echo", chain.NodeFunc(func(ctx context.Context, call *chain.Call) (chain.Result, error) {
		call.SetOutput(chain.TextPacket(call.Event.MessageStr()))
		return chain.ResultContinue, nil
	})))
	router := chain.NewRouter(chain.NewMatcher())
	require.NoError(t, router.Load([]*chain.Config{{ID: "main", SortOrder: 1, Enabled: true, Nodes: []chain.ChainNode{{Name: "echo"}}}}))

	var mu sync.Mutex
	var sent []string
	sender := platform.SenderFunc(func(ctx context.Context, e *platform.MessageEvent, r *platform.Result) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, r.Text())
		return nil
	})
	p := pipeline.NewExecutor(router, chain.NewExecutor(nodes, nil), sender, pipeline.Options{})

	bus := New(p)
	require.NoError(t, bus.Publish(event("hi")))
	bus.Close()
	require.NoError(t, bus.Run(context.Background()))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hi"}, sent)
}

func TestJanitor_Sweep(t *testing.T) {
	waits := chain.NewWaitRegistry()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	waits.Set("old", chain.WaitState{NodeUUID: "n1", CreatedAt: base.Add(-20 * time.Minute)})
	waits.Set("new", chain.WaitState{NodeUUID: "n2", CreatedAt: base.Add(-time.Minute)})

	now := base
	limiter := ratelimit.New(5, time.Minute, ratelimit.Discard, ratelimit.WithClock(func() time.Time { return now }))
	_, err := limiter.Apply(context.Background(), "s1")
	require.NoError(t, err)

	j := NewJanitor(waits, limiter, 10*time.Minute, time.Minute)
	j.now = func() time.Time { return now }

	expired, sessions := j.Sweep()
	assert.Equal(t, []string{"old"}, expired)
	assert.Zero(t, sessions)
	assert.Equal(t, 1, waits.Len())

	now = base.Add(2 * time.Minute)
	_, sessions = j.Sweep()
	assert.Equal(t, 1, sessions)
	assert.Zero(t, limiter.Sessions())
}

func TestJanitor_NoTTLKeepsWaits(t *testing.T) {
	waits := chain.NewWaitRegistry()
	waits.Set("k", chain.WaitState{CreatedAt: time.Unix(0, 0)})

	expired, _ := NewJanitor(waits, nil, 0, 0).Sweep()
	assert.Empty(t, expired)
	assert.Equal(t, 1, waits.Len())
}

func TestJanitor_StartStopsOnCancel(t *testing.T) {
	waits := chain.NewWaitRegistry()
	waits.Set("k", chain.WaitState{CreatedAt: time.Now().Add(-time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewJanitor(waits, nil, time.Minute, time.Hour).Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return waits.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
