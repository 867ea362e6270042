package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/platform"
)

func noop(ctx context.Context, hc *HandlerContext) (bool, error) { return false, nil }

func names(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Handler.Name)
	}
	return out
}

func TestHandlerRegistry_Register(t *testing.T) {
	reg := NewHandlerRegistry()

	assert.Error(t, reg.Register(Handler{Fn: noop}))
	assert.Error(t, reg.Register(Handler{Name: "x"}))
	assert.Error(t, reg.Register(Handler{Name: "bad", Kind: HandlerPattern, Pattern: "(", Fn: noop}))
	require.NoError(t, reg.Register(Handler{Name: "ok", Fn: noop}))

	visible := reg.Visible(nil)
	require.Len(t, visible, 1)
	assert.Equal(t, "ok", visible[0].Plugin, "plugin defaults to handler name")
}

func TestHandlerRegistry_Match(t *testing.T) {
	reg := NewHandlerRegistry()
	require.NoError(t, reg.Register(Handler{Name: "weather", Fn: noop}))
	require.NoError(t, reg.Register(Handler{Name: "ban", AdminOnly: true, Fn: noop}))
	require.NoError(t, reg.Register(Handler{Name: "hello", Kind: HandlerPattern, Pattern: `^hello\b`, Fn: noop}))

	t.Run("command needs wake", func(t *testing.T) {
		ev := groupEvent(platform.Plain("weather moscow"))
		assert.Empty(t, reg.Match(ev, nil))

		ev.SetAtOrWakeCommand(true)
		ms := reg.Match(ev, nil)
		require.Len(t, ms, 1)
		assert.Equal(t, "weather", ms[0].Handler.Name)
		assert.Equal(t, []string{"moscow"}, ms[0].Args)
	})

	t.Run("command matches whole first word", func(t *testing.T) {
		ev := groupEvent(platform.Plain("weatherman"))
		ev.SetAtOrWakeCommand(true)
		assert.Empty(t, reg.Match(ev, nil))
	})

	t.Run("pattern without wake", func(t *testing.T) {
		ev := groupEvent(platform.Plain("hello there"))
		assert.Equal(t, []string{"hello"}, names(reg.Match(ev, nil)))
	})

	t.Run("admin only", func(t *testing.T) {
		ev := groupEvent(platform.Plain("ban bob"))
		ev.SetAtOrWakeCommand(true)
		assert.Empty(t, reg.Match(ev, nil))

		ev.SetRole(platform.RoleAdmin)
		assert.Equal(t, []string{"ban"}, names(reg.Match(ev, nil)))
	})

	t.Run("blacklist filter", func(t *testing.T) {
		c := &chain.Config{ID: "c", PluginFilter: chain.PluginFilter{Mode: chain.FilterBlacklist, Plugins: []string{"weather"}}}
		ev := groupEvent(platform.Plain("weather"))
		ev.SetAtOrWakeCommand(true)
		assert.Empty(t, reg.Match(ev, c))
	})

	t.Run("whitelist filter", func(t *testing.T) {
		c := &chain.Config{ID: "c", PluginFilter: chain.PluginFilter{Mode: chain.FilterWhitelist, Plugins: []string{"weather"}}}
		ev := groupEvent(platform.Plain("weather"))
		ev.SetAtOrWakeCommand(true)
		assert.Equal(t, []string{"weather"}, names(reg.Match(ev, c)))

		ev2 := groupEvent(platform.Plain("hello world"))
		assert.Empty(t, reg.Match(ev2, c))
	})
}

type fakeHistory struct{ resets []string }

func (h *fakeHistory) Reset(umo string) int {
	h.resets = append(h.resets, umo)
	return 3
}

func TestBuiltinCommands(t *testing.T) {
	router := chain.NewRouter(chain.NewMatcher())
	require.NoError(t, router.Load([]*chain.Config{makeChain("support", 10, nil, "echo")}))

	history := &fakeHistory{}
	reg := NewHandlerRegistry()
	require.NoError(t, RegisterBuiltinCommands(reg, router, history))

	run := func(ev *platform.MessageEvent) string {
		ev.SetAtOrWakeCommand(true)
		ms := reg.Match(ev, nil)
		require.Len(t, ms, 1)
		handled, err := ms[0].Handler.Fn(context.Background(), &HandlerContext{
			Event:    ev,
			Args:     ms[0].Args,
			Handlers: reg,
		})
		require.NoError(t, err)
		assert.True(t, handled)
		return ev.Result().Text()
	}

	help := run(privateEvent("help"))
	assert.Contains(t, help, "help")
	assert.Contains(t, help, "reset")
	assert.NotContains(t, help, "chains", "admin commands are hidden from members")

	assert.Equal(t, "История очищена (3 сообщений)", run(privateEvent("reset")))
	assert.Equal(t, []string{"test:FriendMessage:u1"}, history.resets)

	admin := privateEvent("chains")
	admin.SetRole(platform.RoleAdmin)
	listing := run(admin)
	assert.Contains(t, listing, "1. support [on] sort=10 nodes=1")
	assert.Contains(t, listing, "2. default [on]")
}
