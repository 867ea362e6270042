package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainIDs(chains []*Config) []string {
	ids := make([]string, len(chains))
	for i, c := range chains {
		ids[i] = c.ID
	}
	return ids
}

func TestRouter_LoadOrder(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{
		{ID: "five", SortOrder: 5, Enabled: true},
		{ID: DefaultChainID, SortOrder: -1, Enabled: true},
		{ID: "ten", SortOrder: 10, Enabled: true},
		{ID: "five-b", SortOrder: 5, Enabled: true},
	}))

	assert.Equal(t, []string{"ten", "five", "five-b", DefaultChainID}, chainIDs(r.Chains()))
}

func TestRouter_DefaultAlwaysLast(t *testing.T) {
	r := NewRouter(nil)
	// default с большим sort_order всё равно проверяется последней.
	require.NoError(t, r.Load([]*Config{
		{ID: DefaultChainID, SortOrder: 100, Enabled: true},
		{ID: "low", SortOrder: -5, Enabled: true},
	}))
	assert.Equal(t, []string{"low", DefaultChainID}, chainIDs(r.Chains()))
}

func TestRouter_Route(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{
		{ID: "five", SortOrder: 5, Enabled: true, MatchRule: Cond(ConditionTextRegex, "^weather")},
		{ID: "ten", SortOrder: 10, Enabled: true, MatchRule: Cond(ConditionTextRegex, "^hi")},
		{ID: DefaultChainID, SortOrder: -1, Enabled: true},
	}))

	assert.Equal(t, "ten", r.Route(testUMO, textOnly(), "hi there").ID)
	assert.Equal(t, "five", r.Route(testUMO, textOnly(), "weather today").ID)
	assert.Equal(t, DefaultChainID, r.Route(testUMO, textOnly(), "something else").ID)
}

func TestRouter_HigherPriorityWins(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{
		{ID: "five", SortOrder: 5, Enabled: true},
		{ID: "ten", SortOrder: 10, Enabled: true},
	}))
	assert.Equal(t, "ten", r.Route(testUMO, textOnly(), "x").ID)
}

func TestRouter_DisabledChainsSkipped(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{
		{ID: "ten", SortOrder: 10, Enabled: false},
		{ID: DefaultChainID, Enabled: false},
	}))
	assert.Nil(t, r.Route(testUMO, textOnly(), "x"), "nothing enabled matches")
}

func TestRouter_BuiltinDefault(t *testing.T) {
	r := NewRouter(nil)
	got := r.Route(testUMO, textOnly(), "x")
	require.NotNil(t, got)
	assert.Equal(t, DefaultChainID, got.ID)

	require.NoError(t, r.Load([]*Config{{ID: "only", Enabled: true, MatchRule: Cond(ConditionUMO, "tg:*")}}))
	got = r.Route(testUMO, textOnly(), "x")
	require.NotNil(t, got)
	assert.Equal(t, DefaultChainID, got.ID)
	assert.NotEmpty(t, got.Nodes)
}

func TestRouter_GetAndDuplicates(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{
		{ID: "a", SortOrder: 1, Enabled: true, ConfigID: "first"},
		{ID: "a", SortOrder: 9, Enabled: true, ConfigID: "second"},
	}))

	c, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", c.ConfigID)
	assert.Len(t, r.Chains(), 2)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRouter_LoadErrorKeepsSnapshot(t *testing.T) {
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{{ID: "keep", Enabled: true}}))

	err := r.Load([]*Config{{ID: "", Enabled: true}})
	require.Error(t, err)

	_, ok := r.Get("keep")
	assert.True(t, ok)
}

func TestRouter_LoadCopiesInput(t *testing.T) {
	src := &Config{ID: "a", Enabled: true, Nodes: []ChainNode{{Name: "echo"}}}
	r := NewRouter(nil)
	require.NoError(t, r.Load([]*Config{src}))

	src.Nodes[0].Name = "changed"
	c, _ := r.Get("a")
	assert.Equal(t, "echo", c.Nodes[0].Name)
	assert.Empty(t, src.Nodes[0].UUID, "source is not normalized in place")
}
