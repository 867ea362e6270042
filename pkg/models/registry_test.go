package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/models"
)

type stubProvider struct{ name string }

func (p stubProvider) TextChat(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{CompletionText: p.name}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := models.NewRegistry()
	require.NoError(t, r.Register("fast", config.ModelDef{ModelName: "fast-1"}, stubProvider{"fast"}))
	require.NoError(t, r.Register("smart", config.ModelDef{ModelName: "smart-1"}, stubProvider{"smart"}))

	err := r.Register("fast", config.ModelDef{}, stubProvider{"dup"})
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, r.Register("", config.ModelDef{}, stubProvider{}))
	assert.Error(t, r.Register("nil", config.ModelDef{}, nil))

	p, def, err := r.Get("smart")
	require.NoError(t, err)
	assert.Equal(t, "smart-1", def.ModelName)
	assert.Equal(t, stubProvider{"smart"}, p)

	_, _, err = r.Get("missing")
	assert.ErrorContains(t, err, "not found")

	assert.True(t, r.Has("fast"))
	assert.False(t, r.Has("missing"))
	assert.Equal(t, []string{"fast", "smart"}, r.ListNames())
}

func TestRegistry_DefaultAndFallback(t *testing.T) {
	r := models.NewRegistry()
	assert.Nil(t, r.Default())

	require.NoError(t, r.Register("fast", config.ModelDef{}, stubProvider{"fast"}))
	require.NoError(t, r.Register("smart", config.ModelDef{}, stubProvider{"smart"}))
	assert.Error(t, r.SetDefault("missing"))

	_, _, _, err := r.GetWithFallback("missing")
	assert.Error(t, err)

	require.NoError(t, r.SetDefault("fast"))
	assert.Equal(t, stubProvider{"fast"}, r.Default())

	p, _, name, err := r.GetWithFallback("smart")
	require.NoError(t, err)
	assert.Equal(t, "smart", name)
	assert.Equal(t, stubProvider{"smart"}, p)

	p, _, name, err = r.GetWithFallback("missing")
	require.NoError(t, err)
	assert.Equal(t, "fast", name)
	assert.Equal(t, stubProvider{"fast"}, p)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := &config.AppConfig{
		Models: config.ModelsConfig{
			DefaultChat: "deepseek-chat",
			Definitions: map[string]config.ModelDef{
				"deepseek-chat": {Provider: "deepseek", ModelName: "deepseek-chat", APIKey: "k", BaseURL: "https://api.deepseek.com/v1"},
				"router":        {Provider: "openrouter", ModelName: "openai/gpt-4o", APIKey: "k", BaseURL: "https://openrouter.ai/api/v1"},
				"plain":         {ModelName: "gpt-4o-mini", APIKey: "k"},
			},
		},
	}

	r, err := models.NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek-chat", "plain", "router"}, r.ListNames())
	assert.NotNil(t, r.Default())
}

func TestNewRegistryFromConfig_Errors(t *testing.T) {
	_, err := models.NewRegistryFromConfig(&config.AppConfig{
		Models: config.ModelsConfig{
			Definitions: map[string]config.ModelDef{
				"odd": {Provider: "unknown-provider", ModelName: "x"},
			},
		},
	})
	assert.ErrorContains(t, err, "unknown provider type")

	_, err = models.NewRegistryFromConfig(&config.AppConfig{
		Models: config.ModelsConfig{DefaultChat: "missing"},
	})
	assert.ErrorContains(t, err, "not found")

	r, err := models.NewRegistryFromConfig(&config.AppConfig{})
	require.NoError(t, err)
	assert.Empty(t, r.ListNames())
	assert.Nil(t, r.Default())
}
