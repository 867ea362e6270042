// Package models — реестр LLM провайдеров по алиасам из config.yaml.
//
// Все модели из models.definitions создаются один раз при старте; узел
// llm_chat выбирает провайдера по настройке "model", не создавая клиентов
// на каждое сообщение.
package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/factory"
	"github.com/ilkoid/poncho-relay/pkg/llm"
)

// Registry — потокобезопасное хранилище провайдеров.
type Registry struct {
	mu          sync.RWMutex
	models      map[string]ModelEntry
	defaultName string
}

// ModelEntry — провайдер вместе с его определением.
type ModelEntry struct {
	Provider llm.Provider
	Config   config.ModelDef
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]ModelEntry),
	}
}

// Register добавляет модель. Повторная регистрация алиаса — ошибка.
func (r *Registry) Register(name string, modelDef config.ModelDef, provider llm.Provider) error {
	if name == "" {
		return fmt.Errorf("model name is empty")
	}
	if provider == nil {
		return fmt.Errorf("model '%s': provider is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[name]; exists {
		return fmt.Errorf("model '%s' already registered", name)
	}
	r.models[name] = ModelEntry{
		Provider: provider,
		Config:   modelDef,
	}
	return nil
}

// SetDefault помечает алиас моделью по умолчанию.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name]; !ok {
		return fmt.Errorf("model '%s' not found in registry", name)
	}
	r.defaultName = name
	return nil
}

// Default возвращает провайдера по умолчанию или nil.
func (r *Registry) Default() llm.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return nil
	}
	return r.models[r.defaultName].Provider
}

// Get извлекает провайдера по алиасу.
func (r *Registry) Get(name string) (llm.Provider, config.ModelDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.models[name]
	if !ok {
		return nil, config.ModelDef{}, fmt.Errorf("model '%s' not found in registry", name)
	}
	return entry.Provider, entry.Config, nil
}

// Has сообщает, зарегистрирован ли алиас.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.models[name]
	return ok
}

// GetWithFallback возвращает запрошенную модель, а при её отсутствии — модель
// по умолчанию. Третьим значением возвращается фактический алиас.
func (r *Registry) GetWithFallback(requested string) (llm.Provider, config.ModelDef, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.models[requested]; ok {
		return entry.Provider, entry.Config, requested, nil
	}
	if entry, ok := r.models[r.defaultName]; ok {
		return entry.Provider, entry.Config, r.defaultName, nil
	}
	return nil, config.ModelDef{}, "", fmt.Errorf("neither requested model '%s' nor default '%s' found in registry", requested, r.defaultName)
}

// ListNames возвращает отсортированные алиасы.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig создаёт провайдеров для всех models.definitions.
//
// Если задан models.default_chat, он становится моделью по умолчанию.
// Ошибка создания любой модели прерывает сборку.
func NewRegistryFromConfig(cfg *config.AppConfig) (*Registry, error) {
	registry := NewRegistry()

	for name, modelDef := range cfg.Models.Definitions {
		provider, err := factory.NewLLMProvider(modelDef)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider for model '%s': %w", name, err)
		}
		if err := registry.Register(name, modelDef, provider); err != nil {
			return nil, fmt.Errorf("failed to register model '%s': %w", name, err)
		}
	}

	if cfg.Models.DefaultChat != "" {
		if err := registry.SetDefault(cfg.Models.DefaultChat); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
