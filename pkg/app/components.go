// Package app собирает relay из конфигурации.
//
// Components переиспользуется всеми точками входа (HTTP сервер, консоль,
// тесты): инициализация в одном месте, точки входа только запускают и
// останавливают.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/chainstore"
	"github.com/ilkoid/poncho-relay/pkg/config"
	"github.com/ilkoid/poncho-relay/pkg/contextmgr"
	"github.com/ilkoid/poncho-relay/pkg/debug"
	"github.com/ilkoid/poncho-relay/pkg/eventbus"
	"github.com/ilkoid/poncho-relay/pkg/events"
	"github.com/ilkoid/poncho-relay/pkg/llm"
	"github.com/ilkoid/poncho-relay/pkg/models"
	"github.com/ilkoid/poncho-relay/pkg/nodes"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/prompt"
	"github.com/ilkoid/poncho-relay/pkg/ratelimit"
	"github.com/ilkoid/poncho-relay/pkg/state"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Components содержит все собранные части relay.
type Components struct {
	Config   *config.AppConfig
	LLM      llm.Provider // nil, если models.default_chat не задан
	Models   *models.Registry
	Prompts  *prompt.Cache
	History  state.MessageRepository
	Registry *chain.Registry
	Router   *chain.Router
	Store    chainstore.Store
	Chains   *chain.Executor
	Limiter  *ratelimit.Limiter
	Pipeline *pipeline.Executor
	Bus      *eventbus.Bus
	Janitor  *eventbus.Janitor
	Recorder *debug.Recorder // nil, если app.debug выключен или debug_dir пуст
}

// Options — внешние зависимости Initialize.
type Options struct {
	// Sender — обратный канал платформы. Обязателен.
	Sender platform.Sender

	// Emitter получает события pipeline и узлов (может быть nil).
	Emitter events.Emitter

	// Provider подменяет провайдера из models.default_chat (тесты).
	Provider llm.Provider

	// Store подменяет источник цепочек из секции chains.
	Store chainstore.Store

	// OnOutcome получает итог каждого события из Bus.
	OnOutcome eventbus.OutcomeFunc
}

// ConfigPathFinder определяет стратегию поиска пути к config.yaml.
type ConfigPathFinder interface {
	FindConfigPath() string
}

// DefaultConfigPathFinder реализует стандартную стратегию поиска config.yaml.
//
// Порядок поиска:
// 1. Флаг --config (если указан)
// 2. Текущая директория (./config.yaml)
// 3. Директория бинарника
// 4. Родительская директория (для запуска из cmd/)
type DefaultConfigPathFinder struct {
	// ConfigFlag - значение флага --config, если указан
	ConfigFlag string
}

// FindConfigPath находит путь к config.yaml.
func (f *DefaultConfigPathFinder) FindConfigPath() string {
	if f.ConfigFlag != "" {
		return resolveAbsPath(f.ConfigFlag)
	}

	candidates := []string{"config.yaml"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "config.yaml"))
	}
	candidates = append(candidates,
		filepath.Join("..", "config.yaml"),
		filepath.Join("..", "..", "config.yaml"),
	)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return resolveAbsPath(p)
		}
	}
	return resolveAbsPath("config.yaml")
}

// InitializeConfig находит и загружает конфигурацию.
func InitializeConfig(finder ConfigPathFinder) (*config.AppConfig, string, error) {
	cfgPath := finder.FindConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// Initialize создаёт и связывает все компоненты.
//
// Порядок:
//  1. LLM провайдер и история разговоров
//  2. Реестр узлов со встроенными узлами
//  3. Роутер и первая загрузка цепочек из источника
//  4. Исполнитель цепочек, лимитер, pipeline со встроенными командами
//  5. Очередь событий и janitor
func Initialize(ctx context.Context, cfg *config.AppConfig, opts Options) (*Components, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("initialize: sender is required")
	}
	utils.Info("Initializing components", "chains_source", cfg.Chains.Source)

	modelRegistry, err := models.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM providers: %w", err)
	}
	provider := opts.Provider
	if provider == nil {
		provider = modelRegistry.Default()
	}
	if provider == nil {
		utils.Warn("No default chat model configured, llm_chat is unavailable")
	}

	history := state.NewMemoryStore(0)
	prompts := prompt.NewCache()
	registry := chain.NewRegistry()
	if err := nodes.RegisterBuiltins(registry, nodes.Deps{
		Provider: provider,
		Models:   modelRegistry,
		Prompts:  prompts,
		History:  history,
		Context:  contextmgr.FromConfig(cfg.ProviderSettings, provider),
		Settings: cfg.ProviderSettings,
	}); err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store, err = chainstore.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open chain store: %w", err)
		}
	}

	router := chain.NewRouter(chain.NewMatcher())
	if _, err := chainstore.Reload(ctx, store, router, registry); err != nil {
		closeStore(store)
		return nil, err
	}

	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}

	var recorder *debug.Recorder
	if cfg.App.Debug && cfg.App.DebugDir != "" {
		recorder, err = debug.NewRecorder(debug.RecorderConfig{LogsDir: cfg.App.DebugDir, MaxTextSize: 4096})
		if err != nil {
			closeStore(store)
			return nil, fmt.Errorf("failed to create debug recorder: %w", err)
		}
		emitter = events.Multi{emitter, recorder}
		utils.Info("Debug traces enabled", "dir", cfg.App.DebugDir)
	}

	chains := chain.NewExecutor(registry, chain.NewWaitRegistry(),
		chain.WithObserver(chain.NewEmitterObserver(emitter)))

	limiter := ratelimit.FromConfig(cfg.PlatformSettings.RateLimit)

	pipeOpts := pipeline.OptionsFromConfig(cfg)
	pipeOpts.RateLimit = pipeline.NewRateLimit(limiter)
	pipeOpts.Emitter = emitter
	pipe := pipeline.NewExecutor(router, chains, opts.Sender, pipeOpts)
	if err := pipeline.RegisterBuiltinCommands(pipe.Handlers(), router, history); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	var busOpts []eventbus.Option
	if onOutcome := withTrace(recorder, opts.OnOutcome); onOutcome != nil {
		busOpts = append(busOpts, eventbus.WithOutcome(onOutcome))
	}

	c := &Components{
		Config:   cfg,
		LLM:      provider,
		Models:   modelRegistry,
		Prompts:  prompts,
		History:  history,
		Registry: registry,
		Router:   router,
		Store:    store,
		Chains:   chains,
		Limiter:  limiter,
		Pipeline: pipe,
		Bus:      eventbus.New(pipe, busOpts...),
		Janitor:  eventbus.NewJanitor(chains.Waits(), limiter, cfg.Wait.TTL, cfg.Wait.SweepInterval),
		Recorder: recorder,
	}

	utils.Info("Components initialized",
		"chains", len(router.Chains()),
		"nodes", len(registry.List()),
		"rate_limit", limiter.Enabled())
	return c, nil
}

// ReloadChains перечитывает источник цепочек и сбрасывает кеш prompt_file.
func (c *Components) ReloadChains(ctx context.Context) ([]*chain.Config, error) {
	chains, err := chainstore.Reload(ctx, c.Store, c.Router, c.Registry)
	if err != nil {
		return nil, err
	}
	c.Prompts.Reset()
	return chains, nil
}

// Handle синхронно проводит событие через pipeline, минуя очередь.
func (c *Components) Handle(ctx context.Context, event *platform.MessageEvent) pipeline.Outcome {
	out := c.Pipeline.Execute(ctx, event, c.Pipeline.Resolve(event))
	if c.Recorder != nil {
		saveTrace(c.Recorder, event, out)
	}
	return out
}

// withTrace дополняет обработчик итогов записью трейса.
func withTrace(rec *debug.Recorder, next eventbus.OutcomeFunc) eventbus.OutcomeFunc {
	if rec == nil {
		return next
	}
	return func(event *platform.MessageEvent, out pipeline.Outcome) {
		saveTrace(rec, event, out)
		if next != nil {
			next(event, out)
		}
	}
}

func saveTrace(rec *debug.Recorder, event *platform.MessageEvent, out pipeline.Outcome) {
	path, err := rec.Finish(event, out)
	if err != nil {
		utils.Warn("Failed to save debug trace", "event_id", event.ID(), "error", err)
		return
	}
	utils.Debug("Debug trace saved", "path", path)
}

// Run запускает dispatch-цикл и janitor до отмены ctx или Close.
//
// Возвращает после того, как дорабатывают все запущенные задачи pipeline.
func (c *Components) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Janitor.Start(gctx)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		err := c.Bus.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err := g.Wait()
	c.Bus.Wait()
	return err
}

// Shutdown закрывает очередь и ждёт незавершённые события не дольше timeout.
func (c *Components) Shutdown(timeout time.Duration) {
	c.Bus.Close()

	done := make(chan struct{})
	go func() {
		c.Bus.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		utils.Warn("Shutdown timeout, pipeline tasks still running", "timeout", timeout.String())
	}
	closeStore(c.Store)
}

func closeStore(s chainstore.Store) {
	if cl, ok := s.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			utils.Warn("Failed to close chain store", "error", err)
		}
	}
}

// resolveAbsPath преобразует путь в абсолютный (если это не уже абсолютный путь).
func resolveAbsPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
