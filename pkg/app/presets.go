// Пресеты — именованные оверлеи поверх config.yaml.
//
// Пресет не заменяет конфигурацию, а переопределяет только заданные поля:
//
//	cfg, err := app.LoadConfigWithPreset("config.yaml", "console")
package app

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ilkoid/poncho-relay/pkg/config"
)

// Фичи пресетов.
const (
	FeatureDebug       = "debug"        // log_level=debug
	FeatureNoRateLimit = "no-rate-limit" // rate_limit.count=0
	FeatureQuietFail   = "quiet-fail"    // failure_reply не отправляется
)

// PresetConfig — конфигурация пресета.
//
// Пустые поля означают «взять из config.yaml».
type PresetConfig struct {
	// Name — имя пресета (для логов и ошибок)
	Name string

	// Description — описание пресета (для справки)
	Description string

	// Model — алиас модели для models.default_chat.
	Model string

	// WakePrefix заменяет wake_prefix, если не nil.
	WakePrefix []string

	// FriendNeedsWake заменяет friend_message_needs_wake_prefix, если не nil.
	FriendNeedsWake *bool

	// RateLimitStrategy заменяет стратегию лимитера ("stall" | "discard").
	RateLimitStrategy string

	// Features — список фич (Feature*).
	Features []string
}

// HasFeature проверяет, включена ли feature в пресете.
func (p *PresetConfig) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Apply накладывает пресет на копию конфигурации.
func (p *PresetConfig) Apply(cfg *config.AppConfig) *config.AppConfig {
	out := *cfg
	if p.Model != "" {
		out.Models.DefaultChat = p.Model
	}
	if p.WakePrefix != nil {
		out.WakePrefix = append([]string(nil), p.WakePrefix...)
	}
	if p.FriendNeedsWake != nil {
		out.PlatformSettings.FriendMessageNeedsWakePrefix = *p.FriendNeedsWake
	}
	if p.RateLimitStrategy != "" {
		out.PlatformSettings.RateLimit.Strategy = p.RateLimitStrategy
	}
	for _, f := range p.Features {
		switch f {
		case FeatureDebug:
			out.App.Debug = true
			out.App.LogLevel = "debug"
		case FeatureNoRateLimit:
			out.PlatformSettings.RateLimit.Count = 0
		case FeatureQuietFail:
			out.PlatformSettings.FailureReply = ""
		}
	}
	return &out
}

var (
	presetsMu sync.RWMutex

	// presets — встроенные пресеты. Расширяется через RegisterPreset.
	presets = map[string]*PresetConfig{
		"console": {
			Name:            "console",
			Description:     "Local console: no wake prefix in private chat, no rate limit",
			FriendNeedsWake: boolPtr(false),
			Features:        []string{FeatureNoRateLimit},
		},
		"group-bot": {
			Name:              "group-bot",
			Description:       "Group deployment: wake prefix everywhere, excess messages are discarded",
			FriendNeedsWake:   boolPtr(true),
			RateLimitStrategy: config.StrategyDiscard,
		},
		"debug": {
			Name:        "debug",
			Description: "Debug logging, failures are not reported to users",
			Features:    []string{FeatureDebug, FeatureQuietFail, FeatureNoRateLimit},
		},
	}
)

// GetPreset получает пресет по имени.
//
// Возвращает ошибку с подсказкой доступных пресетов если не найден.
func GetPreset(name string) (*PresetConfig, error) {
	presetsMu.RLock()
	defer presetsMu.RUnlock()
	preset, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("preset '%s' not found. Available presets: %v", name, listPresetsLocked())
	}
	return preset, nil
}

// RegisterPreset регистрирует пользовательский пресет.
//
// Возвращает ошибку если пресет с таким именем уже существует.
func RegisterPreset(name string, preset *PresetConfig) error {
	presetsMu.Lock()
	defer presetsMu.Unlock()
	if _, exists := presets[name]; exists {
		return fmt.Errorf("preset '%s' already exists", name)
	}
	presets[name] = preset
	return nil
}

// ListPresets возвращает отсортированные имена пресетов.
func ListPresets() []string {
	presetsMu.RLock()
	defer presetsMu.RUnlock()
	return listPresetsLocked()
}

func listPresetsLocked() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadConfigWithPreset загружает config.yaml и применяет пресет.
// Пустое имя — конфигурация без изменений.
func LoadConfigWithPreset(cfgPath, name string) (*config.AppConfig, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return cfg, nil
	}
	preset, err := GetPreset(name)
	if err != nil {
		return nil, err
	}
	return preset.Apply(cfg), nil
}

func boolPtr(v bool) *bool { return &v }
