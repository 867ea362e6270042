package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig — корневая структура конфигурации.
// Она зеркалит структуру config.yaml.
type AppConfig struct {
	App              AppSpecific      `yaml:"app"`
	WakePrefix       []string         `yaml:"wake_prefix"`
	AdminsID         []string         `yaml:"admins_id"`
	PlatformSettings PlatformSettings `yaml:"platform_settings"`
	ProviderSettings ProviderSettings `yaml:"provider_settings"`
	Models           ModelsConfig     `yaml:"models"`
	Chains           ChainsConfig     `yaml:"chains"`
	Wait             WaitConfig       `yaml:"wait"`
	Server           ServerConfig     `yaml:"server"`
	Telemetry        TelemetryConfig  `yaml:"telemetry"`
	S3               S3Config         `yaml:"s3"`
}

// AppSpecific — общие настройки приложения.
type AppSpecific struct {
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"` // Трейсы событий в JSON; пусто = не писать
	LogLevel string `yaml:"log_level"`
	LogFile  bool   `yaml:"log_file"`
}

// PlatformSettings — поведение pipeline, общее для всех платформ.
type PlatformSettings struct {
	FriendMessageNeedsWakePrefix bool            `yaml:"friend_message_needs_wake_prefix"`
	IgnoreAtAll                  bool            `yaml:"ignore_at_all"`
	IgnoreBotSelfMessage         *bool           `yaml:"ignore_bot_self_message"` // nil = true
	UniqueSession                bool            `yaml:"unique_session"`
	PreAckEmoji                  string          `yaml:"pre_ack_emoji"`
	FailureReply                 string          `yaml:"failure_reply"` // Ответ при падении цепочки; пусто = молча
	IDWhitelist                  []string        `yaml:"id_whitelist"`  // UMO, session или sender id; пусто = все
	RateLimit                    RateLimitConfig `yaml:"rate_limit"`
}

// IgnoresSelfMessages возвращает значение ignore_bot_self_message с учётом дефолта.
func (p PlatformSettings) IgnoresSelfMessages() bool {
	return p.IgnoreBotSelfMessage == nil || *p.IgnoreBotSelfMessage
}

// RateLimitConfig — fixed window лимит на сессию.
type RateLimitConfig struct {
	Count    int     `yaml:"count"`    // Допусков за окно
	Time     float64 `yaml:"time"`     // Длина окна в секундах
	Strategy string  `yaml:"strategy"` // "stall" или "discard"
}

// Window возвращает длину окна как time.Duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.Time * float64(time.Second))
}

// ProviderSettings — настройки LLM контекста.
type ProviderSettings struct {
	MaxContextLength   int    `yaml:"max_context_length"`   // Лимит модели в токенах; -1 отключает сжатие
	MaxMessagesToKeep  int    `yaml:"max_messages_to_keep"` // Лимит сообщений после сжатия
	CompressStrategy   string `yaml:"compress_strategy"`    // "llm_summary" | "truncate_by_turns"
	CompressKeepRecent int    `yaml:"compress_keep_recent"` // Сколько последних сообщений не трогает summary
	TruncateTurns      int    `yaml:"truncate_turns"`       // Сколько ходов отбрасывает truncate_by_turns
	SystemPrompt       string `yaml:"system_prompt"`
}

// ModelsConfig — настройки AI моделей.
type ModelsConfig struct {
	DefaultChat string              `yaml:"default_chat"` // Алиас модели для llm_chat и summary
	Definitions map[string]ModelDef `yaml:"definitions"`  // Словарь определений моделей
}

// ModelDef — параметры конкретной модели.
type ModelDef struct {
	Provider    string        `yaml:"provider"`   // "openai", "deepseek", "zai" ...
	ModelName   string        `yaml:"model_name"` // Реальное имя в API
	APIKey      string        `yaml:"api_key"`    // Поддерживает ${VAR}
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`     // "60s", "1m"
	RateLimit   int           `yaml:"rate_limit"`  // Запросов в минуту, 0 = без лимита
	BurstLimit  int           `yaml:"burst_limit"` // Burst для rate limiter
}

// ChainsConfig — откуда загружаются цепочки.
type ChainsConfig struct {
	Source string      `yaml:"source"` // "inline" | "file" | "sqlite" | "s3"
	Path   string      `yaml:"path"`   // Путь к YAML/SQLite или ключ объекта в S3
	Inline []yaml.Node `yaml:"inline"` // Определения цепочек прямо в config.yaml
}

// WaitConfig — надстройка над WaitRegistry для забывания старых ожиданий.
type WaitConfig struct {
	TTL           time.Duration `yaml:"ttl"`            // 0 = ожидание не истекает
	SweepInterval time.Duration `yaml:"sweep_interval"` // Период проверки
}

// ServerConfig — HTTP поверхность (internal/api).
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig — OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// S3Config — настройки объектного хранилища (источник цепочек "s3").
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // Поддерживает ${VAR}
	SecretKey string `yaml:"secret_key"` // Поддерживает ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
}

// Стратегии rate limiter.
const (
	StrategyStall   = "stall"
	StrategyDiscard = "discard"
)

// Стратегии сжатия контекста.
const (
	CompressLLMSummary     = "llm_summary"
	CompressTruncateByTurn = "truncate_by_turns"
)

// Load читает YAML файл, подставляет ENV переменные и возвращает готовую структуру.
func Load(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at: %s", path)
	}

	rawBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(rawBytes)
}

// Parse разбирает YAML (с подстановкой ${VAR}), применяет дефолты и валидирует.
func Parse(data []byte) (*AppConfig, error) {
	contentWithEnv := os.ExpandEnv(string(data))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(contentWithEnv), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	cfg = cfg.GetDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// GetDefaults возвращает копию конфигурации с дефолтами для незаполненных полей.
func (c AppConfig) GetDefaults() AppConfig {
	result := c

	if result.App.LogLevel == "" {
		result.App.LogLevel = "info"
	}
	if result.WakePrefix == nil {
		result.WakePrefix = []string{"/"}
	}

	rl := &result.PlatformSettings.RateLimit
	if rl.Count == 0 {
		rl.Count = 30
	}
	if rl.Time == 0 {
		rl.Time = 60
	}
	if rl.Strategy == "" {
		rl.Strategy = StrategyStall
	}

	ps := &result.ProviderSettings
	if ps.MaxContextLength == 0 {
		ps.MaxContextLength = -1
	}
	if ps.MaxMessagesToKeep == 0 {
		ps.MaxMessagesToKeep = 40
	}
	if ps.CompressStrategy == "" {
		ps.CompressStrategy = CompressLLMSummary
	}
	if ps.CompressKeepRecent == 0 {
		ps.CompressKeepRecent = 4
	}
	if ps.TruncateTurns == 0 {
		ps.TruncateTurns = 1
	}

	if result.Chains.Source == "" {
		result.Chains.Source = "inline"
	}
	if result.Wait.TTL > 0 && result.Wait.SweepInterval == 0 {
		result.Wait.SweepInterval = time.Minute
	}
	if result.Server.Addr == "" {
		result.Server.Addr = ":8080"
	}
	if result.Telemetry.ServiceName == "" {
		result.Telemetry.ServiceName = "poncho-relay"
	}

	return result
}

// validate проверяет обязательные поля.
func (c *AppConfig) validate() error {
	rl := c.PlatformSettings.RateLimit
	if rl.Count < 0 {
		return fmt.Errorf("platform_settings.rate_limit.count must be non-negative, got %d", rl.Count)
	}
	if rl.Time < 0 {
		return fmt.Errorf("platform_settings.rate_limit.time must be non-negative, got %v", rl.Time)
	}
	if rl.Strategy != StrategyStall && rl.Strategy != StrategyDiscard {
		return fmt.Errorf("platform_settings.rate_limit.strategy must be %q or %q, got %q",
			StrategyStall, StrategyDiscard, rl.Strategy)
	}

	ps := c.ProviderSettings
	if ps.MaxContextLength < -1 || ps.MaxContextLength == 0 {
		return fmt.Errorf("provider_settings.max_context_length must be -1 or positive, got %d", ps.MaxContextLength)
	}
	if ps.CompressStrategy != CompressLLMSummary && ps.CompressStrategy != CompressTruncateByTurn {
		return fmt.Errorf("provider_settings.compress_strategy %q is not supported", ps.CompressStrategy)
	}

	switch c.Chains.Source {
	case "inline":
	case "file", "sqlite":
		if c.Chains.Path == "" {
			return fmt.Errorf("chains.path is required for source %q", c.Chains.Source)
		}
	case "s3":
		if c.S3.Bucket == "" || c.S3.Endpoint == "" {
			return fmt.Errorf("s3.bucket and s3.endpoint are required for chains source s3")
		}
		if c.Chains.Path == "" {
			return fmt.Errorf("chains.path (object key) is required for source s3")
		}
	default:
		return fmt.Errorf("chains.source %q is not supported", c.Chains.Source)
	}

	if c.Models.DefaultChat != "" {
		if _, ok := c.Models.Definitions[c.Models.DefaultChat]; !ok {
			return fmt.Errorf("default_chat model '%s' is not defined in definitions", c.Models.DefaultChat)
		}
	}
	return nil
}

// GetChatModel возвращает конфигурацию модели по умолчанию или по имени.
func (c *AppConfig) GetChatModel(name string) (ModelDef, bool) {
	if name == "" {
		name = c.Models.DefaultChat
	}
	m, ok := c.Models.Definitions[name]
	return m, ok
}

// IsAdmin проверяет, входит ли отправитель в admins_id.
func (c *AppConfig) IsAdmin(senderID string) bool {
	for _, id := range c.AdminsID {
		if id == senderID {
			return true
		}
	}
	return false
}
