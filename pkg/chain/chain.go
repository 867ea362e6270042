// Package chain реализует маршрутизацию и выполнение цепочек узлов.
//
// Chain — именованная упорядоченная последовательность узлов (Node), которая
// выбирается для разговора по правилу (Rule). Executor прогоняет узлы строго
// последовательно, передавая данные через NodeContextStack, и умеет
// приостанавливать разговор (WAIT) до следующего сообщения через WaitRegistry.
//
// Пакет следует правилам:
//   - Узлы ищутся через NodeRegistry, без глобального состояния
//   - Конфигурация цепочек — YAML
//   - Все ошибки возвращаются, нет panic
//   - Thread-safe: Router и WaitRegistry разделяются между задачами pipeline
package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// DefaultChainID — зарезервированный id цепочки-перехватчика.
//
// Цепочка default всегда проверяется последней и всегда совпадает.
const DefaultChainID = "default"

// Режимы фильтра плагинов.
const (
	FilterBlacklist = "blacklist"
	FilterWhitelist = "whitelist"
)

// nodeNamespace — пространство имён для детерминированных uuid узлов.
var nodeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ilkoid/poncho-relay/chain-node"))

// Config — конфигурация цепочки.
//
// Неизменяема во время обработки события: Router хранит нормализованные копии.
type Config struct {
	// ID — стабильный идентификатор цепочки.
	ID string `yaml:"chain_id" json:"chain_id"`

	// MatchRule — дерево условий; nil = совпадает всегда.
	MatchRule *Rule `yaml:"match_rule,omitempty" json:"match_rule,omitempty"`

	// SortOrder — приоритет; большие значения проверяются раньше.
	SortOrder int `yaml:"sort_order" json:"sort_order"`

	// Enabled — участвует ли цепочка в маршрутизации.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Nodes — узлы в порядке выполнения.
	Nodes []ChainNode `yaml:"nodes" json:"nodes"`

	// LLMEnabled — разрешены ли LLM-узлы в этой цепочке.
	LLMEnabled bool `yaml:"llm_enabled" json:"llm_enabled"`

	// PluginFilter — какие командные плагины доступны в цепочке.
	PluginFilter PluginFilter `yaml:"plugin_filter" json:"plugin_filter"`

	// ConfigID — какой overlay-набор настроек применяется к разговору.
	ConfigID string `yaml:"config_id,omitempty" json:"config_id,omitempty"`

	fingerprint string
}

// ChainNode — ссылка на реализацию узла внутри цепочки.
type ChainNode struct {
	// Name — имя зарегистрированной реализации.
	Name string `yaml:"name" json:"name"`

	// UUID — стабильный id экземпляра узла в цепочке.
	UUID string `yaml:"uuid,omitempty" json:"uuid,omitempty"`

	// Config — переопределения настроек этого экземпляра узла.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// PluginFilter — allow/deny список командных плагинов.
type PluginFilter struct {
	// Mode — "blacklist" (по умолчанию) или "whitelist".
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Plugins — имена плагинов.
	Plugins []string `yaml:"plugins,omitempty" json:"plugins,omitempty"`
}

// Allows сообщает, доступен ли плагин.
//
// blacklist: разрешено всё, кроме перечисленного; whitelist: только перечисленное.
func (f PluginFilter) Allows(plugin string) bool {
	listed := false
	for _, p := range f.Plugins {
		if p == plugin {
			listed = true
			break
		}
	}
	if f.Mode == FilterWhitelist {
		return listed
	}
	return !listed
}

// DefaultConfig возвращает встроенную цепочку default.
//
// Используется, если в хранилище нет цепочки с id "default".
func DefaultConfig() *Config {
	c := &Config{
		ID:         DefaultChainID,
		SortOrder:  -1,
		Enabled:    true,
		LLMEnabled: true,
		Nodes:      []ChainNode{{Name: "llm_chat"}},
	}
	_ = c.Normalize()
	return c
}

// IsDefault сообщает, является ли цепочка перехватчиком default.
func (c *Config) IsDefault() bool {
	return c.ID == DefaultChainID
}

// DeriveNodeUUID вычисляет детерминированный uuid узла по
// (chain_id, name, порядковый номер среди узлов с тем же именем).
func DeriveNodeUUID(chainID, name string, occurrence int) string {
	return uuid.NewSHA1(nodeNamespace, []byte(fmt.Sprintf("%s\x00%s\x00%d", chainID, name, occurrence))).String()
}

// Normalize проставляет недостающие uuid узлов, устраняет коллизии
// и пересчитывает отпечаток конфигурации.
//
// Явно заданный uuid сохраняется, если он уникален в цепочке; при коллизии
// второй экземпляр получает новый детерминированный uuid.
func (c *Config) Normalize() error {
	if c.ID == "" {
		return fmt.Errorf("chain_id is required")
	}

	seen := make(map[string]struct{}, len(c.Nodes))
	occurrences := make(map[string]int, len(c.Nodes))
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.Name == "" {
			return fmt.Errorf("chain '%s': node #%d has empty name", c.ID, i)
		}
		occ := occurrences[n.Name]
		occurrences[n.Name] = occ + 1

		if n.UUID == "" {
			n.UUID = DeriveNodeUUID(c.ID, n.Name, occ)
		}
		for attempt := 1; ; attempt++ {
			if _, dup := seen[n.UUID]; !dup {
				break
			}
			n.UUID = uuid.NewSHA1(nodeNamespace,
				[]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%d", c.ID, n.Name, occ, attempt))).String()
		}
		seen[n.UUID] = struct{}{}
	}

	fp, err := computeFingerprint(c)
	if err != nil {
		return fmt.Errorf("chain '%s': fingerprint: %w", c.ID, err)
	}
	c.fingerprint = fp
	return nil
}

// Fingerprint возвращает blake3 отпечаток канонического YAML представления.
//
// Пустая строка — цепочка ещё не нормализована.
func (c *Config) Fingerprint() string {
	return c.fingerprint
}

// Equal сравнивает цепочки по содержимому.
//
// Используется для проверки, что сохранённое ожидание всё ещё относится
// к актуальной конфигурации.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c == other {
		return true
	}
	a, b := c.fingerprint, other.fingerprint
	if a == "" {
		a, _ = computeFingerprint(c)
	}
	if b == "" {
		b, _ = computeFingerprint(other)
	}
	return a != "" && a == b
}

// Clone возвращает глубокую копию цепочки.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.MatchRule = c.MatchRule.Clone()
	out.Nodes = make([]ChainNode, len(c.Nodes))
	for i, n := range c.Nodes {
		out.Nodes[i] = n
		if n.Config != nil {
			cfg := make(map[string]any, len(n.Config))
			for k, v := range n.Config {
				cfg[k] = v
			}
			out.Nodes[i].Config = cfg
		}
	}
	out.PluginFilter.Plugins = append([]string(nil), c.PluginFilter.Plugins...)
	return &out
}

// IndexOf ищет узел по uuid, затем по имени. Возвращает -1, если не найден.
func (c *Config) IndexOf(node string) int {
	for i, n := range c.Nodes {
		if n.UUID == node {
			return i
		}
	}
	for i, n := range c.Nodes {
		if n.Name == node {
			return i
		}
	}
	return -1
}

func computeFingerprint(c *Config) (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
