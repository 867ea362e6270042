package chain

import (
	"errors"
	"fmt"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// chainYAML — сырое YAML представление цепочки.
//
// enabled и llm_enabled по умолчанию true, поэтому читаются через *bool.
type chainYAML struct {
	ID           string       `yaml:"chain_id"`
	MatchRule    *Rule        `yaml:"match_rule"`
	SortOrder    int          `yaml:"sort_order"`
	Enabled      *bool        `yaml:"enabled"`
	Nodes        []ChainNode  `yaml:"nodes"`
	LLMEnabled   *bool        `yaml:"llm_enabled"`
	PluginFilter PluginFilter `yaml:"plugin_filter"`
	ConfigID     string       `yaml:"config_id"`
}

// UnmarshalYAML читает цепочку с значениями по умолчанию.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw chainYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = Config{
		ID:           raw.ID,
		MatchRule:    raw.MatchRule,
		SortOrder:    raw.SortOrder,
		Enabled:      raw.Enabled == nil || *raw.Enabled,
		Nodes:        raw.Nodes,
		LLMEnabled:   raw.LLMEnabled == nil || *raw.LLMEnabled,
		PluginFilter: raw.PluginFilter,
		ConfigID:     raw.ConfigID,
	}
	return nil
}

// UnmarshalYAML позволяет писать узел строкой: "- echo".
func (n *ChainNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*n = ChainNode{Name: value.Value}
		return nil
	}
	type plain ChainNode
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*n = ChainNode(p)
	return nil
}

// chainsFile — файл с ключом chains.
type chainsFile struct {
	Chains []*Config `yaml:"chains"`
}

// ParseChainsYAML читает цепочки из YAML.
//
// Принимает либо список цепочек, либо документ с ключом chains.
// Каждая цепочка нормализуется (uuid узлов, отпечаток).
func ParseChainsYAML(data []byte) ([]*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse chains YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	var chains []*Config
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&chains); err != nil {
			return nil, fmt.Errorf("failed to decode chains: %w", err)
		}
	case yaml.MappingNode:
		var f chainsFile
		if err := doc.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode chains: %w", err)
		}
		chains = f.Chains
	default:
		return nil, fmt.Errorf("chains YAML must be a list or a mapping with 'chains'")
	}

	return normalizeAll(chains)
}

// DecodeChains читает цепочки из уже разобранных YAML узлов (inline в config.yaml).
func DecodeChains(nodes []yaml.Node) ([]*Config, error) {
	chains := make([]*Config, 0, len(nodes))
	for i := range nodes {
		c := &Config{}
		if err := nodes[i].Decode(c); err != nil {
			return nil, fmt.Errorf("inline chain #%d: %w", i, err)
		}
		chains = append(chains, c)
	}
	return normalizeAll(chains)
}

// MarshalChainsYAML сериализует цепочки в формат ParseChainsYAML.
func MarshalChainsYAML(chains []*Config) ([]byte, error) {
	return yaml.Marshal(chainsFile{Chains: chains})
}

func normalizeAll(chains []*Config) ([]*Config, error) {
	out := make([]*Config, 0, len(chains))
	for i, c := range chains {
		if c == nil {
			return nil, fmt.Errorf("chain #%d is empty", i)
		}
		if err := c.Normalize(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Validate проверяет набор цепочек.
//
// Проверяет уникальность chain_id, существование узлов в registry
// (если он задан) и корректность правил. Возвращает все найденные
// ошибки через errors.Join.
func Validate(chains []*Config, registry NodeRegistry) error {
	var errs []error
	seen := make(map[string]struct{}, len(chains))

	for _, c := range chains {
		if c == nil {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			errs = append(errs, fmt.Errorf("chain '%s': duplicate chain_id", c.ID))
		}
		seen[c.ID] = struct{}{}

		if err := c.Clone().Normalize(); err != nil {
			errs = append(errs, err)
		}
		if registry != nil {
			for i, n := range c.Nodes {
				if _, ok := registry.Resolve(n.Name); !ok {
					errs = append(errs, fmt.Errorf("chain '%s' node #%d: %w: %s", c.ID, i, ErrNodeNotFound, n.Name))
				}
			}
		}
		if f := c.PluginFilter.Mode; f != "" && f != FilterBlacklist && f != FilterWhitelist {
			errs = append(errs, fmt.Errorf("chain '%s': unknown plugin_filter mode '%s'", c.ID, f))
		}
		for _, err := range validateRule(c.MatchRule) {
			errs = append(errs, fmt.Errorf("chain '%s': %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

func validateRule(r *Rule) []error {
	if r == nil {
		return nil
	}
	switch r.Type {
	case RuleAnd, RuleOr, RuleNot:
		var errs []error
		if r.Type == RuleNot && len(r.Children) > 1 {
			errs = append(errs, fmt.Errorf("'not' rule takes one child, got %d", len(r.Children)))
		}
		for _, ch := range r.Children {
			if ch == nil {
				errs = append(errs, fmt.Errorf("'%s' rule has an empty child", r.Type))
				continue
			}
			errs = append(errs, validateRule(ch)...)
		}
		return errs
	case RuleCondition:
		return validateCondition(r.Condition)
	default:
		return []error{fmt.Errorf("unknown rule type '%s'", r.Type)}
	}
}

func validateCondition(c *Condition) []error {
	if c == nil {
		return []error{fmt.Errorf("condition rule without condition")}
	}
	var errs []error
	switch c.Type {
	case ConditionUMO:
	case ConditionModality:
		if _, ok := platform.ParseModality(c.Value); !ok {
			errs = append(errs, fmt.Errorf("unknown modality '%s'", c.Value))
		}
	case ConditionTextRegex:
		if _, err := regexp2.Compile(c.Value, regexp2.IgnoreCase); err != nil {
			errs = append(errs, fmt.Errorf("invalid text_regex '%s': %w", c.Value, err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown condition type '%s'", c.Type))
	}
	switch c.Operator {
	case "", OperatorInclude, OperatorExclude:
	default:
		errs = append(errs, fmt.Errorf("unknown operator '%s'", c.Operator))
	}
	return errs
}
