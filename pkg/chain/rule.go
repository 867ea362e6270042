package chain

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/ilkoid/poncho-relay/pkg/platform"
)

// Типы узлов дерева правила.
const (
	RuleAnd       = "and"
	RuleOr        = "or"
	RuleNot       = "not"
	RuleCondition = "condition"
)

// Типы условий.
const (
	ConditionUMO       = "umo"
	ConditionModality  = "modality"
	ConditionTextRegex = "text_regex"
)

// Операторы условий.
const (
	OperatorInclude = "include"
	OperatorExclude = "exclude"
)

// regexMatchTimeout ограничивает время одного text_regex.
const regexMatchTimeout = 200 * time.Millisecond

// Rule — узел дерева условий маршрутизации.
//
// Внутренний узел: {type: and|or|not, children: [...]}.
// Лист: {type: condition, condition: {type, value, operator}}.
type Rule struct {
	Type      string     `yaml:"type" json:"type"`
	Children  []*Rule    `yaml:"children,omitempty" json:"children,omitempty"`
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Condition — лист правила.
type Condition struct {
	Type     string `yaml:"type" json:"type"`
	Value    string `yaml:"value" json:"value"`
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`
}

// And собирает конъюнкцию.
func And(children ...*Rule) *Rule { return &Rule{Type: RuleAnd, Children: children} }

// Or собирает дизъюнкцию.
func Or(children ...*Rule) *Rule { return &Rule{Type: RuleOr, Children: children} }

// Not собирает отрицание. Not() без аргумента совпадает всегда.
func Not(child ...*Rule) *Rule { return &Rule{Type: RuleNot, Children: child} }

// Cond собирает лист с оператором include.
func Cond(typ, value string) *Rule {
	return &Rule{Type: RuleCondition, Condition: &Condition{Type: typ, Value: value, Operator: OperatorInclude}}
}

// Exclude собирает лист с оператором exclude.
func Exclude(typ, value string) *Rule {
	return &Rule{Type: RuleCondition, Condition: &Condition{Type: typ, Value: value, Operator: OperatorExclude}}
}

// Clone возвращает глубокую копию дерева.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := &Rule{Type: r.Type}
	if r.Condition != nil {
		c := *r.Condition
		out.Condition = &c
	}
	if r.Children != nil {
		out.Children = make([]*Rule, len(r.Children))
		for i, ch := range r.Children {
			out.Children[i] = ch.Clone()
		}
	}
	return out
}

// Matcher вычисляет правила маршрутизации.
//
// Чистая функция от входа, но кэширует скомпилированные regex
// шаблоны. Thread-safe. Нулевое значение непригодно, используйте NewMatcher.
type Matcher struct {
	mu      sync.RWMutex
	regexes map[string]*regexp2.Regexp // nil значение = шаблон некорректен
}

// NewMatcher создаёт Matcher с пустыми кэшами.
func NewMatcher() *Matcher {
	return &Matcher{
		regexes: make(map[string]*regexp2.Regexp),
	}
}

// Matches вычисляет rule для разговора umo с модальностями и текстом.
//
// nil rule совпадает всегда. Неизвестные типы узлов и условий дают false.
func (m *Matcher) Matches(rule *Rule, umo string, modalities platform.ModalitySet, text string) bool {
	if rule == nil {
		return true
	}
	return m.eval(rule, umo, modalities, text)
}

func (m *Matcher) eval(r *Rule, umo string, modalities platform.ModalitySet, text string) bool {
	if r == nil {
		return false
	}

	switch r.Type {
	case RuleAnd:
		for _, ch := range r.Children {
			if !m.eval(ch, umo, modalities, text) {
				return false
			}
		}
		return true

	case RuleOr:
		for _, ch := range r.Children {
			if m.eval(ch, umo, modalities, text) {
				return true
			}
		}
		return false

	case RuleNot:
		if len(r.Children) == 0 {
			return true
		}
		return !m.eval(r.Children[0], umo, modalities, text)

	case RuleCondition:
		return m.condition(r.Condition, umo, modalities, text)

	default:
		return false
	}
}

func (m *Matcher) condition(c *Condition, umo string, modalities platform.ModalitySet, text string) bool {
	if c == nil {
		return false
	}

	var hit bool
	switch c.Type {
	case ConditionUMO:
		matched, ok := matchUMO(c.Value, umo)
		if !ok {
			return false
		}
		hit = matched

	case ConditionModality:
		mod, ok := platform.ParseModality(c.Value)
		if !ok {
			return false
		}
		hit = modalities.Has(mod)

	case ConditionTextRegex:
		re := m.regex(c.Value)
		if re == nil {
			return false
		}
		found, err := re.MatchString(text)
		if err != nil {
			return false
		}
		hit = found

	default:
		return false
	}

	switch c.Operator {
	case "", OperatorInclude:
		return hit
	case OperatorExclude:
		return !hit
	default:
		return false
	}
}

// matchUMO сравнивает umo с shell-шаблоном через path.Match.
//
// '[!abc]' принимается как отрицание класса наравне с '[^abc]'. '*' и '?'
// не совпадают с '/'. Второе значение false — шаблон некорректен.
func matchUMO(pattern, umo string) (bool, bool) {
	matched, err := path.Match(strings.ReplaceAll(pattern, "[!", "[^"), umo)
	if err != nil {
		return false, false
	}
	return matched, true
}

func (m *Matcher) regex(pattern string) *regexp2.Regexp {
	m.mu.RLock()
	re, ok := m.regexes[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		re = nil
	} else {
		re.MatchTimeout = regexMatchTimeout
	}
	m.mu.Lock()
	m.regexes[pattern] = re
	m.mu.Unlock()
	return re
}
