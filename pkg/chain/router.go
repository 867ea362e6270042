package chain

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Router выбирает цепочку для события.
//
// Набор цепочек заменяется атомарно (Load), поэтому конкурентные Route
// никогда не видят частично обновлённый список.
type Router struct {
	matcher *Matcher
	snap    atomic.Pointer[routerSnapshot]
}

type routerSnapshot struct {
	ordered []*Config
	byID    map[string]*Config
}

// NewRouter создаёт Router со встроенной цепочкой default.
func NewRouter(matcher *Matcher) *Router {
	if matcher == nil {
		matcher = NewMatcher()
	}
	r := &Router{matcher: matcher}
	def := DefaultConfig()
	r.snap.Store(&routerSnapshot{
		ordered: []*Config{def},
		byID:    map[string]*Config{def.ID: def},
	})
	return r
}

// Matcher возвращает используемый Matcher.
func (r *Router) Matcher() *Matcher {
	return r.matcher
}

// Load заменяет набор цепочек.
//
// Цепочки копируются и нормализуются. Именованные сортируются по sort_order
// по убыванию (равные сохраняют порядок загрузки), default ставится последней.
// Если default не передана, используется DefaultConfig. Повтор chain_id
// пропускается с предупреждением. При ошибке нормализации текущий набор
// не меняется.
func (r *Router) Load(chains []*Config) error {
	named := make([]*Config, 0, len(chains))
	byID := make(map[string]*Config, len(chains)+1)
	var def *Config

	for _, src := range chains {
		if src == nil {
			continue
		}
		c := src.Clone()
		if err := c.Normalize(); err != nil {
			return fmt.Errorf("load chains: %w", err)
		}
		if _, dup := byID[c.ID]; dup {
			utils.Warn("Duplicate chain id ignored", "chain_id", c.ID)
			continue
		}
		byID[c.ID] = c
		if c.IsDefault() {
			def = c
			continue
		}
		named = append(named, c)
	}

	sort.SliceStable(named, func(i, j int) bool {
		return named[i].SortOrder > named[j].SortOrder
	})

	if def == nil {
		def = DefaultConfig()
		byID[def.ID] = def
	}

	r.snap.Store(&routerSnapshot{
		ordered: append(named, def),
		byID:    byID,
	})

	utils.Info("Chains loaded", "count", len(named)+1)
	return nil
}

// Route возвращает первую включённую цепочку, правило которой совпало.
//
// nil означает, что событие не подходит ни одной цепочке (даже default
// может быть выключена) и должно быть отброшено.
func (r *Router) Route(umo string, modalities platform.ModalitySet, text string) *Config {
	for _, c := range r.snap.Load().ordered {
		if !c.Enabled {
			continue
		}
		if r.matcher.Matches(c.MatchRule, umo, modalities, text) {
			return c
		}
	}
	return nil
}

// RouteEvent — Route по полям события.
func (r *Router) RouteEvent(e *platform.MessageEvent) *Config {
	return r.Route(e.UnifiedMsgOrigin(), e.Modalities(), e.MessageStr())
}

// Get возвращает цепочку по id.
func (r *Router) Get(id string) (*Config, bool) {
	c, ok := r.snap.Load().byID[id]
	return c, ok
}

// Chains возвращает цепочки в порядке проверки.
func (r *Router) Chains() []*Config {
	ordered := r.snap.Load().ordered
	out := make([]*Config, len(ordered))
	copy(out, ordered)
	return out
}
