package pipeline

import (
	"context"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/ratelimit"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// AllowAll — AccessController без ограничений.
var AllowAll Mechanism = MechanismFunc(func(context.Context, *platform.MessageEvent, *chain.Scope) (Verdict, error) {
	return Continue, nil
})

// Whitelist пропускает события из перечисленных разговоров.
//
// Элемент списка сравнивается с UMO, session id, group id и sender id.
// Пустой список пропускает всё. Администраторы проходят всегда.
type Whitelist struct {
	ids map[string]struct{}
}

var _ Mechanism = (*Whitelist)(nil)

// NewWhitelist создаёт фильтр из id_whitelist.
func NewWhitelist(ids []string) *Whitelist {
	w := &Whitelist{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			w.ids[id] = struct{}{}
		}
	}
	return w
}

// Apply реализует Mechanism.
func (w *Whitelist) Apply(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error) {
	if len(w.ids) == 0 || event.IsAdmin() {
		return Continue, nil
	}
	for _, key := range []string{event.UnifiedMsgOrigin(), event.SessionID(), event.GroupID(), event.SenderID()} {
		if key == "" {
			continue
		}
		if _, ok := w.ids[key]; ok {
			return Continue, nil
		}
	}
	utils.Debug("Access denied by whitelist",
		"umo", event.UnifiedMsgOrigin(),
		"sender_id", event.SenderID())
	return Stop, nil
}

// RateLimit адаптирует ratelimit.Limiter к стадии pipeline.
//
// Ключ лимита — UMO разговора.
type RateLimit struct {
	limiter *ratelimit.Limiter
}

var _ Mechanism = (*RateLimit)(nil)

// NewRateLimit создаёт стадию лимита.
func NewRateLimit(l *ratelimit.Limiter) *RateLimit {
	return &RateLimit{limiter: l}
}

// Apply реализует Mechanism.
func (r *RateLimit) Apply(ctx context.Context, event *platform.MessageEvent, scope *chain.Scope) (Verdict, error) {
	if r.limiter == nil {
		return Continue, nil
	}
	v, err := r.limiter.Apply(ctx, event.UnifiedMsgOrigin())
	if err != nil {
		return Stop, err
	}
	if v == ratelimit.Stop {
		return Stop, nil
	}
	return Continue, nil
}
