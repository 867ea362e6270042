package eventbus

import (
	"context"
	"time"

	"github.com/ilkoid/poncho-relay/pkg/chain"
	"github.com/ilkoid/poncho-relay/pkg/ratelimit"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

// Janitor периодически забывает старые ожидания и пустые сессии лимитера.
//
// WaitRegistry сам не истекает: TTL ожиданий живёт здесь.
type Janitor struct {
	waits    *chain.WaitRegistry
	limiter  *ratelimit.Limiter
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor создаёт janitor. ttl <= 0 отключает истечение ожиданий.
func NewJanitor(waits *chain.WaitRegistry, limiter *ratelimit.Limiter, ttl, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		waits:    waits,
		limiter:  limiter,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Start выполняет проходы до отмены ctx. Первый проход — сразу.
func (j *Janitor) Start(ctx context.Context) {
	utils.Info("Janitor started", "ttl", j.ttl.String(), "interval", j.interval.String())

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep()
	for {
		select {
		case <-ctx.Done():
			utils.Info("Janitor stopped")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep выполняет один проход и возвращает ключи истёкших ожиданий
// и число удалённых сессий лимитера.
func (j *Janitor) Sweep() (expired []string, sessions int) {
	if j.waits != nil && j.ttl > 0 {
		expired = j.waits.ExpireOlderThan(j.now().Add(-j.ttl))
	}
	if j.limiter != nil {
		sessions = j.limiter.Sweep()
	}
	if len(expired) > 0 || sessions > 0 {
		utils.Info("Janitor sweep", "expired_waits", len(expired), "limiter_sessions", sessions)
	}
	return expired, sessions
}
