// Package api — HTTP поверхность relay.
//
// Маршруты:
//
//	GET  /healthz              — состояние очереди и outbox
//	GET  /v1/chains            — активные цепочки в порядке маршрутизации
//	POST /v1/chains/reload     — перечитать источник цепочек
//	POST /v1/events            — принять событие (?sync=true — дождаться итога)
//	GET  /v1/outbox/{umo}      — забрать ответы разговора
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ilkoid/poncho-relay/pkg/app"
)

// DefaultRequestTimeout ограничивает синхронную обработку события.
const DefaultRequestTimeout = 2 * time.Minute

// NewRouter создаёт HTTP роутер поверх собранных компонентов.
func NewRouter(c *app.Components, outbox *Outbox) http.Handler {
	h := &handlers{components: c, outbox: outbox}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/chains", func(r chi.Router) {
			r.Get("/", h.listChains)
			r.Post("/reload", h.reloadChains)
		})
		r.With(chimw.Timeout(DefaultRequestTimeout)).Post("/events", h.postEvent)
		r.Get("/outbox/{umo}", h.drainOutbox)
	})

	return r
}

// NewServer создаёт http.Server с таймаутами чтения заголовков.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
