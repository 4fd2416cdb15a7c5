package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/api/handler"
	apimw "github.com/notifyhub/rental-notifier/internal/api/middleware"
)

// Deps are the collaborators the HTTP surface calls into.
type Deps struct {
	Pass        handler.Pass
	PassTimeout time.Duration
	Inline      handler.InlineTrigger
	DB          handler.Pinger
	CronSecret  string
	Registry    prometheus.Gatherer
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 16))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	hh := handler.NewHealthHandler(deps.DB)
	ch := handler.NewCronHandler(deps.Pass, deps.PassTimeout, logger)
	ih := handler.NewInlineHandler(deps.Inline)
	auth := apimw.RequireBearer(deps.CronSecret)

	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.With(auth).Get("/internal/cron/notifications", ch.Run)

	r.Route("/api/v1/inline", func(r chi.Router) {
		r.Use(auth)
		r.Post("/chat", ih.Chat)
		r.Post("/moderation", ih.Moderation)
	})

	return r
}
