// Package events exposes the broker over HTTP: dock set lookups, recent
// events in their persisted row layout, and the submit and acknowledge
// operations for clients that do not hold a session.
package events

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/jobdone/core/logger"
	"github.com/kilianp07/jobdone/core/model"
)

// Broker is the set of broker operations the API serves.
type Broker interface {
	SubmitCompletion(ctx context.Context, dockSetID, dockNo int, clientRequestID string) (model.DockEvent, error)
	Acknowledge(ctx context.Context, eventID, clientRequestID string) (model.AckResult, error)
	SyncRecent(ctx context.Context, limit int) ([]model.DockEvent, error)
	Catalog() *model.Catalog
}

// Options configures the router.
type Options struct {
	// RateLimit is the per-IP request budget per RateWindow; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
	// Registerer receives the request metrics and Gatherer backs /metrics.
	// Either being nil leaves both out.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     logger.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(b Broker, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logger.Nop{}
	}
	h := &handler{broker: b, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.Registerer != nil && opts.Gatherer != nil {
		r.Use(Metrics(opts.Registerer))
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(RateLimit(opts.RateLimit, opts.RateWindow))
		}
		r.Get("/docksets", h.listDockSets)
		r.Get("/docksets/{id}/docks", h.listDocks)
		r.Get("/events", h.recentEvents)
		r.Post("/events", h.submit)
		r.Post("/events/{id}/ack", h.acknowledge)
	})
	return r
}
