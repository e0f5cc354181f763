// Package http provides the HTTP transport layer for agendad.
//
// Routes (Go 1.22+ method-qualified patterns):
//
//	GET    /healthz
//	POST   /events
//	GET    /events
//	GET    /events/{id}
//	PATCH  /events/{id}
//	DELETE /events/{id}
//	GET    /history
//	GET    /history/{id}
//	POST   /subscriptions
//	GET    /subscriptions
//	DELETE /subscriptions/{id}
//	GET    /ws
//	GET    /metrics
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/hickagpt/agenda/internal/config"
	"github.com/hickagpt/agenda/internal/history"
	"github.com/hickagpt/agenda/internal/host"
	"github.com/hickagpt/agenda/internal/metrics"
	transportws "github.com/hickagpt/agenda/internal/transport/websocket"
	"github.com/hickagpt/agenda/internal/webhook"
)

// Server wraps the stdlib HTTP server with agenda route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server around a Host.
// journal may be nil (history disabled); reg may be nil (no metrics route).
// The caller is responsible for calling ListenAndServe / Shutdown.
func New(
	hs *host.Host,
	hooks *webhook.Manager,
	journal *history.Journal,
	hub *transportws.Hub,
	cfg *config.Config,
	reg *metrics.Registry,
	instanceID string,
) *Server {
	h := &Handler{
		host:       hs,
		journal:    journal,
		hooks:      hooks,
		instanceID: instanceID,
		maxRecent:  cfg.History.MaxRecent,
	}
	ws := &transportws.Handler{Hub: hub}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /healthz", h.health)

	// Events
	mux.HandleFunc("POST /events", h.scheduleEvent)
	mux.HandleFunc("GET /events", h.listEvents)
	mux.HandleFunc("GET /events/{id}", h.getEvent)
	mux.HandleFunc("PATCH /events/{id}", h.rescheduleEvent)
	mux.HandleFunc("DELETE /events/{id}", h.cancelEvent)

	// Execution history
	mux.HandleFunc("GET /history", h.getHistory)
	mux.HandleFunc("GET /history/{id}", h.getHistoryEntry)

	// Webhook subscriptions
	mux.HandleFunc("POST /subscriptions", h.createSubscription)
	mux.HandleFunc("GET /subscriptions", h.listSubscriptions)
	mux.HandleFunc("DELETE /subscriptions/{id}", h.deleteSubscription)

	// Live notification feed
	mux.Handle("GET /ws", ws)

	// Metrics (Prometheus text format)
	if reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	// Build middleware chain: logging → metrics → auth → rate-limit
	var handler http.Handler = mux
	handler = chain(handler,
		CORSMiddleware,
		MaxBodyMiddleware,
		LoggingMiddleware,
		MetricsMiddleware(reg),
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(float64(cfg.API.MaxRate), cfg.API.Burst),
	)

	return &Server{
		inner: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
