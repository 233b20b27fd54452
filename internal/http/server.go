// Package http exposes the aggregation engine over HTTP: change events are
// accepted on /api/events and the aggregates are served read only.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
	"monthly-spend/internal/middleware/ratelimit"
	"monthly-spend/internal/middleware/security"
	"monthly-spend/internal/services"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxEventBytes   = 1 << 20
	readHeaderLimit = 10 * time.Second
)

// EventHandler applies one change event.
type EventHandler interface {
	HandleChange(ctx context.Context, ev core.ChangeEvent) (services.Outcome, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Events     EventHandler
	Aggregates aggregate.AggregateReader
	Cards      aggregate.CardStore
	Logger     *log.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready is pinged by /readyz when set.
	Ready Pinger
	// Limiter throttles POST /api/events per client when set.
	Limiter *ratelimit.Limiter
}

type Server struct {
	http.Server
	shutdownOnce sync.Once
}

// NewServer returns a ready-to-run server listening on addr.
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: readHeaderLimit,
		},
	}
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	h := &handlers{
		events:     deps.Events,
		aggregates: deps.Aggregates,
		cards:      deps.Cards,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware(deps.Logger, func(r *http.Request) string {
		return middleware.GetReqID(r.Context())
	}))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(middleware.Timeout(DefaultTimeout))

	r.Get("/health", handleHealth)
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Limiter != nil {
			r.With(deps.Limiter.Middleware(clientKey, rateLimited)).Post("/events", h.postEvent)
		} else {
			r.Post("/events", h.postEvent)
		}

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/monthly/{year}", h.listMonthly)
			r.Get("/monthly/{year}/{month}", h.getMonthly)
			r.Get("/fixed-cost", h.getFixedCost)
			r.Get("/summary/{year}/{month}", h.getSummary)
		})

		r.Get("/cards/{cardID}", h.getCard)
		r.Put("/cards/{cardID}", h.putCard)
	})

	return r
}

// clientKey identifies the caller for rate limiting. RealIP has already
// replaced RemoteAddr with the forwarded address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func handleReady(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
