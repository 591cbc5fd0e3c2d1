package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Server struct {
	srv *http.Server
}

// Options wires the router. Guard admits business-scoped requests; a nil
// Guard lets everything through, which is only useful in tests.
type Options struct {
	API           *API
	Guard         func(http.Handler) http.Handler
	Log           *slog.Logger
	ExposeMetrics bool
	// RatePerMinute caps API requests process-wide. Zero disables it.
	RatePerMinute int
}

func NewRouter(o Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if o.Log != nil {
		r.Use(requestLog(o.Log))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if o.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/businesses/{businessID}", func(r chi.Router) {
		if o.RatePerMinute > 0 {
			r.Use(throttle(o.RatePerMinute))
		}
		if o.Guard != nil {
			r.Use(o.Guard)
		}
		o.API.Routes(r)
	})

	return r
}

func New(addr string, h http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func throttle(perMinute int) func(http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
