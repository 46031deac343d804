// Package httpapi implements the HTTP and WebSocket transport in front of
// the registry: routing, JSON encoding, and error-code mapping.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ryym/procfleet/internal/auth"
	"github.com/ryym/procfleet/internal/registry"
)

// Server is the process-wide HTTP server wrapping a Registry.
type Server struct {
	reg     *registry.Registry
	checker *auth.Checker
	router  *chi.Mux
}

// New builds a Server and its route table.
func New(reg *registry.Registry, checker *auth.Checker) *Server {
	s := &Server{reg: reg, checker: checker}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	// tail-stream is mounted outside the header-only auth middleware: a
	// browser cannot set custom headers on a WebSocket upgrade request, so
	// handleTailStream authenticates itself, accepting credentials from
	// either the header or the query string.
	r.Get("/procs/{name}/tail-stream", s.handleTailStream)

	r.Group(func(r chi.Router) {
		r.Use(s.checker.Middleware)

		r.Route("/procs", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Post("/start", s.handleStart)
				r.Post("/write", s.handleWrite)
				r.Get("/tail", s.handleTail)
				r.Get("/tail-text", s.handleTailText)
				r.Post("/stop", s.handleStop)
				r.Post("/restart", s.handleRestart)
				r.Delete("/", s.handleDelete)
			})
		})
	})

	return r
}

// ServeHTTP lets Server itself be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts an HTTP server on addr and blocks until ctx is cancelled, at
// which point it shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // tail-stream connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("starting http server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
