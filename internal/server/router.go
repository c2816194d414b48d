package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/operations", func(r chi.Router) {
		r.Get("/", s.handleListOperations)
		r.Post("/", s.handleStartOperation)
		r.Get("/{id}", s.handleGetOperation)
		r.Get("/{id}/batches", s.handleListBatches)
		r.Post("/{id}/group", s.handleCreateGroup)
		r.Post("/{id}/invite", s.handleInvite)
		r.Post("/{id}/requeue", s.handleRequeue)
		r.Post("/{id}/complete", s.handleComplete)
	})

	s.router.Get("/sources/{id}/exclusions", s.handleListExclusions)
	s.router.Post("/sources/{id}/exclusions", s.handleAddExclusions)

	s.router.With(RequireSecret(s.secret)).Post("/events/join", s.handleJoinEvent)
}

// RequestLogger logs one line per request with its status and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// RequireSecret rejects requests whose [SecretHeader] does not match secret. An empty secret disables the check.
func RequireSecret(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
