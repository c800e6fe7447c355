// Package api assembles the HTTP surface.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"altivio-backend/internal/auth"
	"altivio-backend/internal/httpx"
	"altivio-backend/internal/insights"
	"altivio-backend/internal/notifications"
	"altivio-backend/internal/tasks"
)

type Deps struct {
	Auth          auth.Middleware
	Notifications *notifications.Handler
	Tasks         *tasks.Handler
	Insights      *insights.Handler
	// WebSocket upgrades /ws; nil leaves the route unmounted.
	WebSocket http.HandlerFunc
	Logger    *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger.With("component", "http")))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Auth.Handler)
		r.Route("/notifications", d.Notifications.Routes)
		r.Route("/tasks", d.Tasks.TaskRoutes)
		r.Route("/daily-updates", d.Tasks.UpdateRoutes)
		r.Group(d.Insights.Routes)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
