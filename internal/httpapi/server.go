// Package httpapi exposes the diagram studio over HTTP.
//
// The API drives the same controller as the terminal studio: one working
// copy, one active project. All bodies are JSON except exports, which are
// served as file downloads. Errors carry the machine-readable code:
//
//	{"code": "PROJECT_NOT_FOUND", "error": "project ... not found"}
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/diagramcraft/pkg/controller"
	"github.com/matzehuels/diagramcraft/pkg/export"
)

// Server serves the API.
type Server struct {
	ctrl   *controller.Controller
	export *export.Service
	logger *log.Logger
	router chi.Router
}

// New builds the router.
func New(ctrl *controller.Controller, exp *export.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{ctrl: ctrl, export: exp, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.listProjects)
			r.Post("/", s.createProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getProject)
				r.Patch("/", s.renameProject)
				r.Delete("/", s.deleteProject)
				r.Post("/select", s.selectProject)
				r.Get("/history", s.history)
				r.Post("/restore/{version}", s.restore)
			})
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Put("/source", s.editSource)
			r.Post("/render", s.render)
			r.Post("/commit", s.commit)
		})

		r.Get("/export/{format}", s.exportDiagram)
		r.Get("/templates", s.listTemplates)
		r.Get("/templates/{key}", s.getTemplate)
	})

	return r
}

// requestLogger logs one line per request through the application logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
