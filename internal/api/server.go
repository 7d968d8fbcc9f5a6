// Package api exposes the HTTP interface for the archive service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
	"github.com/webvault/webvault/internal/archiver"
	"github.com/webvault/webvault/internal/metrics"
)

// requestTimeout bounds one request end to end, crawl included.
const requestTimeout = 120 * time.Second

// Server wires HTTP handlers to the archiver service.
type Server struct {
	router  chi.Router
	service *archiver.Service
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service *archiver.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/archives", func(r chi.Router) {
			r.Post("/", s.createArchive)
			r.Get("/", s.listArchives)
			r.Route("/{archive_id}", func(r chi.Router) {
				r.Get("/", s.getArchive)
				r.Delete("/", s.deleteArchive)
				r.Get("/pages/{filename}", s.getPage)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createArchiveRequest struct {
	URL string `json:"url"`
}

func (s *Server) createArchive(w http.ResponseWriter, r *http.Request) {
	var req createArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}

	a, err := s.service.Start(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, archive.ErrInvalidURL) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("archive creation failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "archive creation failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) listArchives(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"archives": s.service.List()})
}

func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "archive_id")
	a, err := s.service.Get(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "archive_id")
	filename := chi.URLParam(r, "filename")

	data, err := s.service.PageContent(id, filename)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "page not found")
			return
		}
		s.logger.Error("page read failed",
			zap.String("id", id),
			zap.String("filename", filename),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "page read failed")
		return
	}

	contentType := mime.TypeByExtension(path.Ext(filename))
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("page write failed", zap.Error(err))
	}
}

func (s *Server) deleteArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "archive_id")
	if err := s.service.Delete(id); err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		s.logger.Error("archive delete failed", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "archive delete failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))

		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
