package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/metrics"
	"clipcast/internal/models"
	"clipcast/internal/planner"
	"clipcast/internal/service"

	"github.com/rs/zerolog"
)

// HTTPServer is the operator-facing surface of the engine: enqueue,
// cancel, status and tracking control. The publish pipeline itself never
// goes through HTTP.
type HTTPServer struct {
	cfg     config.APIConfig
	service *service.PublishService
	server  *http.Server
	auth    *HTTPAuth
	logger  zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc *service.PublishService, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http_api").Logger()
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, service: svc, logger: log}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/jobs", srv.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", srv.handleJob)
	mux.HandleFunc("/api/v1/content/", srv.handleContent)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleJobs serves POST /api/v1/jobs (enqueue) and GET /api/v1/jobs
// (list by status).
func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req service.EnqueueRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.service.Enqueue(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrContentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, planner.ErrHorizonExceeded):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error().Err(err).Msg("enqueue failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		status = models.JobQueued
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	jobs, err := s.service.ListJobs(r.Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleJob serves GET and DELETE on /api/v1/jobs/{id}.
func (s *HTTPServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "/api/v1/jobs/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, err := s.service.GetJob(r.Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Int64("job_id", id).Msg("get job failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, job)

	case http.MethodDelete:
		cancelled, err := s.service.Cancel(r.Context(), id)
		if err != nil {
			s.logger.Error().Err(err).Int64("job_id", id).Msg("cancel failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !cancelled {
			writeError(w, http.StatusConflict, "job is not cancellable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleContent serves GET /api/v1/content/{id}/status and
// DELETE /api/v1/content/{id}/tracking.
func (s *HTTPServer) handleContent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/content/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid content id")
		return
	}

	switch {
	case parts[1] == "status" && r.Method == http.MethodGet:
		status, err := s.service.GetStatus(r.Context(), id)
		if errors.Is(err, service.ErrContentNotFound) {
			writeError(w, http.StatusNotFound, "content not found")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Int64("content_id", id).Msg("get status failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, status)

	case parts[1] == "tracking" && r.Method == http.MethodDelete:
		reason := strings.TrimSpace(r.URL.Query().Get("reason"))
		if reason == "" {
			reason = "tracking cancelled by operator"
		}
		n, err := s.service.CancelTracking(r.Context(), id, reason)
		if err != nil {
			s.logger.Error().Err(err).Int64("content_id", id).Msg("cancel tracking failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"skipped": n})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(endpointLabel(r.URL.Path))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// endpointLabel collapses paths with ids so the metric cardinality stays
// bounded.
func endpointLabel(path string) string {
	switch {
	case path == "/api/v1/jobs":
		return "jobs"
	case strings.HasPrefix(path, "/api/v1/jobs/"):
		return "job"
	case strings.HasPrefix(path, "/api/v1/content/"):
		return "content"
	case path == "/healthz":
		return "healthz"
	}
	return "other"
}

func pathID(w http.ResponseWriter, path, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
