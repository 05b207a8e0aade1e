package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/sentinel/internal/activity"
	"github.com/kalambet/sentinel/internal/batch"
	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Deps struct {
	Service *service.Service
	// Token enables bearer auth on scoring and feedback routes when set.
	Token   string
	Metrics bool
	Logger  *slog.Logger
}

// NewHandler returns the /v1 REST API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", handleHealth(deps))
		if deps.Metrics {
			r.Handle("/metrics", promhttp.Handler())
		}

		r.Group(func(r chi.Router) {
			if deps.Token != "" {
				r.Use(BearerAuth(deps.Token))
			}
			r.Get("/score/{username}", handleScore(deps))
			r.Post("/analyze/batch", handleBatch(deps))
			r.Post("/feedback", handleSubmitFeedback(deps))
			r.Get("/feedback", handleListFeedback(deps))
			r.Get("/stats", handleStats(deps))
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, deps.Service.Health(ctx))
	}
}

func handleScore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := chi.URLParam(r, "username")
		force, err := parseBoolParam(r, "force_refresh")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "force_refresh: %v", err)
			return
		}

		res, err := deps.Service.ScoreUser(r.Context(), username, force)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, NewScoreResponse(res))
	}
}

func handleBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		resp, err := deps.Service.ScoreBatch(r.Context(), req.Usernames, req.ForceRefresh)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, NewBatchResponse(resp))
	}
}

func handleSubmitFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rec, err := deps.Service.RecordFeedback(r.Context(), req.Username, feedback.Kind(req.FeedbackType), req.Notes)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, FeedbackResponse{
			Success: true,
			Message: fmt.Sprintf("feedback recorded for %s", rec.SubjectID),
			ID:      rec.ID,
		})
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)
		offset := parseIntParam(r, "offset", 0, 0)

		records, err := deps.Service.ListFeedback(r.Context(), limit, offset)
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		if records == nil {
			records = []feedback.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Service.Stats(r.Context())
		if err != nil {
			writeServiceError(w, deps.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// errorStatus maps service errors onto HTTP status codes and error types.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidSubject),
		errors.Is(err, service.ErrInvalidFeedback),
		errors.Is(err, batch.ErrValidation):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, activity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case activity.IsProviderError(err):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, errType := errorStatus(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "status", code, "error", err)
	}
	httpError(w, code, errType, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseBoolParam(r *http.Request, key string) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
