// Package httphandler implements the JSON API driving adapter.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/garminsync/internal/application"
	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// Query defaults applied when a parameter is omitted.
const (
	defaultSyncDays     = 30
	defaultActivityDays = 30
	defaultActivityCap  = 100
	defaultMetricDays   = 7
)

// CredentialManager stores, validates and revokes upstream credentials.
type CredentialManager interface {
	Validate(ctx context.Context, username, password string) bool
	Store(ctx context.Context, userID, username, password string) error
	Revoke(ctx context.Context, userID string) (bool, error)
}

// SyncAPI runs syncs and reads back synced data.
type SyncAPI interface {
	Sync(ctx context.Context, userID string, days int) (*model.SyncResult, error)
	Status(ctx context.Context, userID string) (*model.SyncStatus, error)
	Activities(ctx context.Context, userID, activityType string, days, limit int) ([]model.Activity, error)
	Metrics(ctx context.Context, userID string, metricType model.MetricType, days int) ([]model.HealthMetric, error)
	Summary(ctx context.Context, userID string, days int) (map[model.MetricType]model.MetricSummary, int, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	credentials CredentialManager
	sync        SyncAPI
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(credentials CredentialManager, sync SyncAPI, logger *slog.Logger) *Handler {
	return &Handler{
		credentials: credentials,
		sync:        sync,
		logger:      logger,
	}
}

// RegisterAPIRoutes registers the JSON API and metrics routes on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/v1/credentials", h.StoreCredentials)
	mux.HandleFunc("DELETE /api/v1/credentials", h.RevokeCredentials)
	mux.HandleFunc("POST /api/v1/sync", h.Sync)
	mux.HandleFunc("GET /api/v1/sync/status", h.SyncStatus)
	mux.HandleFunc("GET /api/v1/activities", h.ListActivities)
	mux.HandleFunc("GET /api/v1/health/summary", h.HealthSummary)
	mux.HandleFunc("GET /api/v1/health/{metric_type}", h.ListMetrics)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ApplyMiddleware wraps handler with logging and recovery middleware.
func ApplyMiddleware(handler http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, handler)
	return loggingMiddleware(logger, wrapped)
}

// NewServeMux creates an http.Handler with the API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// StoreCredentials validates the posted credentials against the upstream
// platform and stores them encrypted for the user.
func (h *Handler) StoreCredentials(w http.ResponseWriter, r *http.Request) {
	q := userQuery{UserID: r.URL.Query().Get("user_id")}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if !h.credentials.Validate(r.Context(), req.Username, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid Garmin Connect credentials")
		return
	}

	if err := h.credentials.Store(r.Context(), q.UserID, req.Username, req.Password); err != nil {
		h.logger.Error("failed to store credentials", "user_id", q.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Garmin credentials stored successfully",
		UserID:  q.UserID,
	})
}

// RevokeCredentials soft-deletes the user's stored credentials.
func (h *Handler) RevokeCredentials(w http.ResponseWriter, r *http.Request) {
	q := userQuery{UserID: r.URL.Query().Get("user_id")}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	revoked, err := h.credentials.Revoke(r.Context(), q.UserID)
	if err != nil {
		h.logger.Error("failed to revoke credentials", "user_id", q.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke credentials")
		return
	}

	msg := "Garmin credentials revoked"
	if !revoked {
		msg = "no active Garmin credentials found"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg, UserID: q.UserID, Revoked: &revoked})
}

// Sync runs a synchronous sync for the user and reports what was persisted.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultSyncDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := syncQuery{UserID: r.URL.Query().Get("user_id"), Days: days}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.sync.Sync(r.Context(), q.UserID, q.Days)
	if err != nil {
		status, msg := syncErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("sync failed", "user_id", q.UserID, "error", err)
		} else {
			h.logger.Warn("sync rejected", "user_id", q.UserID, "status", status, "error", err)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Message:             "Garmin data sync completed",
		UserID:              result.UserID,
		ActivitiesSynced:    result.ActivitiesSynced,
		HealthMetricsSynced: result.HealthMetricsSynced,
		SyncPeriodDays:      result.SyncPeriodDays,
	})
}

// syncErrorStatus maps a sync failure to an HTTP status and client message.
func syncErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNoCredentials):
		return http.StatusNotFound, "no Garmin credentials found for user"
	case errors.Is(err, model.ErrAuthentication):
		return http.StatusUnauthorized, "failed to authenticate with Garmin Connect"
	case errors.Is(err, model.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate limit exceeded, retry later"
	default:
		return http.StatusInternalServerError, "sync failed"
	}
}

// SyncStatus reports credential presence and sync watermarks for the user.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	q := userQuery{UserID: r.URL.Query().Get("user_id")}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	status, err := h.sync.Status(r.Context(), q.UserID)
	if err != nil {
		h.logger.Error("failed to get sync status", "user_id", q.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(*status))
}

// ListActivities returns the user's stored activities, newest first.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultActivityDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultActivityCap)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := activitiesQuery{
		UserID:       r.URL.Query().Get("user_id"),
		Days:         days,
		ActivityType: r.URL.Query().Get("activity_type"),
		Limit:        limit,
	}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	activities, err := h.sync.Activities(r.Context(), q.UserID, q.ActivityType, q.Days, q.Limit)
	if err != nil {
		h.logger.Error("failed to list activities", "user_id", q.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ActivityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toActivityResponse(a))
	}

	writeJSON(w, http.StatusOK, ActivitiesResponse{Activities: resp, Count: len(resp), PeriodDays: q.Days})
}

// ListMetrics returns the user's history for one metric type.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultMetricDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := metricsQuery{
		UserID:     r.URL.Query().Get("user_id"),
		MetricType: r.PathValue("metric_type"),
		Days:       days,
	}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	metrics, err := h.sync.Metrics(r.Context(), q.UserID, model.MetricType(q.MetricType), q.Days)
	if err != nil {
		if errors.Is(err, application.ErrInvalidMetricType) {
			writeError(w, http.StatusBadRequest, "invalid metric type")
			return
		}
		h.logger.Error("failed to list health metrics", "user_id", q.UserID, "metric_type", q.MetricType, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]MetricResponse, 0, len(metrics))
	for _, m := range metrics {
		resp = append(resp, toMetricResponse(m))
	}

	writeJSON(w, http.StatusOK, MetricsResponse{
		Metrics:    resp,
		Count:      len(resp),
		MetricType: q.MetricType,
		PeriodDays: q.Days,
	})
}

// HealthSummary returns the user's metrics from the window grouped by type.
func (h *Handler) HealthSummary(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultMetricDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := summaryQuery{UserID: r.URL.Query().Get("user_id"), Days: days}
	if msg := validateRequest(&q); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	summary, total, err := h.sync.Summary(r.Context(), q.UserID, q.Days)
	if err != nil {
		h.logger.Error("failed to summarize health metrics", "user_id", q.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := SummaryResponse{
		UserID:       q.UserID,
		PeriodDays:   q.Days,
		TotalMetrics: total,
		Summary:      make(map[string]MetricSummaryResponse, len(summary)),
	}
	for metricType, s := range summary {
		resp.Summary[string(metricType)] = MetricSummaryResponse{
			Count:      s.Count,
			LatestDate: s.LatestDate.UTC().Format(time.DateOnly),
			LatestData: s.LatestData,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}
