// Package web implements the HTML status page driving adapter using templ components.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ericfisherdev/garminsync/internal/adapter/driving/web/templates"
	"github.com/ericfisherdev/garminsync/internal/adapter/driving/web/templates/pages"
	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

const (
	summaryDays        = 7
	activityDays       = 30
	recentActivityRows = 20
)

// StatusReader reads a user's sync status and synced data.
type StatusReader interface {
	Status(ctx context.Context, userID string) (*model.SyncStatus, error)
	Activities(ctx context.Context, userID, activityType string, days, limit int) ([]model.Activity, error)
	Summary(ctx context.Context, userID string, days int) (map[model.MetricType]model.MetricSummary, int, error)
}

// SyncTrigger runs a manual sync through the background scheduler.
type SyncTrigger interface {
	Trigger(ctx context.Context, userID string) (*model.SyncResult, error)
}

// Handler is the web driving adapter that serves HTML via templ components.
type Handler struct {
	status  StatusReader
	trigger SyncTrigger
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(status StatusReader, trigger SyncTrigger, logger *slog.Logger) *Handler {
	return &Handler{
		status:  status,
		trigger: trigger,
		logger:  logger,
	}
}

// UserStatus renders the status page for the user in the path.
func (h *Handler) UserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("user_id")

	status, err := h.status.Status(ctx, userID)
	if err != nil {
		h.logger.Error("failed to load sync status", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	activities, err := h.status.Activities(ctx, userID, "", activityDays, recentActivityRows)
	if err != nil {
		h.logger.Error("failed to load activities", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	summary, _, err := h.status.Summary(ctx, userID, summaryDays)
	if err != nil {
		h.logger.Error("failed to load metric summary", "user_id", userID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	page := toUserPage(*status, activities, summary, csrfToken(w, r), noticeFromQuery(r.URL.Query()))
	layout := templates.Layout("Garmin sync: "+userID, pages.UserPage(page))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := layout.Render(ctx, w); err != nil {
		h.logger.Error("failed to render user page", "user_id", userID, "error", err)
	}
}

// SyncNow triggers a manual sync and redirects back to the status page with
// the outcome encoded in the query string.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	q := url.Values{}
	result, err := h.trigger.Trigger(r.Context(), userID)
	if err != nil {
		h.logger.Warn("manual sync failed", "user_id", userID, "error", err)
		q.Set("sync", "failed")
		q.Set("reason", syncFailureReason(err))
	} else {
		q.Set("sync", "ok")
		q.Set("activities", strconv.Itoa(result.ActivitiesSynced))
		q.Set("metrics", strconv.Itoa(result.HealthMetricsSynced))
	}

	http.Redirect(w, r, "/users/"+url.PathEscape(userID)+"?"+q.Encode(), http.StatusSeeOther)
}

func syncFailureReason(err error) string {
	switch {
	case errors.Is(err, model.ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, model.ErrAuthentication):
		return "auth"
	case errors.Is(err, model.ErrRateLimitExceeded):
		return "rate_limited"
	default:
		return "error"
	}
}
