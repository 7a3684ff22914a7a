package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a credential change.
type MessageResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Revoked *bool  `json:"revoked,omitempty"`
}

// SyncResponse is the JSON representation of a completed sync.
type SyncResponse struct {
	Message             string `json:"message"`
	UserID              string `json:"user_id"`
	ActivitiesSynced    int    `json:"activities_synced"`
	HealthMetricsSynced int    `json:"health_metrics_synced"`
	SyncPeriodDays      int    `json:"sync_period_days"`
}

// StatusResponse is the JSON representation of a user's sync status.
type StatusResponse struct {
	UserID                string  `json:"user_id"`
	CredentialsConfigured bool    `json:"credentials_configured"`
	SyncReady             bool    `json:"sync_ready"`
	LatestActivitySync    *string `json:"latest_activity_sync"`
	LatestHealthSync      *string `json:"latest_health_sync"`
	TotalActivities       int     `json:"total_activities"`
	TotalHealthMetrics    int     `json:"total_health_metrics"`
}

// ActivityResponse is the JSON representation of a stored activity.
type ActivityResponse struct {
	ID              string       `json:"id"`
	ActivityID      string       `json:"activity_id"`
	Name            string       `json:"name"`
	Type            *string      `json:"type"`
	StartTime       *string      `json:"start_time"`
	DurationSeconds *int64       `json:"duration_seconds"`
	DistanceMeters  *json.Number `json:"distance_meters"`
	Calories        *int64       `json:"calories"`
	AvgHeartRate    *int64       `json:"avg_heart_rate"`
	MaxHeartRate    *int64       `json:"max_heart_rate"`
}

// ActivitiesResponse wraps an activity listing.
type ActivitiesResponse struct {
	Activities []ActivityResponse `json:"activities"`
	Count      int                `json:"count"`
	PeriodDays int                `json:"period_days"`
}

// MetricResponse is the JSON representation of one day of a health metric.
type MetricResponse struct {
	ID           string         `json:"id"`
	MetricType   string         `json:"metric_type"`
	RecordedDate string         `json:"recorded_date"`
	Data         map[string]any `json:"data"`
	ProcessedAt  string         `json:"processed_at"`
}

// MetricsResponse wraps a metric history listing.
type MetricsResponse struct {
	Metrics    []MetricResponse `json:"metrics"`
	Count      int              `json:"count"`
	MetricType string           `json:"metric_type"`
	PeriodDays int              `json:"period_days"`
}

// MetricSummaryResponse summarizes one metric type over a window.
type MetricSummaryResponse struct {
	Count      int            `json:"count"`
	LatestDate string         `json:"latest_date"`
	LatestData map[string]any `json:"latest_data"`
}

// SummaryResponse is the JSON representation of the cross-metric summary.
type SummaryResponse struct {
	UserID       string                           `json:"user_id"`
	PeriodDays   int                              `json:"period_days"`
	TotalMetrics int                              `json:"total_metrics"`
	Summary      map[string]MetricSummaryResponse `json:"summary"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toStatusResponse converts a domain SyncStatus to its JSON representation.
func toStatusResponse(s model.SyncStatus) StatusResponse {
	return StatusResponse{
		UserID:                s.UserID,
		CredentialsConfigured: s.CredentialsConfigured,
		SyncReady:             s.SyncReady(),
		LatestActivitySync:    formatOptionalTime(s.LatestActivitySync),
		LatestHealthSync:      formatOptionalTime(s.LatestHealthSync),
		TotalActivities:       s.TotalActivities,
		TotalHealthMetrics:    s.TotalHealthMetrics,
	}
}

// toActivityResponse converts a domain Activity to its JSON representation.
// An absent distance is reported as null rather than zero.
func toActivityResponse(a model.Activity) ActivityResponse {
	resp := ActivityResponse{
		ID:              a.ID,
		ActivityID:      a.ActivityID,
		Name:            a.Name,
		Type:            a.ActivityType,
		StartTime:       formatOptionalTime(a.StartTime),
		DurationSeconds: a.DurationSecs,
		Calories:        a.Calories,
		AvgHeartRate:    a.AvgHeartRate,
		MaxHeartRate:    a.MaxHeartRate,
	}
	if a.DistanceMeters != "" {
		d := a.DistanceMeters
		resp.DistanceMeters = &d
	}
	return resp
}

// toMetricResponse converts a domain HealthMetric to its JSON representation.
func toMetricResponse(m model.HealthMetric) MetricResponse {
	data := m.MetricData
	if data == nil {
		data = map[string]any{}
	}
	return MetricResponse{
		ID:           m.ID,
		MetricType:   string(m.MetricType),
		RecordedDate: m.RecordedDate.UTC().Format(time.DateOnly),
		Data:         data,
		ProcessedAt:  m.ProcessedAt.UTC().Format(time.RFC3339),
	}
}
