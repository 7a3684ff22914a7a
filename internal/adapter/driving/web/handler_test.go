package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

type stubStatus struct {
	status     *model.SyncStatus
	activities []model.Activity
	summary    map[model.MetricType]model.MetricSummary
	err        error
}

func (s *stubStatus) Status(_ context.Context, userID string) (*model.SyncStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	st := *s.status
	st.UserID = userID
	return &st, nil
}

func (s *stubStatus) Activities(context.Context, string, string, int, int) ([]model.Activity, error) {
	return s.activities, nil
}

func (s *stubStatus) Summary(context.Context, string, int) (map[model.MetricType]model.MetricSummary, int, error) {
	return s.summary, 0, nil
}

type stubTrigger struct {
	result *model.SyncResult
	err    error
	users  []string
}

func (s *stubTrigger) Trigger(_ context.Context, userID string) (*model.SyncResult, error) {
	s.users = append(s.users, userID)
	return s.result, s.err
}

func newTestMux(status *stubStatus, trigger *stubTrigger) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewHandler(status, trigger, slog.Default()))
	return mux
}

func TestUserStatus_RendersPage(t *testing.T) {
	start := time.Date(2024, 1, 15, 7, 30, 0, 0, time.UTC)
	running := "running"
	duration := int64(1800)
	status := &stubStatus{
		status: &model.SyncStatus{CredentialsConfigured: true, TotalActivities: 1, TotalHealthMetrics: 3},
		activities: []model.Activity{{
			Name:           "Morning Run",
			ActivityType:   &running,
			StartTime:      &start,
			DurationSecs:   &duration,
			DistanceMeters: "5000.5",
			RawPayload:     map[string]any{"description": "**tempo** block <script>x()</script>"},
		}},
		summary: map[model.MetricType]model.MetricSummary{
			model.MetricSleep:     {Count: 2, LatestDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
			model.MetricHeartRate: {Count: 1, LatestDate: time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)},
		},
	}

	rec := httptest.NewRecorder()
	newTestMux(status, &stubTrigger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/alice", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Garmin sync: alice")
	assert.Contains(t, body, "credentials configured")
	assert.Contains(t, body, "Morning Run")
	assert.Contains(t, body, "5.00 km")
	assert.Contains(t, body, "30m0s")
	assert.Contains(t, body, "<strong>tempo</strong>")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, `action="/users/alice/sync"`)
	assert.Less(t, strings.Index(body, "Heart rate"), strings.Index(body, "Sleep"), "metrics follow the fixed type order")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), csrfCookieName)
}

func TestUserStatus_EscapesUserID(t *testing.T) {
	status := &stubStatus{status: &model.SyncStatus{}}

	rec := httptest.NewRecorder()
	target := "/users/" + url.PathEscape(`<b>x</b>`)
	newTestMux(status, &stubTrigger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<b>x</b>")
	assert.Contains(t, body, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, body, "no credentials")
	assert.NotContains(t, body, "Sync now", "no sync form without credentials")
	assert.Contains(t, body, "never")
}

func TestUserStatus_StatusError(t *testing.T) {
	status := &stubStatus{err: errors.New("database is locked")}

	rec := httptest.NewRecorder()
	newTestMux(status, &stubTrigger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/alice", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestUserStatus_SyncNotice(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"sync=ok&activities=2&metrics=8", "Sync complete: 2 new activities, 8 new health metrics."},
		{"sync=failed&reason=auth", "Garmin Connect rejected the stored credentials."},
		{"sync=failed&reason=<script>", "Sync failed. Check the server logs."},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			status := &stubStatus{status: &model.SyncStatus{CredentialsConfigured: true}}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/users/alice?"+tt.query, nil)
			newTestMux(status, &stubTrigger{}).ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func postSync(mux http.Handler, cookieToken, formToken string) *httptest.ResponseRecorder {
	form := url.Values{}
	if formToken != "" {
		form.Set(csrfFormField, formToken)
	}
	req := httptest.NewRequest(http.MethodPost, "/users/alice/sync", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookieToken != "" {
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookieToken})
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSyncNow_RequiresCSRF(t *testing.T) {
	trigger := &stubTrigger{}
	mux := newTestMux(&stubStatus{}, trigger)

	assert.Equal(t, http.StatusForbidden, postSync(mux, "", "").Code)
	assert.Equal(t, http.StatusForbidden, postSync(mux, "token-a", "token-b").Code)
	assert.Empty(t, trigger.users)
}

func TestSyncNow_Success(t *testing.T) {
	trigger := &stubTrigger{result: &model.SyncResult{ActivitiesSynced: 2, HealthMetricsSynced: 8}}
	rec := postSync(newTestMux(&stubStatus{}, trigger), "tok", "tok")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"alice"}, trigger.users)
	assert.Equal(t, "/users/alice?activities=2&metrics=8&sync=ok", rec.Header().Get("Location"))
}

func TestSyncNow_Failure(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{model.ErrNoCredentials, "no_credentials"},
		{model.ErrAuthentication, "auth"},
		{model.ErrRateLimitExceeded, "rate_limited"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			rec := postSync(newTestMux(&stubStatus{}, &stubTrigger{err: tt.err}), "tok", "tok")

			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "/users/alice?reason="+tt.reason+"&sync=failed", rec.Header().Get("Location"))
		})
	}
}

func TestStaticAssets(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestMux(&stubStatus{}, &stubTrigger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "font-family")
}
