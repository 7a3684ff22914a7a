package garmin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	garminAdapter "github.com/ericfisherdev/garminsync/internal/adapter/driven/garmin"
	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// newTestProvider creates a Provider backed by the given httptest handler.
func newTestProvider(t *testing.T, handler http.Handler) *garminAdapter.Provider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := garminAdapter.NewProviderWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)
	return provider
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"access_token": "tok-" + body.Username,
		"display_name": "disp-" + body.Username,
	})
}

func authenticate(t *testing.T, p *garminAdapter.Provider) driven.WellnessSession {
	t.Helper()
	session, err := p.Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	return session
}

func TestAuthenticate_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)

	session, err := newTestProvider(t, mux).Authenticate(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestAuthenticate_Rejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)

	_, err := newTestProvider(t, mux).Authenticate(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuthentication)

	var statusErr *garminAdapter.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token": ""}`))
	})

	_, err := newTestProvider(t, mux).Authenticate(context.Background(), "alice", "secret")
	assert.ErrorIs(t, err, model.ErrAuthentication)
}

func TestFetchActivities(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	mux.HandleFunc("GET /activitylist-service/activities/search/activities", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-alice", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.URL.Query().Get("start"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"activityId": 12345678901, "distance": 5000.25}]`))
	})

	session := authenticate(t, newTestProvider(t, mux))
	items, err := session.FetchActivities(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0].(map[string]any)
	assert.Equal(t, json.Number("12345678901"), item["activityId"])
	assert.Equal(t, json.Number("5000.25"), item["distance"])
}

func TestFetchActivities_NullBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	mux.HandleFunc("GET /activitylist-service/activities/search/activities", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	items, err := authenticate(t, newTestProvider(t, mux)).FetchActivities(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetch_Endpoints(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		kind  model.DataKind
		path  string
		param string
	}{
		{model.DataKindUserSummary, "/usersummary-service/usersummary/daily/disp-alice", "calendarDate"},
		{model.DataKindBodyComposition, "/usersummary-service/usersummary/daily/disp-alice", "calendarDate"},
		{model.DataKindHeartRate, "/wellness-service/wellness/dailyHeartRate/disp-alice", "date"},
		{model.DataKindSleep, "/wellness-service/wellness/dailySleepData/disp-alice", "date"},
		{model.DataKindStress, "/wellness-service/wellness/dailyStress/disp-alice", "date"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /oauth/token", tokenHandler)
			mux.HandleFunc("GET "+tt.path, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "2024-03-15", r.URL.Query().Get(tt.param))
				_, _ = w.Write([]byte(`{"restingHeartRate": 52}`))
			})

			payload, err := authenticate(t, newTestProvider(t, mux)).Fetch(context.Background(), tt.kind, day)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"restingHeartRate": json.Number("52")}, payload)
		})
	}
}

func TestFetch_AbsentPayloads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	mux.HandleFunc("GET /wellness-service/wellness/dailySleepData/disp-alice", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})
	mux.HandleFunc("GET /wellness-service/wellness/dailyStress/disp-alice", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	session := authenticate(t, newTestProvider(t, mux))

	payload, err := session.Fetch(context.Background(), model.DataKindSleep, time.Now())
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = session.Fetch(context.Background(), model.DataKindStress, time.Now())
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestFetch_GatewayErrorIsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	mux.HandleFunc("GET /wellness-service/wellness/dailyStress/disp-alice", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := authenticate(t, newTestProvider(t, mux)).Fetch(context.Background(), model.DataKindStress, time.Now())
	assert.ErrorIs(t, err, driven.ErrUpstreamUnavailable)
}

func TestFetch_NotFoundIsPlainError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)

	_, err := authenticate(t, newTestProvider(t, mux)).Fetch(context.Background(), model.DataKindStress, time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, driven.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, model.ErrAuthentication)
}

func TestFetch_UnsupportedKind(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)

	_, err := authenticate(t, newTestProvider(t, mux)).Fetch(context.Background(), model.DataKind("steps"), time.Now())
	assert.Error(t, err)
}

func TestCircuitBreakerOpensAfterRepeatedOutages(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	mux.HandleFunc("GET /wellness-service/wellness/dailyStress/disp-alice", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	session := authenticate(t, newTestProvider(t, mux))
	for range 5 {
		_, err := session.Fetch(context.Background(), model.DataKindStress, time.Now())
		require.ErrorIs(t, err, driven.ErrUpstreamUnavailable)
	}

	_, err := session.Fetch(context.Background(), model.DataKindStress, time.Now())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, hits.Load(), "open breaker must not reach the server")
}

func TestNewProviderWithHTTPClient_InvalidURL(t *testing.T) {
	_, err := garminAdapter.NewProviderWithHTTPClient(http.DefaultClient, "not a url")
	assert.Error(t, err)
}
