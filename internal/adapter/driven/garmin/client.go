// Package garmin implements the WellnessProvider port against the Garmin
// Connect gateway API.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
	"github.com/ericfisherdev/garminsync/internal/observability"
)

const (
	breakerName = "garmin-connect"
	userAgent   = "garminsync/1.0"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 16 << 20
)

// Compile-time interface satisfaction checks.
var (
	_ driven.WellnessProvider = (*Provider)(nil)
	_ driven.WellnessSession  = (*Session)(nil)
)

// StatusError is returned for non-success HTTP responses. It unwraps to the
// domain sentinel matching the status so callers can use errors.Is.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("garmin %s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// Unwrap maps the status onto a domain sentinel, or nil if none applies.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrAuthentication
	case http.StatusTooManyRequests:
		return model.ErrRateLimitExceeded
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return driven.ErrUpstreamUnavailable
	default:
		return nil
	}
}

// Provider authenticates accounts against Garmin Connect. A single circuit
// breaker guards every outbound request so a failing gateway is not hammered
// by concurrent syncs.
type Provider struct {
	httpClient *http.Client
	baseURL    *url.URL
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewProvider creates a Provider for the gateway at baseURL. timeout bounds
// every individual HTTP request.
func NewProvider(baseURL string, timeout time.Duration) (*Provider, error) {
	return NewProviderWithHTTPClient(&http.Client{Timeout: timeout}, baseURL)
}

// NewProviderWithHTTPClient creates a Provider with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewProviderWithHTTPClient(httpClient *http.Client, baseURL string) (*Provider, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL %q: scheme and host are required", baseURL)
	}

	return &Provider{
		httpClient: httpClient,
		baseURL:    u,
		breaker:    newBreaker(),
	}, nil
}

func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	observability.RecordBreakerState(breakerName, gobreaker.StateClosed.String())

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only gateway outages and transport failures count against the
		// breaker; rejected credentials or missing data do not.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return !errors.Is(err, driven.ErrUpstreamUnavailable)
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			observability.RecordBreakerState(name, to.String())
		},
	})
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	DisplayName string `json:"display_name"`
}

// Authenticate exchanges the account credentials for a bearer token and
// returns a session bound to it. Each session gets its own response cache so
// cached payloads never leak across accounts.
func (p *Provider) Authenticate(ctx context.Context, username, password string) (driven.WellnessSession, error) {
	body, err := json.Marshal(tokenRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	raw, err := p.do(ctx, p.httpClient, http.MethodPost, "/oauth/token", nil, "", body)
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response carried no access token", model.ErrAuthentication)
	}

	displayName := tok.DisplayName
	if displayName == "" {
		displayName = username
	}

	cache := &httpcache.Transport{
		Transport:           baseTransport(p.httpClient),
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
	}

	return &Session{
		provider:    p,
		httpClient:  &http.Client{Transport: cache, Timeout: p.httpClient.Timeout},
		token:       tok.AccessToken,
		displayName: displayName,
	}, nil
}

func baseTransport(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

// Session issues bearer-authenticated reads for one account.
type Session struct {
	provider    *Provider
	httpClient  *http.Client
	token       string
	displayName string
}

// FetchActivities returns the most recent activities, newest first. A null
// body is treated as an empty list.
func (s *Session) FetchActivities(ctx context.Context, start, limit int) ([]any, error) {
	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("limit", strconv.Itoa(limit))

	payload, err := s.getJSON(ctx, "/activitylist-service/activities/search/activities", query)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return []any{}, nil
	}

	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("activity list: expected JSON array, got %T", payload)
	}
	return items, nil
}

// Fetch returns the payload of the given kind for the calendar day, or nil
// if the platform holds no data for it.
func (s *Session) Fetch(ctx context.Context, kind model.DataKind, day time.Time) (any, error) {
	date := day.Format(time.DateOnly)
	display := url.PathEscape(s.displayName)
	query := url.Values{}

	var path string
	switch kind {
	case model.DataKindUserSummary, model.DataKindBodyComposition:
		path = "/usersummary-service/usersummary/daily/" + display
		query.Set("calendarDate", date)
	case model.DataKindHeartRate:
		path = "/wellness-service/wellness/dailyHeartRate/" + display
		query.Set("date", date)
	case model.DataKindSleep:
		path = "/wellness-service/wellness/dailySleepData/" + display
		query.Set("date", date)
	case model.DataKindStress:
		path = "/wellness-service/wellness/dailyStress/" + display
		query.Set("date", date)
	default:
		return nil, fmt.Errorf("unsupported data kind %q", kind)
	}

	return s.getJSON(ctx, path, query)
}

func (s *Session) getJSON(ctx context.Context, path string, query url.Values) (any, error) {
	raw, err := s.provider.do(ctx, s.httpClient, http.MethodGet, path, query, s.token, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return payload, nil
}

// do performs one request through the circuit breaker and returns the body
// of a 2xx response. A 204 yields an empty body. path must already be
// escaped.
func (p *Provider) do(ctx context.Context, client *http.Client, method, path string, query url.Values, token string, body []byte) ([]byte, error) {
	escaped := p.baseURL.EscapedPath() + path
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("garmin %s %s: invalid path: %w", method, path, err)
	}

	u := *p.baseURL
	u.Path, u.RawPath = unescaped, escaped
	u.RawQuery = query.Encode()

	return p.breaker.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("garmin %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		slog.Debug("garmin api call",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"cached", resp.Header.Get(httpcache.XFromCache) != "",
		)

		if resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("garmin %s %s: read body: %w", method, path, err)
		}
		return raw, nil
	})
}
