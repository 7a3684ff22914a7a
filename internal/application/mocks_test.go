package application_test

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCredentialStore struct {
	mu        sync.Mutex
	records   map[string]model.StoredCredential
	upsertErr error
	getErr    error
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{records: make(map[string]model.StoredCredential)}
}

func (m *mockCredentialStore) Upsert(_ context.Context, cred model.StoredCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[cred.UserID+"/"+cred.ServiceName] = cred
	return nil
}

func (m *mockCredentialStore) GetActive(_ context.Context, userID, service string) (*model.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	cred, ok := m.records[userID+"/"+service]
	if !ok || !cred.IsActive {
		return nil, nil
	}
	return &cred, nil
}

func (m *mockCredentialStore) Deactivate(_ context.Context, userID, service string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.records[userID+"/"+service]
	if !ok || !cred.IsActive {
		return 0, nil
	}
	cred.IsActive = false
	m.records[userID+"/"+service] = cred
	return 1, nil
}

func (m *mockCredentialStore) ListActiveUserIDs(_ context.Context, service string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, cred := range m.records {
		if cred.ServiceName == service && cred.IsActive {
			ids = append(ids, cred.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// fakeCipher "encrypts" by prefixing a per-call salt. Decrypt fails with
// ErrDecryption when the salt does not match the ciphertext.
type fakeCipher struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCipher) Encrypt(plaintext string) (model.EncryptedField, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	salt := []byte(fmt.Sprintf("salt-%02d", c.calls))
	return model.EncryptedField{Ciphertext: append(append([]byte{}, salt...), []byte(":"+plaintext)...), Salt: salt}, nil
}

func (c *fakeCipher) Decrypt(field model.EncryptedField) (string, error) {
	prefix := append(append([]byte{}, field.Salt...), ':')
	if len(field.Salt) == 0 || !bytes.HasPrefix(field.Ciphertext, prefix) {
		return "", fmt.Errorf("%w: salt mismatch", model.ErrDecryption)
	}
	return string(field.Ciphertext[len(prefix):]), nil
}

type mockLimiter struct {
	mu      sync.Mutex
	keys    []string
	allowed func(call int) bool
	err     error
}

func (m *mockLimiter) IsAllowed(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return false, m.err
	}
	if m.allowed == nil {
		return true, nil
	}
	return m.allowed(len(m.keys)), nil
}

func (m *mockLimiter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

type mockSession struct {
	mu              sync.Mutex
	fetchActivities func(ctx context.Context, start, limit int) ([]any, error)
	fetch           func(ctx context.Context, kind model.DataKind, day time.Time) (any, error)
	kinds           []model.DataKind
}

func (m *mockSession) FetchActivities(ctx context.Context, start, limit int) ([]any, error) {
	if m.fetchActivities == nil {
		return []any{}, nil
	}
	return m.fetchActivities(ctx, start, limit)
}

func (m *mockSession) Fetch(ctx context.Context, kind model.DataKind, day time.Time) (any, error) {
	m.mu.Lock()
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	if m.fetch == nil {
		return map[string]any{}, nil
	}
	return m.fetch(ctx, kind, day)
}

func (m *mockSession) fetchCount(kind model.DataKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type mockProvider struct {
	session *mockSession
	err     error
	calls   int
}

func (m *mockProvider) Authenticate(_ context.Context, _, _ string) (driven.WellnessSession, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type activityKey struct{ userID, activityID string }

type mockActivityStore struct {
	mu        sync.Mutex
	rows      map[activityKey]model.Activity
	insertErr error
}

func newMockActivityStore() *mockActivityStore {
	return &mockActivityStore{rows: make(map[activityKey]model.Activity)}
}

func (m *mockActivityStore) InsertNew(_ context.Context, activities []model.Activity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	n := 0
	for _, a := range activities {
		k := activityKey{a.UserID, a.ActivityID}
		if _, ok := m.rows[k]; ok {
			continue
		}
		m.rows[k] = a
		n++
	}
	return n, nil
}

func (m *mockActivityStore) List(_ context.Context, filter model.ActivityFilter) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Activity
	for _, a := range m.rows {
		if a.UserID == filter.UserID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActivityStore) Stats(_ context.Context, userID string) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		n      int
		latest *time.Time
	)
	for _, a := range m.rows {
		if a.UserID != userID {
			continue
		}
		n++
		if latest == nil || a.ProcessedAt.After(*latest) {
			ts := a.ProcessedAt
			latest = &ts
		}
	}
	return n, latest, nil
}

type metricKey struct {
	userID     string
	metricType model.MetricType
	date       string
}

type mockHealthMetricStore struct {
	mu        sync.Mutex
	rows      map[metricKey]model.HealthMetric
	batches   int
	failAfter int // fail the batch with this 1-based index; 0 disables
}

func newMockHealthMetricStore() *mockHealthMetricStore {
	return &mockHealthMetricStore{rows: make(map[metricKey]model.HealthMetric)}
}

func (m *mockHealthMetricStore) InsertNew(_ context.Context, metrics []model.HealthMetric) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.failAfter > 0 && m.batches == m.failAfter {
		return 0, fmt.Errorf("disk full")
	}
	n := 0
	for _, hm := range metrics {
		k := metricKey{hm.UserID, hm.MetricType, hm.RecordedDate.Format(time.DateOnly)}
		if _, ok := m.rows[k]; ok {
			continue
		}
		m.rows[k] = hm
		n++
	}
	return n, nil
}

func (m *mockHealthMetricStore) ListByType(_ context.Context, userID string, metricType model.MetricType, since time.Time) ([]model.HealthMetric, error) {
	all, _ := m.ListSince(context.Background(), userID, since)
	var out []model.HealthMetric
	for _, hm := range all {
		if hm.MetricType == metricType {
			out = append(out, hm)
		}
	}
	return out, nil
}

func (m *mockHealthMetricStore) ListSince(_ context.Context, userID string, since time.Time) ([]model.HealthMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := since.Format(time.DateOnly)
	var out []model.HealthMetric
	for k, hm := range m.rows {
		if k.userID == userID && k.date >= cutoff {
			out = append(out, hm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedDate.After(out[j].RecordedDate) })
	return out, nil
}

func (m *mockHealthMetricStore) Stats(_ context.Context, userID string) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		n      int
		latest *time.Time
	)
	for k, hm := range m.rows {
		if k.userID != userID {
			continue
		}
		n++
		if latest == nil || hm.ProcessedAt.After(*latest) {
			ts := hm.ProcessedAt
			latest = &ts
		}
	}
	return n, latest, nil
}
