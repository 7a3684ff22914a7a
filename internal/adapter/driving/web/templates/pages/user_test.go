package pages

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/garminsync/internal/adapter/driving/web/templates"
	vm "github.com/ericfisherdev/garminsync/internal/adapter/driving/web/viewmodel"
)

func renderPage(t *testing.T, page vm.UserPageViewModel) string {
	t.Helper()

	var buf bytes.Buffer
	err := templates.Layout("Garmin sync: "+page.UserID, UserPage(page)).Render(context.Background(), &buf)
	require.NoError(t, err)
	return buf.String()
}

func TestUserPage_SyncReady(t *testing.T) {
	body := renderPage(t, vm.UserPageViewModel{
		UserID:             "alice",
		SyncReady:          true,
		LatestActivitySync: "2024-03-10 12:00 UTC",
		LatestHealthSync:   "never",
		TotalActivities:    12,
		TotalHealthMetrics: 40,
		SummaryDays:        7,
		ActivityDays:       30,
		Metrics:            []vm.MetricSummaryViewModel{{Label: "Sleep", Count: 5, LatestDate: "2024-03-10"}},
		Activities: []vm.ActivityRowViewModel{{
			Name:      "Morning Run",
			Type:      "running",
			Distance:  "5.00 km",
			NotesHTML: "<p><strong>tempo</strong></p>",
		}},
		SyncActionURL: "/users/alice/sync",
		CSRFToken:     "tok&en",
		Notice:        &vm.NoticeViewModel{Message: "Sync complete"},
	})

	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, "<title>Garmin sync: alice</title>")
	assert.Contains(t, body, `<div class="notice notice-ok" role="status">Sync complete</div>`)
	assert.Contains(t, body, "credentials configured")
	assert.Contains(t, body, "<td>12</td>")
	assert.Contains(t, body, "Health metrics, last 7 days")
	assert.Contains(t, body, "<td>Sleep</td><td>5</td><td>2024-03-10</td>")
	assert.Contains(t, body, `<div class="notes"><p><strong>tempo</strong></p></div>`)
	assert.Contains(t, body, `action="/users/alice/sync"`)
	assert.Contains(t, body, `value="tok&amp;en"`)
	assert.Contains(t, body, "Sync now")
}

func TestUserPage_Empty(t *testing.T) {
	body := renderPage(t, vm.UserPageViewModel{
		UserID:       "<b>bob</b>",
		SummaryDays:  7,
		ActivityDays: 30,
		Notice:       &vm.NoticeViewModel{Message: "failed", IsError: true},
	})

	assert.Contains(t, body, "&lt;b&gt;bob&lt;/b&gt;")
	assert.NotContains(t, body, "<b>bob</b>")
	assert.Contains(t, body, "notice-error")
	assert.Contains(t, body, "no credentials")
	assert.NotContains(t, body, "<form")
	assert.Contains(t, body, "No health metrics synced yet.")
	assert.Contains(t, body, "No activities synced yet.")
}
