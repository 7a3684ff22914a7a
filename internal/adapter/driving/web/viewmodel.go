package web

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	vm "github.com/ericfisherdev/garminsync/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/garminsync/internal/domain/model"
)

var metricLabels = map[model.MetricType]string{
	model.MetricHeartRate:       "Heart rate",
	model.MetricSleep:           "Sleep",
	model.MetricBodyComposition: "Body composition",
	model.MetricStress:          "Stress",
}

// syncNotices maps the reason codes carried in the redirect after a manual
// sync to banner text. Unknown codes render no banner.
var syncNotices = map[string]vm.NoticeViewModel{
	"no_credentials": {Message: "No Garmin credentials are stored for this user.", IsError: true},
	"auth":           {Message: "Garmin Connect rejected the stored credentials.", IsError: true},
	"rate_limited":   {Message: "Rate limit reached. Try again in a minute.", IsError: true},
	"error":          {Message: "Sync failed. Check the server logs.", IsError: true},
}

func formatWatermark(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func formatDuration(secs *int64) string {
	if secs == nil {
		return "-"
	}
	return (time.Duration(*secs) * time.Second).String()
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}

// formatDistance renders meters as kilometres with two decimals.
func formatDistance(meters string) string {
	if meters == "" {
		return "-"
	}
	m, err := strconv.ParseFloat(meters, 64)
	if err != nil {
		return meters
	}
	return fmt.Sprintf("%.2f km", m/1000)
}

// toActivityRow converts a domain Activity to a table row. The description is
// read from the raw upstream payload and rendered as sanitized markdown.
func toActivityRow(a model.Activity) vm.ActivityRowViewModel {
	row := vm.ActivityRowViewModel{
		Name:      a.Name,
		Type:      "-",
		StartTime: "-",
		Duration:  formatDuration(a.DurationSecs),
		Distance:  formatDistance(a.DistanceMeters.String()),
		AvgHR:     formatOptionalInt(a.AvgHeartRate),
	}
	if row.Name == "" {
		row.Name = "Untitled activity"
	}
	if a.ActivityType != nil {
		row.Type = *a.ActivityType
	}
	if a.StartTime != nil {
		row.StartTime = a.StartTime.UTC().Format("2006-01-02 15:04")
	}
	if desc, ok := a.RawPayload["description"].(string); ok {
		row.NotesHTML = RenderMarkdown(desc)
	}
	return row
}

// toMetricSummaries orders the summary by the fixed metric type order.
func toMetricSummaries(summary map[model.MetricType]model.MetricSummary) []vm.MetricSummaryViewModel {
	out := make([]vm.MetricSummaryViewModel, 0, len(summary))
	for _, metricType := range model.MetricTypes {
		s, ok := summary[metricType]
		if !ok {
			continue
		}
		out = append(out, vm.MetricSummaryViewModel{
			Label:      metricLabels[metricType],
			Count:      s.Count,
			LatestDate: s.LatestDate.UTC().Format(time.DateOnly),
		})
	}
	return out
}

// noticeFromQuery builds the post-sync banner from redirect query parameters.
func noticeFromQuery(q url.Values) *vm.NoticeViewModel {
	switch q.Get("sync") {
	case "ok":
		activities, _ := strconv.Atoi(q.Get("activities"))
		metrics, _ := strconv.Atoi(q.Get("metrics"))
		return &vm.NoticeViewModel{
			Message: fmt.Sprintf("Sync complete: %d new activities, %d new health metrics.", activities, metrics),
		}
	case "failed":
		if n, ok := syncNotices[q.Get("reason")]; ok {
			return &n
		}
		n := syncNotices["error"]
		return &n
	default:
		return nil
	}
}

func toUserPage(
	status model.SyncStatus,
	activities []model.Activity,
	summary map[model.MetricType]model.MetricSummary,
	csrf string,
	notice *vm.NoticeViewModel,
) vm.UserPageViewModel {
	rows := make([]vm.ActivityRowViewModel, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, toActivityRow(a))
	}

	return vm.UserPageViewModel{
		UserID:                status.UserID,
		CredentialsConfigured: status.CredentialsConfigured,
		SyncReady:             status.SyncReady(),
		LatestActivitySync:    formatWatermark(status.LatestActivitySync),
		LatestHealthSync:      formatWatermark(status.LatestHealthSync),
		TotalActivities:       status.TotalActivities,
		TotalHealthMetrics:    status.TotalHealthMetrics,
		Activities:            rows,
		Metrics:               toMetricSummaries(summary),
		SummaryDays:           summaryDays,
		ActivityDays:          activityDays,
		SyncActionURL:         "/users/" + url.PathEscape(status.UserID) + "/sync",
		CSRFToken:             csrf,
		Notice:                notice,
	}
}
