package application

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/observability"
)

// isoLayouts are tried in order when parsing upstream timestamps. Layouts
// without an offset are interpreted as UTC.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	time.DateOnly,
}

// parseISOTime parses an ISO-8601 timestamp. A trailing "Z" means UTC and
// naive timestamps are taken as UTC.
func parseISOTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// asInt accepts JSON numbers and Go numeric types, truncating fractions
// toward zero. Strings, including numeric ones, are rejected.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return truncate(f)
	case float64:
		return truncate(n)
	case float32:
		return truncate(float64(n))
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// asDecimal returns the exact decimal text of a numeric value.
func asDecimal(v any) (json.Number, bool) {
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Float64(); err != nil {
			return "", false
		}
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", false
		}
		return json.Number(strconv.FormatFloat(n, 'f', -1, 64)), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		return json.Number(strconv.FormatFloat(f, 'f', -1, 32)), true
	case int:
		return json.Number(strconv.Itoa(n)), true
	case int32:
		return json.Number(strconv.FormatInt(int64(n), 10)), true
	case int64:
		return json.Number(strconv.FormatInt(n, 10)), true
	case uint32:
		return json.Number(strconv.FormatUint(uint64(n), 10)), true
	default:
		return "", false
	}
}

// stringify renders an upstream identifier the way it appeared on the wire.
func stringify(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

func asObject(raw any) (map[string]any, error) {
	obj, ok := raw.(map[string]any)
	if !ok || obj == nil {
		return nil, fmt.Errorf("%w: expected JSON object, got %T", model.ErrNormalization, raw)
	}
	return obj, nil
}

// NormalizeActivity maps one upstream activity onto the stored schema. It
// fails only when raw is not a JSON object; every field problem degrades to
// an absent value. UserID, ID and ProcessedAt are left for the caller.
func NormalizeActivity(raw any) (model.Activity, error) {
	obj, err := asObject(raw)
	if err != nil {
		return model.Activity{}, err
	}

	a := model.Activity{
		ActivityID: stringify(obj["activityId"]),
		RawPayload: obj,
	}

	if name, ok := obj["activityName"].(string); ok {
		a.Name = name
	}

	if typ, ok := obj["activityType"].(map[string]any); ok {
		if key, ok := typ["typeKey"].(string); ok && key != "" {
			lower := strings.ToLower(key)
			a.ActivityType = &lower
		}
	}

	if v, present := obj["startTimeLocal"]; present && v != nil {
		if t, ok := parseISOTime(v); ok {
			a.StartTime = &t
		} else {
			slog.Warn("invalid activity start time", "activity_id", a.ActivityID, "start_time", v)
		}
	}

	a.DurationSecs = optionalInt(obj["duration"])
	a.Calories = optionalInt(obj["calories"])
	a.AvgHeartRate = optionalInt(obj["averageHR"])
	a.MaxHeartRate = optionalInt(obj["maxHR"])

	if d, ok := asDecimal(obj["distance"]); ok {
		a.DistanceMeters = d
	}

	return a, nil
}

func optionalInt(v any) *int64 {
	n, ok := asInt(v)
	if !ok {
		return nil
	}
	return &n
}

// NormalizeActivities normalizes each item independently. Items that fail to
// normalize are logged and skipped; items without an activity id are dropped.
func NormalizeActivities(raws []any) []model.Activity {
	activities := make([]model.Activity, 0, len(raws))
	var failed, missingID int

	for i, raw := range raws {
		a, err := NormalizeActivity(raw)
		if err != nil {
			failed++
			observability.RecordNormalizationFailure("activity")
			slog.Warn("skipping activity normalization", "index", i, "error", err)
			continue
		}
		if a.ActivityID == "" {
			missingID++
			continue
		}
		activities = append(activities, a)
	}

	slog.Info("normalized activities",
		"kept", len(activities),
		"total", len(raws),
		"failed", failed,
		"missing_id", missingID,
	)
	return activities
}

// keyMapping renames recognized upstream keys. Missing keys are omitted.
type keyMapping struct {
	from, to string
}

var (
	heartRateKeys = []keyMapping{
		{"restingHeartRate", "resting_heart_rate"},
		{"heartRateZones", "hr_zones"},
		{"timeInZones", "time_in_zones"},
		{"hrv", "hrv"},
		{"maxHeartRate", "max_heart_rate"},
		{"averageHeartRate", "avg_heart_rate"},
		{"heartRateValues", "hr_samples"},
	}

	sleepKeys = []keyMapping{
		{"sleepTimeSeconds", "sleep_duration_seconds"},
		{"sleepEfficiency", "sleep_efficiency"},
		{"sleepScore", "sleep_score"},
		{"restlessness", "restlessness"},
	}

	bodyCompositionKeys = []keyMapping{
		{"weight", "weight_kg"},
		{"bodyFat", "body_fat_percentage"},
		{"muscleMass", "muscle_mass_kg"},
		{"bmi", "bmi"},
		{"bodyWater", "body_water_percentage"},
		{"boneMass", "bone_mass_kg"},
	}

	stressKeys = []keyMapping{
		{"averageStressLevel", "avg_stress_level"},
		{"maxStressLevel", "max_stress_level"},
		{"stressDuration", "stress_duration_seconds"},
		{"restStressDuration", "rest_duration_seconds"},
		{"activityStressDuration", "activity_stress_duration_seconds"},
		{"lowStressDuration", "low_stress_duration_seconds"},
		{"mediumStressDuration", "medium_stress_duration_seconds"},
		{"highStressDuration", "high_stress_duration_seconds"},
		{"stressLevelValues", "stress_samples"},
	}

	sleepStages = map[string]bool{"deep": true, "light": true, "rem": true, "awake": true}
)

func mapKeys(obj map[string]any, mappings []keyMapping) map[string]any {
	out := make(map[string]any, len(mappings))
	for _, m := range mappings {
		if v, ok := obj[m.from]; ok {
			out[m.to] = v
		}
	}
	return out
}

// midnightUTC returns 00:00 UTC of day's calendar date in its own location.
func midnightUTC(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newMetric(metricType model.MetricType, day time.Time, data map[string]any) model.HealthMetric {
	return model.HealthMetric{
		MetricType:   metricType,
		RecordedDate: midnightUTC(day),
		MetricData:   data,
	}
}

// NormalizeHeartRate maps a daily heart rate payload.
func NormalizeHeartRate(raw any, day time.Time) (model.HealthMetric, error) {
	obj, err := asObject(raw)
	if err != nil {
		return model.HealthMetric{}, err
	}
	return newMetric(model.MetricHeartRate, day, mapKeys(obj, heartRateKeys)), nil
}

// NormalizeSleep maps a daily sleep payload. Stage durations are collected
// from sleepLevels under "<stage>_seconds"; unknown stages are dropped. A
// stage without a seconds key counts as zero, while an explicit null is kept.
func NormalizeSleep(raw any, day time.Time) (model.HealthMetric, error) {
	obj, err := asObject(raw)
	if err != nil {
		return model.HealthMetric{}, err
	}

	data := mapKeys(obj, sleepKeys)

	if levels, ok := obj["sleepLevels"].([]any); ok {
		stages := make(map[string]any)
		for _, item := range levels {
			level, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := level["level"].(string)
			name = strings.ToLower(name)
			if !sleepStages[name] {
				continue
			}
			seconds, ok := level["seconds"]
			if !ok {
				seconds = json.Number("0")
			}
			stages[name+"_seconds"] = seconds
		}
		data["sleep_stages"] = stages
	}

	if t, ok := parseISOTime(obj["sleepStartTimestampLocal"]); ok {
		data["sleep_start"] = t.Format(time.RFC3339Nano)
	}
	if t, ok := parseISOTime(obj["sleepEndTimestampLocal"]); ok {
		data["sleep_end"] = t.Format(time.RFC3339Nano)
	}

	return newMetric(model.MetricSleep, day, data), nil
}

// NormalizeBodyComposition maps a daily body composition payload.
func NormalizeBodyComposition(raw any, day time.Time) (model.HealthMetric, error) {
	obj, err := asObject(raw)
	if err != nil {
		return model.HealthMetric{}, err
	}
	return newMetric(model.MetricBodyComposition, day, mapKeys(obj, bodyCompositionKeys)), nil
}

// NormalizeStress maps a daily stress payload.
func NormalizeStress(raw any, day time.Time) (model.HealthMetric, error) {
	obj, err := asObject(raw)
	if err != nil {
		return model.HealthMetric{}, err
	}
	return newMetric(model.MetricStress, day, mapKeys(obj, stressKeys)), nil
}

// NormalizeMetric dispatches to the normalizer for metricType.
func NormalizeMetric(metricType model.MetricType, raw any, day time.Time) (model.HealthMetric, error) {
	switch metricType {
	case model.MetricHeartRate:
		return NormalizeHeartRate(raw, day)
	case model.MetricSleep:
		return NormalizeSleep(raw, day)
	case model.MetricBodyComposition:
		return NormalizeBodyComposition(raw, day)
	case model.MetricStress:
		return NormalizeStress(raw, day)
	default:
		return model.HealthMetric{}, fmt.Errorf("%w: unknown metric type %q", model.ErrNormalization, metricType)
	}
}
