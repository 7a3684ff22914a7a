package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/garminsync/internal/domain/model"
	"github.com/ericfisherdev/garminsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivityStore = (*ActivityRepo)(nil)

// ActivityRepo is the SQLite implementation of the ActivityStore port interface.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates a new ActivityRepo backed by the given DB.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// InsertNew inserts every activity whose (user_id, activity_id) is not already
// stored, all within one transaction. Existing rows are left untouched.
func (r *ActivityRepo) InsertNew(ctx context.Context, activities []model.Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `
		INSERT INTO activities (
			id, user_id, activity_id, activity_type, name, start_time, duration_seconds,
			distance_meters, calories, avg_heart_rate, max_heart_rate, raw_payload, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, activity_id) DO NOTHING
	`

	inserted := 0
	for _, a := range activities {
		raw := a.RawPayload
		if raw == nil {
			raw = map[string]any{}
		}
		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return 0, fmt.Errorf("marshal raw payload for activity %q: %w", a.ActivityID, err)
		}

		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}

		var startTime, distance any
		if a.StartTime != nil {
			startTime = formatTime(*a.StartTime)
		}
		if a.DistanceMeters != "" {
			distance = a.DistanceMeters.String()
		}

		res, err := tx.ExecContext(ctx, query,
			id, a.UserID, a.ActivityID, nullableString(a.ActivityType), a.Name, startTime,
			nullableInt(a.DurationSecs), distance, nullableInt(a.Calories),
			nullableInt(a.AvgHeartRate), nullableInt(a.MaxHeartRate),
			string(rawJSON), formatTime(a.ProcessedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert activity %q for user %q: %w", a.ActivityID, a.UserID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit activities: %w", err)
	}

	return inserted, nil
}

// List returns activities for the filter's user, newest start time first.
// Activities without a start time are excluded when Since is set.
func (r *ActivityRepo) List(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{filter.UserID}
	)
	if !filter.Since.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if filter.ActivityType != "" {
		where = append(where, "activity_type = ?")
		args = append(args, filter.ActivityType)
	}

	query := `
		SELECT id, user_id, activity_id, activity_type, name, start_time, duration_seconds,
			distance_meters, calories, avg_heart_rate, max_heart_rate, raw_payload, processed_at
		FROM activities
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY start_time DESC NULLS LAST, activity_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities for user %q: %w", filter.UserID, err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}

	return activities, nil
}

// Stats returns the user's activity count and latest processed_at.
func (r *ActivityRepo) Stats(ctx context.Context, userID string) (int, *time.Time, error) {
	return tableStats(ctx, r.db, "activities", userID)
}

func scanActivity(rows *sql.Rows) (model.Activity, error) {
	var (
		a                       model.Activity
		activityType, startTime sql.NullString
		distance                sql.NullString
		duration, calories      sql.NullInt64
		avgHR, maxHR            sql.NullInt64
		rawJSON, processedAt    string
	)
	if err := rows.Scan(
		&a.ID, &a.UserID, &a.ActivityID, &activityType, &a.Name, &startTime, &duration,
		&distance, &calories, &avgHR, &maxHR, &rawJSON, &processedAt,
	); err != nil {
		return model.Activity{}, fmt.Errorf("scan activity: %w", err)
	}

	if activityType.Valid {
		a.ActivityType = &activityType.String
	}
	if distance.Valid {
		a.DistanceMeters = json.Number(distance.String)
	}
	a.DurationSecs = intPtr(duration)
	a.Calories = intPtr(calories)
	a.AvgHeartRate = intPtr(avgHR)
	a.MaxHeartRate = intPtr(maxHR)

	var err error
	if a.StartTime, err = parseNullTime(startTime); err != nil {
		return model.Activity{}, fmt.Errorf("parse start_time for activity %q: %w", a.ActivityID, err)
	}
	if a.ProcessedAt, err = parseTime(processedAt); err != nil {
		return model.Activity{}, fmt.Errorf("parse processed_at for activity %q: %w", a.ActivityID, err)
	}
	if a.RawPayload, err = decodeObject(rawJSON); err != nil {
		return model.Activity{}, fmt.Errorf("decode raw payload for activity %q: %w", a.ActivityID, err)
	}

	return a, nil
}

// tableStats counts a user's rows in table and returns the newest processed_at.
// table is always a package constant, never user input.
func tableStats(ctx context.Context, db *DB, table, userID string) (int, *time.Time, error) {
	query := `SELECT COUNT(*), MAX(processed_at) FROM ` + table + ` WHERE user_id = ?`

	var (
		count  int
		latest sql.NullString
	)
	if err := db.Reader.QueryRowContext(ctx, query, userID).Scan(&count, &latest); err != nil {
		return 0, nil, fmt.Errorf("stats for %s of user %q: %w", table, userID, err)
	}

	ts, err := parseNullTime(latest)
	if err != nil {
		return 0, nil, fmt.Errorf("parse latest processed_at in %s: %w", table, err)
	}
	return count, ts, nil
}

// decodeObject decodes a JSON object column, keeping numbers as json.Number
// so stored payloads round-trip without float rounding.
func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
