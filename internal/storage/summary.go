package storage

import (
	"context"
	"fmt"
	"time"
)

// RepPeriod holds push-up totals for one time period.
type RepPeriod struct {
	Period          string  `json:"period"`
	Sessions        int     `json:"sessions"`
	TotalReps       int     `json:"total_reps"`
	MaxReps         int     `json:"max_reps"`
	AvgReps         float64 `json:"avg_reps"`
	ActiveSeconds   float64 `json:"active_seconds"`
	MisalignedRatio float64 `json:"misaligned_ratio"`
}

// GetRepSummary returns push-up totals per period, newest first.
func (db *DB) GetRepSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]RepPeriod, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, started_at)::date AS period,
		        COUNT(*)::int,
		        COALESCE(SUM(reps), 0)::int,
		        COALESCE(MAX(reps), 0)::int,
		        COALESCE(AVG(reps), 0)::float8,
		        COALESCE(SUM(EXTRACT(EPOCH FROM ended_at - started_at)), 0)::float8,
		        COALESCE(SUM(frames_misaligned)::float8 / NULLIF(SUM(frames), 0), 0)::float8
		 FROM pushup_sessions
		 WHERE started_at >= $2 AND started_at < $3 AND user_id = $4
		 GROUP BY period
		 ORDER BY period DESC`,
		truncInterval(bucket), start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying rep summary: %w", err)
	}
	defer rows.Close()

	var result []RepPeriod
	for rows.Next() {
		var periodTime time.Time
		var p RepPeriod
		if err := rows.Scan(&periodTime, &p.Sessions, &p.TotalReps, &p.MaxReps, &p.AvgReps,
			&p.ActiveSeconds, &p.MisalignedRatio); err != nil {
			return nil, fmt.Errorf("scanning rep summary: %w", err)
		}
		p.Period = periodTime.Format("2006-01-02")
		result = append(result, p)
	}
	return result, rows.Err()
}

// truncInterval maps a bucket size to a date_trunc field.
func truncInterval(bucket string) string {
	switch bucket {
	case "1 day":
		return "day"
	case "1 week":
		return "week"
	case "1 month":
		return "month"
	default:
		return "day"
	}
}
