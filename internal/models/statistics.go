package models

import "time"

// Metric pairs a current value with the preceding period for trend display.
type Metric struct {
	Value    float64 `json:"value"`
	Previous float64 `json:"previous"`
	Trend    float64 `json:"trend"`
}

// RecentActivity counts issues created in rolling windows ending now.
type RecentActivity struct {
	Last24Hours int `json:"last_24_hours"`
	Last7Days   int `json:"last_7_days"`
	Last30Days  int `json:"last_30_days"`
}

// Statistics is a derived dashboard snapshot. It is never stored.
type Statistics struct {
	Total                 Metric         `json:"total"`
	Open                  Metric         `json:"open"`
	InProgress            Metric         `json:"in_progress"`
	Resolved              Metric         `json:"resolved"`
	Today                 Metric         `json:"today"`
	ThisWeek              Metric         `json:"this_week"`
	ThisMonth             Metric         `json:"this_month"`
	AverageResolutionTime Metric         `json:"average_resolution_time"`
	ResolutionRate        Metric         `json:"resolution_rate"`
	ByCategory            map[string]int `json:"by_category"`
	ByStatus              map[string]int `json:"by_status"`
	RecentActivity        RecentActivity `json:"recent_activity"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// IssueStatRow is the projection scanned for aggregation.
type IssueStatRow struct {
	Status     IssueStatus `db:"status"`
	Category   string      `db:"category"`
	CreatedAt  time.Time   `db:"created_at"`
	ResolvedAt *time.Time  `db:"resolved_at"`
}
