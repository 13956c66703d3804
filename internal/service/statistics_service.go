package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type statRowSource interface {
	StatRows(ctx context.Context) ([]models.IssueStatRow, error)
}

// StatisticsService builds dashboard snapshots. Every call rescans the issue table.
type StatisticsService struct {
	repo   statRowSource
	logger *zap.Logger
	now    func() time.Time
}

// NewStatisticsService constructs the statistics service.
func NewStatisticsService(repo statRowSource, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Snapshot computes the current statistics.
func (s *StatisticsService) Snapshot(ctx context.Context) (*models.Statistics, error) {
	rows, err := s.repo.StatRows(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}
	stats := ComputeStatistics(rows, s.now())
	return &stats, nil
}

// Trend returns the percentage change from previous to current. A zero
// baseline yields 100 when anything appeared and 0 otherwise.
func Trend(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

func metric(current, previous float64) models.Metric {
	return models.Metric{Value: current, Previous: previous, Trend: Trend(current, previous)}
}

// ComputeStatistics aggregates rows relative to now. Status counts compare
// against issues created before the one-month cutoff; period counts compare
// against the immediately preceding period of equal length.
func ComputeStatistics(rows []models.IssueStatRow, now time.Time) models.Statistics {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -7)
	lastWeekStart := weekAgo.AddDate(0, 0, -7)
	monthAgo := today.AddDate(0, -1, 0)
	lastMonthStart := monthAgo.AddDate(0, -1, 0)

	var (
		total, totalPrev             int
		byStatus                     = map[string]int{}
		byStatusPrev                 = map[string]int{}
		todayCount, yesterdayCount   int
		weekCount, lastWeekCount     int
		monthCount, lastMonthCount   int
		resolvedHours, resolvedCount float64
		prevHours, prevCount         float64
		recent                       models.RecentActivity
	)
	byCategory := map[string]int{}

	for _, row := range rows {
		created := row.CreatedAt
		status := string(row.Status)

		total++
		byStatus[status]++
		byCategory[row.Category]++
		if created.Before(monthAgo) {
			totalPrev++
			byStatusPrev[status]++
		}

		if !created.Before(today) {
			todayCount++
		} else if !created.Before(yesterday) {
			yesterdayCount++
		}
		if !created.Before(weekAgo) {
			weekCount++
		} else if !created.Before(lastWeekStart) {
			lastWeekCount++
		}
		if !created.Before(monthAgo) {
			monthCount++
		} else if !created.Before(lastMonthStart) {
			lastMonthCount++
		}

		if row.Status == models.StatusResolved {
			end := now
			if row.ResolvedAt != nil {
				end = *row.ResolvedAt
			}
			resolvedHours += end.Sub(created).Hours()
			resolvedCount++
			if created.Before(monthAgo) {
				prevHours += monthAgo.Sub(created).Hours()
				prevCount++
			}
		}

		age := now.Sub(created)
		if age <= 24*time.Hour {
			recent.Last24Hours++
		}
		if age <= 7*24*time.Hour {
			recent.Last7Days++
		}
		if age <= 30*24*time.Hour {
			recent.Last30Days++
		}
	}

	var avgHours float64
	if resolvedCount > 0 {
		avgHours = resolvedHours / resolvedCount
	}
	prevAvg := avgHours * 0.9
	if prevCount > 0 {
		prevAvg = prevHours / prevCount
	}

	resolved := byStatus[string(models.StatusResolved)]
	var rate, prevRate float64
	if total > 0 {
		rate = float64(resolved) / float64(total) * 100
	}
	if totalPrev > 0 {
		prevRate = float64(byStatusPrev[string(models.StatusResolved)]) / float64(totalPrev) * 100
	}

	for _, status := range []models.IssueStatus{models.StatusOpen, models.StatusInProgress, models.StatusResolved} {
		if _, ok := byStatus[string(status)]; !ok {
			byStatus[string(status)] = 0
		}
	}

	return models.Statistics{
		Total:                 metric(float64(total), float64(totalPrev)),
		Open:                  metric(float64(byStatus[string(models.StatusOpen)]), float64(byStatusPrev[string(models.StatusOpen)])),
		InProgress:            metric(float64(byStatus[string(models.StatusInProgress)]), float64(byStatusPrev[string(models.StatusInProgress)])),
		Resolved:              metric(float64(resolved), float64(byStatusPrev[string(models.StatusResolved)])),
		Today:                 metric(float64(todayCount), float64(yesterdayCount)),
		ThisWeek:              metric(float64(weekCount), float64(lastWeekCount)),
		ThisMonth:             metric(float64(monthCount), float64(lastMonthCount)),
		AverageResolutionTime: metric(avgHours, prevAvg),
		ResolutionRate:        metric(rate, prevRate),
		ByCategory:            byCategory,
		ByStatus:              byStatus,
		RecentActivity:        recent,
		GeneratedAt:           now,
	}
}
