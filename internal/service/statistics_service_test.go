package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type stubStatRows struct {
	rows []models.IssueStatRow
	err  error
}

func (s stubStatRows) StatRows(ctx context.Context) ([]models.IssueStatRow, error) {
	return s.rows, s.err
}

func day(month time.Month, d, hour int) time.Time {
	return time.Date(2026, month, d, hour, 0, 0, 0, time.UTC)
}

func TestTrend(t *testing.T) {
	assert.Equal(t, 100.0, Trend(5, 0))
	assert.Equal(t, 0.0, Trend(0, 0))
	assert.Equal(t, 50.0, Trend(15, 10))
	assert.Equal(t, -100.0, Trend(0, 4))
}

func TestComputeStatistics(t *testing.T) {
	now := day(time.March, 15, 12)
	resolvedAt := day(time.March, 6, 0)
	rows := []models.IssueStatRow{
		{Status: models.StatusOpen, Category: "Roads", CreatedAt: day(time.March, 15, 8)},
		{Status: models.StatusInProgress, Category: "Roads", CreatedAt: day(time.March, 14, 10)},
		{Status: models.StatusResolved, Category: "Lighting", CreatedAt: day(time.March, 5, 0), ResolvedAt: &resolvedAt},
		{Status: models.StatusResolved, Category: "Lighting", CreatedAt: day(time.February, 10, 0)},
		{Status: models.StatusOpen, Category: "Roads", CreatedAt: day(time.January, 1, 0)},
	}

	stats := ComputeStatistics(rows, now)

	assert.Equal(t, models.Metric{Value: 5, Previous: 2, Trend: 150}, stats.Total)
	assert.Equal(t, models.Metric{Value: 2, Previous: 1, Trend: 100}, stats.Open)
	assert.Equal(t, models.Metric{Value: 1, Previous: 0, Trend: 100}, stats.InProgress)
	assert.Equal(t, models.Metric{Value: 2, Previous: 1, Trend: 100}, stats.Resolved)
	assert.Equal(t, models.Metric{Value: 1, Previous: 1, Trend: 0}, stats.Today)
	assert.Equal(t, models.Metric{Value: 2, Previous: 1, Trend: 100}, stats.ThisWeek)
	assert.Equal(t, models.Metric{Value: 3, Previous: 1, Trend: 200}, stats.ThisMonth)

	assert.InDelta(t, 414, stats.AverageResolutionTime.Value, 1e-9)
	assert.InDelta(t, 120, stats.AverageResolutionTime.Previous, 1e-9)
	assert.InDelta(t, 245, stats.AverageResolutionTime.Trend, 1e-9)

	assert.InDelta(t, 40, stats.ResolutionRate.Value, 1e-9)
	assert.InDelta(t, 50, stats.ResolutionRate.Previous, 1e-9)
	assert.InDelta(t, -20, stats.ResolutionRate.Trend, 1e-9)

	assert.Equal(t, map[string]int{"Roads": 3, "Lighting": 2}, stats.ByCategory)
	assert.Equal(t, map[string]int{"open": 2, "in_progress": 1, "resolved": 2}, stats.ByStatus)
	assert.Equal(t, models.RecentActivity{Last24Hours: 1, Last7Days: 2, Last30Days: 3}, stats.RecentActivity)
	assert.Equal(t, now, stats.GeneratedAt)
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(nil, day(time.March, 15, 12))

	assert.Equal(t, models.Metric{}, stats.Total)
	assert.Equal(t, models.Metric{}, stats.AverageResolutionTime)
	assert.Equal(t, models.Metric{}, stats.ResolutionRate)
	assert.Equal(t, map[string]int{"open": 0, "in_progress": 0, "resolved": 0}, stats.ByStatus)
	assert.Empty(t, stats.ByCategory)
}

func TestComputeStatisticsPreviousAverageFallback(t *testing.T) {
	now := day(time.March, 15, 12)
	resolvedAt := day(time.March, 11, 0)
	rows := []models.IssueStatRow{
		{Status: models.StatusResolved, Category: "Roads", CreatedAt: day(time.March, 10, 0), ResolvedAt: &resolvedAt},
	}

	stats := ComputeStatistics(rows, now)
	assert.InDelta(t, 24, stats.AverageResolutionTime.Value, 1e-9)
	assert.InDelta(t, 21.6, stats.AverageResolutionTime.Previous, 1e-9)
}

func TestStatisticsServiceSnapshotWrapsErrors(t *testing.T) {
	svc := NewStatisticsService(stubStatRows{err: errors.New("db down")}, zap.NewNop())
	_, err := svc.Snapshot(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestStatisticsServiceSnapshot(t *testing.T) {
	now := day(time.March, 15, 12)
	svc := NewStatisticsService(stubStatRows{rows: []models.IssueStatRow{
		{Status: models.StatusOpen, Category: "Roads", CreatedAt: day(time.March, 15, 1)},
	}}, nil)
	svc.now = func() time.Time { return now }

	stats, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.Total.Value)
	assert.Equal(t, 1.0, stats.Today.Value)
}
