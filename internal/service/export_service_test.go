package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/export"
)

func exportFixture() *mockIssueRepo {
	owner := int64(1)
	repo := newMockIssueRepo()
	repo.issues[1] = &models.Issue{
		ID:           1,
		UserID:       &owner,
		Title:        "Pothole, deep",
		Description:  "Near the school",
		Category:     "Roads",
		LocationLat:  -6.2,
		LocationLng:  106.8,
		Images:       models.ImageList{"data:image/png;base64,AA==", "data:image/png;base64,AA=="},
		ContactPhone: strPtr("0812"),
		Status:       models.StatusOpen,
		Priority:     models.PriorityHigh,
		CreatedAt:    time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
	return repo
}

func TestExportServiceCSV(t *testing.T) {
	repo := exportFixture()
	svc := NewExportService(repo, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())

	file, err := svc.Export(context.Background(), "CSV", dto.ListIssuesQuery{Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, "issues-export.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Zero(t, repo.lastQuery.Limit)
	assert.Zero(t, repo.lastQuery.Offset)

	records, err := csv.NewReader(bytes.NewReader(file.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, issueExportHeaders, records[0])
	assert.Equal(t, "Pothole, deep", records[1][1])
	assert.Equal(t, "2 images", records[1][12])
	assert.Equal(t, "2026-04-01T08:00:00Z", records[1][10])
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(exportFixture(), nil, nil, nil)

	file, err := svc.Export(context.Background(), "pdf", dto.ListIssuesQuery{})
	require.NoError(t, err)
	assert.Equal(t, "issues-export.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(exportFixture(), nil, nil, nil)

	_, err := svc.Export(context.Background(), "xlsx", dto.ListIssuesQuery{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
