package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

var issueExportHeaders = []string{
	"ID", "Title", "Description", "Category", "Latitude", "Longitude", "Status",
	"Priority", "Contact Name", "Contact Phone", "Created At", "Notes", "Images",
}

type issueLister interface {
	List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders issue listings as downloadable documents.
type ExportService struct {
	issues issueLister
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(issues issueLister, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{issues: issues, csv: csv, pdf: pdf, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Export renders every issue matching the query filter, ignoring paging.
func (s *ExportService) Export(ctx context.Context, format string, q dto.ListIssuesQuery) (*dto.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	query, err := ParseIssueQuery(q)
	if err != nil {
		return nil, err
	}
	query.Limit, query.Offset = 0, 0

	issues, _, err := s.issues.List(ctx, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issues for export")
	}

	dataset := BuildIssueDataset(issues)
	var (
		body        []byte
		contentType string
	)
	switch format {
	case ExportFormatCSV:
		body, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	default:
		body, err = s.pdf.Render(dataset, "Issues Export")
		contentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("issues exported", zap.String("format", format), zap.Int("rows", len(issues)))
	return &dto.ExportFile{
		Filename:    "issues-export." + format,
		ContentType: contentType,
		Body:        body,
		GeneratedAt: s.now(),
	}, nil
}

// BuildIssueDataset flattens issues into export rows. Images are summarised
// by count rather than embedded.
func BuildIssueDataset(issues []models.Issue) export.Dataset {
	rows := make([]map[string]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, map[string]string{
			"ID":            fmt.Sprintf("%d", issue.ID),
			"Title":         issue.Title,
			"Description":   issue.Description,
			"Category":      issue.Category,
			"Latitude":      fmt.Sprintf("%.6f", issue.LocationLat),
			"Longitude":     fmt.Sprintf("%.6f", issue.LocationLng),
			"Status":        string(issue.Status),
			"Priority":      string(issue.Priority),
			"Contact Name":  deref(issue.ContactName),
			"Contact Phone": deref(issue.ContactPhone),
			"Created At":    issue.CreatedAt.UTC().Format(time.RFC3339),
			"Notes":         deref(issue.Notes),
			"Images":        fmt.Sprintf("%d images", len(issue.Images)),
		})
	}
	return export.Dataset{Headers: issueExportHeaders, Rows: rows}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
