package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/internal/service"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/response"
)

// IdempotencyHeader carries the client-generated key that deduplicates submissions.
const IdempotencyHeader = "Idempotency-Key"

type issueService interface {
	Create(ctx context.Context, req dto.CreateIssueRequest, ownerID *int64, idempotencyKey string) (*dto.CreateIssueResult, error)
	Get(ctx context.Context, id int64) (*models.Issue, error)
	List(ctx context.Context, q dto.ListIssuesQuery) (*dto.IssueList, error)
	Patch(ctx context.Context, id int64, req dto.PatchIssueRequest, actor models.Actor) (*dto.UpdateIssueResult, error)
	Image(ctx context.Context, id int64, index int) (*dto.IssueImage, error)
}

type statisticsService interface {
	Snapshot(ctx context.Context) (*models.Statistics, error)
}

type issueExporter interface {
	Export(ctx context.Context, format string, q dto.ListIssuesQuery) (*dto.ExportFile, error)
}

type statusChangeNotifier interface {
	Publish(change models.StatusChanged)
}

// IssueHandler exposes issue endpoints.
type IssueHandler struct {
	issues   issueService
	stats    statisticsService
	exporter issueExporter
	notifier statusChangeNotifier
}

// NewIssueHandler constructs an issue handler. notifier may be nil.
func NewIssueHandler(issues issueService, stats statisticsService, exporter issueExporter, notifier statusChangeNotifier) *IssueHandler {
	return &IssueHandler{issues: issues, stats: stats, exporter: exporter, notifier: notifier}
}

// List godoc
// @Summary List issues
// @Description Filter, sort and page issues
// @Tags Issues
// @Produce json
// @Param category query string false "Category"
// @Param status query string false "open, in_progress or resolved"
// @Param priority query string false "low, medium, high or critical"
// @Param search query string false "Substring of title, description or category"
// @Param user_id query int false "Owner id"
// @Param start_date query string false "Created at or after (RFC3339 or YYYY-MM-DD)"
// @Param end_date query string false "Created before (RFC3339 or YYYY-MM-DD)"
// @Param sort query string false "newest, oldest, title or status"
// @Param limit query int false "Page size"
// @Param offset query int false "Rows to skip"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var q dto.ListIssuesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	res, err := h.issues.List(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res.Issues, &models.Pagination{Limit: res.Limit, Offset: res.Offset, TotalCount: res.TotalCount})
}

// Get godoc
// @Summary Get issue
// @Tags Issues
// @Produce json
// @Param id path int true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	issue, err := h.issues.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Create godoc
// @Summary Submit issue
// @Description Anonymous submissions are allowed. Repeating a request with the same Idempotency-Key returns the stored issue.
// @Tags Issues
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client generated deduplication key"
// @Param payload body dto.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	actor := actorFromContext(c)
	res, err := h.issues.Create(c.Request.Context(), req, actor.UserID, c.GetHeader(IdempotencyHeader))
	if err != nil {
		response.Error(c, err)
		return
	}

	if !res.Created {
		response.JSON(c, http.StatusOK, res.Issue, nil, map[string]interface{}{"idempotent_replay": true})
		return
	}
	response.Created(c, res.Issue)
}

// Patch godoc
// @Summary Update issue
// @Description Owners may change title, description, category, images and contact fields. Admins may change status, notes and priority. Mixing both sets is rejected.
// @Tags Issues
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Issue ID"
// @Param payload body dto.PatchIssueRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [patch]
func (h *IssueHandler) Patch(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.PatchIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	res, err := h.issues.Patch(c.Request.Context(), id, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Change != nil && h.notifier != nil {
		h.notifier.Publish(*res.Change)
	}
	response.JSON(c, http.StatusOK, res.Issue, nil)
}

// Image godoc
// @Summary Get issue image
// @Description Decodes the embedded data URI at the given position
// @Tags Issues
// @Produce octet-stream
// @Param id path int true "Issue ID"
// @Param index path int true "Image position, starting at 0"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/image/{index} [get]
func (h *IssueHandler) Image(c *gin.Context) {
	id, err := int64Param(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid index"))
		return
	}

	img, err := h.issues.Image(c.Request.Context(), id, index)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// Statistics godoc
// @Summary Issue statistics
// @Description Counts, period comparisons and resolution metrics computed on request
// @Tags Issues
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /issues/statistics [get]
func (h *IssueHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// ExportCSV godoc
// @Summary Export issues as CSV
// @Tags Issues
// @Produce text/csv
// @Security BearerAuth
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /issues/export.csv [get]
func (h *IssueHandler) ExportCSV(c *gin.Context) {
	h.export(c, service.ExportFormatCSV)
}

// ExportPDF godoc
// @Summary Export issues as PDF
// @Tags Issues
// @Produce application/pdf
// @Security BearerAuth
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /issues/export.pdf [get]
func (h *IssueHandler) ExportPDF(c *gin.Context) {
	h.export(c, service.ExportFormatPDF)
}

func (h *IssueHandler) export(c *gin.Context, format string) {
	var q dto.ListIssuesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	file, err := h.exporter.Export(c.Request.Context(), format, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
