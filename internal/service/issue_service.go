package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/s2"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/internal/repository"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type issueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	FindByID(ctx context.Context, id int64) (*models.Issue, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Issue, error)
	List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error)
	Update(ctx context.Context, id int64, changes map[string]interface{}) error
}

// IssueConfig tunes issue validation.
type IssueConfig struct {
	MaxImages int
}

// IssueService implements the issue store use cases.
type IssueService struct {
	repo      issueRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cfg       IssueConfig
	now       func() time.Time
}

// NewIssueService constructs the issue service.
func NewIssueService(repo issueRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cfg IssueConfig) *IssueService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 3
	}
	return &IssueService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new issue with status open. When idempotencyKey matches an
// earlier submission the stored issue is returned and Created is false.
func (s *IssueService) Create(ctx context.Context, req dto.CreateIssueRequest, ownerID *int64, idempotencyKey string) (*dto.CreateIssueResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title, description, category and location are required")
	}
	if !validLocation(*req.LocationLat, *req.LocationLng) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location must be a valid latitude/longitude pair")
	}
	if len(req.Images) > s.cfg.MaxImages {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a maximum of %d images is allowed", s.cfg.MaxImages))
	}

	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, key)
		if err == nil {
			return &dto.CreateIssueResult{Issue: existing, Created: false}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check idempotency key")
		}
	}

	now := s.now()
	issue := &models.Issue{
		UserID:       ownerID,
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		LocationLat:  *req.LocationLat,
		LocationLng:  *req.LocationLng,
		Images:       models.ImageList(req.Images),
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Status:       models.StatusOpen,
		Priority:     models.PriorityMedium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if issue.Images == nil {
		issue.Images = models.ImageList{}
	}
	if key != "" {
		issue.IdempotencyKey = &key
	}

	if err := s.repo.Create(ctx, issue); err != nil {
		if key != "" && repository.IsUniqueViolation(err) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, key)
			if findErr == nil {
				return &dto.CreateIssueResult{Issue: existing, Created: false}, nil
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create issue")
	}

	s.metrics.IssueCreated(issue.Category)
	s.logger.Info("issue created", zap.Int64("issue_id", issue.ID), zap.String("category", issue.Category))
	return &dto.CreateIssueResult{Issue: issue, Created: true}, nil
}

// Get returns a single issue.
func (s *IssueService) Get(ctx context.Context, id int64) (*models.Issue, error) {
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load issue")
	}
	return issue, nil
}

// List returns one page of the filtered, ordered issue set.
func (s *IssueService) List(ctx context.Context, q dto.ListIssuesQuery) (*dto.IssueList, error) {
	query, err := ParseIssueQuery(q)
	if err != nil {
		return nil, err
	}
	issues, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list issues")
	}
	return &dto.IssueList{Issues: issues, TotalCount: total, Limit: query.Limit, Offset: query.Offset}, nil
}

// ParseIssueQuery validates raw listing parameters.
func ParseIssueQuery(q dto.ListIssuesQuery) (models.IssueQuery, error) {
	var out models.IssueQuery

	out.Filter.Category = strings.TrimSpace(q.Category)
	out.Filter.Search = strings.TrimSpace(q.Search)
	out.Filter.UserID = q.UserID

	if q.Status != "" {
		status := models.IssueStatus(q.Status)
		if !status.Valid() {
			return out, appErrors.Clone(appErrors.ErrValidation, "status must be one of open, in_progress, resolved")
		}
		out.Filter.Status = status
	}
	if q.Priority != "" {
		priority := models.IssuePriority(q.Priority)
		if !priority.Valid() {
			return out, appErrors.Clone(appErrors.ErrValidation, "priority must be one of low, medium, high, critical")
		}
		out.Filter.Priority = priority
	}

	sort, ok := models.ParseIssueSort(q.Sort)
	if !ok {
		return out, appErrors.Clone(appErrors.ErrValidation, "sort must be one of newest, oldest, title, status")
	}
	out.Sort = sort

	if q.StartDate != "" {
		start, err := parseDate(q.StartDate)
		if err != nil {
			return out, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start_date")
		}
		out.Filter.CreatedFrom = &start
	}
	if q.EndDate != "" {
		end, err := parseDate(q.EndDate)
		if err != nil {
			return out, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end_date")
		}
		out.Filter.CreatedTo = &end
	}

	if q.Limit < 0 || q.Offset < 0 {
		return out, appErrors.Clone(appErrors.ErrValidation, "limit and offset must not be negative")
	}
	out.Limit = q.Limit
	out.Offset = q.Offset
	return out, nil
}

// Patch routes a raw PATCH body to the owner or admin edit path.
func (s *IssueService) Patch(ctx context.Context, id int64, req dto.PatchIssueRequest, actor models.Actor) (*dto.UpdateIssueResult, error) {
	owner, admin := req.HasOwnerFields(), req.HasAdminFields()
	switch {
	case owner && admin:
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot mix owner and admin fields")
	case owner:
		if actor.UserID == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the issue owner can edit these fields")
		}
		issue, err := s.UpdateAsOwner(ctx, id, req.OwnerEdit(), *actor.UserID)
		if err != nil {
			return nil, err
		}
		return &dto.UpdateIssueResult{Issue: issue}, nil
	case admin:
		return s.UpdateAsAdmin(ctx, id, req.AdminEdit(), actor.IsAdmin)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "no valid fields to update")
	}
}

// UpdateAsOwner applies an owner edit. Ownerless issues cannot be edited this way.
func (s *IssueService) UpdateAsOwner(ctx context.Context, id int64, req dto.OwnerEditRequest, actingUserID int64) (*models.Issue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue update payload")
	}
	if req.Images != nil && len(*req.Images) > s.cfg.MaxImages {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a maximum of %d images is allowed", s.cfg.MaxImages))
	}

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !issue.OwnedBy(actingUserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the issue owner can edit these fields")
	}

	changes := map[string]interface{}{}
	if req.Title != nil {
		issue.Title = strings.TrimSpace(*req.Title)
		changes["title"] = issue.Title
	}
	if req.Description != nil {
		issue.Description = strings.TrimSpace(*req.Description)
		changes["description"] = issue.Description
	}
	if req.Category != nil {
		issue.Category = strings.TrimSpace(*req.Category)
		changes["category"] = issue.Category
	}
	if req.Images != nil {
		issue.Images = models.ImageList(*req.Images)
		if issue.Images == nil {
			issue.Images = models.ImageList{}
		}
		changes["images"] = issue.Images
	}
	if req.ContactName != nil {
		issue.ContactName = req.ContactName
		changes["contact_name"] = *req.ContactName
	}
	if req.ContactPhone != nil {
		issue.ContactPhone = req.ContactPhone
		changes["contact_phone"] = *req.ContactPhone
	}
	if issue.Title == "" || issue.Description == "" || issue.Category == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title, description and category must not be empty")
	}

	if err := s.write(ctx, issue, changes); err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateAsAdmin applies a triage edit. A StatusChanged event is returned when
// the status actually moved.
func (s *IssueService) UpdateAsAdmin(ctx context.Context, id int64, req dto.AdminEditRequest, isAdmin bool) (*dto.UpdateIssueResult, error) {
	if !isAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change status, notes or priority")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of open, in_progress, resolved")
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be one of low, medium, high, critical")
	}

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changes := map[string]interface{}{}
	var change *models.StatusChanged
	if req.Status != nil && *req.Status != issue.Status {
		issue.Status = *req.Status
		changes["status"] = issue.Status
		if issue.Status == models.StatusResolved {
			issue.ResolvedAt = &now
			changes["resolved_at"] = now
		} else {
			issue.ResolvedAt = nil
			changes["resolved_at"] = nil
		}
		change = &models.StatusChanged{IssueID: issue.ID, Title: issue.Title, NewStatus: issue.Status, OwnerID: issue.UserID}
	}
	if req.Notes != nil {
		issue.Notes = req.Notes
		changes["notes"] = *req.Notes
	}
	if req.Priority != nil {
		issue.Priority = *req.Priority
		changes["priority"] = issue.Priority
	}

	if err := s.write(ctx, issue, changes); err != nil {
		return nil, err
	}
	if change != nil {
		s.metrics.IssueStatusChanged(string(change.NewStatus))
		s.logger.Info("issue status changed", zap.Int64("issue_id", issue.ID), zap.String("status", string(change.NewStatus)))
	}
	return &dto.UpdateIssueResult{Issue: issue, Change: change}, nil
}

func (s *IssueService) write(ctx context.Context, issue *models.Issue, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	issue.UpdatedAt = s.now()
	changes["updated_at"] = issue.UpdatedAt
	if err := s.repo.Update(ctx, issue.ID, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "issue not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update issue")
	}
	return nil
}

// Image decodes the index-th embedded image of an issue.
func (s *IssueService) Image(ctx context.Context, id int64, index int) (*dto.IssueImage, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(issue.Images) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	img, ok := decodeDataURI(issue.Images[index])
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "image not found")
	}
	return img, nil
}

// decodeDataURI parses data:<mime>;base64,<payload>. A missing mime defaults to image/jpeg.
func decodeDataURI(raw string) (*dto.IssueImage, bool) {
	if !strings.HasPrefix(raw, "data:") {
		return nil, false
	}
	header, payload, found := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !found || payload == "" {
		return nil, false
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, false
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return &dto.IssueImage{ContentType: mime, Data: data}, true
}

func validLocation(lat, lng float64) bool {
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
