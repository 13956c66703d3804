package offline

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/s2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

type issueQueue interface {
	Enqueue(ctx context.Context, req dto.CreateIssueRequest, idempotencyKey string) (string, error)
}

// SubmitResult tells the caller whether the issue reached the server or was
// queued for a later sync.
type SubmitResult struct {
	Issue   *models.Issue `json:"issue,omitempty"`
	QueueID string        `json:"queue_id,omitempty"`
	Queued  bool          `json:"queued"`
}

// Reporter is the client-side submit path.
type Reporter struct {
	api       issueSubmitter
	probe     connectivity
	queue     issueQueue
	validator *validator.Validate
	maxImages int
	logger    *zap.Logger
}

// NewReporter constructs a Reporter. maxImages mirrors the server's per-issue
// image limit and defaults to 3.
func NewReporter(api issueSubmitter, probe connectivity, queue issueQueue, validate *validator.Validate, maxImages int, logger *zap.Logger) *Reporter {
	if validate == nil {
		validate = validator.New()
	}
	if maxImages <= 0 {
		maxImages = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{api: api, probe: probe, queue: queue, validator: validate, maxImages: maxImages, logger: logger}
}

// Submit sends req when online and queues it otherwise. Validation failures,
// local or from the server, are returned and never queued. Transient failures
// are queued; any other error is returned.
func (r *Reporter) Submit(ctx context.Context, req dto.CreateIssueRequest) (*SubmitResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)

	if err := r.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid issue payload")
	}
	if !s2.LatLngFromDegrees(*req.LocationLat, *req.LocationLng).IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is out of range")
	}
	if len(req.Images) > r.maxImages {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a maximum of %d images is allowed", r.maxImages))
	}

	// One key covers the direct attempt and every replay from the queue.
	key := uuid.NewString()
	if !r.probe.IsOnline(ctx) {
		return r.enqueue(ctx, req, key)
	}

	issue, err := r.api.CreateIssue(ctx, req, key)
	if err == nil {
		return &SubmitResult{Issue: issue}, nil
	}
	if appErrors.IsTransient(err) {
		r.logger.Warn("submission failed, queuing", zap.Error(err))
		return r.enqueue(ctx, req, key)
	}
	return nil, err
}

func (r *Reporter) enqueue(ctx context.Context, req dto.CreateIssueRequest, key string) (*SubmitResult, error) {
	id, err := r.queue.Enqueue(ctx, req, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue issue")
	}
	return &SubmitResult{QueueID: id, Queued: true}, nil
}
