package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/pkg/jobs"
	"github.com/noah-isme/citizen-safety-api/pkg/notify"
)

const jobTypeStatusChanged = "issue_status_changed"

type pushTokenLister interface {
	FindByUserID(ctx context.Context, userID int64) ([]models.PushToken, error)
}

// NotificationDispatcher turns status change events into push messages on a
// background worker pool. Delivery failures never reach the request that
// caused the change.
type NotificationDispatcher struct {
	queue   *jobs.Queue
	tokens  pushTokenLister
	sender  notify.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationDispatcher wires the dispatcher onto a job queue.
func NewNotificationDispatcher(tokens pushTokenLister, sender notify.Sender, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	d := &NotificationDispatcher{tokens: tokens, sender: sender, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("notifications", d.handle, cfg)
	return d
}

// Start launches the workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains buffered events and stops the workers.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// Publish schedules notifications for a status change without blocking.
// Ownerless issues have nobody to notify.
func (d *NotificationDispatcher) Publish(change models.StatusChanged) {
	if change.OwnerID == nil {
		d.metrics.RecordNotification("skipped")
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("issue-%d-%s", change.IssueID, change.NewStatus),
		Type:    jobTypeStatusChanged,
		Payload: change,
	}
	if err := d.queue.TryEnqueue(job); err != nil {
		d.metrics.RecordNotification("dropped")
		if errors.Is(err, jobs.ErrQueueFull) {
			d.logger.Warn("notification queue full, dropping event", zap.Int64("issue_id", change.IssueID))
			return
		}
		d.logger.Warn("failed to enqueue notification", zap.Int64("issue_id", change.IssueID), zap.Error(err))
	}
}

// handle resolves the owner's devices and sends to each. Only a failed token
// lookup is retried so devices that already received the message are not hit twice.
func (d *NotificationDispatcher) handle(ctx context.Context, job jobs.Job) error {
	change, ok := job.Payload.(models.StatusChanged)
	if !ok || change.OwnerID == nil {
		return nil
	}

	tokens, err := d.tokens.FindByUserID(ctx, *change.OwnerID)
	if err != nil {
		return fmt.Errorf("load push tokens for user %d: %w", *change.OwnerID, err)
	}
	if len(tokens) == 0 {
		d.metrics.RecordNotification("skipped")
		return nil
	}

	title, body := StatusMessage(change)
	for _, token := range tokens {
		msg := notify.Message{
			Token:    token.Token,
			Platform: token.Platform,
			Title:    title,
			Body:     body,
			Data: map[string]string{
				"issue_id": strconv.FormatInt(change.IssueID, 10),
				"status":   string(change.NewStatus),
			},
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.metrics.RecordNotification("failed")
			d.logger.Warn("push notification failed", zap.Int64("issue_id", change.IssueID), zap.String("platform", token.Platform), zap.Error(err))
			continue
		}
		d.metrics.RecordNotification("sent")
	}
	return nil
}

// StatusMessage renders the notification text for a status change.
func StatusMessage(change models.StatusChanged) (string, string) {
	title := "Issue Update: " + change.Title
	switch change.NewStatus {
	case models.StatusOpen:
		return title, "Your issue has been opened"
	case models.StatusInProgress:
		return title, "Your issue is now in progress"
	case models.StatusResolved:
		return title, "Your issue has been resolved!"
	default:
		return title, fmt.Sprintf("Your issue status changed to %s", change.NewStatus)
	}
}
