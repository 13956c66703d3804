package offline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/internal/models"
)

type issueSubmitter interface {
	CreateIssue(ctx context.Context, req dto.CreateIssueRequest, idempotencyKey string) (*models.Issue, error)
}

type connectivity interface {
	IsOnline(ctx context.Context) bool
}

type pendingStore interface {
	List(ctx context.Context) ([]QueuedIssue, error)
	Remove(ctx context.Context, id string) error
}

// SyncResult summarises one drain pass.
type SyncResult struct {
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

// Engine replays queued submissions once the device is online.
type Engine struct {
	queue       pendingStore
	probe       connectivity
	api         issueSubmitter
	itemTimeout time.Duration
	logger      *zap.Logger
	draining    atomic.Bool
}

// NewEngine wires the queue, connectivity probe and API client together.
func NewEngine(queue pendingStore, probe connectivity, api issueSubmitter, itemTimeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if itemTimeout <= 0 {
		itemTimeout = 15 * time.Second
	}
	return &Engine{queue: queue, probe: probe, api: api, itemTimeout: itemTimeout, logger: logger}
}

// Drain submits every queued item in enqueue order. Successful items are
// removed; failed ones stay queued and do not stop the pass. A call made while
// another drain is running returns immediately with Skipped set.
func (e *Engine) Drain(ctx context.Context) (SyncResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return SyncResult{Skipped: true}, nil
	}
	defer e.draining.Store(false)

	if !e.probe.IsOnline(ctx) {
		e.logger.Debug("offline, sync postponed")
		return SyncResult{}, nil
	}

	items, err := e.queue.List(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if e.submit(ctx, item) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	if len(items) > 0 {
		e.logger.Info("offline queue drained",
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (e *Engine) submit(ctx context.Context, item QueuedIssue) bool {
	itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
	defer cancel()

	issue, err := e.api.CreateIssue(itemCtx, item.Request, item.IdempotencyKey)
	if err != nil {
		e.logger.Warn("queued issue not synced", zap.String("queue_id", item.ID), zap.Error(err))
		return false
	}
	if err := e.queue.Remove(ctx, item.ID); err != nil {
		// The server already has it; the idempotency key makes the next attempt a replay.
		e.logger.Error("synced issue could not be dequeued", zap.String("queue_id", item.ID), zap.Error(err))
		return false
	}
	e.logger.Info("queued issue synced", zap.String("queue_id", item.ID), zap.Int64("issue_id", issue.ID))
	return true
}

// OnResume drains when the app returns to the foreground with a signed-in user.
func (e *Engine) OnResume(ctx context.Context, authenticated bool) (SyncResult, error) {
	if !authenticated {
		return SyncResult{}, nil
	}
	return e.Drain(ctx)
}

// Run drains on every tick and on every trigger until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration, triggers <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-triggers:
		}
		if _, err := e.Drain(ctx); err != nil {
			e.logger.Error("sync failed", zap.Error(err))
		}
	}
}
