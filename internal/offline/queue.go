package offline

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/dto"
	"github.com/noah-isme/citizen-safety-api/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// QueuedIssue is a submission waiting for connectivity. The idempotency key is
// fixed at enqueue time and sent with every attempt.
type QueuedIssue struct {
	ID             string                 `json:"id"`
	Request        dto.CreateIssueRequest `json:"request"`
	IdempotencyKey string                 `json:"idempotency_key"`
	QueuedAt       time.Time              `json:"queued_at"`
}

type queueRow struct {
	ID             string    `db:"id"`
	Payload        string    `db:"payload"`
	IdempotencyKey string    `db:"idempotency_key"`
	QueuedAt       time.Time `db:"queued_at"`
}

// Queue is the on-device store of pending submissions, backed by SQLite.
type Queue struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	logger *zap.Logger
	now    func() time.Time
}

// OpenQueue opens (creating if needed) the queue database at path.
func OpenQueue(ctx context.Context, path string, logger *zap.Logger) (*Queue, error) {
	db, err := database.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	q, err := NewQueue(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// NewQueue wraps an existing connection and applies the queue schema.
func NewQueue(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open queue migrations: %w", err)
	}
	if err := database.MigrateFS(ctx, db, goose.DialectSQLite3, sub); err != nil {
		return nil, fmt.Errorf("migrate offline queue: %w", err)
	}
	return &Queue{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue persists req and returns its local id. It never touches the network.
// key is the idempotency key every later attempt will send; pass the key of a
// failed direct attempt so the server can recognise a replay. An empty key gets
// a fresh one.
func (q *Queue) Enqueue(ctx context.Context, req dto.CreateIssueRequest, key string) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode queued issue: %w", err)
	}

	if key == "" {
		key = uuid.NewString()
	}

	now := q.now()
	id := fmt.Sprintf("offline_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	query, args, err := q.sb.Insert("offline_queue").
		Columns("id", "payload", "idempotency_key", "queued_at").
		Values(id, string(payload), key, now).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build enqueue: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("enqueue issue: %w", err)
	}

	q.logger.Info("issue queued for sync", zap.String("queue_id", id))
	return id, nil
}

// List returns every pending item in enqueue order. Rows whose payload cannot
// be decoded are moved to offline_dead_letter, so they never block a drain and
// Len only counts items List can return.
func (q *Queue) List(ctx context.Context) ([]QueuedIssue, error) {
	query, args, err := q.sb.Select("id", "payload", "idempotency_key", "queued_at").
		From("offline_queue").
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list queue: %w", err)
	}

	var rows []queueRow
	if err := q.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	items := make([]QueuedIssue, 0, len(rows))
	for _, row := range rows {
		var req dto.CreateIssueRequest
		if err := json.Unmarshal([]byte(row.Payload), &req); err != nil {
			q.logger.Warn("moving unreadable queued issue to dead letter", zap.String("queue_id", row.ID), zap.Error(err))
			if err := q.deadLetter(ctx, row, err.Error()); err != nil {
				return nil, err
			}
			continue
		}
		items = append(items, QueuedIssue{
			ID:             row.ID,
			Request:        req,
			IdempotencyKey: row.IdempotencyKey,
			QueuedAt:       row.QueuedAt,
		})
	}
	return items, nil
}

func (q *Queue) deadLetter(ctx context.Context, row queueRow, reason string) error {
	insert, insertArgs, err := q.sb.Insert("offline_dead_letter").
		Columns("id", "payload", "idempotency_key", "queued_at", "reason", "moved_at").
		Values(row.ID, row.Payload, row.IdempotencyKey, row.QueuedAt, reason, q.now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build dead letter insert: %w", err)
	}
	remove, removeArgs, err := q.sb.Delete("offline_queue").Where(sq.Eq{"id": row.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build dead letter remove: %w", err)
	}

	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dead letter: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("dead letter queued issue: %w", err)
	}
	if _, err := tx.ExecContext(ctx, remove, removeArgs...); err != nil {
		return fmt.Errorf("dead letter queued issue: %w", err)
	}
	return tx.Commit()
}

// DeadLetters counts items set aside because they could not be decoded.
func (q *Queue) DeadLetters(ctx context.Context) (int, error) {
	query, args, err := q.sb.Select("COUNT(*)").From("offline_dead_letter").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count dead letters: %w", err)
	}
	var n int
	if err := q.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Remove deletes an item. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	query, args, err := q.sb.Delete("offline_queue").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build remove queued issue: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("remove queued issue: %w", err)
	}
	return nil
}

// Len counts pending items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	query, args, err := q.sb.Select("COUNT(*)").From("offline_queue").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count queue: %w", err)
	}
	var n int
	if err := q.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// Clear drops every pending item.
func (q *Queue) Clear(ctx context.Context) error {
	query, args, err := q.sb.Delete("offline_queue").ToSql()
	if err != nil {
		return fmt.Errorf("build clear queue: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}
