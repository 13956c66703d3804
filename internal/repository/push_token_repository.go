package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/citizen-safety-api/internal/models"
)

// PushTokenRepository stores device registrations.
type PushTokenRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewPushTokenRepository creates a new instance of PushTokenRepository.
func NewPushTokenRepository(db *sqlx.DB) *PushTokenRepository {
	return &PushTokenRepository{db: db, sb: builderFor(db)}
}

// Upsert registers a token. Registering the same (user, token) pair again
// refreshes its platform and timestamp.
func (r *PushTokenRepository) Upsert(ctx context.Context, token *models.PushToken) error {
	now := time.Now().UTC()
	token.CreatedAt = now
	token.UpdatedAt = now

	query, args, err := r.sb.Insert("push_tokens").
		Columns("user_id", "token", "platform", "created_at", "updated_at").
		Values(token.UserID, token.Token, token.Platform, token.CreatedAt, token.UpdatedAt).
		Suffix("ON CONFLICT (user_id, token) DO UPDATE SET platform = excluded.platform, updated_at = excluded.updated_at RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert push token: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&token.ID, &token.CreatedAt); err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

// FindByUserID lists the tokens registered by a user.
func (r *PushTokenRepository) FindByUserID(ctx context.Context, userID int64) ([]models.PushToken, error) {
	query, args, err := r.sb.Select("id", "user_id", "token", "platform", "created_at", "updated_at").
		From("push_tokens").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find push tokens: %w", err)
	}
	tokens := []models.PushToken{}
	if err := r.db.SelectContext(ctx, &tokens, query, args...); err != nil {
		return nil, fmt.Errorf("find push tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes a registration. Removing an unknown token is not an error.
func (r *PushTokenRepository) Delete(ctx context.Context, userID int64, token string) error {
	query, args, err := r.sb.Delete("push_tokens").Where(sq.Eq{"user_id": userID, "token": token}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete push token: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	return nil
}
