package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/citizen-safety-api/internal/models"
)

const userColumns = `id, email, password_hash, name, phone, role, email_verified, phone_verified, email_otp, email_otp_expires_at, phone_otp, phone_otp_expires_at, created_at, updated_at`

// UserRepository provides database access for accounts.
type UserRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, sb: builderFor(db)}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new user and stores the assigned id on it.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query, args, err := r.sb.Insert("users").
		Columns("email", "password_hash", "name", "phone", "role", "email_verified", "phone_verified", "created_at", "updated_at").
		Values(user.Email, user.PasswordHash, user.Name, user.Phone, user.Role, user.EmailVerified, user.PhoneVerified, user.CreatedAt, user.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create user: %w", err)
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&user.ID); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update writes the given column values and bumps updated_at.
func (r *UserRepository) Update(ctx context.Context, id int64, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	set := make(map[string]interface{}, len(changes)+1)
	for k, v := range changes {
		set[k] = v
	}
	set["updated_at"] = time.Now().UTC()

	query, args, err := r.sb.Update("users").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update user: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetOTP stores (or clears, with nil values) the pending code for a channel.
func (r *UserRepository) SetOTP(ctx context.Context, id int64, channel models.OTPChannel, code *string, expiresAt *time.Time) error {
	codeCol, expCol := otpColumns(channel)
	return r.Update(ctx, id, map[string]interface{}{codeCol: code, expCol: expiresAt})
}

// MarkVerified flags the channel as verified and consumes its code.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64, channel models.OTPChannel) error {
	codeCol, expCol := otpColumns(channel)
	verifiedCol := "email_verified"
	if channel == models.ChannelPhone {
		verifiedCol = "phone_verified"
	}
	return r.Update(ctx, id, map[string]interface{}{verifiedCol: true, codeCol: nil, expCol: nil})
}

// DeleteCascade removes the user's issues, push tokens and finally the user in
// one transaction.
func (r *UserRepository) DeleteCascade(ctx context.Context, id int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM issues WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("delete user issues: %w", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM push_tokens WHERE user_id = ?`), id); err != nil {
		return fmt.Errorf("delete user push tokens: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if n == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

func otpColumns(channel models.OTPChannel) (string, string) {
	if channel == models.ChannelPhone {
		return "phone_otp", "phone_otp_expires_at"
	}
	return "email_otp", "email_otp_expires_at"
}
