package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/pkg/database"
)

var issueColumns = []string{
	"id", "user_id", "title", "description", "category", "location_lat", "location_lng",
	"images", "contact_name", "contact_phone", "status", "priority", "notes",
	"idempotency_key", "created_at", "updated_at", "resolved_at",
}

// IssueRepository persists issues.
type IssueRepository struct {
	db    *sqlx.DB
	sb    sq.StatementBuilderType
	lower string
}

// NewIssueRepository creates a new instance of IssueRepository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	lower := "LOWER"
	if db.DriverName() == "sqlite" {
		lower = database.UnicodeLower
	}
	return &IssueRepository{db: db, sb: builderFor(db), lower: lower}
}

// Create inserts the issue and stores the assigned id on it.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	query, args, err := r.sb.Insert("issues").
		Columns(issueColumns[1:]...).
		Values(
			issue.UserID, issue.Title, issue.Description, issue.Category, issue.LocationLat, issue.LocationLng,
			issue.Images, issue.ContactName, issue.ContactPhone, issue.Status, issue.Priority, issue.Notes,
			issue.IdempotencyKey, issue.CreatedAt, issue.UpdatedAt, issue.ResolvedAt,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create issue: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&issue.ID); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// FindByID returns an issue by identifier. sql.ErrNoRows is returned unwrapped.
func (r *IssueRepository) FindByID(ctx context.Context, id int64) (*models.Issue, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

// FindByIdempotencyKey returns the issue created with key.
func (r *IssueRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Issue, error) {
	return r.findOne(ctx, sq.Eq{"idempotency_key": key})
}

func (r *IssueRepository) findOne(ctx context.Context, where sq.Eq) (*models.Issue, error) {
	query, args, err := r.sb.Select(issueColumns...).From("issues").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find issue: %w", err)
	}

	var issue models.Issue
	if err := r.db.GetContext(ctx, &issue, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find issue: %w", err)
	}
	return &issue, nil
}

// List returns one page of issues matching the query and the size of the
// whole filtered set.
func (r *IssueRepository) List(ctx context.Context, q models.IssueQuery) ([]models.Issue, int, error) {
	where := issueConditions(q.Filter, r.lower)

	list := r.sb.Select(issueColumns...).From("issues").Where(where).OrderBy(issueOrder(q.Sort)...)
	if limit, offset, ok := pageBounds(q.Limit, q.Offset); ok {
		list = list.Limit(limit).Offset(offset)
	}
	listQuery, args, err := list.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list issues: %w", err)
	}

	issues := []models.Issue{}
	if err := r.db.SelectContext(ctx, &issues, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("issues").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count issues: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	return issues, total, nil
}

// StatRows returns the projection used by statistics aggregation.
func (r *IssueRepository) StatRows(ctx context.Context) ([]models.IssueStatRow, error) {
	query, args, err := r.sb.Select("status", "category", "created_at", "resolved_at").From("issues").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stat rows: %w", err)
	}
	rows := []models.IssueStatRow{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load stat rows: %w", err)
	}
	return rows, nil
}

// Update writes the given column values. Columns not listed keep their stored
// values so concurrent edits of disjoint fields do not clobber each other.
func (r *IssueRepository) Update(ctx context.Context, id int64, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	query, args, err := r.sb.Update("issues").SetMap(changes).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update issue: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update issue rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Search folds case with lower, which must agree with strings.ToLower so SQL
// and in-memory filtering match the same rows.
func issueConditions(f models.IssueFilter, lower string) sq.And {
	where := sq.And{}
	if f.Category != "" {
		where = append(where, sq.Eq{"category": f.Category})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.Priority != "" {
		where = append(where, sq.Eq{"priority": f.Priority})
	}
	if f.UserID != nil {
		where = append(where, sq.Eq{"user_id": *f.UserID})
	}
	if f.CreatedFrom != nil {
		where = append(where, sq.GtOrEq{"created_at": f.CreatedFrom.UTC()})
	}
	if f.CreatedTo != nil {
		where = append(where, sq.Lt{"created_at": f.CreatedTo.UTC()})
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := likePattern(term)
		where = append(where, sq.Or{
			sq.Expr(lower+`(title) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(lower+`(description) LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(lower+`(category) LIKE ? ESCAPE '\'`, pattern),
		})
	}
	return where
}

// Ties fall back to id so pages are stable.
func issueOrder(s models.IssueSort) []string {
	switch s {
	case models.SortOldest:
		return []string{"created_at ASC", "id ASC"}
	case models.SortTitle:
		return []string{"title ASC", "id ASC"}
	case models.SortStatus:
		return []string{"status ASC", "id ASC"}
	default:
		return []string{"created_at DESC", "id ASC"}
	}
}
