package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/citizen-safety-api/internal/models"
)

var issueRowColumns = issueColumns

func issueRow(rows *sqlmock.Rows, id int64, title string, created time.Time) *sqlmock.Rows {
	return rows.AddRow(id, nil, title, "desc", "Roads", 12.9, 77.5, `["data:image/png;base64,AAAA"]`, nil, nil, "open", "medium", nil, nil, created, created, nil)
}

func TestIssueCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO issues (user_id,title,description,category,location_lat,location_lng,images,contact_name,contact_phone,status,priority,notes,idempotency_key,created_at,updated_at,resolved_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id")).
		WithArgs(nil, "Pothole", "deep", "Roads", 12.9, 77.5, "[]", nil, nil, models.StatusOpen, models.PriorityMedium, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	now := time.Now().UTC()
	issue := &models.Issue{Title: "Pothole", Description: "deep", Category: "Roads", LocationLat: 12.9, LocationLng: 77.5, Status: models.StatusOpen, Priority: models.PriorityMedium, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Create(context.Background(), issue))
	assert.Equal(t, int64(7), issue.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueFindByIDDecodesImages(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE id = ? LIMIT 1")).
		WithArgs(int64(3)).
		WillReturnRows(issueRow(sqlmock.NewRows(issueRowColumns), 3, "Pothole", now))

	issue, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, models.ImageList{"data:image/png;base64,AAAA"}, issue.Images)
	assert.Nil(t, issue.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectQuery("FROM issues WHERE id").WillReturnRows(sqlmock.NewRows(issueRowColumns))

	_, err := repo.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIssueListBuildsFilteredQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	now := time.Now()
	owner := int64(4)
	listRows := issueRow(sqlmock.NewRows(issueRowColumns), 1, "Pothole", now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE (category = ? AND status = ? AND user_id = ? AND (LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(category) LIKE ? ESCAPE '\\')) ORDER BY title ASC, id ASC LIMIT 10 OFFSET 20")).
		WithArgs("Roads", models.StatusOpen, owner, `%50\%%`, `%50\%%`, `%50\%%`).
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues WHERE (category = ? AND status = ? AND user_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	issues, total, err := repo.List(context.Background(), models.IssueQuery{
		Filter: models.IssueFilter{Category: "Roads", Status: models.StatusOpen, UserID: &owner, Search: "50%"},
		Sort:   models.SortTitle,
		Limit:  10,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Len(t, issues, 1)
	assert.Equal(t, 21, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueListWithoutFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM issues WHERE (1=1) ORDER BY created_at DESC, id ASC")).
		WillReturnRows(sqlmock.NewRows(issueRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues WHERE (1=1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	issues, total, err := repo.List(context.Background(), models.IssueQuery{})
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIssueRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET notes = ?, status = ? WHERE id = ?")).
		WithArgs("checked", models.StatusResolved, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), 8, map[string]interface{}{"status": models.StatusResolved, "notes": "checked"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%a\_b\%c\\%`, likePattern(`A_b%c\`))
}
