package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/citizen-safety-api/internal/filter"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	"github.com/noah-isme/citizen-safety-api/pkg/database"
)

func TestIssueSearchFoldsNonASCIILikeInMemoryFilter(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(ctx, db))

	repo := NewIssueRepository(db)
	now := time.Now().UTC()
	var stored []models.Issue
	for _, title := range []string{"École fermée", "Straßenlaterne defekt", "Pothole"} {
		issue := &models.Issue{Title: title, Description: "reported", Category: "Roads", Status: models.StatusOpen, Priority: models.PriorityMedium, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.Create(ctx, issue))
		stored = append(stored, *issue)
	}

	for _, term := range []string{"éCOLE", "STRASSE", "straß", "pothole"} {
		f := models.IssueFilter{Search: term}
		fromSQL, total, err := repo.List(ctx, models.IssueQuery{Filter: f})
		require.NoError(t, err)
		inMemory := filter.Apply(stored, f, models.SortNewest)

		assert.Equal(t, len(inMemory), total, term)
		require.Len(t, fromSQL, len(inMemory), term)
		for i := range fromSQL {
			assert.Equal(t, inMemory[i].ID, fromSQL[i].ID, term)
		}
	}
}
