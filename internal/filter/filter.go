// Package filter selects and orders issues in memory with the same semantics
// the server applies in SQL.
package filter

import (
	"sort"
	"strings"

	"github.com/noah-isme/citizen-safety-api/internal/models"
)

// Apply returns the issues matching f ordered by s. The input slice is never
// modified and ties keep their input order.
func Apply(issues []models.Issue, f models.IssueFilter, s models.IssueSort) []models.Issue {
	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if Matches(issue, f) {
			out = append(out, issue)
		}
	}

	less := lessFunc(s)
	sort.SliceStable(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

// Matches reports whether issue satisfies every set field of f.
func Matches(issue models.Issue, f models.IssueFilter) bool {
	if f.Category != "" && issue.Category != f.Category {
		return false
	}
	if f.Status != "" && issue.Status != f.Status {
		return false
	}
	if f.Priority != "" && issue.Priority != f.Priority {
		return false
	}
	if f.UserID != nil && !issue.OwnedBy(*f.UserID) {
		return false
	}
	if f.CreatedFrom != nil && issue.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && !issue.CreatedAt.Before(*f.CreatedTo) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(issue.Title), term) &&
			!strings.Contains(strings.ToLower(issue.Description), term) &&
			!strings.Contains(strings.ToLower(issue.Category), term) {
			return false
		}
	}
	return true
}

// status sorts by the raw string, so in_progress < open < resolved.
func lessFunc(s models.IssueSort) func(a, b *models.Issue) bool {
	switch s {
	case models.SortOldest:
		return func(a, b *models.Issue) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case models.SortTitle:
		return func(a, b *models.Issue) bool { return a.Title < b.Title }
	case models.SortStatus:
		return func(a, b *models.Issue) bool { return a.Status < b.Status }
	default:
		return func(a, b *models.Issue) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
}
