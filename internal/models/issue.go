package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// IssueStatus is the triage state of an issue.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// IssuePriority ranks how urgently an issue should be handled.
type IssuePriority string

const (
	PriorityLow      IssuePriority = "low"
	PriorityMedium   IssuePriority = "medium"
	PriorityHigh     IssuePriority = "high"
	PriorityCritical IssuePriority = "critical"
)

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ImageList stores the ordered data-URI images of an issue as a JSON array column.
type ImageList []string

// Value implements driver.Valuer.
func (l ImageList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (l *ImageList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = ImageList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported images column type %T", src)
	}
	if len(raw) == 0 {
		*l = ImageList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode images: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Issue is a citizen-reported incident.
type Issue struct {
	ID             int64         `db:"id" json:"id"`
	UserID         *int64        `db:"user_id" json:"user_id,omitempty"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description"`
	Category       string        `db:"category" json:"category"`
	LocationLat    float64       `db:"location_lat" json:"location_lat"`
	LocationLng    float64       `db:"location_lng" json:"location_lng"`
	Images         ImageList     `db:"images" json:"images"`
	ContactName    *string       `db:"contact_name" json:"contact_name,omitempty"`
	ContactPhone   *string       `db:"contact_phone" json:"contact_phone,omitempty"`
	Status         IssueStatus   `db:"status" json:"status"`
	Priority       IssuePriority `db:"priority" json:"priority"`
	Notes          *string       `db:"notes" json:"notes,omitempty"`
	IdempotencyKey *string       `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// OwnedBy reports whether userID owns the issue. Ownerless issues are owned by nobody.
func (i *Issue) OwnedBy(userID int64) bool {
	return i.UserID != nil && *i.UserID == userID
}

// IssueSort selects the ordering of an issue listing.
type IssueSort string

const (
	SortNewest IssueSort = "newest"
	SortOldest IssueSort = "oldest"
	SortTitle  IssueSort = "title"
	SortStatus IssueSort = "status"
)

// ParseIssueSort maps a query value to a sort key, defaulting to newest.
func ParseIssueSort(raw string) (IssueSort, bool) {
	switch IssueSort(raw) {
	case "":
		return SortNewest, true
	case SortNewest, SortOldest, SortTitle, SortStatus:
		return IssueSort(raw), true
	}
	return SortNewest, false
}

// IssueFilter narrows an issue listing. Zero values mean "no constraint" and all
// set fields are AND-combined. The creation window is half-open: [CreatedFrom, CreatedTo).
type IssueFilter struct {
	Category    string
	Status      IssueStatus
	Priority    IssuePriority
	UserID      *int64
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// IssueQuery couples a filter with ordering and paging for server-side listing.
type IssueQuery struct {
	Filter IssueFilter
	Sort   IssueSort
	Limit  int
	Offset int
}

// StatusChanged is emitted when an admin edit moves an issue to a new status.
type StatusChanged struct {
	IssueID   int64
	Title     string
	NewStatus IssueStatus
	OwnerID   *int64
}
