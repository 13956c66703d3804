package dto

import (
	"time"

	"github.com/noah-isme/citizen-safety-api/internal/models"
)

// CreateIssueRequest is the payload for submitting a new issue. It is also the
// payload persisted in the offline queue.
type CreateIssueRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description" validate:"required"`
	Category     string   `json:"category" validate:"required"`
	LocationLat  *float64 `json:"location_lat" validate:"required"`
	LocationLng  *float64 `json:"location_lng" validate:"required"`
	Images       []string `json:"images,omitempty" validate:"dive,required"`
	ContactName  *string  `json:"contact_name,omitempty"`
	ContactPhone *string  `json:"contact_phone,omitempty"`
}

// PatchIssueRequest is the raw PATCH body before it is split into an owner or
// admin edit.
type PatchIssueRequest struct {
	Title        *string               `json:"title"`
	Description  *string               `json:"description"`
	Category     *string               `json:"category"`
	Images       *[]string             `json:"images"`
	ContactName  *string               `json:"contact_name"`
	ContactPhone *string               `json:"contact_phone"`
	Status       *models.IssueStatus   `json:"status"`
	Notes        *string               `json:"notes"`
	Priority     *models.IssuePriority `json:"priority"`
}

// OwnerEditRequest carries the fields only the issue owner may change.
type OwnerEditRequest struct {
	Title        *string   `json:"title,omitempty" validate:"omitempty,min=1"`
	Description  *string   `json:"description,omitempty" validate:"omitempty,min=1"`
	Category     *string   `json:"category,omitempty" validate:"omitempty,min=1"`
	Images       *[]string `json:"images,omitempty"`
	ContactName  *string   `json:"contact_name,omitempty"`
	ContactPhone *string   `json:"contact_phone,omitempty"`
}

// AdminEditRequest carries the triage fields only admins may change.
type AdminEditRequest struct {
	Status   *models.IssueStatus   `json:"status,omitempty"`
	Notes    *string               `json:"notes,omitempty"`
	Priority *models.IssuePriority `json:"priority,omitempty"`
}

// HasOwnerFields reports whether any owner-editable field is present.
func (r PatchIssueRequest) HasOwnerFields() bool {
	return r.Title != nil || r.Description != nil || r.Category != nil ||
		r.Images != nil || r.ContactName != nil || r.ContactPhone != nil
}

// HasAdminFields reports whether any admin-only field is present.
func (r PatchIssueRequest) HasAdminFields() bool {
	return r.Status != nil || r.Notes != nil || r.Priority != nil
}

// OwnerEdit extracts the owner field-set.
func (r PatchIssueRequest) OwnerEdit() OwnerEditRequest {
	return OwnerEditRequest{
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Images:       r.Images,
		ContactName:  r.ContactName,
		ContactPhone: r.ContactPhone,
	}
}

// AdminEdit extracts the admin field-set.
func (r PatchIssueRequest) AdminEdit() AdminEditRequest {
	return AdminEditRequest{Status: r.Status, Notes: r.Notes, Priority: r.Priority}
}

// ListIssuesQuery binds the listing query string.
type ListIssuesQuery struct {
	Category  string `form:"category"`
	Status    string `form:"status"`
	Priority  string `form:"priority"`
	Search    string `form:"search"`
	UserID    *int64 `form:"user_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Sort      string `form:"sort"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// IssueList is a page of issues plus the size of the filtered set.
type IssueList struct {
	Issues     []models.Issue
	TotalCount int
	Limit      int
	Offset     int
}

// CreateIssueResult reports whether a submission inserted a row or replayed an
// earlier one with the same idempotency key.
type CreateIssueResult struct {
	Issue   *models.Issue
	Created bool
}

// UpdateIssueResult holds the updated issue and an optional status change event.
type UpdateIssueResult struct {
	Issue  *models.Issue
	Change *models.StatusChanged
}

// ExportFile is a rendered export document.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	GeneratedAt time.Time
}

// IssueImage is a decoded embedded image.
type IssueImage struct {
	ContentType string
	Data        []byte
}
