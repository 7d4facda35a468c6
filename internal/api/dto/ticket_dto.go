package dto

import (
	"time"

	"github.com/mesa-ayuda/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title        string            `json:"title" validate:"required,max=255"`
	Description  string            `json:"description" validate:"required"`
	Priority     string            `json:"priority" validate:"required"`
	Category     string            `json:"category" validate:"required"`
	Location     string            `json:"location" validate:"omitempty,max=255"`
	Department   string            `json:"department" validate:"omitempty,max=255"`
	AssigneeID   *string           `json:"assigned_to" validate:"omitempty,uuid"`
	DueDate      *time.Time        `json:"due_date"`
	CustomFields map[string]string `json:"custom_fields"`
}

// UpdateTicketRequest payload.
type UpdateTicketRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"required"`
	Priority    string     `json:"priority" validate:"required"`
	Category    string     `json:"category" validate:"required"`
	Location    string     `json:"location" validate:"omitempty,max=255"`
	Department  string     `json:"department" validate:"omitempty,max=255"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assigned_to" validate:"required,uuid"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Solution string `json:"solution"`
}

// RateTicketRequest payload.
type RateTicketRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body        string              `json:"comment" validate:"required"`
	Type        string              `json:"type" validate:"required,oneof=public internal solution"`
	IsPrivate   bool                `json:"is_private"`
	Attachments []AttachmentRequest `json:"attachments" validate:"dive"`
}

// AttachmentRequest describes an attachment reference in a comment.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key" validate:"required"`
	FileName   string `json:"file_name" validate:"required"`
	MimeType   string `json:"mime_type" validate:"required"`
	SizeBytes  int64  `json:"size_bytes" validate:"min=0"`
}

// TicketSummary response.
type TicketSummary struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	Title         string     `json:"title"`
	ReporterName  string     `json:"reporter_name"`
	AssigneeName  *string    `json:"assignee_name,omitempty"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	StatusColor   string     `json:"status_color"`
	Priority      string     `json:"priority"`
	PriorityLabel string     `json:"priority_label"`
	PriorityColor string     `json:"priority_color"`
	Category      string     `json:"category"`
	CategoryLabel string     `json:"category_label"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Overdue       bool       `json:"is_overdue"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info including the thread.
type TicketDetailResponse struct {
	TicketSummary
	Description         string            `json:"description"`
	ReporterID          string            `json:"reporter_id"`
	ReporterEmail       string            `json:"reporter_email"`
	AssigneeID          *string           `json:"assignee_id,omitempty"`
	AssignedAt          *time.Time        `json:"assigned_at,omitempty"`
	Location            string            `json:"location,omitempty"`
	Department          string            `json:"department,omitempty"`
	OpenedAt            time.Time         `json:"opened_at"`
	ResolvedAt          *time.Time        `json:"resolved_at,omitempty"`
	ClosedAt            *time.Time        `json:"closed_at,omitempty"`
	ResolutionTime      *int              `json:"resolution_time_minutes,omitempty"`
	SatisfactionRating  *int              `json:"satisfaction_rating,omitempty"`
	SatisfactionComment *string           `json:"satisfaction_comment,omitempty"`
	CustomFields        map[string]string `json:"custom_fields,omitempty"`
	Comments            []CommentResponse `json:"comments"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID          string               `json:"id"`
	AuthorID    string               `json:"author_id"`
	AuthorName  string               `json:"author_name"`
	Body        string               `json:"comment"`
	Type        string               `json:"type"`
	TypeLabel   string               `json:"type_label"`
	IsPrivate   bool                 `json:"is_private"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AttachmentResponse represents attachment metadata.
type AttachmentResponse struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// CatalogResponse exposes the stable enum option maps for forms.
type CatalogResponse struct {
	Statuses     map[domain.TicketStatus]string   `json:"statuses"`
	Priorities   map[domain.TicketPriority]string `json:"priorities"`
	Categories   map[domain.TicketCategory]string `json:"categories"`
	CommentTypes map[domain.CommentType]string    `json:"comment_types"`
}
