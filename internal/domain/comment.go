package domain

import "time"

// CommentType differentiates public replies, internal notes, solutions and
// system-generated status-change entries.
type CommentType string

const (
	CommentTypePublic       CommentType = "public"
	CommentTypeInternal     CommentType = "internal"
	CommentTypeSolution     CommentType = "solution"
	CommentTypeStatusChange CommentType = "status_change"
)

// AttachmentReference stores metadata for files attached to a comment.
type AttachmentReference struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// TicketComment is an append-only entry in a ticket's thread. AuthorName is
// snapshotted at write time. Comments are immutable once created and only
// ever soft-deleted.
type TicketComment struct {
	ID          string
	TicketID    string
	AuthorID    string
	AuthorName  string
	Body        string
	Type        CommentType
	IsPrivate   bool
	Attachments []AttachmentReference
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// IsPublic reports public visibility: public type and not flagged private.
func (c *TicketComment) IsPublic() bool {
	return c.Type == CommentTypePublic && !c.IsPrivate
}

// IsInternal reports internal visibility: internal type or flagged private.
func (c *TicketComment) IsInternal() bool {
	return c.Type == CommentTypeInternal || c.IsPrivate
}

// IsSolution reports whether the comment records the resolution.
func (c *TicketComment) IsSolution() bool {
	return c.Type == CommentTypeSolution
}

// IsStatusChange reports whether the comment is a system audit entry.
func (c *TicketComment) IsStatusChange() bool {
	return c.Type == CommentTypeStatusChange
}

// HasAttachments reports whether any attachment references exist.
func (c *TicketComment) HasAttachments() bool {
	return len(c.Attachments) > 0
}

// ValidCommentType reports whether t is a member of the comment-type enum.
func ValidCommentType(t CommentType) bool {
	_, ok := commentTypeLabels[t]
	return ok
}

// UserCommentType reports whether t may be authored through the public API.
// Status-change comments are system-generated only.
func UserCommentType(t CommentType) bool {
	return ValidCommentType(t) && t != CommentTypeStatusChange
}

var commentTypeLabels = map[CommentType]string{
	CommentTypePublic:       "Público",
	CommentTypeInternal:     "Interno",
	CommentTypeSolution:     "Solución",
	CommentTypeStatusChange: "Cambio de Estado",
}

// Label returns the display label for the comment type.
func (t CommentType) Label() string {
	if label, ok := commentTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// CommentTypes returns the value→label option map.
func CommentTypes() map[CommentType]string {
	out := make(map[CommentType]string, len(commentTypeLabels))
	for k, v := range commentTypeLabels {
		out[k] = v
	}
	return out
}

// PublicComments filters a thread down to publicly visible entries,
// preserving order.
func PublicComments(comments []TicketComment) []TicketComment {
	filtered := make([]TicketComment, 0, len(comments))
	for i := range comments {
		if comments[i].IsPublic() {
			filtered = append(filtered, comments[i])
		}
	}
	return filtered
}

// InternalComments filters a thread down to internal entries.
func InternalComments(comments []TicketComment) []TicketComment {
	filtered := make([]TicketComment, 0, len(comments))
	for i := range comments {
		if comments[i].IsInternal() {
			filtered = append(filtered, comments[i])
		}
	}
	return filtered
}
