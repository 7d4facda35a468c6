package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mesa-ayuda/helpdesk-service/internal/domain"
	"github.com/mesa-ayuda/helpdesk-service/internal/events"
	"github.com/mesa-ayuda/helpdesk-service/internal/repository"
	apperrors "github.com/mesa-ayuda/helpdesk-service/pkg/util"
)

// CommentService owns the append-only comment log of a ticket.
type CommentService struct {
	comments   repository.CommentRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	clock      Clock
}

// CommentDependencies bundles collaborators for the comment service.
type CommentDependencies struct {
	CommentRepo repository.CommentRepository
	TicketRepo  repository.TicketRepository
	Dispatcher  events.Dispatcher
	Clock       Clock
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &CommentService{
		comments:   deps.CommentRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		clock:      clock,
	}
}

// AttachmentInput defines attachment metadata supplied by callers.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// AddComment appends a user-authored comment to a ticket. The author name
// is snapshotted from the actor at write time; status_change is rejected
// here because those entries are system-generated.
func (s *CommentService) AddComment(ctx context.Context, actor domain.Actor, ticketID, body string, commentType domain.CommentType, isPrivate bool, attachments []AttachmentInput) (*domain.TicketComment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("comment body required", nil)
	}
	if !domain.UserCommentType(commentType) {
		return nil, apperrors.NewValidationError("invalid comment type", map[string]any{"type": commentType})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	refs := make([]domain.AttachmentReference, 0, len(attachments))
	for _, att := range attachments {
		refs = append(refs, domain.AttachmentReference{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}

	comment := &domain.TicketComment{
		TicketID:    ticket.ID,
		AuthorID:    actor.ID,
		AuthorName:  actor.Name,
		Body:        strings.TrimSpace(body),
		Type:        commentType,
		IsPrivate:   isPrivate,
		Attachments: refs,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, actor, ticket.ID, comment)
	return comment, nil
}

// AddStatusChange appends the system-generated audit entry for a status
// transition. Always flagged internal; the old and new labels may be equal
// when a no-op transition is recorded.
func (s *CommentService) AddStatusChange(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, oldStatus, newStatus domain.TicketStatus) (*domain.TicketComment, error) {
	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Body:       fmt.Sprintf("Estado cambiado de '%s' a '%s'", oldStatus.Label(), newStatus.Label()),
		Type:       domain.CommentTypeStatusChange,
		IsPrivate:  true,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, ticket.ID, comment)
	return comment, nil
}

// AddSolution appends the resolution text as a solution-type comment.
func (s *CommentService) AddSolution(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, solution string) (*domain.TicketComment, error) {
	comment := &domain.TicketComment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Body:       strings.TrimSpace(solution),
		Type:       domain.CommentTypeSolution,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publish(ctx, actor, ticket.ID, comment)
	return comment, nil
}

// ListForTicket returns the ordered thread. Non-admin callers who are
// neither reporter nor assignee only see public entries.
func (s *CommentService) ListForTicket(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketComment, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	comments, err := s.comments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.CanBeEditedBy(actor) {
		return comments, nil
	}
	return domain.PublicComments(comments), nil
}

func (s *CommentService) publish(ctx context.Context, actor domain.Actor, ticketID string, comment *domain.TicketComment) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketCommentAdded,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: s.clock.Now(),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			CommentType: comment.Type,
			IsPrivate:   comment.IsPrivate,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

// Clock abstracts wall time so lifecycle rules are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
