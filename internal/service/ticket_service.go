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

// ticketNumberAttempts bounds the retry loop when an insert collides with
// the unique index on the ticket number.
const ticketNumberAttempts = 3

const maxTitleLength = 255

// TicketService owns the ticket lifecycle: status transitions, derived
// timestamps, assignment and number generation. Every mutation re-reads the
// ticket and validates against that fresh state before writing.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	comments   *CommentService
	dispatcher events.Dispatcher
	clock      Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	UserRepo       repository.UserRepository
	CommentService *CommentService
	Dispatcher     events.Dispatcher
	Clock          Clock
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		comments:   deps.CommentService,
		dispatcher: deps.Dispatcher,
		clock:      clock,
	}
}

// TicketCreateInput describes the creation payload.
type TicketCreateInput struct {
	Title        string
	Description  string
	Priority     domain.TicketPriority
	Category     domain.TicketCategory
	Location     string
	Department   string
	AssigneeID   *string
	DueDate      *time.Time
	CustomFields map[string]string
}

// TicketUpdateInput describes editable fields. Status is never changed
// here; transitions go through the explicit operations.
type TicketUpdateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Category    domain.TicketCategory
	Location    string
	Department  string
	DueDate     *time.Time
}

// TicketListInput describes listing filters.
type TicketListInput struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	Category   *domain.TicketCategory
	AssigneeID *string
	Search     *string
	ShowClosed bool
	Overdue    bool
	Limit      int
	Offset     int
}

// Create registers a new ticket reported by the actor. Status starts at
// NEW, or OPEN when an assignee is supplied; in that case the assignment
// side effects run inline so the NEW→OPEN promotion is not re-triggered.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	now := s.clock.Now()
	if err := validateCreateInput(input, now); err != nil {
		return nil, err
	}

	reporter, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": actor.ID})
		}
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		ReporterID:    reporter.ID,
		ReporterName:  reporter.Name,
		ReporterEmail: reporter.Email,
		Status:        domain.TicketStatusNew,
		Priority:      input.Priority,
		Category:      input.Category,
		Location:      strings.TrimSpace(input.Location),
		Department:    strings.TrimSpace(input.Department),
		DueDate:       input.DueDate,
		OpenedAt:      now,
		CustomFields:  input.CustomFields,
	}

	if input.AssigneeID != nil {
		assignee, err := s.users.GetByID(ctx, *input.AssigneeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("user", map[string]any{"user_id": *input.AssigneeID})
			}
			return nil, apperrors.MapError(err)
		}
		assignedAt := now
		ticket.AssigneeID = &assignee.ID
		ticket.AssigneeName = &assignee.Name
		ticket.AssignedAt = &assignedAt
		ticket.Status = domain.TicketStatusOpen
	}

	if err := s.createWithNumber(ctx, ticket, now.Year()); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, events.EventTicketCreated, ticket.ID, events.TicketCreatedPayload{
		Number:   ticket.Number,
		Title:    ticket.Title,
		Priority: ticket.Priority,
		Category: ticket.Category,
		Status:   ticket.Status,
	})
	return ticket, nil
}

// createWithNumber allocates the yearly sequence and inserts, retrying a
// bounded number of times if the unique index reports a collision.
func (s *TicketService) createWithNumber(ctx context.Context, ticket *domain.Ticket, year int) error {
	var lastErr error
	for attempt := 0; attempt < ticketNumberAttempts; attempt++ {
		seq, err := s.tickets.NextSequence(ctx, year)
		if err != nil {
			return apperrors.MapError(err)
		}
		ticket.Number = FormatTicketNumber(year, seq)
		err = s.tickets.Create(ctx, ticket)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateTicketNumber) {
			return apperrors.MapError(err)
		}
		lastErr = err
	}
	return apperrors.NewConflict("could not allocate ticket number", map[string]any{
		"year":     year,
		"attempts": ticketNumberAttempts,
		"cause":    lastErr.Error(),
	})
}

// FormatTicketNumber renders the externally visible identifier
// TKT-{year}-{zero-padded sequence}.
func FormatTicketNumber(year, seq int) string {
	return fmt.Sprintf("TKT-%d-%04d", year, seq)
}

// Get returns a single ticket by id.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// GetByNumber returns a single ticket by its external number.
func (s *TicketService) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"number": number})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// List returns tickets matching the filters. Closed tickets are hidden
// unless ShowClosed is set, matching the default board view.
func (s *TicketService) List(ctx context.Context, input TicketListInput) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		AssigneeID:  input.AssigneeID,
		Priority:    input.Priority,
		Category:    input.Category,
		SearchTerm:  input.Search,
		OverdueOnly: input.Overdue,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	switch {
	case input.Status != nil:
		filter.Statuses = []domain.TicketStatus{*input.Status}
	case !input.ShowClosed:
		filter.Statuses = domain.OpenTicketStatuses()
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Update applies field edits. Permission: reporter, assignee or admin.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.CanBeEditedBy(actor) {
		return nil, apperrors.NewForbidden("no permission to edit this ticket")
	}
	if err := validateUpdateInput(input); err != nil {
		return nil, err
	}

	ticket.Title = strings.TrimSpace(input.Title)
	ticket.Description = strings.TrimSpace(input.Description)
	ticket.Priority = input.Priority
	ticket.Category = input.Category
	ticket.Location = strings.TrimSpace(input.Location)
	ticket.Department = strings.TrimSpace(input.Department)
	ticket.DueDate = input.DueDate

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Assign hands the ticket to a user. Only legal while the ticket is in the
// open set; a NEW ticket is promoted to OPEN, any other open status is left
// untouched. Assignment does not append a comment.
func (s *TicketService) Assign(ctx context.Context, actor domain.Actor, ticketID, assigneeID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.CanBeAssigned() {
		return nil, apperrors.NewInvalidState("ticket cannot be assigned in its current status", map[string]any{
			"status": ticket.Status,
		})
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}

	now := s.clock.Now()
	ticket.AssigneeID = &assignee.ID
	ticket.AssigneeName = &assignee.Name
	ticket.AssignedAt = &now
	if ticket.Status == domain.TicketStatusNew {
		ticket.Status = domain.TicketStatusOpen
	}

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, actor, events.EventTicketAssigned, ticket.ID, events.TicketAssignedPayload{
		AssigneeID:   assignee.ID,
		AssigneeName: assignee.Name,
		Status:       ticket.Status,
	})
	return ticket, nil
}

// UpdateStatus moves the ticket to newStatus and appends the audit comment
// "Estado cambiado de 'X' a 'Y'". First transitions into RESOLVED and
// CLOSED populate their timestamps; repeat transitions never overwrite
// them. A same-status update is allowed and still audited.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !domain.ValidTicketStatus(newStatus) {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	s.applyStatusTimestamps(ticket)

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	if _, err := s.comments.AddStatusChange(ctx, actor, ticket, oldStatus, newStatus); err != nil {
		return nil, err
	}
	s.publish(ctx, actor, events.EventTicketStatusChanged, ticket.ID, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
	return ticket, nil
}

// Resolve marks the ticket RESOLVED. The resolution timestamp and the
// elapsed minutes since opening are computed once, on the first
// resolution; a reopen clears them so a later resolve recomputes against
// the unchanged OpenedAt. A non-empty solution is logged as a solution
// comment.
func (s *TicketService) Resolve(ctx context.Context, actor domain.Actor, ticketID, solution string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.Status = domain.TicketStatusResolved
	s.applyStatusTimestamps(ticket)

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	hasSolution := strings.TrimSpace(solution) != ""
	if hasSolution {
		if _, err := s.comments.AddSolution(ctx, actor, ticket, solution); err != nil {
			return nil, err
		}
	}
	resolutionTime := 0
	if ticket.ResolutionTime != nil {
		resolutionTime = *ticket.ResolutionTime
	}
	s.publish(ctx, actor, events.EventTicketResolved, ticket.ID, events.TicketResolvedPayload{
		ResolutionTime: resolutionTime,
		HasSolution:    hasSolution,
	})
	return ticket, nil
}

// Close marks the ticket CLOSED. Fails if it is already in the terminal
// set; the close timestamp is only set on the first transition.
func (s *TicketService) Close(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.CanBeClosed() {
		return nil, apperrors.NewInvalidState("ticket is already closed", map[string]any{"status": ticket.Status})
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusClosed
	s.applyStatusTimestamps(ticket)

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, actor, events.EventTicketStatusChanged, ticket.ID, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
	})
	return ticket, nil
}

// Reopen returns a closed or resolved ticket to OPEN, clearing the
// resolution and close bookkeeping so the next resolve recomputes it.
func (s *TicketService) Reopen(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.CanBeReopened() {
		return nil, apperrors.NewInvalidState("only closed or resolved tickets can be reopened", map[string]any{
			"status": ticket.Status,
		})
	}

	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusOpen
	ticket.ResolvedAt = nil
	ticket.ClosedAt = nil
	ticket.ResolutionTime = nil

	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	s.publish(ctx, actor, events.EventTicketReopened, ticket.ID, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: ticket.Status,
	})
	return ticket, nil
}

// Rate records the reporter's satisfaction once the ticket is resolved or
// closed.
func (s *TicketService) Rate(ctx context.Context, actor domain.Actor, ticketID string, rating int, comment string) (*domain.Ticket, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.ReporterID != actor.ID {
		return nil, apperrors.NewForbidden("only the reporter can rate the ticket")
	}
	if !ticket.IsResolved() && !ticket.IsClosed() {
		return nil, apperrors.NewInvalidState("ticket is not resolved yet", map[string]any{"status": ticket.Status})
	}

	ticket.SatisfactionRating = &rating
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		ticket.SatisfactionComment = &trimmed
	}
	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Delete soft-deletes the ticket; comments cascade at the storage layer.
// Permission: original reporter or admin.
func (s *TicketService) Delete(ctx context.Context, actor domain.Actor, ticketID string) error {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.CanBeDeletedBy(actor) {
		return apperrors.NewForbidden("no permission to delete this ticket")
	}
	if err := s.tickets.SoftDelete(ctx, ticket.ID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// applyStatusTimestamps derives resolved/closed bookkeeping from the
// current status. Timestamps are only set on first entry into the state;
// resolution time is minutes from OpenedAt, computed once.
func (s *TicketService) applyStatusTimestamps(ticket *domain.Ticket) {
	now := s.clock.Now()
	if ticket.Status == domain.TicketStatusResolved && ticket.ResolvedAt == nil {
		resolvedAt := now
		minutes := int(resolvedAt.Sub(ticket.OpenedAt).Minutes())
		ticket.ResolvedAt = &resolvedAt
		ticket.ResolutionTime = &minutes
	}
	if ticket.Status == domain.TicketStatusClosed && ticket.ClosedAt == nil {
		closedAt := now
		ticket.ClosedAt = &closedAt
	}
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// save refreshes the persisted overdue hint and writes the ticket.
func (s *TicketService) save(ctx context.Context, ticket *domain.Ticket) error {
	ticket.Overdue = ticket.IsOverdue(s.clock.Now())
	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) publish(ctx context.Context, actor domain.Actor, eventType events.EventType, ticketID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
}

func validateCreateInput(input TicketCreateInput, now time.Time) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return apperrors.NewValidationError("title required", nil)
	}
	if len(title) > maxTitleLength {
		return apperrors.NewValidationError("title too long", map[string]any{"max": maxTitleLength})
	}
	if strings.TrimSpace(input.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	if !domain.ValidTicketPriority(input.Priority) {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if !domain.ValidTicketCategory(input.Category) {
		return apperrors.NewValidationError("invalid category", map[string]any{"category": input.Category})
	}
	if input.DueDate != nil && !input.DueDate.After(now) {
		return apperrors.NewValidationError("due date must be in the future", nil)
	}
	return nil
}

func validateUpdateInput(input TicketUpdateInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return apperrors.NewValidationError("title required", nil)
	}
	if len(title) > maxTitleLength {
		return apperrors.NewValidationError("title too long", map[string]any{"max": maxTitleLength})
	}
	if strings.TrimSpace(input.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	if !domain.ValidTicketPriority(input.Priority) {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if !domain.ValidTicketCategory(input.Category) {
		return apperrors.NewValidationError("invalid category", map[string]any{"category": input.Category})
	}
	return nil
}
