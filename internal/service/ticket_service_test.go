package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa-ayuda/helpdesk-service/internal/domain"
	"github.com/mesa-ayuda/helpdesk-service/internal/events"
	apperrors "github.com/mesa-ayuda/helpdesk-service/pkg/util"
)

var testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	tickets    *fakeTicketRepo
	users      *fakeUserRepo
	comments   *fakeCommentRepo
	clock      *fakeClock
	dispatcher *capturingDispatcher
	svc        *TicketService
	commentSvc *CommentService

	reporter domain.Actor
	agent    domain.Actor
	admin    domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newFakeUserRepo(
		domain.User{ID: "reporter-1", Name: "Ana Torres", Email: "ana@example.com", Status: domain.UserStatusActive},
		domain.User{ID: "agent-1", Name: "Luis Pérez", Email: "luis@example.com", Status: domain.UserStatusActive},
		domain.User{ID: "admin-1", Name: "Marta Gil", Email: "marta@example.com", IsAdmin: true, Status: domain.UserStatusActive},
	)

	tickets := newFakeTicketRepo()
	comments := newFakeCommentRepo()
	clock := newFakeClock(testStart)
	dispatcher := &capturingDispatcher{}

	commentSvc := NewCommentService(CommentDependencies{
		CommentRepo: comments,
		TicketRepo:  tickets,
		Dispatcher:  dispatcher,
		Clock:       clock,
	})
	svc := NewTicketService(TicketDependencies{
		TicketRepo:     tickets,
		UserRepo:       users,
		CommentService: commentSvc,
		Dispatcher:     dispatcher,
		Clock:          clock,
	})

	return &fixture{
		tickets:    tickets,
		users:      users,
		comments:   comments,
		clock:      clock,
		dispatcher: dispatcher,
		svc:        svc,
		commentSvc: commentSvc,
		reporter:   domain.Actor{ID: "reporter-1", Name: "Ana Torres"},
		agent:      domain.Actor{ID: "agent-1", Name: "Luis Pérez"},
		admin:      domain.Actor{ID: "admin-1", Name: "Marta Gil", IsAdmin: true},
	}
}

func validCreateInput() TicketCreateInput {
	return TicketCreateInput{
		Title:       "Impresora no enciende",
		Description: "La impresora de recepción no responde desde esta mañana",
		Priority:    domain.TicketPriorityNormal,
		Category:    domain.TicketCategoryPrinter,
		Location:    "Recepción",
		Department:  "Ventas",
	}
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func TestCreateStartsAsNew(t *testing.T) {
	fx := newFixture(t)

	ticket, err := fx.svc.Create(context.Background(), fx.reporter, validCreateInput())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, "TKT-2024-0001", ticket.Number)
	assert.Equal(t, "Ana Torres", ticket.ReporterName)
	assert.Equal(t, "ana@example.com", ticket.ReporterEmail)
	assert.True(t, ticket.OpenedAt.Equal(testStart))
	assert.Nil(t, ticket.AssigneeID)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Empty(t, fx.comments.forTicket(ticket.ID))

	created := fx.dispatcher.ofType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, ticket.ID, created[0].TicketID)
}

func TestCreateWithAssigneeStartsOpen(t *testing.T) {
	fx := newFixture(t)

	input := validCreateInput()
	assigneeID := "agent-1"
	input.AssigneeID = &assigneeID

	ticket, err := fx.svc.Create(context.Background(), fx.reporter, input)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-1", *ticket.AssigneeID)
	require.NotNil(t, ticket.AssigneeName)
	assert.Equal(t, "Luis Pérez", *ticket.AssigneeName)
	require.NotNil(t, ticket.AssignedAt)
	assert.True(t, ticket.AssignedAt.Equal(testStart))
	// Assignment during creation never writes an audit comment.
	assert.Empty(t, fx.comments.forTicket(ticket.ID))
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := validCreateInput()
	input.Title = "   "
	_, err := fx.svc.Create(ctx, fx.reporter, input)
	requireDomainCode(t, err, "VALIDATION_FAILED")

	input = validCreateInput()
	past := testStart.Add(-time.Hour)
	input.DueDate = &past
	_, err = fx.svc.Create(ctx, fx.reporter, input)
	requireDomainCode(t, err, "VALIDATION_FAILED")

	input = validCreateInput()
	input.Priority = "critica"
	_, err = fx.svc.Create(ctx, fx.reporter, input)
	requireDomainCode(t, err, "VALIDATION_FAILED")

	input = validCreateInput()
	unknown := "ghost-user"
	input.AssigneeID = &unknown
	_, err = fx.svc.Create(ctx, fx.reporter, input)
	requireDomainCode(t, err, "NOT_FOUND")
}

func TestTicketNumbersAreSequential(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for i, want := range []string{"TKT-2024-0001", "TKT-2024-0002", "TKT-2024-0003"} {
		ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
		require.NoError(t, err, "create %d", i)
		assert.Equal(t, want, ticket.Number)
	}
}

func TestTicketNumbersUniqueUnderConcurrency(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	numbers := make(chan string, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
			if err == nil {
				numbers <- ticket.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]struct{})
	for number := range numbers {
		_, dup := seen[number]
		assert.False(t, dup, "duplicate number %s", number)
		seen[number] = struct{}{}
	}
	assert.Len(t, seen, writers)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	fx := newFixture(t)
	fx.tickets.failCreates = 2

	ticket, err := fx.svc.Create(context.Background(), fx.reporter, validCreateInput())
	require.NoError(t, err)
	// Two collisions burned two sequence values before the insert landed.
	assert.Equal(t, "TKT-2024-0003", ticket.Number)
}

func TestCreateGivesUpAfterBoundedRetries(t *testing.T) {
	fx := newFixture(t)
	fx.tickets.failCreates = ticketNumberAttempts

	_, err := fx.svc.Create(context.Background(), fx.reporter, validCreateInput())
	requireDomainCode(t, err, "CONFLICT")
}

func TestFormatTicketNumber(t *testing.T) {
	assert.Equal(t, "TKT-2024-0008", FormatTicketNumber(2024, 8))
	assert.Equal(t, "TKT-2025-0001", FormatTicketNumber(2025, 1))
	assert.Equal(t, "TKT-2024-12345", FormatTicketNumber(2024, 12345))
}

func TestUpdateStatusAppendsAuditComment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	fx.clock.Advance(45 * time.Minute)
	updated, err := fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)

	require.NotNil(t, updated.ResolvedAt)
	require.NotNil(t, updated.ResolutionTime)
	assert.Equal(t, 45, *updated.ResolutionTime)

	thread := fx.comments.forTicket(ticket.ID)
	require.Len(t, thread, 1)
	assert.Equal(t, domain.CommentTypeStatusChange, thread[0].Type)
	assert.True(t, thread[0].IsPrivate)
	assert.Equal(t, "Estado cambiado de 'Nuevo' a 'Resuelto'", thread[0].Body)
	assert.Equal(t, "Luis Pérez", thread[0].AuthorName)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, "archivado")
	requireDomainCode(t, err, "VALIDATION_FAILED")
	assert.Empty(t, fx.comments.forTicket(ticket.ID))
}

func TestSameStatusUpdateIsStillAudited(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := validCreateInput()
	assigneeID := "agent-1"
	input.AssigneeID = &assigneeID
	ticket, err := fx.svc.Create(ctx, fx.reporter, input)
	require.NoError(t, err)

	updated, err := fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, domain.TicketStatusOpen)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, updated.Status)
	assert.Nil(t, updated.ResolvedAt)
	assert.Nil(t, updated.ClosedAt)

	thread := fx.comments.forTicket(ticket.ID)
	require.Len(t, thread, 1)
	assert.Equal(t, "Estado cambiado de 'Abierto' a 'Abierto'", thread[0].Body)
}

func TestResolveComputesTimestampsOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	fx.clock.Advance(30 * time.Minute)
	resolved, err := fx.svc.Resolve(ctx, fx.agent, ticket.ID, "Se reinició el servicio de impresión")
	require.NoError(t, err)

	require.NotNil(t, resolved.ResolvedAt)
	firstResolvedAt := *resolved.ResolvedAt
	require.NotNil(t, resolved.ResolutionTime)
	assert.Equal(t, 30, *resolved.ResolutionTime)

	thread := fx.comments.forTicket(ticket.ID)
	require.Len(t, thread, 1)
	assert.Equal(t, domain.CommentTypeSolution, thread[0].Type)
	assert.Equal(t, "Se reinició el servicio de impresión", thread[0].Body)

	// A second resolve never overwrites the original bookkeeping.
	fx.clock.Advance(2 * time.Hour)
	resolvedAgain, err := fx.svc.Resolve(ctx, fx.agent, ticket.ID, "")
	require.NoError(t, err)
	assert.True(t, resolvedAgain.ResolvedAt.Equal(firstResolvedAt))
	assert.Equal(t, 30, *resolvedAgain.ResolutionTime)

	resolvedEvents := fx.dispatcher.ofType(events.EventTicketResolved)
	require.Len(t, resolvedEvents, 2)
	payload, ok := resolvedEvents[0].Payload.(events.TicketResolvedPayload)
	require.True(t, ok)
	assert.Equal(t, 30, payload.ResolutionTime)
	assert.True(t, payload.HasSolution)
}

func TestResolveAfterReopenRecomputesFromOpenedAt(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	fx.clock.Advance(30 * time.Minute)
	_, err = fx.svc.Resolve(ctx, fx.agent, ticket.ID, "")
	require.NoError(t, err)

	reopened, err := fx.svc.Reopen(ctx, fx.reporter, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Nil(t, reopened.ResolutionTime)

	fx.clock.Advance(60 * time.Minute)
	resolved, err := fx.svc.Resolve(ctx, fx.agent, ticket.ID, "")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolutionTime)
	// Measured against the original opening, not the reopen.
	assert.Equal(t, 90, *resolved.ResolutionTime)
}

func TestCloseThenReopenClearsBookkeeping(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	fx.clock.Advance(10 * time.Minute)
	_, err = fx.svc.Resolve(ctx, fx.agent, ticket.ID, "")
	require.NoError(t, err)
	closed, err := fx.svc.Close(ctx, fx.agent, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	reopened, err := fx.svc.Reopen(ctx, fx.reporter, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.ResolutionTime)
}

func TestReopenOnlyFromClosedOrResolved(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := validCreateInput()
	assigneeID := "agent-1"
	input.AssigneeID = &assigneeID
	ticket, err := fx.svc.Create(ctx, fx.reporter, input)
	require.NoError(t, err)

	_, err = fx.svc.Reopen(ctx, fx.reporter, ticket.ID)
	requireDomainCode(t, err, "INVALID_STATE")

	// A rejected reopen leaves the stored ticket untouched.
	stored := fx.tickets.stored(ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, stored.Status)
}

func TestCloseRejectedWhenAlreadyTerminal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	_, err = fx.svc.Close(ctx, fx.agent, ticket.ID)
	require.NoError(t, err)
	_, err = fx.svc.Close(ctx, fx.agent, ticket.ID)
	requireDomainCode(t, err, "INVALID_STATE")

	_, err = fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, domain.TicketStatusCancelled)
	require.NoError(t, err)
	_, err = fx.svc.Close(ctx, fx.agent, ticket.ID)
	requireDomainCode(t, err, "INVALID_STATE")
}

func TestAssignPromotesOnlyNewTickets(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	assigned, err := fx.svc.Assign(ctx, fx.admin, ticket.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, assigned.Status)
	require.NotNil(t, assigned.AssigneeName)
	assert.Equal(t, "Luis Pérez", *assigned.AssigneeName)
	// Assignment is not a status transition; no audit entry.
	assert.Empty(t, fx.comments.forTicket(ticket.ID))

	// Any other open status is preserved.
	_, err = fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, domain.TicketStatusPending)
	require.NoError(t, err)
	reassigned, err := fx.svc.Assign(ctx, fx.admin, ticket.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, reassigned.Status)
}

func TestAssignRejectedOutsideOpenSet(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)
	_, err = fx.svc.Close(ctx, fx.agent, ticket.ID)
	require.NoError(t, err)

	_, err = fx.svc.Assign(ctx, fx.admin, ticket.ID, "agent-1")
	requireDomainCode(t, err, "INVALID_STATE")
}

func TestOverdueFollowsLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := validCreateInput()
	due := testStart.Add(time.Hour)
	input.DueDate = &due
	ticket, err := fx.svc.Create(ctx, fx.reporter, input)
	require.NoError(t, err)
	assert.False(t, ticket.IsOverdue(fx.clock.Now()))

	fx.clock.Advance(2 * time.Hour)
	updated, err := fx.svc.UpdateStatus(ctx, fx.agent, ticket.ID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	assert.True(t, updated.IsOverdue(fx.clock.Now()))
	// The persisted hint is refreshed on every write.
	assert.True(t, fx.tickets.stored(ticket.ID).Overdue)

	closed, err := fx.svc.Close(ctx, fx.agent, ticket.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsOverdue(fx.clock.Now()))
	assert.False(t, fx.tickets.stored(ticket.ID).Overdue)
}

func TestRateRequiresReporterAndTerminalState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	_, err = fx.svc.Rate(ctx, fx.reporter, ticket.ID, 6, "")
	requireDomainCode(t, err, "VALIDATION_FAILED")

	_, err = fx.svc.Rate(ctx, fx.reporter, ticket.ID, 4, "")
	requireDomainCode(t, err, "INVALID_STATE")

	_, err = fx.svc.Resolve(ctx, fx.agent, ticket.ID, "")
	require.NoError(t, err)

	_, err = fx.svc.Rate(ctx, fx.agent, ticket.ID, 4, "")
	requireDomainCode(t, err, "FORBIDDEN")

	rated, err := fx.svc.Rate(ctx, fx.reporter, ticket.ID, 4, "Rápida atención")
	require.NoError(t, err)
	require.NotNil(t, rated.SatisfactionRating)
	assert.Equal(t, 4, *rated.SatisfactionRating)
	require.NotNil(t, rated.SatisfactionComment)
	assert.Equal(t, "Rápida atención", *rated.SatisfactionComment)
}

func TestUpdatePermissions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	edit := TicketUpdateInput{
		Title:       "Impresora no enciende (planta 2)",
		Description: "La impresora de recepción no responde",
		Priority:    domain.TicketPriorityHigh,
		Category:    domain.TicketCategoryPrinter,
	}

	stranger := domain.Actor{ID: "someone-else", Name: "Otro"}
	_, err = fx.svc.Update(ctx, stranger, ticket.ID, edit)
	requireDomainCode(t, err, "FORBIDDEN")

	_, err = fx.svc.Assign(ctx, fx.admin, ticket.ID, "agent-1")
	require.NoError(t, err)

	updated, err := fx.svc.Update(ctx, fx.agent, ticket.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Impresora no enciende (planta 2)", updated.Title)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
}

func TestDeletePermissionsAndSoftDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	input := validCreateInput()
	assigneeID := "agent-1"
	input.AssigneeID = &assigneeID
	ticket, err := fx.svc.Create(ctx, fx.reporter, input)
	require.NoError(t, err)

	// The assignee may edit but not delete.
	err = fx.svc.Delete(ctx, fx.agent, ticket.ID)
	requireDomainCode(t, err, "FORBIDDEN")

	err = fx.svc.Delete(ctx, fx.reporter, ticket.ID)
	require.NoError(t, err)

	_, err = fx.svc.Get(ctx, ticket.ID)
	requireDomainCode(t, err, "NOT_FOUND")
}

func TestListHidesClosedByDefault(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.List(ctx, TicketListInput{})
	require.NoError(t, err)
	assert.ElementsMatch(t, domain.OpenTicketStatuses(), fx.tickets.lastFilter.Statuses)

	_, err = fx.svc.List(ctx, TicketListInput{ShowClosed: true})
	require.NoError(t, err)
	assert.Empty(t, fx.tickets.lastFilter.Statuses)

	status := domain.TicketStatusClosed
	_, err = fx.svc.List(ctx, TicketListInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusClosed}, fx.tickets.lastFilter.Statuses)
}

func TestGetByNumber(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ticket, err := fx.svc.Create(ctx, fx.reporter, validCreateInput())
	require.NoError(t, err)

	found, err := fx.svc.GetByNumber(ctx, ticket.Number)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = fx.svc.GetByNumber(ctx, "TKT-2024-9999")
	requireDomainCode(t, err, "NOT_FOUND")
}
