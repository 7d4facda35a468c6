package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesa-ayuda/helpdesk-service/internal/domain"
)

// ErrDuplicateTicketNumber is returned when an insert collides with the
// unique index on tickets.number.
var ErrDuplicateTicketNumber = errors.New("duplicate ticket number")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	ReporterID  *string
	AssigneeID  *string
	Statuses    []domain.TicketStatus
	Priority    *domain.TicketPriority
	Category    *domain.TicketCategory
	SearchTerm  *string
	OverdueOnly bool
	Limit       int
	Offset      int
}

// TicketStats aggregates dashboard counters.
type TicketStats struct {
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Pending    int64 `json:"pending"`
	Overdue    int64 `json:"overdue"`
}

// TicketRepository encapsulates ticket persistence. All reads exclude
// soft-deleted rows.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	SoftDelete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// NextSequence atomically bumps and returns the per-year ticket
	// sequence. Two concurrent callers never observe the same value.
	NextSequence(ctx context.Context, year int) (int, error)
	Stats(ctx context.Context, now time.Time) (*TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, title, description, reporter_id, reporter_name, reporter_email,
       assignee_id, assignee_name, assigned_at, status, priority, category, location, department,
       due_date, opened_at, resolved_at, closed_at, resolution_time, is_overdue,
       satisfaction_rating, satisfaction_comment, glpi_ticket_id, synced_with_glpi_at,
       custom_fields, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	fields, err := marshalCustomFields(ticket.CustomFields)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (number, title, description, reporter_id, reporter_name, reporter_email,
            assignee_id, assignee_name, assigned_at, status, priority, category, location, department,
            due_date, opened_at, is_overdue, custom_fields)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING id, created_at, updated_at`
	err = r.pool.QueryRow(ctx, query,
		ticket.Number,
		ticket.Title,
		ticket.Description,
		ticket.ReporterID,
		ticket.ReporterName,
		ticket.ReporterEmail,
		ticket.AssigneeID,
		ticket.AssigneeName,
		ticket.AssignedAt,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.Location,
		ticket.Department,
		ticket.DueDate,
		ticket.OpenedAt,
		ticket.Overdue,
		fields,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateTicketNumber
	}
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	fields, err := marshalCustomFields(ticket.CustomFields)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET title=$1, description=$2, assignee_id=$3, assignee_name=$4, assigned_at=$5,
            status=$6, priority=$7, category=$8, location=$9, department=$10, due_date=$11,
            resolved_at=$12, closed_at=$13, resolution_time=$14, is_overdue=$15,
            satisfaction_rating=$16, satisfaction_comment=$17, glpi_ticket_id=$18,
            synced_with_glpi_at=$19, custom_fields=$20, updated_at=NOW()
        WHERE id=$21 AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.AssigneeID,
		ticket.AssigneeName,
		ticket.AssignedAt,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.Location,
		ticket.Department,
		ticket.DueDate,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ResolutionTime,
		ticket.Overdue,
		ticket.SatisfactionRating,
		ticket.SatisfactionComment,
		ticket.GlpiTicketID,
		ticket.SyncedWithGlpiAt,
		fields,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1 AND deleted_at IS NULL`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE number=$1 AND deleted_at IS NULL`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

// SoftDelete marks the ticket and its comments as deleted in one
// transaction so no partial cascade is ever observable.
func (r *ticketRepository) SoftDelete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE tickets SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx, `UPDATE ticket_comments SET deleted_at=NOW() WHERE ticket_id=$1 AND deleted_at IS NULL`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) NextSequence(ctx context.Context, year int) (int, error) {
	// Single-statement upsert keeps the bump atomic under concurrency.
	const query = `
        INSERT INTO ticket_sequences (year, value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET value = ticket_sequences.value + 1
        RETURNING value`
	var value int
	if err := r.pool.QueryRow(ctx, query, year).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	if filter.ReporterID != nil {
		args = append(args, *filter.ReporterID)
		clauses = append(clauses, fmt.Sprintf("reporter_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.OverdueOnly {
		// The persisted flag is an indexed hint OR'd with the live check.
		clauses = append(clauses, fmt.Sprintf("(is_overdue OR (due_date IS NOT NULL AND due_date < NOW() AND status NOT IN ('%s','%s')))",
			domain.TicketStatusClosed, domain.TicketStatusCancelled))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(number) LIKE %s OR LOWER(title) LIKE %s OR LOWER(description) LIKE %s OR LOWER(reporter_name) LIKE %s)",
			placeholder, placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 15
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Stats(ctx context.Context, now time.Time) (*TicketStats, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE status IN ($1,$2,$3,$4)) AS open,
            COUNT(*) FILTER (WHERE status=$3) AS in_progress,
            COUNT(*) FILTER (WHERE status=$4) AS pending,
            COUNT(*) FILTER (WHERE is_overdue OR (due_date IS NOT NULL AND due_date < $5 AND status NOT IN ($6,$7))) AS overdue
        FROM tickets WHERE deleted_at IS NULL`
	var stats TicketStats
	if err := r.pool.QueryRow(ctx, query,
		domain.TicketStatusNew,
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusPending,
		now,
		domain.TicketStatusClosed,
		domain.TicketStatusCancelled,
	).Scan(&stats.Open, &stats.InProgress, &stats.Pending, &stats.Overdue); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanTicket(row)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var fields []byte
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Title,
		&ticket.Description,
		&ticket.ReporterID,
		&ticket.ReporterName,
		&ticket.ReporterEmail,
		&ticket.AssigneeID,
		&ticket.AssigneeName,
		&ticket.AssignedAt,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.Location,
		&ticket.Department,
		&ticket.DueDate,
		&ticket.OpenedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.ResolutionTime,
		&ticket.Overdue,
		&ticket.SatisfactionRating,
		&ticket.SatisfactionComment,
		&ticket.GlpiTicketID,
		&ticket.SyncedWithGlpiAt,
		&fields,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &ticket.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom_fields: %w", err)
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func marshalCustomFields(fields map[string]string) ([]byte, error) {
	if len(fields) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(fields)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
