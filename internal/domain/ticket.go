package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. The string values
// are persisted and exposed to clients, so they must stay stable.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "nuevo"
	TicketStatusOpen       TicketStatus = "abierto"
	TicketStatusInProgress TicketStatus = "en_progreso"
	TicketStatusPending    TicketStatus = "pendiente"
	TicketStatusResolved   TicketStatus = "resuelto"
	TicketStatusClosed     TicketStatus = "cerrado"
	TicketStatusCancelled  TicketStatus = "cancelado"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "baja"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "alta"
	TicketPriorityUrgent TicketPriority = "urgente"
)

// TicketCategory classifies the kind of issue reported.
type TicketCategory string

const (
	TicketCategoryHardware TicketCategory = "hardware"
	TicketCategorySoftware TicketCategory = "software"
	TicketCategoryNetwork  TicketCategory = "red"
	TicketCategoryAccess   TicketCategory = "acceso"
	TicketCategoryEmail    TicketCategory = "correo"
	TicketCategoryPrinter  TicketCategory = "impresora"
	TicketCategoryPhone    TicketCategory = "telefonia"
	TicketCategoryOther    TicketCategory = "otro"
)

// openStatuses is the "open set": tickets still being worked.
var openStatuses = map[TicketStatus]struct{}{
	TicketStatusNew:        {},
	TicketStatusOpen:       {},
	TicketStatusInProgress: {},
	TicketStatusPending:    {},
}

// closedStatuses is the terminal set used by overdue and close checks.
var closedStatuses = map[TicketStatus]struct{}{
	TicketStatusClosed:    {},
	TicketStatusCancelled: {},
}

// Ticket is the aggregate for support requests. Reporter and assignee names
// are snapshots taken at write time: display stays stable even if the user
// record changes later.
type Ticket struct {
	ID            string
	Number        string
	Title         string
	Description   string
	ReporterID    string
	ReporterName  string
	ReporterEmail string
	AssigneeID    *string
	AssigneeName  *string
	AssignedAt    *time.Time
	Status        TicketStatus
	Priority      TicketPriority
	Category      TicketCategory
	Location      string
	Department    string
	DueDate       *time.Time
	OpenedAt      time.Time
	ResolvedAt    *time.Time
	ClosedAt      *time.Time
	// ResolutionTime is elapsed minutes from OpenedAt to first resolution.
	ResolutionTime      *int
	Overdue             bool
	SatisfactionRating  *int
	SatisfactionComment *string
	GlpiTicketID        *int
	SyncedWithGlpiAt    *time.Time
	CustomFields        map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

// IsOpen reports whether the ticket is in the open set.
func (t *Ticket) IsOpen() bool {
	_, ok := openStatuses[t.Status]
	return ok
}

// IsClosed reports whether the ticket is in the terminal set.
func (t *Ticket) IsClosed() bool {
	_, ok := closedStatuses[t.Status]
	return ok
}

// IsResolved reports whether the ticket is resolved (not terminal).
func (t *Ticket) IsResolved() bool {
	return t.Status == TicketStatusResolved
}

// IsOverdue computes overdue live: due date passed and not terminal. The
// persisted Overdue column is an indexed hint only, never read here.
func (t *Ticket) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(now) && !t.IsClosed()
}

// CanBeAssigned reports whether assignment is allowed (open set only).
func (t *Ticket) CanBeAssigned() bool {
	return t.IsOpen()
}

// CanBeClosed reports whether the ticket may transition to closed.
func (t *Ticket) CanBeClosed() bool {
	return !t.IsClosed()
}

// CanBeReopened reports whether reopen is legal (closed or resolved only).
func (t *Ticket) CanBeReopened() bool {
	return t.IsClosed() || t.IsResolved()
}

// CanBeEditedBy reports whether the actor may edit ticket fields: the
// reporter, the current assignee, or an admin.
func (t *Ticket) CanBeEditedBy(actor Actor) bool {
	if actor.IsAdmin {
		return true
	}
	if t.ReporterID == actor.ID {
		return true
	}
	return t.AssigneeID != nil && *t.AssigneeID == actor.ID
}

// CanBeDeletedBy reports whether the actor may delete the ticket: only the
// original reporter or an admin.
func (t *Ticket) CanBeDeletedBy(actor Actor) bool {
	return actor.IsAdmin || t.ReporterID == actor.ID
}

// ValidTicketStatus reports whether s is a member of the status enum.
func ValidTicketStatus(s TicketStatus) bool {
	_, ok := statusLabels[s]
	return ok
}

// ValidTicketPriority reports whether p is a member of the priority enum.
func ValidTicketPriority(p TicketPriority) bool {
	_, ok := priorityLabels[p]
	return ok
}

// ValidTicketCategory reports whether c is a member of the category enum.
func ValidTicketCategory(c TicketCategory) bool {
	_, ok := categoryLabels[c]
	return ok
}

var statusLabels = map[TicketStatus]string{
	TicketStatusNew:        "Nuevo",
	TicketStatusOpen:       "Abierto",
	TicketStatusInProgress: "En Progreso",
	TicketStatusPending:    "Pendiente",
	TicketStatusResolved:   "Resuelto",
	TicketStatusClosed:     "Cerrado",
	TicketStatusCancelled:  "Cancelado",
}

var priorityLabels = map[TicketPriority]string{
	TicketPriorityLow:    "Baja",
	TicketPriorityNormal: "Normal",
	TicketPriorityHigh:   "Alta",
	TicketPriorityUrgent: "Urgente",
}

var categoryLabels = map[TicketCategory]string{
	TicketCategoryHardware: "Hardware",
	TicketCategorySoftware: "Software",
	TicketCategoryNetwork:  "Red",
	TicketCategoryAccess:   "Acceso",
	TicketCategoryEmail:    "Correo",
	TicketCategoryPrinter:  "Impresora",
	TicketCategoryPhone:    "Telefonía",
	TicketCategoryOther:    "Otro",
}

var statusColors = map[TicketStatus]string{
	TicketStatusNew:        "blue",
	TicketStatusOpen:       "cyan",
	TicketStatusInProgress: "yellow",
	TicketStatusPending:    "orange",
	TicketStatusResolved:   "green",
	TicketStatusClosed:     "gray",
	TicketStatusCancelled:  "red",
}

var priorityColors = map[TicketPriority]string{
	TicketPriorityLow:    "gray",
	TicketPriorityNormal: "blue",
	TicketPriorityHigh:   "orange",
	TicketPriorityUrgent: "red",
}

// Label returns the display label for the status, falling back to the raw
// value for unknown entries.
func (s TicketStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Color returns the display color for the status.
func (s TicketStatus) Color() string {
	if color, ok := statusColors[s]; ok {
		return color
	}
	return "gray"
}

// Label returns the display label for the priority.
func (p TicketPriority) Label() string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return string(p)
}

// Color returns the display color for the priority.
func (p TicketPriority) Color() string {
	if color, ok := priorityColors[p]; ok {
		return color
	}
	return "gray"
}

// Label returns the display label for the category.
func (c TicketCategory) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// TicketStatuses returns the value→label option map for forms and filters.
func TicketStatuses() map[TicketStatus]string {
	out := make(map[TicketStatus]string, len(statusLabels))
	for k, v := range statusLabels {
		out[k] = v
	}
	return out
}

// TicketPriorities returns the value→label option map.
func TicketPriorities() map[TicketPriority]string {
	out := make(map[TicketPriority]string, len(priorityLabels))
	for k, v := range priorityLabels {
		out[k] = v
	}
	return out
}

// TicketCategories returns the value→label option map.
func TicketCategories() map[TicketCategory]string {
	out := make(map[TicketCategory]string, len(categoryLabels))
	for k, v := range categoryLabels {
		out[k] = v
	}
	return out
}

// OpenTicketStatuses returns the open set, for list filtering.
func OpenTicketStatuses() []TicketStatus {
	return []TicketStatus{
		TicketStatusNew,
		TicketStatusOpen,
		TicketStatusInProgress,
		TicketStatusPending,
	}
}

// ClosedTicketStatuses returns the terminal set.
func ClosedTicketStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusClosed, TicketStatusCancelled}
}
