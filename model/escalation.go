package model

import "time"

// Escalation status constants. Only "resolved" is terminal; an escalated
// record can still be reassigned, reminded, or resolved.
const (
	EscalationStatusOpen       = "open"
	EscalationStatusInProgress = "in_progress"
	EscalationStatusResolved   = "resolved"
	EscalationStatusEscalated  = "escalated"
)

// Finding severity constants. Severity is carried from the underlying
// inspection finding and is never modified by this service.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// MaxEscalationLevel is the highest level an escalation can reach.
const MaxEscalationLevel = 3

// Escalation action types recorded in the audit trail. Raising records the
// creation of the escalation; escalated marks a level change and is never
// used for creation.
const (
	EscalationActionRaised       = "raised"
	EscalationActionReassigned   = "reassigned"
	EscalationActionReminderSent = "reminder_sent"
	EscalationActionEscalated    = "escalated"
	EscalationActionResolved     = "resolved"
	EscalationActionNoteAdded    = "note_added"
)

// Escalation tracks an overdue inspection until it is resolved. At most one
// active (non-resolved) record exists per inspection; the level only ever
// increases, and a resolved record is never reopened.
type Escalation struct {
	ID                string     `json:"id"`
	InspectionID      string     `json:"inspection_id"`
	AssetID           string     `json:"asset_id"`
	Severity          string     `json:"severity"`
	EscalationLevel   int        `json:"escalation_level"`
	AssignedToID      string     `json:"assigned_to_id"`
	Status            string     `json:"status"`
	ActualOverdueDays int        `json:"actual_overdue_days"`
	LastReminderSent  *time.Time `json:"last_reminder_sent,omitempty"`
	ResolutionDate    *time.Time `json:"resolution_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int        `json:"version"`
}

// Active reports whether the escalation still accepts state changes.
func (e *Escalation) Active() bool {
	return e.Status != EscalationStatusResolved
}

// EscalationComment is a free-text note linked to one escalation. Comments
// are append-only and remain permitted on resolved records as closing
// remarks.
type EscalationComment struct {
	ID           string    `json:"id"`
	EscalationID string    `json:"escalation_id"`
	UserID       string    `json:"user_id"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

// EscalationAction is an append-only audit record of a state-changing
// operation on an escalation, ordered by the store-assigned sequence.
type EscalationAction struct {
	ID            string    `json:"id"`
	EscalationID  string    `json:"escalation_id"`
	Seq           int64     `json:"seq"`
	Action        string    `json:"action"`
	PerformedByID string    `json:"performed_by_id,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EscalationDetail is the full read model for an escalation: the record,
// its comments, and its action audit trail.
type EscalationDetail struct {
	Escalation
	Comments []EscalationComment `json:"comments"`
	Actions  []EscalationAction  `json:"actions"`
}

// EscalationFilters are optional filters for listing escalations.
type EscalationFilters struct {
	Status       string
	Severity     string
	AssignedToID string
	Page         int
	PageSize     int
}
