// Package store persists approval workflows, escalations, and their
// append-only audit trails. All updates use optimistic concurrency: the
// caller supplies the version it read, and a mismatched version fails with
// CONFLICT instead of overwriting a concurrent write.
package store

import (
	"context"

	"github.com/fieldscope/approvald/model"
)

// Store is the repository contract consumed by the approval machine, the
// escalation engine, and the coordinator.
type Store interface {
	// CreateWorkflow persists a new approval workflow. Fails with CONFLICT
	// if a workflow already exists for the same report.
	CreateWorkflow(ctx context.Context, wf model.ApprovalWorkflow) error

	// GetWorkflow retrieves a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (model.ApprovalWorkflow, error)

	// GetWorkflowByReport retrieves the workflow for a report, if any.
	GetWorkflowByReport(ctx context.Context, reportID string) (model.ApprovalWorkflow, error)

	// UpdateWorkflow persists an updated workflow. The version must match
	// the stored version; returns CONFLICT if it has changed.
	UpdateWorkflow(ctx context.Context, wf model.ApprovalWorkflow) error

	// ListWorkflows returns workflows matching the filters, newest first,
	// together with the total count before pagination.
	ListWorkflows(ctx context.Context, filters model.WorkflowFilters) ([]model.ApprovalWorkflow, int, error)

	// AppendHistory adds an entry to a workflow's audit trail. The store
	// assigns the per-workflow sequence number.
	AppendHistory(ctx context.Context, entry model.HistoryEntry) error

	// ListHistory returns all history entries for a workflow in append order.
	ListHistory(ctx context.Context, workflowID string) ([]model.HistoryEntry, error)

	// CreateEscalation persists a new escalation record.
	CreateEscalation(ctx context.Context, esc model.Escalation) error

	// GetEscalation retrieves an escalation by ID.
	GetEscalation(ctx context.Context, id string) (model.Escalation, error)

	// FindActiveEscalationByInspection returns the non-resolved escalation
	// for an inspection, or NOT_FOUND if none exists.
	FindActiveEscalationByInspection(ctx context.Context, inspectionID string) (model.Escalation, error)

	// UpdateEscalation persists an updated escalation with optimistic
	// locking, as UpdateWorkflow does for workflows.
	UpdateEscalation(ctx context.Context, esc model.Escalation) error

	// ListEscalations returns escalations matching the filters, newest first.
	ListEscalations(ctx context.Context, filters model.EscalationFilters) ([]model.Escalation, int, error)

	// AppendAction adds an entry to an escalation's audit trail. The store
	// assigns the per-escalation sequence number.
	AppendAction(ctx context.Context, action model.EscalationAction) error

	// ListActions returns all actions for an escalation in append order.
	ListActions(ctx context.Context, escalationID string) ([]model.EscalationAction, error)

	// AppendComment adds a free-text comment to an escalation.
	AppendComment(ctx context.Context, comment model.EscalationComment) error

	// ListComments returns all comments for an escalation, oldest first.
	ListComments(ctx context.Context, escalationID string) ([]model.EscalationComment, error)
}
