// Package notify publishes integration events for downstream consumers
// (notification services, dashboards, reporting). Event delivery is
// best-effort: a failed publish is logged and never rolls back the state
// change that produced it.
package notify

import (
	"context"
	"time"
)

// Event types emitted by the coordinator.
const (
	EventWorkflowCreated       = "workflow.created"
	EventWorkflowStageAssigned = "workflow.stage_assigned"
	EventWorkflowStageAdvanced = "workflow.stage_advanced"
	EventWorkflowApproved      = "workflow.approved"
	EventWorkflowRejected      = "workflow.rejected"
	EventWorkflowCancelled     = "workflow.cancelled"

	EventEscalationRaised       = "escalation.raised"
	EventEscalationLevelChanged = "escalation.level_changed"
	EventEscalationReassigned   = "escalation.reassigned"
	EventEscalationReminderSent = "escalation.reminder_sent"
	EventEscalationResolved     = "escalation.resolved"
)

// Event is one integration event. EntityID is the workflow or escalation
// the event concerns; it doubles as the partition key so events for one
// entity stay ordered.
type Event struct {
	Type       string            `json:"type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Sink delivers integration events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
