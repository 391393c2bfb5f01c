package model

import "time"

// Workflow status constants.
const (
	WorkflowStatusPending    = "pending"
	WorkflowStatusInProgress = "in_progress"
	WorkflowStatusApproved   = "approved"
	WorkflowStatusRejected   = "rejected"
	WorkflowStatusCancelled  = "cancelled"
)

// Stage status constants.
const (
	StageStatusPending  = "pending"
	StageStatusInReview = "in_review"
	StageStatusApproved = "approved"
	StageStatusRejected = "rejected"
	StageStatusSkipped  = "skipped"
)

// Review stage names, in their fixed order.
const (
	StageInspector  = "inspector"
	StageEngineer   = "engineer"
	StageRBI        = "rbi"
	StageTeamLeader = "team_leader"
)

// StageNames lists the four review stages in order. Stage order is fixed for
// every workflow instance and never reordered.
var StageNames = [4]string{StageInspector, StageEngineer, StageRBI, StageTeamLeader}

// Decision outcomes.
const (
	OutcomeApprove = "approve"
	OutcomeReject  = "reject"
)

// History actions recorded in the workflow audit trail.
const (
	ActionCreated   = "created"
	ActionSubmitted = "submitted"
	ActionAssigned  = "assigned"
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionCancelled = "cancelled"
)

// ApprovalWorkflow tracks a submitted inspection report through the four
// sequential review stages. There is exactly one workflow per report, and a
// workflow is retained forever once created, even after reaching a terminal
// status.
type ApprovalWorkflow struct {
	ID           string        `json:"id"`
	ReportID     string        `json:"report_id"`
	CurrentStage string        `json:"current_stage,omitempty"`
	Status       string        `json:"status"`
	Stages       []StageRecord `json:"stages"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int           `json:"version"`
}

// Terminal reports whether the workflow has reached a final status.
func (w *ApprovalWorkflow) Terminal() bool {
	switch w.Status {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusCancelled:
		return true
	}
	return false
}

// StageAt returns the stage record with the given order (1-4), or nil.
func (w *ApprovalWorkflow) StageAt(order int) *StageRecord {
	for i := range w.Stages {
		if w.Stages[i].StageOrder == order {
			return &w.Stages[i]
		}
	}
	return nil
}

// StageRecord is one review stage within a workflow. Stages with order below
// the current stage are all approved or skipped; stages above it are pending.
type StageRecord struct {
	StageName  string     `json:"stage_name"`
	StageOrder int        `json:"stage_order"`
	ReviewerID string     `json:"reviewer_id,omitempty"`
	Status     string     `json:"status"`
	Comments   string     `json:"comments,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// HistoryEntry is an immutable, append-only audit record of a workflow
// action. Entries are ordered by the store-assigned sequence number, which
// preserves real invocation order per workflow.
type HistoryEntry struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflow_id"`
	Seq           int64     `json:"seq"`
	Action        string    `json:"action"`
	PerformedByID string    `json:"performed_by_id,omitempty"`
	StageName     string    `json:"stage_name,omitempty"`
	Comments      string    `json:"comments,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WorkflowDetail is the full read model for a workflow: the instance, its
// stages, and its complete history.
type WorkflowDetail struct {
	ApprovalWorkflow
	History []HistoryEntry `json:"history"`
}

// WorkflowFilters are optional filters for listing workflows.
type WorkflowFilters struct {
	Status   string
	Stage    string
	Page     int
	PageSize int
}

// DecisionResult is the per-workflow outcome of a bulk approval. Bulk
// operations are not atomic across the batch; callers inspect each entry.
type DecisionResult struct {
	WorkflowID string         `json:"workflow_id"`
	Status     string         `json:"status,omitempty"`
	Err        *ErrorEnvelope `json:"error,omitempty"`
}
