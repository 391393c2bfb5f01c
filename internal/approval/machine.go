// Package approval implements the stage machine that drives an inspection
// report through its fixed four-stage review sequence. The machine operates
// on an in-memory workflow; persistence and audit logging belong to the
// coordinator, which invokes it under per-workflow mutual exclusion.
package approval

import (
	"fmt"
	"time"

	"github.com/fieldscope/approvald/model"
)

// NewWorkflow builds a fresh approval workflow for a submitted report. The
// workflow starts in pending at the inspector stage with all four stage
// records pending.
func NewWorkflow(id, reportID string, now time.Time) model.ApprovalWorkflow {
	stages := make([]model.StageRecord, 0, len(model.StageNames))
	for i, name := range model.StageNames {
		stages = append(stages, model.StageRecord{
			StageName:  name,
			StageOrder: i + 1,
			Status:     model.StageStatusPending,
		})
	}
	return model.ApprovalWorkflow{
		ID:           id,
		ReportID:     reportID,
		CurrentStage: model.StageInspector,
		Status:       model.WorkflowStatusPending,
		Stages:       stages,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

// Assign puts the stage with the given order into review by the given
// reviewer. The target stage must be pending and every lower-order stage
// must already be approved or skipped.
func Assign(wf *model.ApprovalWorkflow, stageOrder int, reviewerID string, now time.Time) error {
	if wf.Terminal() {
		return model.NewWorkflowTerminalError(
			fmt.Sprintf("workflow %q is %s", wf.ID, wf.Status),
		)
	}

	stage := wf.StageAt(stageOrder)
	if stage == nil {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("workflow %q has no stage with order %d", wf.ID, stageOrder),
		)
	}
	if stage.Status != model.StageStatusPending {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("stage %q is %s, cannot assign", stage.StageName, stage.Status),
		)
	}
	for _, prior := range wf.Stages {
		if prior.StageOrder >= stageOrder {
			continue
		}
		if prior.Status != model.StageStatusApproved && prior.Status != model.StageStatusSkipped {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("stage %q cannot start: stage %q is %s", stage.StageName, prior.StageName, prior.Status),
			)
		}
	}

	stage.Status = model.StageStatusInReview
	stage.ReviewerID = reviewerID
	wf.Status = model.WorkflowStatusInProgress
	wf.CurrentStage = stage.StageName
	wf.UpdatedAt = now
	return nil
}

// Decision describes the result of a Decide call so the coordinator can
// publish the right integration event.
type Decision struct {
	StageName string
	Outcome   string
	Terminal  bool
	NextStage string
}

// Decide records an approve or reject outcome on the stage with the given
// order, which must currently be in review.
//
// On approve the stage is marked approved; the workflow advances to the
// next stage, or becomes approved if this was the last one. On reject the
// workflow becomes rejected and every later stage is marked skipped, not
// pending; those stages never ran.
func Decide(wf *model.ApprovalWorkflow, stageOrder int, outcome, reviewerID, comments string, now time.Time) (Decision, error) {
	if wf.Terminal() {
		return Decision{}, model.NewWorkflowTerminalError(
			fmt.Sprintf("workflow %q is %s", wf.ID, wf.Status),
		)
	}
	if outcome != model.OutcomeApprove && outcome != model.OutcomeReject {
		return Decision{}, model.NewValidationError([]model.FieldError{
			{Field: "outcome", Code: "invalid", Message: fmt.Sprintf("outcome must be %q or %q", model.OutcomeApprove, model.OutcomeReject)},
		})
	}

	stage := wf.StageAt(stageOrder)
	if stage == nil {
		return Decision{}, model.NewInvalidTransitionError(
			fmt.Sprintf("workflow %q has no stage with order %d", wf.ID, stageOrder),
		)
	}
	if stage.Status != model.StageStatusInReview {
		return Decision{}, model.NewInvalidTransitionError(
			fmt.Sprintf("stage %q is %s, expected in_review", stage.StageName, stage.Status),
		)
	}

	reviewed := now
	stage.ReviewedAt = &reviewed
	stage.Comments = comments
	if reviewerID != "" {
		stage.ReviewerID = reviewerID
	}
	wf.UpdatedAt = now

	decision := Decision{StageName: stage.StageName, Outcome: outcome}

	if outcome == model.OutcomeReject {
		stage.Status = model.StageStatusRejected
		wf.Status = model.WorkflowStatusRejected
		wf.CurrentStage = ""
		for i := range wf.Stages {
			if wf.Stages[i].StageOrder > stageOrder {
				wf.Stages[i].Status = model.StageStatusSkipped
			}
		}
		decision.Terminal = true
		return decision, nil
	}

	stage.Status = model.StageStatusApproved
	next := wf.StageAt(stageOrder + 1)
	if next == nil {
		// Last stage approved: the workflow is done.
		wf.Status = model.WorkflowStatusApproved
		wf.CurrentStage = ""
		decision.Terminal = true
		return decision, nil
	}

	wf.Status = model.WorkflowStatusInProgress
	wf.CurrentStage = next.StageName
	decision.NextStage = next.StageName
	return decision, nil
}

// Cancel moves a pending or in-progress workflow to the terminal cancelled
// status. Approved and rejected workflows cannot be cancelled.
func Cancel(wf *model.ApprovalWorkflow, now time.Time) error {
	if wf.Terminal() {
		return model.NewWorkflowTerminalError(
			fmt.Sprintf("workflow %q is %s, cannot cancel", wf.ID, wf.Status),
		)
	}

	wf.Status = model.WorkflowStatusCancelled
	wf.CurrentStage = ""
	for i := range wf.Stages {
		switch wf.Stages[i].Status {
		case model.StageStatusPending, model.StageStatusInReview:
			wf.Stages[i].Status = model.StageStatusSkipped
		}
	}
	wf.UpdatedAt = now
	return nil
}

// CheckInvariants verifies the structural invariants of a workflow. It is
// used by tests and by the coordinator before persisting a mutation.
//
//   - CurrentStage is non-empty iff status is pending or in_progress.
//   - At most one stage is in_review when in_progress (zero while the
//     current stage awaits assignment), none in any other status.
//   - Stages below the current stage are approved or skipped; stages above
//     it are pending.
func CheckInvariants(wf *model.ApprovalWorkflow) error {
	active := wf.Status == model.WorkflowStatusPending || wf.Status == model.WorkflowStatusInProgress
	if active && wf.CurrentStage == "" {
		return fmt.Errorf("workflow %q: %s status requires a current stage", wf.ID, wf.Status)
	}
	if !active && wf.CurrentStage != "" {
		return fmt.Errorf("workflow %q: terminal status %s must not have a current stage", wf.ID, wf.Status)
	}

	inReview := 0
	for _, st := range wf.Stages {
		if st.Status == model.StageStatusInReview {
			inReview++
		}
	}
	if wf.Status == model.WorkflowStatusInProgress && inReview > 1 {
		return fmt.Errorf("workflow %q: in_progress allows at most one in_review stage, found %d", wf.ID, inReview)
	}
	if wf.Status != model.WorkflowStatusInProgress && inReview != 0 {
		return fmt.Errorf("workflow %q: %s status must have no in_review stage", wf.ID, wf.Status)
	}

	if active {
		current := 0
		for _, st := range wf.Stages {
			if st.StageName == wf.CurrentStage {
				current = st.StageOrder
			}
		}
		if current == 0 {
			return fmt.Errorf("workflow %q: unknown current stage %q", wf.ID, wf.CurrentStage)
		}
		for _, st := range wf.Stages {
			if st.StageOrder < current &&
				st.Status != model.StageStatusApproved && st.Status != model.StageStatusSkipped {
				return fmt.Errorf("workflow %q: stage %q before current is %s", wf.ID, st.StageName, st.Status)
			}
			if st.StageOrder > current && st.Status != model.StageStatusPending {
				return fmt.Errorf("workflow %q: stage %q after current is %s", wf.ID, st.StageName, st.Status)
			}
		}
	}
	return nil
}
