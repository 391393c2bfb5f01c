package approval

import (
	"math/rand"
	"testing"
	"time"

	"github.com/fieldscope/approvald/model"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestWorkflow() model.ApprovalWorkflow {
	return NewWorkflow("wf-1", "report-1", testNow)
}

func TestNewWorkflow(t *testing.T) {
	wf := newTestWorkflow()

	if wf.Status != model.WorkflowStatusPending {
		t.Errorf("Status = %q, want pending", wf.Status)
	}
	if wf.CurrentStage != model.StageInspector {
		t.Errorf("CurrentStage = %q, want inspector", wf.CurrentStage)
	}
	if wf.Version != 1 {
		t.Errorf("Version = %d, want 1", wf.Version)
	}
	if len(wf.Stages) != 4 {
		t.Fatalf("len(Stages) = %d, want 4", len(wf.Stages))
	}
	for i, name := range model.StageNames {
		st := wf.Stages[i]
		if st.StageName != name {
			t.Errorf("stage %d name = %q, want %q", i, st.StageName, name)
		}
		if st.StageOrder != i+1 {
			t.Errorf("stage %q order = %d, want %d", name, st.StageOrder, i+1)
		}
		if st.Status != model.StageStatusPending {
			t.Errorf("stage %q status = %q, want pending", name, st.Status)
		}
	}
	if err := CheckInvariants(&wf); err != nil {
		t.Errorf("CheckInvariants() error = %v", err)
	}
}

func TestAssign_firstStage(t *testing.T) {
	wf := newTestWorkflow()

	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if wf.Status != model.WorkflowStatusInProgress {
		t.Errorf("Status = %q, want in_progress", wf.Status)
	}
	if wf.CurrentStage != model.StageInspector {
		t.Errorf("CurrentStage = %q, want inspector", wf.CurrentStage)
	}
	st := wf.StageAt(1)
	if st.Status != model.StageStatusInReview {
		t.Errorf("stage status = %q, want in_review", st.Status)
	}
	if st.ReviewerID != "insp-1" {
		t.Errorf("ReviewerID = %q, want insp-1", st.ReviewerID)
	}
	if err := CheckInvariants(&wf); err != nil {
		t.Errorf("CheckInvariants() error = %v", err)
	}
}

func TestAssign_skipAhead(t *testing.T) {
	wf := newTestWorkflow()

	// Engineer cannot start while the inspector stage is still pending.
	err := Assign(&wf, 2, "eng-1", testNow)
	if model.CodeOf(err) != model.ErrInvalidTransition {
		t.Fatalf("Assign(stage 2) code = %v, want INVALID_TRANSITION", model.CodeOf(err))
	}
}

func TestAssign_nonPendingStage(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	err := Assign(&wf, 1, "insp-2", testNow)
	if model.CodeOf(err) != model.ErrInvalidTransition {
		t.Fatalf("second Assign code = %v, want INVALID_TRANSITION", model.CodeOf(err))
	}
}

func TestAssign_unknownOrder(t *testing.T) {
	wf := newTestWorkflow()
	err := Assign(&wf, 9, "x", testNow)
	if model.CodeOf(err) != model.ErrInvalidTransition {
		t.Fatalf("Assign(order 9) code = %v, want INVALID_TRANSITION", model.CodeOf(err))
	}
}

func TestDecide_approveAdvances(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	decision, err := Decide(&wf, 1, model.OutcomeApprove, "insp-1", "looks good", testNow)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if decision.Terminal {
		t.Error("decision.Terminal = true after first stage, want false")
	}
	if decision.NextStage != model.StageEngineer {
		t.Errorf("NextStage = %q, want engineer", decision.NextStage)
	}
	if wf.CurrentStage != model.StageEngineer {
		t.Errorf("CurrentStage = %q, want engineer", wf.CurrentStage)
	}
	st := wf.StageAt(1)
	if st.Status != model.StageStatusApproved {
		t.Errorf("stage status = %q, want approved", st.Status)
	}
	if st.Comments != "looks good" {
		t.Errorf("Comments = %q, want %q", st.Comments, "looks good")
	}
	if st.ReviewedAt == nil {
		t.Error("ReviewedAt is nil after decision")
	}
}

func TestDecide_fullChain(t *testing.T) {
	wf := newTestWorkflow()

	for order := 1; order <= 4; order++ {
		if err := Assign(&wf, order, "reviewer", testNow); err != nil {
			t.Fatalf("Assign(stage %d) error = %v", order, err)
		}
		decision, err := Decide(&wf, order, model.OutcomeApprove, "reviewer", "", testNow)
		if err != nil {
			t.Fatalf("Decide(stage %d) error = %v", order, err)
		}
		if err := CheckInvariants(&wf); err != nil {
			t.Fatalf("CheckInvariants after stage %d: %v", order, err)
		}
		if order < 4 && decision.Terminal {
			t.Errorf("stage %d decision should not be terminal", order)
		}
		if order == 4 && !decision.Terminal {
			t.Error("last stage decision should be terminal")
		}
	}

	if wf.Status != model.WorkflowStatusApproved {
		t.Errorf("Status = %q, want approved", wf.Status)
	}
	if wf.CurrentStage != "" {
		t.Errorf("CurrentStage = %q, want empty on terminal workflow", wf.CurrentStage)
	}
}

func TestDecide_rejectSkipsRemaining(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if _, err := Decide(&wf, 1, model.OutcomeApprove, "insp-1", "", testNow); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if err := Assign(&wf, 2, "eng-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	decision, err := Decide(&wf, 2, model.OutcomeReject, "eng-1", "thickness readings invalid", testNow)
	if err != nil {
		t.Fatalf("Decide(reject) error = %v", err)
	}

	if !decision.Terminal {
		t.Error("reject decision should be terminal")
	}
	if wf.Status != model.WorkflowStatusRejected {
		t.Errorf("Status = %q, want rejected", wf.Status)
	}
	if wf.StageAt(2).Status != model.StageStatusRejected {
		t.Errorf("stage 2 status = %q, want rejected", wf.StageAt(2).Status)
	}
	// The stages that never ran are skipped, not left pending.
	for _, order := range []int{3, 4} {
		if got := wf.StageAt(order).Status; got != model.StageStatusSkipped {
			t.Errorf("stage %d status = %q, want skipped", order, got)
		}
	}
	if err := CheckInvariants(&wf); err != nil {
		t.Errorf("CheckInvariants() error = %v", err)
	}
}

func TestDecide_invalidOutcome(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	_, err := Decide(&wf, 1, "maybe", "insp-1", "", testNow)
	if model.CodeOf(err) != model.ErrValidationError {
		t.Fatalf("Decide(maybe) code = %v, want VALIDATION_ERROR", model.CodeOf(err))
	}
}

func TestDecide_stageNotInReview(t *testing.T) {
	wf := newTestWorkflow()

	_, err := Decide(&wf, 1, model.OutcomeApprove, "insp-1", "", testNow)
	if model.CodeOf(err) != model.ErrInvalidTransition {
		t.Fatalf("Decide(pending stage) code = %v, want INVALID_TRANSITION", model.CodeOf(err))
	}
}

func TestDecide_terminalWorkflow(t *testing.T) {
	wf := newTestWorkflow()
	if err := Cancel(&wf, testNow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	_, err := Decide(&wf, 1, model.OutcomeApprove, "insp-1", "", testNow)
	if model.CodeOf(err) != model.ErrWorkflowTerminal {
		t.Fatalf("Decide on cancelled code = %v, want WORKFLOW_TERMINAL", model.CodeOf(err))
	}
}

func TestCancel(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	if err := Cancel(&wf, testNow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if wf.Status != model.WorkflowStatusCancelled {
		t.Errorf("Status = %q, want cancelled", wf.Status)
	}
	if wf.CurrentStage != "" {
		t.Errorf("CurrentStage = %q, want empty", wf.CurrentStage)
	}
	for _, st := range wf.Stages {
		if st.Status != model.StageStatusSkipped {
			t.Errorf("stage %q status = %q, want skipped", st.StageName, st.Status)
		}
	}
	if err := CheckInvariants(&wf); err != nil {
		t.Errorf("CheckInvariants() error = %v", err)
	}
}

func TestCancel_preservesApprovedStages(t *testing.T) {
	wf := newTestWorkflow()
	if err := Assign(&wf, 1, "insp-1", testNow); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if _, err := Decide(&wf, 1, model.OutcomeApprove, "insp-1", "", testNow); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if err := Cancel(&wf, testNow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if got := wf.StageAt(1).Status; got != model.StageStatusApproved {
		t.Errorf("stage 1 status = %q, want approved preserved after cancel", got)
	}
	if got := wf.StageAt(2).Status; got != model.StageStatusSkipped {
		t.Errorf("stage 2 status = %q, want skipped", got)
	}
}

func TestCancel_terminal(t *testing.T) {
	wf := newTestWorkflow()
	if err := Cancel(&wf, testNow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	err := Cancel(&wf, testNow)
	if model.CodeOf(err) != model.ErrWorkflowTerminal {
		t.Fatalf("second Cancel code = %v, want WORKFLOW_TERMINAL", model.CodeOf(err))
	}
}

func TestCheckInvariants_randomOperationSequences(t *testing.T) {
	// Drive many workflows through random operation sequences, including
	// out-of-range stage orders and operations against the wrong stage. A
	// rejected operation must leave the workflow untouched, so the
	// invariants have to hold after every step regardless of outcome.
	rng := rand.New(rand.NewSource(1))

	applied := 0
	for run := 0; run < 250; run++ {
		wf := newTestWorkflow()
		for step := 0; step < 40; step++ {
			order := rng.Intn(6) // 0 and 5 are outside the valid 1-4 range
			var err error
			switch rng.Intn(4) {
			case 0:
				err = Assign(&wf, order, "reviewer", testNow)
			case 1:
				_, err = Decide(&wf, order, model.OutcomeApprove, "reviewer", "", testNow)
			case 2:
				_, err = Decide(&wf, order, model.OutcomeReject, "reviewer", "", testNow)
			case 3:
				err = Cancel(&wf, testNow)
			}
			if err == nil {
				applied++
			}
			if invErr := CheckInvariants(&wf); invErr != nil {
				t.Fatalf("run %d step %d (status %s, current %q): %v",
					run, step, wf.Status, wf.CurrentStage, invErr)
			}
		}
	}
	if applied == 0 {
		t.Fatal("no operation in any sequence was accepted")
	}
}

func TestCheckInvariants_violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(wf *model.ApprovalWorkflow)
	}{
		{
			name: "active without current stage",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.CurrentStage = ""
			},
		},
		{
			name: "terminal with current stage",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.Status = model.WorkflowStatusApproved
			},
		},
		{
			name: "two in_review stages",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.Status = model.WorkflowStatusInProgress
				wf.Stages[0].Status = model.StageStatusInReview
				wf.Stages[1].Status = model.StageStatusInReview
			},
		},
		{
			name: "pending with in_review stage",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.Stages[0].Status = model.StageStatusInReview
			},
		},
		{
			name: "unknown current stage",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.CurrentStage = "auditor"
			},
		},
		{
			name: "stage after current not pending",
			mutate: func(wf *model.ApprovalWorkflow) {
				wf.Stages[2].Status = model.StageStatusApproved
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := newTestWorkflow()
			tt.mutate(&wf)
			if err := CheckInvariants(&wf); err == nil {
				t.Error("CheckInvariants() = nil, want violation")
			}
		})
	}
}
