package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/internal/escalation"
	"github.com/fieldscope/approvald/internal/notify"
	"github.com/fieldscope/approvald/internal/store"
	"github.com/fieldscope/approvald/model"
)

// allCapsResolver grants every capability. Handler tests exercise transport
// concerns; capability gating is covered in the coordinator tests.
type allCapsResolver struct{}

func (allCapsResolver) Resolve(_ *model.RequestContext) (model.CapabilitySet, error) {
	return model.CapabilitySet{"*": true}, nil
}

func (allCapsResolver) Invalidate(_ string) {}

// newHandlerRouter builds a chi router with the workflow and escalation
// routes wired to a coordinator over a fresh memory store. Requests carry a
// pre-built RequestContext so the auth middleware is not needed.
func newHandlerRouter(t *testing.T) (chi.Router, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := escalation.NewEngine(st, escalation.Policy{Level2AfterDays: 7, Level3AfterDays: 14})
	coord := coordinator.New(st, engine, allCapsResolver{}, notify.NewCaptureSink(), zap.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rctx := &model.RequestContext{SubjectID: "user-1", Roles: []string{"admin"}}
			next.ServeHTTP(w, req.WithContext(model.WithRequestContext(req.Context(), rctx)))
		})
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", handleWorkflowCreate(coord))
			r.Get("/", handleWorkflowList(coord))
			r.Get("/pending", handleWorkflowListPending(coord))
			r.Post("/approve", handleWorkflowApproveMany(coord))
			r.Get("/by-report/{reportID}", handleWorkflowGetByReport(coord))
			r.Get("/{workflowID}", handleWorkflowGet(coord))
			r.Post("/{workflowID}/assign", handleWorkflowAssign(coord))
			r.Post("/{workflowID}/decide", handleWorkflowDecide(coord))
			r.Post("/{workflowID}/cancel", handleWorkflowCancel(coord))
		})
		r.Route("/escalations", func(r chi.Router) {
			r.Post("/", handleEscalationRaise(coord))
			r.Get("/", handleEscalationList(coord))
			r.Get("/{escalationID}", handleEscalationGet(coord))
			r.Post("/{escalationID}/reassign", handleEscalationReassign(coord))
			r.Post("/{escalationID}/reminder", handleEscalationReminder(coord))
			r.Post("/{escalationID}/resolve", handleEscalationResolve(coord))
			r.Post("/{escalationID}/escalate", handleEscalationEscalate(coord))
			r.Post("/{escalationID}/comments", handleEscalationComment(coord))
		})
	})
	return r, st
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

// --- workflow handlers ---

func TestHandleWorkflowCreate(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
		"report_id":    "rpt-1",
		"inspector_id": "insp-1",
	})
	if w.Code != 201 {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)
	if wf.ReportID != "rpt-1" {
		t.Errorf("report_id = %q, want rpt-1", wf.ReportID)
	}
	if wf.Status != model.WorkflowStatusInProgress {
		t.Errorf("status = %q, want in_progress", wf.Status)
	}
}

func TestHandleWorkflowCreate_missingReport(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{})
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrValidationError {
		t.Errorf("code = %q, want VALIDATION_ERROR", code)
	}
}

func TestHandleWorkflowCreate_invalidJSON(t *testing.T) {
	r, _ := newHandlerRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/workflows", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleWorkflowGet(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": "rpt-1"})
	var created model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&created)

	w = doJSON(t, r, "GET", "/api/v1/workflows/"+created.ID, nil)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var detail model.WorkflowDetail
	json.NewDecoder(w.Body).Decode(&detail)
	if detail.ID != created.ID {
		t.Errorf("id = %q, want %q", detail.ID, created.ID)
	}
	if len(detail.History) != 1 {
		t.Errorf("history length = %d, want 1", len(detail.History))
	}
}

func TestHandleWorkflowGet_notFound(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "GET", "/api/v1/workflows/missing", nil)
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrNotFound {
		t.Errorf("code = %q, want NOT_FOUND", code)
	}
}

func TestHandleWorkflowGetByReport(t *testing.T) {
	r, _ := newHandlerRouter(t)

	doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": "rpt-7"})

	w := doJSON(t, r, "GET", "/api/v1/workflows/by-report/rpt-7", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var detail model.WorkflowDetail
	json.NewDecoder(w.Body).Decode(&detail)
	if detail.ReportID != "rpt-7" {
		t.Errorf("report_id = %q, want rpt-7", detail.ReportID)
	}
}

func TestHandleWorkflowDecide_fullApprovalChain(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
		"report_id":    "rpt-1",
		"inspector_id": "insp-1",
	})
	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)

	// Inspector stage was assigned at creation; approve it, then assign and
	// approve each remaining stage.
	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"stage_order": 1,
		"outcome":     model.OutcomeApprove,
	})
	if w.Code != 200 {
		t.Fatalf("inspector decide status = %d: %s", w.Code, w.Body.String())
	}

	for i, stage := range []string{model.StageEngineer, model.StageRBI, model.StageTeamLeader} {
		w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/assign", map[string]string{
			"stage":       stage,
			"reviewer_id": "rev-" + stage,
		})
		if w.Code != 200 {
			t.Fatalf("assign %s status = %d: %s", stage, w.Code, w.Body.String())
		}
		w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
			"stage_order": i + 2,
			"outcome":     model.OutcomeApprove,
			"comments":    "looks good",
		})
		if w.Code != 200 {
			t.Fatalf("decide %s status = %d: %s", stage, w.Code, w.Body.String())
		}
	}

	var final model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&final)
	if final.Status != model.WorkflowStatusApproved {
		t.Errorf("final status = %q, want approved", final.Status)
	}
}

func TestHandleWorkflowDecide_reject(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
		"report_id":    "rpt-1",
		"inspector_id": "insp-1",
	})
	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)

	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"stage_order": 1,
		"outcome":     model.OutcomeReject,
		"comments":    "thickness readings missing",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rejected model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&rejected)
	if rejected.Status != model.WorkflowStatusRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}

	// Deciding a terminal workflow is a conflict.
	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"stage_order": 1,
		"outcome":     model.OutcomeApprove,
	})
	if w.Code != 409 {
		t.Fatalf("terminal decide status = %d, want 409", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrWorkflowTerminal {
		t.Errorf("code = %q, want WORKFLOW_TERMINAL", code)
	}
}

func TestHandleWorkflowDecide_staleStageOrder(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
		"report_id":    "rpt-1",
		"inspector_id": "insp-1",
	})
	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)

	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"stage_order": 1,
		"outcome":     model.OutcomeApprove,
	})
	if w.Code != 200 {
		t.Fatalf("inspector decide status = %d: %s", w.Code, w.Body.String())
	}

	// A client retrying the inspector decision after the workflow moved on
	// must not decide the engineer stage.
	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"stage_order": 1,
		"outcome":     model.OutcomeApprove,
	})
	if w.Code != 422 {
		t.Fatalf("retried decide status = %d, want 422", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrInvalidTransition {
		t.Errorf("code = %q, want INVALID_TRANSITION", code)
	}

	// Omitting stage_order is a validation error, never an implicit decide
	// of the current stage.
	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/decide", map[string]any{
		"outcome": model.OutcomeApprove,
	})
	if w.Code != 422 {
		t.Fatalf("missing stage_order status = %d, want 422", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrValidationError {
		t.Errorf("code = %q, want VALIDATION_ERROR", code)
	}
}

func TestHandleWorkflowAssign_unknownStage(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": "rpt-1"})
	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)

	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/assign", map[string]string{
		"stage":       "auditor",
		"reviewer_id": "rev-1",
	})
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestHandleWorkflowCancel(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": "rpt-1"})
	var wf model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&wf)

	w = doJSON(t, r, "POST", "/api/v1/workflows/"+wf.ID+"/cancel", map[string]string{
		"reason": "duplicate submission",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var cancelled model.ApprovalWorkflow
	json.NewDecoder(w.Body).Decode(&cancelled)
	if cancelled.Status != model.WorkflowStatusCancelled {
		t.Errorf("status = %q, want cancelled", cancelled.Status)
	}
}

func TestHandleWorkflowList(t *testing.T) {
	r, _ := newHandlerRouter(t)

	for _, id := range []string{"rpt-1", "rpt-2", "rpt-3"} {
		doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": id})
	}

	w := doJSON(t, r, "GET", "/api/v1/workflows?page_size=2", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data       []model.ApprovalWorkflow `json:"data"`
		TotalCount int                      `json:"total_count"`
		Page       int                      `json:"page"`
		PageSize   int                      `json:"page_size"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.TotalCount != 3 {
		t.Errorf("total_count = %d, want 3", resp.TotalCount)
	}
	if len(resp.Data) != 2 {
		t.Errorf("data length = %d, want 2", len(resp.Data))
	}
	if resp.PageSize != 2 {
		t.Errorf("page_size = %d, want 2", resp.PageSize)
	}
}

func TestHandleWorkflowListPending(t *testing.T) {
	r, _ := newHandlerRouter(t)

	doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
		"report_id":    "rpt-1",
		"inspector_id": "insp-1",
	})
	// An unassigned workflow stays pending, not in progress.
	doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{"report_id": "rpt-2"})

	w := doJSON(t, r, "GET", "/api/v1/workflows/pending", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data       []model.ApprovalWorkflow `json:"data"`
		TotalCount int                      `json:"total_count"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.TotalCount != 1 {
		t.Errorf("total_count = %d, want 1", resp.TotalCount)
	}
}

func TestHandleWorkflowApproveMany(t *testing.T) {
	r, _ := newHandlerRouter(t)

	var ids []string
	for _, rpt := range []string{"rpt-1", "rpt-2"} {
		w := doJSON(t, r, "POST", "/api/v1/workflows", map[string]string{
			"report_id":    rpt,
			"inspector_id": "insp-1",
		})
		var wf model.ApprovalWorkflow
		json.NewDecoder(w.Body).Decode(&wf)
		ids = append(ids, wf.ID)
	}
	ids = append(ids, "missing")

	w := doJSON(t, r, "POST", "/api/v1/workflows/approve", map[string]any{
		"workflow_ids": ids,
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Results []model.DecisionResult `json:"results"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Results) != 3 {
		t.Fatalf("results length = %d, want 3", len(resp.Results))
	}
	if resp.Results[0].Err != nil || resp.Results[1].Err != nil {
		t.Error("first two results should succeed")
	}
	if resp.Results[2].Err == nil || resp.Results[2].Err.Code != model.ErrNotFound {
		t.Errorf("third result should be NOT_FOUND, got %+v", resp.Results[2].Err)
	}
}

func TestHandleWorkflowApproveMany_emptyBatch(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/workflows/approve", map[string]any{
		"workflow_ids": []string{},
	})
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

// --- escalation handlers ---

func raiseTestEscalation(t *testing.T, r chi.Router, inspectionID string, overdueDays int) model.Escalation {
	t.Helper()
	w := doJSON(t, r, "POST", "/api/v1/escalations", map[string]any{
		"inspection_id":  inspectionID,
		"asset_id":       "asset-1",
		"severity":       model.SeverityHigh,
		"assigned_to_id": "insp-1",
		"overdue_days":   overdueDays,
	})
	if w.Code != 201 {
		t.Fatalf("raise status = %d: %s", w.Code, w.Body.String())
	}
	var esc model.Escalation
	json.NewDecoder(w.Body).Decode(&esc)
	return esc
}

func TestHandleEscalationRaise(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)
	if esc.EscalationLevel != 1 {
		t.Errorf("level = %d, want 1", esc.EscalationLevel)
	}
	if esc.Status != model.EscalationStatusOpen {
		t.Errorf("status = %q, want open", esc.Status)
	}
}

func TestHandleEscalationRaise_validation(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/escalations", map[string]any{
		"asset_id": "asset-1",
		"severity": "bogus",
	})
	if w.Code != 422 {
		t.Fatalf("status = %d, want 422: %s", w.Code, w.Body.String())
	}
}

func TestHandleEscalationGet(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	w := doJSON(t, r, "GET", "/api/v1/escalations/"+esc.ID, nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var detail model.EscalationDetail
	json.NewDecoder(w.Body).Decode(&detail)
	if detail.ID != esc.ID {
		t.Errorf("id = %q, want %q", detail.ID, esc.ID)
	}
	if len(detail.Actions) != 1 {
		t.Errorf("actions length = %d, want 1", len(detail.Actions))
	}
}

func TestHandleEscalationList(t *testing.T) {
	r, _ := newHandlerRouter(t)

	raiseTestEscalation(t, r, "insp-case-1", 3)
	raiseTestEscalation(t, r, "insp-case-2", 8)

	w := doJSON(t, r, "GET", "/api/v1/escalations?status=open", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data       []model.Escalation `json:"data"`
		TotalCount int                `json:"total_count"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.TotalCount != 2 {
		t.Errorf("total_count = %d, want 2", resp.TotalCount)
	}
}

func TestHandleEscalationReassign(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/reassign", map[string]string{
		"new_inspector_id": "insp-2",
		"reason":           "workload",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var updated model.Escalation
	json.NewDecoder(w.Body).Decode(&updated)
	if updated.AssignedToID != "insp-2" {
		t.Errorf("assigned_to_id = %q, want insp-2", updated.AssignedToID)
	}
}

func TestHandleEscalationReminder(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/reminder", nil)
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var updated model.Escalation
	json.NewDecoder(w.Body).Decode(&updated)
	if updated.LastReminderSent == nil {
		t.Error("last_reminder_sent should be set")
	}
}

func TestHandleEscalationResolve_andConflict(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/resolve", map[string]string{
		"note": "inspection completed",
	})
	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// A second resolve is ALREADY_RESOLVED.
	w = doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/resolve", map[string]string{})
	if w.Code != 409 {
		t.Fatalf("second resolve status = %d, want 409", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrAlreadyResolved {
		t.Errorf("code = %q, want ALREADY_RESOLVED", code)
	}
}

func TestHandleEscalationEscalate_maxLevel(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	// 1 → 2 → 3, then the cap.
	for i := 0; i < 2; i++ {
		w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/escalate", map[string]string{
			"reason": "no response",
		})
		if w.Code != 200 {
			t.Fatalf("escalate status = %d: %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/escalate", map[string]string{
		"reason": "still nothing",
	})
	if w.Code != 409 {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if code := errorCode(t, w); code != model.ErrMaxLevelReached {
		t.Errorf("code = %q, want MAX_LEVEL_REACHED", code)
	}
}

func TestHandleEscalationComment(t *testing.T) {
	r, _ := newHandlerRouter(t)

	esc := raiseTestEscalation(t, r, "insp-case-1", 3)

	w := doJSON(t, r, "POST", "/api/v1/escalations/"+esc.ID+"/comments", map[string]string{
		"text": "called the inspector, awaiting callback",
	})
	if w.Code != 201 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var comment model.EscalationComment
	json.NewDecoder(w.Body).Decode(&comment)
	if comment.EscalationID != esc.ID {
		t.Errorf("escalation_id = %q, want %q", comment.EscalationID, esc.ID)
	}
}

func TestHandlers_missingRequestContext(t *testing.T) {
	st := store.NewMemoryStore()
	engine := escalation.NewEngine(st, escalation.Policy{Level2AfterDays: 7, Level3AfterDays: 14})
	coord := coordinator.New(st, engine, allCapsResolver{}, nil, zap.NewNop())

	handlers := map[string]http.HandlerFunc{
		"workflow create":    handleWorkflowCreate(coord),
		"workflow get":       handleWorkflowGet(coord),
		"workflow decide":    handleWorkflowDecide(coord),
		"escalation raise":   handleEscalationRaise(coord),
		"escalation get":     handleEscalationGet(coord),
		"escalation resolve": handleEscalationResolve(coord),
	}

	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", bytes.NewBufferString("{}"))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != 401 {
				t.Errorf("status = %d, want 401 without request context", w.Code)
			}
		})
	}
}

// --- queryInt tests ---

func TestQueryInt_default(t *testing.T) {
	req := httptest.NewRequest("GET", "/?other=1", nil)
	if got := queryInt(req, "page", 1); got != 1 {
		t.Errorf("queryInt empty = %d, want 1", got)
	}
}

func TestQueryInt_parsed(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=5", nil)
	if got := queryInt(req, "page", 1); got != 5 {
		t.Errorf("queryInt = %d, want 5", got)
	}
}

func TestQueryInt_invalid(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=abc", nil)
	if got := queryInt(req, "page", 3); got != 3 {
		t.Errorf("queryInt invalid = %d, want default 3", got)
	}
	req = httptest.NewRequest("GET", "/?page=-2", nil)
	if got := queryInt(req, "page", 3); got != 3 {
		t.Errorf("queryInt negative = %d, want default 3", got)
	}
}
