package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/model"
)

func handleWorkflowCreate(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			ReportID    string `json:"report_id"`
			InspectorID string `json:"inspector_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		wf, err := coord.SubmitReport(r.Context(), rctx, body.ReportID, body.InspectorID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wf)
	}
}

func handleWorkflowGet(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowID")

		detail, err := coord.GetWorkflow(r.Context(), rctx, workflowID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, detail)
	}
}

func handleWorkflowGetByReport(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		reportID := chi.URLParam(r, "reportID")

		detail, err := coord.GetWorkflowByReport(r.Context(), rctx, reportID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, detail)
	}
}

func handleWorkflowList(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := model.WorkflowFilters{
			Status:   r.URL.Query().Get("status"),
			Stage:    r.URL.Query().Get("stage"),
			Page:     queryInt(r, "page", 1),
			PageSize: queryInt(r, "page_size", 20),
		}

		workflows, totalCount, err := coord.ListWorkflows(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        workflows,
			"total_count": totalCount,
			"page":        filters.Page,
			"page_size":   filters.PageSize,
		})
	}
}

func handleWorkflowListPending(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		page := queryInt(r, "page", 1)
		pageSize := queryInt(r, "page_size", 20)

		workflows, totalCount, err := coord.ListPending(r.Context(), rctx, page, pageSize)
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        workflows,
			"total_count": totalCount,
			"page":        page,
			"page_size":   pageSize,
		})
	}
}

func handleWorkflowAssign(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowID")

		var body struct {
			Stage      string `json:"stage"`
			ReviewerID string `json:"reviewer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		wf, err := coord.AssignStage(r.Context(), rctx, workflowID, body.Stage, body.ReviewerID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

func handleWorkflowDecide(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowID")

		var body struct {
			StageOrder int    `json:"stage_order"`
			Outcome    string `json:"outcome"`
			Comments   string `json:"comments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		wf, err := coord.Decide(r.Context(), rctx, workflowID, body.StageOrder, body.Outcome, body.Comments)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

func handleWorkflowApproveMany(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			WorkflowIDs []string `json:"workflow_ids"`
			Comments    string   `json:"comments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if len(body.WorkflowIDs) == 0 {
			WriteValidationError(w, []model.FieldError{
				{Field: "workflow_ids", Code: "required", Message: "at least one workflow is required"},
			})
			return
		}

		results := coord.ApproveMany(r.Context(), rctx, body.WorkflowIDs, body.Comments)
		WriteJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func handleWorkflowCancel(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		workflowID := chi.URLParam(r, "workflowID")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		wf, err := coord.Cancel(r.Context(), rctx, workflowID, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
