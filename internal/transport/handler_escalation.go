package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/internal/escalation"
	"github.com/fieldscope/approvald/model"
)

func handleEscalationRaise(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			InspectionID string `json:"inspection_id"`
			AssetID      string `json:"asset_id"`
			Severity     string `json:"severity"`
			AssignedToID string `json:"assigned_to_id"`
			OverdueDays  int    `json:"overdue_days"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		esc, err := coord.RaiseEscalation(r.Context(), rctx, escalation.RaiseInput{
			InspectionID: body.InspectionID,
			AssetID:      body.AssetID,
			Severity:     body.Severity,
			AssignedToID: body.AssignedToID,
			OverdueDays:  body.OverdueDays,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, esc)
	}
}

func handleEscalationGet(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		detail, err := coord.GetEscalation(r.Context(), rctx, escalationID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, detail)
	}
}

func handleEscalationList(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := model.EscalationFilters{
			Status:       r.URL.Query().Get("status"),
			Severity:     r.URL.Query().Get("severity"),
			AssignedToID: r.URL.Query().Get("assigned_to_id"),
			Page:         queryInt(r, "page", 1),
			PageSize:     queryInt(r, "page_size", 20),
		}

		escalations, totalCount, err := coord.ListEscalations(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        escalations,
			"total_count": totalCount,
			"page":        filters.Page,
			"page_size":   filters.PageSize,
		})
	}
}

func handleEscalationReassign(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		var body struct {
			NewInspectorID string `json:"new_inspector_id"`
			Reason         string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		esc, err := coord.ReassignEscalation(r.Context(), rctx, escalationID, body.NewInspectorID, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, esc)
	}
}

func handleEscalationReminder(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		esc, err := coord.SendReminder(r.Context(), rctx, escalationID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, esc)
	}
}

func handleEscalationResolve(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		var body struct {
			Note string `json:"note"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		esc, err := coord.ResolveEscalation(r.Context(), rctx, escalationID, body.Note)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, esc)
	}
}

func handleEscalationEscalate(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		esc, err := coord.EscalateHigher(r.Context(), rctx, escalationID, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, esc)
	}
}

func handleEscalationComment(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		escalationID := chi.URLParam(r, "escalationID")

		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		comment, err := coord.AddEscalationComment(r.Context(), rctx, escalationID, body.Text)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, comment)
	}
}
