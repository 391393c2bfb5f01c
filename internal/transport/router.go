package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldscope/approvald/internal/config"
	"github.com/fieldscope/approvald/internal/coordinator"
	"github.com/fieldscope/approvald/internal/observability"
	"github.com/fieldscope/approvald/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Coordinator        *coordinator.Coordinator
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Metrics            *observability.Metrics
	Readiness          observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Handle(deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// Authenticated routes get the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/workflows", func(r chi.Router) {
				r.Post("/", handleWorkflowCreate(deps.Coordinator))
				r.Get("/", handleWorkflowList(deps.Coordinator))
				r.Get("/pending", handleWorkflowListPending(deps.Coordinator))
				r.Post("/approve", handleWorkflowApproveMany(deps.Coordinator))
				r.Get("/by-report/{reportID}", handleWorkflowGetByReport(deps.Coordinator))
				r.Get("/{workflowID}", handleWorkflowGet(deps.Coordinator))
				r.Post("/{workflowID}/assign", handleWorkflowAssign(deps.Coordinator))
				r.Post("/{workflowID}/decide", handleWorkflowDecide(deps.Coordinator))
				r.Post("/{workflowID}/cancel", handleWorkflowCancel(deps.Coordinator))
			})

			r.Route("/escalations", func(r chi.Router) {
				r.Post("/", handleEscalationRaise(deps.Coordinator))
				r.Get("/", handleEscalationList(deps.Coordinator))
				r.Get("/{escalationID}", handleEscalationGet(deps.Coordinator))
				r.Post("/{escalationID}/reassign", handleEscalationReassign(deps.Coordinator))
				r.Post("/{escalationID}/reminder", handleEscalationReminder(deps.Coordinator))
				r.Post("/{escalationID}/resolve", handleEscalationResolve(deps.Coordinator))
				r.Post("/{escalationID}/escalate", handleEscalationEscalate(deps.Coordinator))
				r.Post("/{escalationID}/comments", handleEscalationComment(deps.Coordinator))
			})
		})
	})

	return r
}
