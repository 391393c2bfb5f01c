// Package coordinator is the façade in front of the approval stage machine
// and the escalation engine. It owns per-entity mutual exclusion,
// capability checks, the append-only history trail, and integration event
// publishing. Transport handlers call only this package.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldscope/approvald/internal/approval"
	"github.com/fieldscope/approvald/internal/escalation"
	"github.com/fieldscope/approvald/internal/notify"
	"github.com/fieldscope/approvald/internal/store"
	"github.com/fieldscope/approvald/model"
)

// Capabilities gating coordinator operations. Stage decisions are gated per
// stage: "approvals:decide:" + stage name.
const (
	CapApprovalsCreate = "approvals:create"
	CapApprovalsView   = "approvals:view"
	CapApprovalsAssign = "approvals:assign"
	CapApprovalsCancel = "approvals:cancel"

	CapEscalationsView     = "escalations:view"
	CapEscalationsRaise    = "escalations:raise"
	CapEscalationsReassign = "escalations:reassign"
	CapEscalationsRemind   = "escalations:remind"
	CapEscalationsResolve  = "escalations:resolve"
	CapEscalationsEscalate = "escalations:escalate"
	CapEscalationsComment  = "escalations:comment"
)

// DecideCapability returns the capability required to decide the given
// review stage.
func DecideCapability(stageName string) string {
	return "approvals:decide:" + stageName
}

// listPageSize is the batch size for store reads that must visit every
// matching record, not just the first page.
const listPageSize = 500

// Coordinator wires the stage machine and escalation engine to the store,
// the capability resolver, and the notification sink.
type Coordinator struct {
	store       store.Store
	escalations *escalation.Engine
	capResolver model.CapabilityResolver
	sink        notify.Sink
	logger      *zap.Logger
	locks       *keyedMutex
	now         func() time.Time
}

// New creates a coordinator.
func New(
	st store.Store,
	escalations *escalation.Engine,
	capResolver model.CapabilityResolver,
	sink notify.Sink,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		store:       st,
		escalations: escalations,
		capResolver: capResolver,
		sink:        sink,
		logger:      logger,
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the coordinator clock. For testing.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// SubmitReport creates the approval workflow for a submitted inspection
// report. When inspectorID is given the inspector stage is assigned
// immediately, so the workflow starts in progress.
func (c *Coordinator) SubmitReport(
	ctx context.Context,
	rctx *model.RequestContext,
	reportID, inspectorID string,
) (model.ApprovalWorkflow, error) {
	if err := c.require(rctx, CapApprovalsCreate); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if reportID == "" {
		return model.ApprovalWorkflow{}, model.NewValidationError([]model.FieldError{
			{Field: "report_id", Code: "required", Message: "report is required"},
		})
	}

	unlock := c.locks.Lock("report:" + reportID)
	defer unlock()

	now := c.now()
	wf := approval.NewWorkflow(uuid.New().String(), reportID, now)
	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.appendHistory(ctx, wf.ID, model.ActionCreated, rctx.SubjectID, "", ""); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventWorkflowCreated,
		EntityID:   wf.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: now,
		Attributes: map[string]string{"report_id": reportID},
	})

	if inspectorID == "" {
		return wf, nil
	}

	if err := approval.Assign(&wf, 1, inspectorID, now); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.persist(ctx, &wf); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.appendHistory(ctx, wf.ID, model.ActionAssigned, rctx.SubjectID, model.StageInspector, ""); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventWorkflowStageAssigned,
		EntityID:   wf.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: now,
		Attributes: map[string]string{"stage": model.StageInspector, "reviewer_id": inspectorID},
	})
	return wf, nil
}

// AssignStage puts a review stage into review by the given reviewer.
func (c *Coordinator) AssignStage(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID, stageName, reviewerID string,
) (model.ApprovalWorkflow, error) {
	if err := c.require(rctx, CapApprovalsAssign); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	order := stageOrderOf(stageName)
	if order == 0 {
		return model.ApprovalWorkflow{}, model.NewValidationError([]model.FieldError{
			{Field: "stage", Code: "invalid", Message: fmt.Sprintf("unknown stage %q", stageName)},
		})
	}
	if reviewerID == "" {
		return model.ApprovalWorkflow{}, model.NewValidationError([]model.FieldError{
			{Field: "reviewer_id", Code: "required", Message: "reviewer is required"},
		})
	}

	unlock := c.locks.Lock("wf:" + workflowID)
	defer unlock()

	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.ApprovalWorkflow{}, err
	}

	now := c.now()
	if err := approval.Assign(&wf, order, reviewerID, now); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.persist(ctx, &wf); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.appendHistory(ctx, wf.ID, model.ActionAssigned, rctx.SubjectID, stageName, ""); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventWorkflowStageAssigned,
		EntityID:   wf.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: now,
		Attributes: map[string]string{"stage": stageName, "reviewer_id": reviewerID},
	})
	return wf, nil
}

// Decide records the caller's approve or reject decision on the stage with
// the given order. The order names the stage the caller intends to decide;
// if that stage is not the one under review the decision fails with
// INVALID_TRANSITION, so a duplicate or re-sent request cannot approve the
// stage that came after it. The caller needs the decide capability for the
// named stage; exactly one history entry is appended per successful
// decision, none on failure.
func (c *Coordinator) Decide(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID string,
	stageOrder int,
	outcome, comments string,
) (model.ApprovalWorkflow, error) {
	if stageOrder < 1 || stageOrder > len(model.StageNames) {
		return model.ApprovalWorkflow{}, model.NewValidationError([]model.FieldError{
			{Field: "stage_order", Code: "invalid", Message: fmt.Sprintf("stage order must be between 1 and %d", len(model.StageNames))},
		})
	}

	unlock := c.locks.Lock("wf:" + workflowID)
	defer unlock()

	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.ApprovalWorkflow{}, err
	}
	return c.decide(ctx, rctx, wf, stageOrder, outcome, comments)
}

// decide runs under the per-workflow lock with the workflow already loaded.
func (c *Coordinator) decide(
	ctx context.Context,
	rctx *model.RequestContext,
	wf model.ApprovalWorkflow,
	stageOrder int,
	outcome, comments string,
) (model.ApprovalWorkflow, error) {
	if wf.Terminal() {
		return model.ApprovalWorkflow{}, model.NewWorkflowTerminalError(
			fmt.Sprintf("workflow %q is %s", wf.ID, wf.Status),
		)
	}
	stage := wf.StageAt(stageOrder)
	if stage == nil {
		return model.ApprovalWorkflow{}, model.NewInvalidTransitionError(
			fmt.Sprintf("workflow %q has no stage with order %d", wf.ID, stageOrder),
		)
	}
	if err := c.require(rctx, DecideCapability(stage.StageName)); err != nil {
		return model.ApprovalWorkflow{}, err
	}

	now := c.now()
	decision, err := approval.Decide(&wf, stageOrder, outcome, rctx.SubjectID, comments, now)
	if err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.persist(ctx, &wf); err != nil {
		return model.ApprovalWorkflow{}, err
	}

	action := model.ActionApproved
	if outcome == model.OutcomeReject {
		action = model.ActionRejected
	}
	if err := c.appendHistory(ctx, wf.ID, action, rctx.SubjectID, decision.StageName, comments); err != nil {
		return model.ApprovalWorkflow{}, err
	}

	c.publish(ctx, decisionEvent(wf, decision, rctx.SubjectID, now))
	return wf, nil
}

// ApproveMany approves the current stage of each workflow in ids. The
// batch is not atomic: each workflow succeeds or fails on its own, and
// the result slice preserves input order.
func (c *Coordinator) ApproveMany(
	ctx context.Context,
	rctx *model.RequestContext,
	ids []string,
	comments string,
) []model.DecisionResult {
	results := make([]model.DecisionResult, 0, len(ids))
	for _, id := range ids {
		wf, err := c.approveCurrent(ctx, rctx, id, comments)
		result := model.DecisionResult{WorkflowID: id}
		if err != nil {
			result.Err = asEnvelope(err)
		} else {
			result.Status = wf.Status
		}
		results = append(results, result)
	}
	return results
}

// approveCurrent approves whatever stage is under review right now. Bulk
// approval carries no per-stage intent from the caller, so the order is
// read from the workflow under its lock.
func (c *Coordinator) approveCurrent(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID, comments string,
) (model.ApprovalWorkflow, error) {
	unlock := c.locks.Lock("wf:" + workflowID)
	defer unlock()

	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.ApprovalWorkflow{}, err
	}
	return c.decide(ctx, rctx, wf, stageOrderOf(wf.CurrentStage), model.OutcomeApprove, comments)
}

// Cancel moves the workflow to the terminal cancelled status.
func (c *Coordinator) Cancel(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID, reason string,
) (model.ApprovalWorkflow, error) {
	if err := c.require(rctx, CapApprovalsCancel); err != nil {
		return model.ApprovalWorkflow{}, err
	}

	unlock := c.locks.Lock("wf:" + workflowID)
	defer unlock()

	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.ApprovalWorkflow{}, err
	}

	now := c.now()
	if err := approval.Cancel(&wf, now); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.persist(ctx, &wf); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	if err := c.appendHistory(ctx, wf.ID, model.ActionCancelled, rctx.SubjectID, "", reason); err != nil {
		return model.ApprovalWorkflow{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventWorkflowCancelled,
		EntityID:   wf.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: now,
	})
	return wf, nil
}

// GetWorkflow returns the full read model for a workflow.
func (c *Coordinator) GetWorkflow(
	ctx context.Context,
	rctx *model.RequestContext,
	workflowID string,
) (model.WorkflowDetail, error) {
	if err := c.require(rctx, CapApprovalsView); err != nil {
		return model.WorkflowDetail{}, err
	}
	wf, err := c.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return model.WorkflowDetail{}, err
	}
	history, err := c.store.ListHistory(ctx, workflowID)
	if err != nil {
		return model.WorkflowDetail{}, err
	}
	return model.WorkflowDetail{ApprovalWorkflow: wf, History: history}, nil
}

// GetWorkflowByReport returns the full read model for a report's workflow.
func (c *Coordinator) GetWorkflowByReport(
	ctx context.Context,
	rctx *model.RequestContext,
	reportID string,
) (model.WorkflowDetail, error) {
	if err := c.require(rctx, CapApprovalsView); err != nil {
		return model.WorkflowDetail{}, err
	}
	wf, err := c.store.GetWorkflowByReport(ctx, reportID)
	if err != nil {
		return model.WorkflowDetail{}, err
	}
	history, err := c.store.ListHistory(ctx, wf.ID)
	if err != nil {
		return model.WorkflowDetail{}, err
	}
	return model.WorkflowDetail{ApprovalWorkflow: wf, History: history}, nil
}

// ListWorkflows returns workflows matching the filters.
func (c *Coordinator) ListWorkflows(
	ctx context.Context,
	rctx *model.RequestContext,
	filters model.WorkflowFilters,
) ([]model.ApprovalWorkflow, int, error) {
	if err := c.require(rctx, CapApprovalsView); err != nil {
		return nil, 0, err
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	return c.store.ListWorkflows(ctx, filters)
}

// ListPending returns the in-progress workflows whose current stage the
// caller is allowed to decide, newest first.
func (c *Coordinator) ListPending(
	ctx context.Context,
	rctx *model.RequestContext,
	page, pageSize int,
) ([]model.ApprovalWorkflow, int, error) {
	caps, err := c.capResolver.Resolve(rctx)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve capabilities: %w", err)
	}

	var pending []model.ApprovalWorkflow
	for _, stage := range model.StageNames {
		if !caps.Has(DecideCapability(stage)) {
			continue
		}
		filters := model.WorkflowFilters{
			Status:   model.WorkflowStatusInProgress,
			Stage:    stage,
			Page:     1,
			PageSize: listPageSize,
		}
		for {
			batch, _, err := c.store.ListWorkflows(ctx, filters)
			if err != nil {
				return nil, 0, err
			}
			pending = append(pending, batch...)
			if len(batch) < filters.PageSize {
				break
			}
			filters.Page++
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.After(pending[j].CreatedAt)
	})

	total := len(pending)
	if pageSize <= 0 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= total {
		return []model.ApprovalWorkflow{}, total, nil
	}
	pending = pending[offset:]
	if pageSize < len(pending) {
		pending = pending[:pageSize]
	}
	return pending, total, nil
}

// RaiseEscalation records an overdue inspection, creating a level 1
// escalation or refreshing the existing active one.
func (c *Coordinator) RaiseEscalation(
	ctx context.Context,
	rctx *model.RequestContext,
	in escalation.RaiseInput,
) (model.Escalation, error) {
	if err := c.require(rctx, CapEscalationsRaise); err != nil {
		return model.Escalation{}, err
	}

	unlock := c.locks.Lock("insp:" + in.InspectionID)
	defer unlock()

	result, err := c.escalations.Raise(ctx, rctx.SubjectID, in)
	if err != nil {
		return model.Escalation{}, err
	}
	c.publishEscalationEvents(ctx, result, rctx.SubjectID)
	return result.Escalation, nil
}

// ReassignEscalation hands an active escalation to another inspector.
func (c *Coordinator) ReassignEscalation(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID, newInspectorID, reason string,
) (model.Escalation, error) {
	if err := c.require(rctx, CapEscalationsReassign); err != nil {
		return model.Escalation{}, err
	}

	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()

	esc, err := c.escalations.Reassign(ctx, rctx.SubjectID, escalationID, newInspectorID, reason)
	if err != nil {
		return model.Escalation{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventEscalationReassigned,
		EntityID:   esc.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: c.now(),
		Attributes: map[string]string{"assigned_to_id": newInspectorID},
	})
	return esc, nil
}

// SendReminder records a reminder to the escalation's assignee.
func (c *Coordinator) SendReminder(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID string,
) (model.Escalation, error) {
	if err := c.require(rctx, CapEscalationsRemind); err != nil {
		return model.Escalation{}, err
	}

	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()

	esc, err := c.escalations.SendReminder(ctx, rctx.SubjectID, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventEscalationReminderSent,
		EntityID:   esc.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: c.now(),
		Attributes: map[string]string{"assigned_to_id": esc.AssignedToID},
	})
	return esc, nil
}

// ResolveEscalation closes an escalation.
func (c *Coordinator) ResolveEscalation(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID, note string,
) (model.Escalation, error) {
	if err := c.require(rctx, CapEscalationsResolve); err != nil {
		return model.Escalation{}, err
	}

	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()

	esc, err := c.escalations.Resolve(ctx, rctx.SubjectID, escalationID, note)
	if err != nil {
		return model.Escalation{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventEscalationResolved,
		EntityID:   esc.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: c.now(),
	})
	return esc, nil
}

// EscalateHigher raises an escalation's level by one.
func (c *Coordinator) EscalateHigher(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID, reason string,
) (model.Escalation, error) {
	if err := c.require(rctx, CapEscalationsEscalate); err != nil {
		return model.Escalation{}, err
	}

	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()

	esc, err := c.escalations.EscalateHigher(ctx, rctx.SubjectID, escalationID, reason)
	if err != nil {
		return model.Escalation{}, err
	}
	c.publish(ctx, notify.Event{
		Type:       notify.EventEscalationLevelChanged,
		EntityID:   esc.ID,
		ActorID:    rctx.SubjectID,
		OccurredAt: c.now(),
		Attributes: map[string]string{"level": fmt.Sprint(esc.EscalationLevel)},
	})
	return esc, nil
}

// AddEscalationComment appends a free-text note to an escalation.
func (c *Coordinator) AddEscalationComment(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID, text string,
) (model.EscalationComment, error) {
	if err := c.require(rctx, CapEscalationsComment); err != nil {
		return model.EscalationComment{}, err
	}

	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()

	return c.escalations.AddComment(ctx, escalationID, rctx.SubjectID, text)
}

// GetEscalation returns the full read model for an escalation.
func (c *Coordinator) GetEscalation(
	ctx context.Context,
	rctx *model.RequestContext,
	escalationID string,
) (model.EscalationDetail, error) {
	if err := c.require(rctx, CapEscalationsView); err != nil {
		return model.EscalationDetail{}, err
	}
	return c.escalations.Get(ctx, escalationID)
}

// ListEscalations returns escalations matching the filters.
func (c *Coordinator) ListEscalations(
	ctx context.Context,
	rctx *model.RequestContext,
	filters model.EscalationFilters,
) ([]model.Escalation, int, error) {
	if err := c.require(rctx, CapEscalationsView); err != nil {
		return nil, 0, err
	}
	return c.escalations.List(ctx, filters)
}

// SweepEscalations re-applies the level thresholds to every active
// escalation. The background scheduler calls it on an interval; it returns
// how many escalations changed level.
func (c *Coordinator) SweepEscalations(ctx context.Context) (int, error) {
	ids, err := c.activeEscalationIDs(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		result, err := c.reevaluate(ctx, id)
		if err != nil {
			// An escalation resolved mid-sweep is fine; anything else
			// is logged and the sweep moves on.
			if code := model.CodeOf(err); code != model.ErrInvalidState && code != model.ErrNotFound {
				c.logger.Warn("sweep reevaluate failed",
					zap.String("escalation_id", id), zap.Error(err))
			}
			continue
		}
		if result.LevelChanged {
			changed++
			c.publish(ctx, notify.Event{
				Type:       notify.EventEscalationLevelChanged,
				EntityID:   result.Escalation.ID,
				ActorID:    "system",
				OccurredAt: c.now(),
				Attributes: map[string]string{"level": fmt.Sprint(result.Escalation.EscalationLevel)},
			})
		}
	}
	return changed, nil
}

// activeEscalationIDs pages through every non-resolved escalation. The IDs
// are collected up front so reevaluations that move an escalation to
// another status cannot shift the pages underneath the sweep.
func (c *Coordinator) activeEscalationIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, status := range []string{
		model.EscalationStatusOpen,
		model.EscalationStatusInProgress,
		model.EscalationStatusEscalated,
	} {
		filters := model.EscalationFilters{
			Status:   status,
			Page:     1,
			PageSize: listPageSize,
		}
		for {
			batch, _, err := c.escalations.List(ctx, filters)
			if err != nil {
				return nil, err
			}
			for _, esc := range batch {
				if !seen[esc.ID] {
					seen[esc.ID] = true
					ids = append(ids, esc.ID)
				}
			}
			if len(batch) < filters.PageSize {
				break
			}
			filters.Page++
		}
	}
	return ids, nil
}

func (c *Coordinator) reevaluate(ctx context.Context, escalationID string) (escalation.RaiseResult, error) {
	unlock := c.locks.Lock("esc:" + escalationID)
	defer unlock()
	return c.escalations.Reevaluate(ctx, escalationID)
}

// persist validates invariants and writes the workflow back with optimistic
// locking, syncing the local version with the store's increment.
func (c *Coordinator) persist(ctx context.Context, wf *model.ApprovalWorkflow) error {
	if err := approval.CheckInvariants(wf); err != nil {
		return fmt.Errorf("workflow invariant violated: %w", err)
	}
	if err := c.store.UpdateWorkflow(ctx, *wf); err != nil {
		return err
	}
	wf.Version++
	return nil
}

func (c *Coordinator) appendHistory(ctx context.Context, workflowID, action, actorID, stageName, comments string) error {
	return c.store.AppendHistory(ctx, model.HistoryEntry{
		ID:            uuid.New().String(),
		WorkflowID:    workflowID,
		Action:        action,
		PerformedByID: actorID,
		StageName:     stageName,
		Comments:      comments,
		CreatedAt:     c.now(),
	})
}

// publish delivers an integration event best-effort. A sink failure is
// logged, never surfaced: the state change already committed.
func (c *Coordinator) publish(ctx context.Context, event notify.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(ctx, event); err != nil {
		c.logger.Warn("event publish failed",
			zap.String("event_type", event.Type),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func (c *Coordinator) publishEscalationEvents(ctx context.Context, result escalation.RaiseResult, actorID string) {
	now := c.now()
	if result.Created {
		c.publish(ctx, notify.Event{
			Type:       notify.EventEscalationRaised,
			EntityID:   result.Escalation.ID,
			ActorID:    actorID,
			OccurredAt: now,
			Attributes: map[string]string{
				"inspection_id": result.Escalation.InspectionID,
				"severity":      result.Escalation.Severity,
			},
		})
	}
	if result.LevelChanged {
		c.publish(ctx, notify.Event{
			Type:       notify.EventEscalationLevelChanged,
			EntityID:   result.Escalation.ID,
			ActorID:    actorID,
			OccurredAt: now,
			Attributes: map[string]string{"level": fmt.Sprint(result.Escalation.EscalationLevel)},
		})
	}
}

func (c *Coordinator) require(rctx *model.RequestContext, capability string) error {
	caps, err := c.capResolver.Resolve(rctx)
	if err != nil {
		return fmt.Errorf("resolve capabilities: %w", err)
	}
	if !caps.Has(capability) {
		return model.NewForbiddenError(
			fmt.Sprintf("capability %q required", capability),
		)
	}
	return nil
}

func decisionEvent(wf model.ApprovalWorkflow, decision approval.Decision, actorID string, now time.Time) notify.Event {
	event := notify.Event{
		EntityID:   wf.ID,
		ActorID:    actorID,
		OccurredAt: now,
		Attributes: map[string]string{"stage": decision.StageName},
	}
	switch {
	case decision.Outcome == model.OutcomeReject:
		event.Type = notify.EventWorkflowRejected
	case decision.Terminal:
		event.Type = notify.EventWorkflowApproved
	default:
		event.Type = notify.EventWorkflowStageAdvanced
		event.Attributes["next_stage"] = decision.NextStage
	}
	return event
}

func asEnvelope(err error) *model.ErrorEnvelope {
	if ee, ok := err.(*model.ErrorEnvelope); ok {
		return ee
	}
	return model.NewInternalError()
}

func stageOrderOf(stageName string) int {
	for i, name := range model.StageNames {
		if name == stageName {
			return i + 1
		}
	}
	return 0
}
