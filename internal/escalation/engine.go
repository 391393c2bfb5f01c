// Package escalation implements the policy engine that tracks overdue
// inspections. It translates overdue duration into an escalation level and
// exposes the operator actions (reassign, remind, resolve, escalate higher,
// comment), each of which appends to the escalation's audit trail.
package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldscope/approvald/internal/store"
	"github.com/fieldscope/approvald/model"
)

// Policy holds the configurable overdue-day thresholds that separate the
// escalation levels. Level 1 triggers on first detection; levels 2 and 3
// trigger when the overdue duration crosses the respective threshold, or
// when an operator escalates manually. Thresholds are configuration, never
// hardcoded.
type Policy struct {
	Level2AfterDays int
	Level3AfterDays int
}

// LevelFor returns the escalation level the policy prescribes for the given
// overdue duration.
func (p Policy) LevelFor(overdueDays int) int {
	switch {
	case p.Level3AfterDays > 0 && overdueDays >= p.Level3AfterDays:
		return 3
	case p.Level2AfterDays > 0 && overdueDays >= p.Level2AfterDays:
		return 2
	default:
		return 1
	}
}

// Engine applies the escalation policy against the store. All mutating
// methods must be invoked under per-escalation mutual exclusion; the
// coordinator owns that boundary.
type Engine struct {
	store  store.Store
	policy Policy
	now    func() time.Time
}

// NewEngine creates a new escalation engine.
func NewEngine(st store.Store, policy Policy) *Engine {
	return &Engine{
		store:  st,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine clock. For testing.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RaiseInput carries the sweep data for one overdue inspection.
type RaiseInput struct {
	InspectionID string
	AssetID      string
	Severity     string
	AssignedToID string
	OverdueDays  int
}

// RaiseResult reports what Raise did so the coordinator can publish the
// matching integration events.
type RaiseResult struct {
	Escalation   model.Escalation
	Created      bool
	LevelChanged bool
}

// Raise records that an inspection is overdue. On first detection it
// creates a new escalation at level 1, status open. While an active record
// exists for the inspection the call is idempotent: it refreshes the
// overdue-day count and re-evaluates the level thresholds instead of
// creating a duplicate.
func (e *Engine) Raise(ctx context.Context, actorID string, in RaiseInput) (RaiseResult, error) {
	if err := validateRaise(in); err != nil {
		return RaiseResult{}, err
	}

	existing, err := e.store.FindActiveEscalationByInspection(ctx, in.InspectionID)
	if err == nil {
		return e.refresh(ctx, existing, in.OverdueDays)
	}
	if model.CodeOf(err) != model.ErrNotFound {
		return RaiseResult{}, err
	}

	now := e.now()
	esc := model.Escalation{
		ID:                uuid.New().String(),
		InspectionID:      in.InspectionID,
		AssetID:           in.AssetID,
		Severity:          in.Severity,
		EscalationLevel:   1,
		AssignedToID:      in.AssignedToID,
		Status:            model.EscalationStatusOpen,
		ActualOverdueDays: in.OverdueDays,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	if err := e.store.CreateEscalation(ctx, esc); err != nil {
		return RaiseResult{}, err
	}

	// First detection records level 1 even past a threshold; the level only
	// moves one step per evaluation afterwards. Creation is audited as
	// raised, not escalated, so the trail distinguishes it from a level
	// change.
	if err := e.appendAction(ctx, esc.ID, model.EscalationActionRaised, actorID,
		fmt.Sprintf("first detection, %d days overdue", in.OverdueDays)); err != nil {
		return RaiseResult{}, err
	}

	return RaiseResult{Escalation: esc, Created: true}, nil
}

// refresh updates the overdue-day count on an existing active escalation
// and advances the level one step if a threshold has been crossed.
func (e *Engine) refresh(ctx context.Context, esc model.Escalation, overdueDays int) (RaiseResult, error) {
	target := e.policy.LevelFor(overdueDays)
	changed := false

	esc.ActualOverdueDays = overdueDays
	if target > esc.EscalationLevel && esc.EscalationLevel < model.MaxEscalationLevel {
		// Never skip a level: one increment per evaluation.
		esc.EscalationLevel++
		esc.Status = model.EscalationStatusEscalated
		changed = true
	}

	if err := e.store.UpdateEscalation(ctx, esc); err != nil {
		return RaiseResult{}, err
	}
	esc.Version++

	if changed {
		if err := e.appendAction(ctx, esc.ID, model.EscalationActionEscalated, "system",
			fmt.Sprintf("level raised to %d after %d days overdue", esc.EscalationLevel, overdueDays)); err != nil {
			return RaiseResult{}, err
		}
	}

	return RaiseResult{Escalation: esc, LevelChanged: changed}, nil
}

// Reevaluate re-applies the level thresholds to one active escalation
// using its stored overdue-day count. The background sweep uses it to
// catch up after a configuration change or a missed raise.
func (e *Engine) Reevaluate(ctx context.Context, escalationID string) (RaiseResult, error) {
	esc, err := e.activeEscalation(ctx, escalationID)
	if err != nil {
		return RaiseResult{}, err
	}
	return e.refresh(ctx, esc, esc.ActualOverdueDays)
}

// Reassign hands an active escalation to another inspector.
func (e *Engine) Reassign(ctx context.Context, actorID, escalationID, newInspectorID, reason string) (model.Escalation, error) {
	if newInspectorID == "" {
		return model.Escalation{}, model.NewValidationError([]model.FieldError{
			{Field: "new_inspector_id", Code: "required", Message: "new inspector is required"},
		})
	}

	esc, err := e.activeEscalation(ctx, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}

	previous := esc.AssignedToID
	esc.AssignedToID = newInspectorID
	if err := e.store.UpdateEscalation(ctx, esc); err != nil {
		return model.Escalation{}, err
	}
	esc.Version++

	details := fmt.Sprintf("reassigned from %q to %q", previous, newInspectorID)
	if reason != "" {
		details += ": " + reason
	}
	if err := e.appendAction(ctx, esc.ID, model.EscalationActionReassigned, actorID, details); err != nil {
		return model.Escalation{}, err
	}
	return esc, nil
}

// SendReminder records that a reminder was sent to the assignee.
func (e *Engine) SendReminder(ctx context.Context, actorID, escalationID string) (model.Escalation, error) {
	esc, err := e.activeEscalation(ctx, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}

	now := e.now()
	esc.LastReminderSent = &now
	if err := e.store.UpdateEscalation(ctx, esc); err != nil {
		return model.Escalation{}, err
	}
	esc.Version++

	if err := e.appendAction(ctx, esc.ID, model.EscalationActionReminderSent, actorID,
		fmt.Sprintf("reminder sent to %q", esc.AssignedToID)); err != nil {
		return model.Escalation{}, err
	}
	return esc, nil
}

// Resolve closes an escalation. Resolving is terminal: the level freezes,
// and a second resolve fails with ALREADY_RESOLVED. Reopening requires a
// new record, never mutation of the old one.
func (e *Engine) Resolve(ctx context.Context, actorID, escalationID, note string) (model.Escalation, error) {
	esc, err := e.store.GetEscalation(ctx, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}
	if esc.Status == model.EscalationStatusResolved {
		return model.Escalation{}, model.NewAlreadyResolvedError(
			fmt.Sprintf("escalation %q is already resolved", escalationID),
		)
	}

	now := e.now()
	esc.Status = model.EscalationStatusResolved
	esc.ResolutionDate = &now
	if err := e.store.UpdateEscalation(ctx, esc); err != nil {
		return model.Escalation{}, err
	}
	esc.Version++

	details := "resolved"
	if note != "" {
		details += ": " + note
	}
	if err := e.appendAction(ctx, esc.ID, model.EscalationActionResolved, actorID, details); err != nil {
		return model.Escalation{}, err
	}
	return esc, nil
}

// EscalateHigher raises the level by exactly one. A non-empty reason is
// required, and level 3 is the ceiling.
func (e *Engine) EscalateHigher(ctx context.Context, actorID, escalationID, reason string) (model.Escalation, error) {
	if reason == "" {
		return model.Escalation{}, model.NewValidationError([]model.FieldError{
			{Field: "reason", Code: "required", Message: "escalation reason is required"},
		})
	}

	esc, err := e.activeEscalation(ctx, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}
	if esc.EscalationLevel >= model.MaxEscalationLevel {
		return model.Escalation{}, model.NewMaxLevelReachedError(
			fmt.Sprintf("escalation %q is already at level %d", escalationID, model.MaxEscalationLevel),
		)
	}

	esc.EscalationLevel++
	esc.Status = model.EscalationStatusEscalated
	if err := e.store.UpdateEscalation(ctx, esc); err != nil {
		return model.Escalation{}, err
	}
	esc.Version++

	if err := e.appendAction(ctx, esc.ID, model.EscalationActionEscalated, actorID,
		fmt.Sprintf("level raised to %d: %s", esc.EscalationLevel, reason)); err != nil {
		return model.Escalation{}, err
	}
	return esc, nil
}

// AddComment appends a free-text note. Comments carry no state change and
// are explicitly permitted on resolved escalations as closing remarks.
func (e *Engine) AddComment(ctx context.Context, escalationID, userID, text string) (model.EscalationComment, error) {
	if text == "" {
		return model.EscalationComment{}, model.NewValidationError([]model.FieldError{
			{Field: "comment", Code: "required", Message: "comment text is required"},
		})
	}

	if _, err := e.store.GetEscalation(ctx, escalationID); err != nil {
		return model.EscalationComment{}, err
	}

	comment := model.EscalationComment{
		ID:           uuid.New().String(),
		EscalationID: escalationID,
		UserID:       userID,
		Comment:      text,
		CreatedAt:    e.now(),
	}
	if err := e.store.AppendComment(ctx, comment); err != nil {
		return model.EscalationComment{}, err
	}

	if err := e.appendAction(ctx, escalationID, model.EscalationActionNoteAdded, userID, text); err != nil {
		return model.EscalationComment{}, err
	}
	return comment, nil
}

// Get returns the full read model for an escalation.
func (e *Engine) Get(ctx context.Context, escalationID string) (model.EscalationDetail, error) {
	esc, err := e.store.GetEscalation(ctx, escalationID)
	if err != nil {
		return model.EscalationDetail{}, err
	}
	comments, err := e.store.ListComments(ctx, escalationID)
	if err != nil {
		return model.EscalationDetail{}, err
	}
	actions, err := e.store.ListActions(ctx, escalationID)
	if err != nil {
		return model.EscalationDetail{}, err
	}
	return model.EscalationDetail{Escalation: esc, Comments: comments, Actions: actions}, nil
}

// List returns escalations matching the filters.
func (e *Engine) List(ctx context.Context, filters model.EscalationFilters) ([]model.Escalation, int, error) {
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	return e.store.ListEscalations(ctx, filters)
}

// activeEscalation loads an escalation and rejects mutations on resolved
// records with INVALID_STATE.
func (e *Engine) activeEscalation(ctx context.Context, escalationID string) (model.Escalation, error) {
	esc, err := e.store.GetEscalation(ctx, escalationID)
	if err != nil {
		return model.Escalation{}, err
	}
	if esc.Status == model.EscalationStatusResolved {
		return model.Escalation{}, model.NewInvalidStateError(
			fmt.Sprintf("escalation %q is resolved", escalationID),
		)
	}
	return esc, nil
}

func (e *Engine) appendAction(ctx context.Context, escalationID, action, actorID, details string) error {
	return e.store.AppendAction(ctx, model.EscalationAction{
		ID:            uuid.New().String(),
		EscalationID:  escalationID,
		Action:        action,
		PerformedByID: actorID,
		Details:       details,
		CreatedAt:     e.now(),
	})
}

func validateRaise(in RaiseInput) error {
	var details []model.FieldError
	if in.InspectionID == "" {
		details = append(details, model.FieldError{Field: "inspection_id", Code: "required", Message: "inspection is required"})
	}
	if in.AssetID == "" {
		details = append(details, model.FieldError{Field: "asset_id", Code: "required", Message: "asset is required"})
	}
	switch in.Severity {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
	default:
		details = append(details, model.FieldError{Field: "severity", Code: "invalid", Message: "severity must be low, medium, high, or critical"})
	}
	if in.OverdueDays < 0 {
		details = append(details, model.FieldError{Field: "overdue_days", Code: "invalid", Message: "overdue days cannot be negative"})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}
