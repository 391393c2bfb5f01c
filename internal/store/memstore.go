package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldscope/approvald/model"
)

// MemoryStore is an in-memory Store for testing and single-node development.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]model.ApprovalWorkflow // key: workflow ID
	byReport    map[string]string                 // report ID -> workflow ID
	history     map[string][]model.HistoryEntry   // key: workflow ID
	historySeq  map[string]int64
	escalations map[string]model.Escalation            // key: escalation ID
	actions     map[string][]model.EscalationAction    // key: escalation ID
	actionSeq   map[string]int64
	comments    map[string][]model.EscalationComment // key: escalation ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]model.ApprovalWorkflow),
		byReport:    make(map[string]string),
		history:     make(map[string][]model.HistoryEntry),
		historySeq:  make(map[string]int64),
		escalations: make(map[string]model.Escalation),
		actions:     make(map[string][]model.EscalationAction),
		actionSeq:   make(map[string]int64),
		comments:    make(map[string][]model.EscalationComment),
	}
}

// CreateWorkflow persists a new approval workflow.
func (s *MemoryStore) CreateWorkflow(_ context.Context, wf model.ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q already exists", wf.ID),
		)
	}
	if _, exists := s.byReport[wf.ReportID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("report %q already has a workflow", wf.ReportID),
		)
	}

	s.workflows[wf.ID] = cloneWorkflow(wf)
	s.byReport[wf.ReportID] = wf.ID
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *MemoryStore) GetWorkflow(_ context.Context, id string) (model.ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.workflows[id]
	if !exists {
		return model.ApprovalWorkflow{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", id),
		)
	}
	return cloneWorkflow(wf), nil
}

// GetWorkflowByReport retrieves the workflow for a report.
func (s *MemoryStore) GetWorkflowByReport(_ context.Context, reportID string) (model.ApprovalWorkflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byReport[reportID]
	if !exists {
		return model.ApprovalWorkflow{}, model.NewNotFoundError(
			fmt.Sprintf("no workflow for report %q", reportID),
		)
	}
	return cloneWorkflow(s.workflows[id]), nil
}

// UpdateWorkflow persists an updated workflow with optimistic locking.
func (s *MemoryStore) UpdateWorkflow(_ context.Context, wf model.ApprovalWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.workflows[wf.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", wf.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != wf.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", wf.ID, wf.Version, existing.Version),
		)
	}

	wf.Version++
	wf.UpdatedAt = time.Now().UTC()
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

// ListWorkflows returns workflows matching the filters, newest first.
func (s *MemoryStore) ListWorkflows(_ context.Context, filters model.WorkflowFilters) ([]model.ApprovalWorkflow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ApprovalWorkflow
	for _, wf := range s.workflows {
		if filters.Status != "" && wf.Status != filters.Status {
			continue
		}
		if filters.Stage != "" && wf.CurrentStage != filters.Stage {
			continue
		}
		result = append(result, cloneWorkflow(wf))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := len(result)
	return paginate(result, filters.Page, filters.PageSize), total, nil
}

// AppendHistory adds an entry to a workflow's audit trail.
func (s *MemoryStore) AppendHistory(_ context.Context, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.historySeq[entry.WorkflowID]++
	entry.Seq = s.historySeq[entry.WorkflowID]
	s.history[entry.WorkflowID] = append(s.history[entry.WorkflowID], entry)
	return nil
}

// ListHistory returns history entries for a workflow in append order.
func (s *MemoryStore) ListHistory(_ context.Context, workflowID string) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.workflows[workflowID]; !exists {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", workflowID),
		)
	}

	entries := s.history[workflowID]
	result := make([]model.HistoryEntry, len(entries))
	copy(result, entries)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// CreateEscalation persists a new escalation record.
func (s *MemoryStore) CreateEscalation(_ context.Context, esc model.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.escalations[esc.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("escalation %q already exists", esc.ID),
		)
	}
	s.escalations[esc.ID] = esc
	return nil
}

// GetEscalation retrieves an escalation by ID.
func (s *MemoryStore) GetEscalation(_ context.Context, id string) (model.Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	esc, exists := s.escalations[id]
	if !exists {
		return model.Escalation{}, model.NewNotFoundError(
			fmt.Sprintf("escalation %q not found", id),
		)
	}
	return esc, nil
}

// FindActiveEscalationByInspection returns the non-resolved escalation for
// an inspection.
func (s *MemoryStore) FindActiveEscalationByInspection(_ context.Context, inspectionID string) (model.Escalation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, esc := range s.escalations {
		if esc.InspectionID == inspectionID && esc.Status != model.EscalationStatusResolved {
			return esc, nil
		}
	}
	return model.Escalation{}, model.NewNotFoundError(
		fmt.Sprintf("no active escalation for inspection %q", inspectionID),
	)
}

// UpdateEscalation persists an updated escalation with optimistic locking.
func (s *MemoryStore) UpdateEscalation(_ context.Context, esc model.Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.escalations[esc.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("escalation %q not found", esc.ID),
		)
	}

	if existing.Version != esc.Version {
		return model.NewConflictError(
			fmt.Sprintf("escalation %q version conflict (expected %d, got %d)", esc.ID, esc.Version, existing.Version),
		)
	}

	esc.Version++
	esc.UpdatedAt = time.Now().UTC()
	s.escalations[esc.ID] = esc
	return nil
}

// ListEscalations returns escalations matching the filters, newest first.
func (s *MemoryStore) ListEscalations(_ context.Context, filters model.EscalationFilters) ([]model.Escalation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Escalation
	for _, esc := range s.escalations {
		if filters.Status != "" && esc.Status != filters.Status {
			continue
		}
		if filters.Severity != "" && esc.Severity != filters.Severity {
			continue
		}
		if filters.AssignedToID != "" && esc.AssignedToID != filters.AssignedToID {
			continue
		}
		result = append(result, esc)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	total := len(result)
	return paginate(result, filters.Page, filters.PageSize), total, nil
}

// AppendAction adds an entry to an escalation's audit trail.
func (s *MemoryStore) AppendAction(_ context.Context, action model.EscalationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actionSeq[action.EscalationID]++
	action.Seq = s.actionSeq[action.EscalationID]
	s.actions[action.EscalationID] = append(s.actions[action.EscalationID], action)
	return nil
}

// ListActions returns actions for an escalation in append order.
func (s *MemoryStore) ListActions(_ context.Context, escalationID string) ([]model.EscalationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.escalations[escalationID]; !exists {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("escalation %q not found", escalationID),
		)
	}

	actions := s.actions[escalationID]
	result := make([]model.EscalationAction, len(actions))
	copy(result, actions)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// AppendComment adds a free-text comment to an escalation.
func (s *MemoryStore) AppendComment(_ context.Context, comment model.EscalationComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments[comment.EscalationID] = append(s.comments[comment.EscalationID], comment)
	return nil
}

// ListComments returns comments for an escalation, oldest first.
func (s *MemoryStore) ListComments(_ context.Context, escalationID string) ([]model.EscalationComment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := s.comments[escalationID]
	result := make([]model.EscalationComment, len(comments))
	copy(result, comments)
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Len returns the total number of workflows. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// cloneWorkflow copies a workflow including its stage slice so callers
// cannot mutate stored state through the shared backing array.
func cloneWorkflow(wf model.ApprovalWorkflow) model.ApprovalWorkflow {
	stages := make([]model.StageRecord, len(wf.Stages))
	copy(stages, wf.Stages)
	wf.Stages = stages
	return wf
}

// paginate applies page/page_size slicing to a sorted result set.
func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if pageSize < len(items) {
		items = items[:pageSize]
	}
	return items
}
