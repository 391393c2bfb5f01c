package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldscope/approvald/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. Stage records are
// stored as a JSONB column on the workflow row since they are always read
// and written as a unit with the workflow.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity. Used by the readiness probe.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateWorkflow inserts a new approval workflow.
func (s *PgStore) CreateWorkflow(ctx context.Context, wf model.ApprovalWorkflow) error {
	stagesJSON, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO approval_workflows (
			id, report_id, current_stage, status, stages, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.ReportID, wf.CurrentStage, wf.Status, stagesJSON, wf.Version,
		wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewConflictError(
				fmt.Sprintf("report %q already has a workflow", wf.ReportID),
			)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *PgStore) GetWorkflow(ctx context.Context, id string) (model.ApprovalWorkflow, error) {
	return s.queryWorkflow(ctx, `WHERE id = $1`, id)
}

// GetWorkflowByReport retrieves the workflow for a report.
func (s *PgStore) GetWorkflowByReport(ctx context.Context, reportID string) (model.ApprovalWorkflow, error) {
	return s.queryWorkflow(ctx, `WHERE report_id = $1`, reportID)
}

func (s *PgStore) queryWorkflow(ctx context.Context, where string, arg any) (model.ApprovalWorkflow, error) {
	var wf model.ApprovalWorkflow
	var stagesJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, report_id, current_stage, status, stages, version,
		       created_at, updated_at
		FROM approval_workflows `+where,
		arg,
	).Scan(
		&wf.ID, &wf.ReportID, &wf.CurrentStage, &wf.Status, &stagesJSON, &wf.Version,
		&wf.CreatedAt, &wf.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.ApprovalWorkflow{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %v not found", arg),
		)
	}
	if err != nil {
		return model.ApprovalWorkflow{}, fmt.Errorf("query workflow: %w", err)
	}

	if stagesJSON != nil {
		if err := json.Unmarshal(stagesJSON, &wf.Stages); err != nil {
			return model.ApprovalWorkflow{}, fmt.Errorf("unmarshal stages: %w", err)
		}
	}
	return wf, nil
}

// UpdateWorkflow persists an updated workflow with optimistic locking.
func (s *PgStore) UpdateWorkflow(ctx context.Context, wf model.ApprovalWorkflow) error {
	stagesJSON, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_workflows SET
			current_stage = $1,
			status = $2,
			stages = $3,
			version = $4,
			updated_at = $5
		WHERE id = $6 AND version = $7`,
		wf.CurrentStage, wf.Status, stagesJSON, wf.Version+1,
		time.Now().UTC(),
		wf.ID, wf.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", wf.ID, wf.Version),
		)
	}
	return nil
}

// ListWorkflows returns workflows matching the filters, newest first.
func (s *PgStore) ListWorkflows(ctx context.Context, filters model.WorkflowFilters) ([]model.ApprovalWorkflow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Stage != "" {
		where += fmt.Sprintf(" AND current_stage = $%d", argIdx)
		args = append(args, filters.Stage)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM approval_workflows`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	query := `SELECT id, report_id, current_stage, status, stages, version,
	                 created_at, updated_at
	          FROM approval_workflows` + where + ` ORDER BY created_at DESC`

	if filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filters.PageSize, (page-1)*filters.PageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var result []model.ApprovalWorkflow
	for rows.Next() {
		var wf model.ApprovalWorkflow
		var stagesJSON []byte
		if err := rows.Scan(
			&wf.ID, &wf.ReportID, &wf.CurrentStage, &wf.Status, &stagesJSON, &wf.Version,
			&wf.CreatedAt, &wf.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan workflow: %w", err)
		}
		if stagesJSON != nil {
			_ = json.Unmarshal(stagesJSON, &wf.Stages)
		}
		result = append(result, wf)
	}
	return result, total, rows.Err()
}

// AppendHistory adds an entry to a workflow's audit trail. The sequence
// number is assigned atomically per workflow; callers hold the per-entity
// lock, so the max+1 subquery cannot race for the same workflow.
func (s *PgStore) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approval_history (
			id, workflow_id, seq, action, performed_by_id, stage_name, comments, created_at
		) VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM approval_history WHERE workflow_id = $2),
			$3, $4, $5, $6, $7
		)`,
		entry.ID, entry.WorkflowID, entry.Action, entry.PerformedByID,
		entry.StageName, entry.Comments, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListHistory returns history entries for a workflow in append order.
func (s *PgStore) ListHistory(ctx context.Context, workflowID string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, seq, action, performed_by_id, stage_name, comments, created_at
		FROM approval_history
		WHERE workflow_id = $1
		ORDER BY seq ASC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.WorkflowID, &e.Seq, &e.Action, &e.PerformedByID,
			&e.StageName, &e.Comments, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateEscalation inserts a new escalation record.
func (s *PgStore) CreateEscalation(ctx context.Context, esc model.Escalation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalations (
			id, inspection_id, asset_id, severity, escalation_level,
			assigned_to_id, status, actual_overdue_days,
			last_reminder_sent, resolution_date, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		esc.ID, esc.InspectionID, esc.AssetID, esc.Severity, esc.EscalationLevel,
		esc.AssignedToID, esc.Status, esc.ActualOverdueDays,
		esc.LastReminderSent, esc.ResolutionDate, esc.Version,
		esc.CreatedAt, esc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// GetEscalation retrieves an escalation by ID.
func (s *PgStore) GetEscalation(ctx context.Context, id string) (model.Escalation, error) {
	esc, err := s.queryEscalationRow(ctx, `WHERE id = $1`, id)
	if err == pgx.ErrNoRows {
		return model.Escalation{}, model.NewNotFoundError(
			fmt.Sprintf("escalation %q not found", id),
		)
	}
	if err != nil {
		return model.Escalation{}, fmt.Errorf("query escalation: %w", err)
	}
	return esc, nil
}

// FindActiveEscalationByInspection returns the non-resolved escalation for
// an inspection.
func (s *PgStore) FindActiveEscalationByInspection(ctx context.Context, inspectionID string) (model.Escalation, error) {
	esc, err := s.queryEscalationRow(ctx,
		`WHERE inspection_id = $1 AND status <> 'resolved' ORDER BY created_at DESC LIMIT 1`,
		inspectionID,
	)
	if err == pgx.ErrNoRows {
		return model.Escalation{}, model.NewNotFoundError(
			fmt.Sprintf("no active escalation for inspection %q", inspectionID),
		)
	}
	if err != nil {
		return model.Escalation{}, fmt.Errorf("query escalation: %w", err)
	}
	return esc, nil
}

func (s *PgStore) queryEscalationRow(ctx context.Context, where string, arg any) (model.Escalation, error) {
	var esc model.Escalation
	err := s.pool.QueryRow(ctx, `
		SELECT id, inspection_id, asset_id, severity, escalation_level,
		       assigned_to_id, status, actual_overdue_days,
		       last_reminder_sent, resolution_date, version,
		       created_at, updated_at
		FROM escalations `+where,
		arg,
	).Scan(
		&esc.ID, &esc.InspectionID, &esc.AssetID, &esc.Severity, &esc.EscalationLevel,
		&esc.AssignedToID, &esc.Status, &esc.ActualOverdueDays,
		&esc.LastReminderSent, &esc.ResolutionDate, &esc.Version,
		&esc.CreatedAt, &esc.UpdatedAt,
	)
	return esc, err
}

// UpdateEscalation persists an updated escalation with optimistic locking.
func (s *PgStore) UpdateEscalation(ctx context.Context, esc model.Escalation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE escalations SET
			escalation_level = $1,
			assigned_to_id = $2,
			status = $3,
			actual_overdue_days = $4,
			last_reminder_sent = $5,
			resolution_date = $6,
			version = $7,
			updated_at = $8
		WHERE id = $9 AND version = $10`,
		esc.EscalationLevel, esc.AssignedToID, esc.Status, esc.ActualOverdueDays,
		esc.LastReminderSent, esc.ResolutionDate, esc.Version+1,
		time.Now().UTC(),
		esc.ID, esc.Version,
	)
	if err != nil {
		return fmt.Errorf("update escalation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("escalation %q version conflict (expected %d)", esc.ID, esc.Version),
		)
	}
	return nil
}

// ListEscalations returns escalations matching the filters, newest first.
func (s *PgStore) ListEscalations(ctx context.Context, filters model.EscalationFilters) ([]model.Escalation, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filters.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filters.Status)
		argIdx++
	}
	if filters.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, filters.Severity)
		argIdx++
	}
	if filters.AssignedToID != "" {
		where += fmt.Sprintf(" AND assigned_to_id = $%d", argIdx)
		args = append(args, filters.AssignedToID)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count escalations: %w", err)
	}

	query := `SELECT id, inspection_id, asset_id, severity, escalation_level,
	                 assigned_to_id, status, actual_overdue_days,
	                 last_reminder_sent, resolution_date, version,
	                 created_at, updated_at
	          FROM escalations` + where + ` ORDER BY created_at DESC`

	if filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filters.PageSize, (page-1)*filters.PageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var result []model.Escalation
	for rows.Next() {
		var esc model.Escalation
		if err := rows.Scan(
			&esc.ID, &esc.InspectionID, &esc.AssetID, &esc.Severity, &esc.EscalationLevel,
			&esc.AssignedToID, &esc.Status, &esc.ActualOverdueDays,
			&esc.LastReminderSent, &esc.ResolutionDate, &esc.Version,
			&esc.CreatedAt, &esc.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan escalation: %w", err)
		}
		result = append(result, esc)
	}
	return result, total, rows.Err()
}

// AppendAction adds an entry to an escalation's audit trail.
func (s *PgStore) AppendAction(ctx context.Context, action model.EscalationAction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalation_actions (
			id, escalation_id, seq, action, performed_by_id, details, created_at
		) VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM escalation_actions WHERE escalation_id = $2),
			$3, $4, $5, $6
		)`,
		action.ID, action.EscalationID, action.Action, action.PerformedByID,
		action.Details, action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation action: %w", err)
	}
	return nil
}

// ListActions returns actions for an escalation in append order.
func (s *PgStore) ListActions(ctx context.Context, escalationID string) ([]model.EscalationAction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, escalation_id, seq, action, performed_by_id, details, created_at
		FROM escalation_actions
		WHERE escalation_id = $1
		ORDER BY seq ASC`,
		escalationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query escalation actions: %w", err)
	}
	defer rows.Close()

	var actions []model.EscalationAction
	for rows.Next() {
		var a model.EscalationAction
		if err := rows.Scan(
			&a.ID, &a.EscalationID, &a.Seq, &a.Action, &a.PerformedByID,
			&a.Details, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan escalation action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// AppendComment adds a free-text comment to an escalation.
func (s *PgStore) AppendComment(ctx context.Context, comment model.EscalationComment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalation_comments (
			id, escalation_id, user_id, comment, created_at
		) VALUES ($1, $2, $3, $4, $5)`,
		comment.ID, comment.EscalationID, comment.UserID, comment.Comment, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation comment: %w", err)
	}
	return nil
}

// ListComments returns comments for an escalation, oldest first.
func (s *PgStore) ListComments(ctx context.Context, escalationID string) ([]model.EscalationComment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, escalation_id, user_id, comment, created_at
		FROM escalation_comments
		WHERE escalation_id = $1
		ORDER BY created_at ASC`,
		escalationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query escalation comments: %w", err)
	}
	defer rows.Close()

	var comments []model.EscalationComment
	for rows.Next() {
		var c model.EscalationComment
		if err := rows.Scan(&c.ID, &c.EscalationID, &c.UserID, &c.Comment, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
