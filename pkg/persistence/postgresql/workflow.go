package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
)

type workflowRepository struct {
	db *sql.DB
}

const workflowColumns = `id, org_id, name, trigger, steps, enabled,
	prevent_duplicates, duplicate_prevention_days, created_at, updated_at`

func (r *workflowRepository) ByID(ctx context.Context, orgID, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1 AND org_id = $2`,
		id, orgID)

	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	return wf, err
}

func (r *workflowRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE org_id = $1 ORDER BY id`,
		orgID)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows.ListByOrg", orgID, err)
	}

	return collectWorkflows(rows)
}

func (r *workflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return persistence.NewStoreError("Workflows.Save", workflow.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (
			id, org_id, name, trigger, steps, enabled,
			prevent_duplicates, duplicate_prevention_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger = EXCLUDED.trigger,
			steps = EXCLUDED.steps,
			enabled = EXCLUDED.enabled,
			prevent_duplicates = EXCLUDED.prevent_duplicates,
			duplicate_prevention_days = EXCLUDED.duplicate_prevention_days,
			updated_at = NOW()`,
		workflow.ID, workflow.OrgID, workflow.Name, workflow.Trigger, steps,
		workflow.Enabled, workflow.PreventDuplicates, workflow.DuplicatePreventionDays,
		createdOrNow(workflow.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("Workflows.Save", workflow.ID, err)
	}

	return nil
}

func (r *workflowRepository) Delete(ctx context.Context, orgID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflows WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return persistence.NewStoreError("Workflows.Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Workflows.Delete", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *workflowRepository) EnabledByTrigger(ctx context.Context, orgID string, keys []string) ([]*models.Workflow, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, orgID)

	in := ""

	for i, k := range keys {
		if i > 0 {
			in += ", "
		}

		in += fmt.Sprintf("$%d", i+2)

		args = append(args, k)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workflowColumns+`
		 FROM workflows
		 WHERE org_id = $1 AND enabled AND trigger IN (`+in+`)
		 ORDER BY id`, args...)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows.EnabledByTrigger", orgID, err)
	}

	return collectWorkflows(rows)
}

func collectWorkflows(rows *sql.Rows) ([]*models.Workflow, error) {
	defer rows.Close()

	var out []*models.Workflow

	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, wf)
	}

	return out, rows.Err()
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		wf    models.Workflow
		steps []byte
	)

	err := row.Scan(&wf.ID, &wf.OrgID, &wf.Name, &wf.Trigger, &steps, &wf.Enabled,
		&wf.PreventDuplicates, &wf.DuplicatePreventionDays, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(steps, &wf.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to decode steps for workflow %s: %w", wf.ID, err)
	}

	return &wf, nil
}

type enrollmentRepository struct {
	db *sql.DB
}

const enrollmentColumns = `id, org_id, workflow_id, client_id, reason,
	current_step_id, status, next_execution_at, metadata, enrolled_at,
	updated_at, completed_at`

func (r *enrollmentRepository) ByID(ctx context.Context, id string) (*models.Enrollment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)

	enr, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrEnrollmentNotFound
	}

	return enr, err
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	metadata, err := json.Marshal(orEmptyMap(enrollment.Metadata))
	if err != nil {
		return persistence.NewStoreError("Enrollments.Create", enrollment.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO enrollments (
			id, org_id, workflow_id, client_id, reason, current_step_id,
			status, next_execution_at, metadata, enrolled_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), $11)`,
		enrollment.ID, enrollment.OrgID, enrollment.WorkflowID, enrollment.ClientID,
		enrollment.Reason, enrollment.CurrentStepID, enrollment.Status,
		enrollment.NextExecutionAt, metadata, createdOrNow(enrollment.EnrolledAt),
		enrollment.CompletedAt)
	if err != nil {
		return persistence.NewStoreError("Enrollments.Create", enrollment.ID, err)
	}

	return nil
}

func (r *enrollmentRepository) Save(ctx context.Context, enrollment *models.Enrollment) error {
	metadata, err := json.Marshal(orEmptyMap(enrollment.Metadata))
	if err != nil {
		return persistence.NewStoreError("Enrollments.Save", enrollment.ID, err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE enrollments SET
			reason = $1,
			current_step_id = $2,
			status = $3,
			next_execution_at = $4,
			metadata = $5,
			completed_at = $6,
			updated_at = NOW()
		WHERE id = $7`,
		enrollment.Reason, enrollment.CurrentStepID, enrollment.Status,
		enrollment.NextExecutionAt, metadata, enrollment.CompletedAt, enrollment.ID)
	if err != nil {
		return persistence.NewStoreError("Enrollments.Save", enrollment.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Enrollments.Save", enrollment.ID, err)
	}

	if affected == 0 {
		return persistence.ErrEnrollmentNotFound
	}

	return nil
}

func (r *enrollmentRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+enrollmentColumns+`
		 FROM enrollments
		 WHERE org_id = $1
		 ORDER BY enrolled_at`, orgID)
	if err != nil {
		return nil, persistence.NewStoreError("Enrollments.ListByOrg", orgID, err)
	}
	defer rows.Close()

	var out []*models.Enrollment

	for rows.Next() {
		enr, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, enr)
	}

	return out, rows.Err()
}

func (r *enrollmentRepository) LatestByWorkflowAndClient(ctx context.Context, workflowID, clientID string, since time.Time) (*models.Enrollment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+`
		 FROM enrollments
		 WHERE workflow_id = $1 AND client_id = $2 AND enrolled_at >= $3
		 ORDER BY enrolled_at DESC
		 LIMIT 1`, workflowID, clientID, since)

	enr, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrEnrollmentNotFound
	}

	return enr, err
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enr      models.Enrollment
		metadata []byte
	)

	err := row.Scan(&enr.ID, &enr.OrgID, &enr.WorkflowID, &enr.ClientID,
		&enr.Reason, &enr.CurrentStepID, &enr.Status, &enr.NextExecutionAt,
		&metadata, &enr.EnrolledAt, &enr.UpdatedAt, &enr.CompletedAt)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &enr.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata for enrollment %s: %w", enr.ID, err)
		}
	}

	return &enr, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
