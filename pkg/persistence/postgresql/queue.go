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

type scheduledActionRepository struct {
	db *sql.DB
}

const actionColumns = `id, org_id, kind, args, scheduled_for, status,
	attempts, max_attempts, last_error, created_at, updated_at`

func (r *scheduledActionRepository) ByID(ctx context.Context, id string) (*models.ScheduledAction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM scheduled_actions WHERE id = $1`, id)

	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrScheduledActionNotFound
	}

	return action, err
}

func (r *scheduledActionRepository) Create(ctx context.Context, action *models.ScheduledAction) error {
	args, err := json.Marshal(orEmptyMap(action.Args))
	if err != nil {
		return persistence.NewStoreError("ScheduledActions.Create", action.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_actions (
			id, org_id, kind, args, scheduled_for, status,
			attempts, max_attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		action.ID, action.OrgID, action.Kind, args, action.ScheduledFor,
		action.Status, action.Attempts, action.MaxAttempts, action.LastError,
		createdOrNow(action.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("ScheduledActions.Create", action.ID, err)
	}

	return nil
}

func (r *scheduledActionRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.ScheduledAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+`
		 FROM scheduled_actions
		 WHERE org_id = $1
		 ORDER BY scheduled_for`, orgID)
	if err != nil {
		return nil, persistence.NewStoreError("ScheduledActions.ListByOrg", orgID, err)
	}

	return collectActions(rows)
}

func (r *scheduledActionRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledAction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+actionColumns+`
		 FROM scheduled_actions
		 WHERE status = $1 AND scheduled_for <= $2
		 ORDER BY scheduled_for`,
		models.ActionPending, now)
	if err != nil {
		return nil, persistence.NewStoreError("ScheduledActions.Due", "", err)
	}

	return collectActions(rows)
}

// Claim is the exclusivity primitive: one conditional UPDATE moves the
// action pending -> running and counts the attempt. The drain that loses
// the race matches zero rows and skips the action.
func (r *scheduledActionRepository) Claim(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.ActionRunning, id, models.ActionPending)
	if err != nil {
		return false, persistence.NewStoreError("ScheduledActions.Claim", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewStoreError("ScheduledActions.Claim", id, err)
	}

	return affected == 1, nil
}

func (r *scheduledActionRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.ActionRunning,
		`status = $1, updated_at = NOW()`, models.ActionCompleted)
}

func (r *scheduledActionRepository) Reschedule(ctx context.Context, id string, at time.Time, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET status = $1, scheduled_for = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		models.ActionPending, at, lastError, id, models.ActionRunning)

	return r.checkTransition(result, err, id, "ScheduledActions.Reschedule")
}

func (r *scheduledActionRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.ActionFailed, lastError, id, models.ActionRunning)

	return r.checkTransition(result, err, id, "ScheduledActions.MarkFailed")
}

func (r *scheduledActionRepository) Cancel(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_actions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.ActionCancelled, id, models.ActionPending)
	if err != nil {
		return persistence.NewStoreError("ScheduledActions.Cancel", id, err)
	}

	return nil
}

func (r *scheduledActionRepository) transition(ctx context.Context, id string, from models.ActionStatus, set string, args ...any) error {
	query := `UPDATE scheduled_actions SET ` + set +
		fmt.Sprintf(` WHERE id = $%d AND status = $%d`, len(args)+1, len(args)+2)

	allArgs := append(args, id, from)

	result, err := r.db.ExecContext(ctx, query, allArgs...)

	return r.checkTransition(result, err, id, "ScheduledActions.transition")
}

func (r *scheduledActionRepository) checkTransition(result sql.Result, err error, id, op string) error {
	if err != nil {
		return persistence.NewStoreError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError(op, id, persistence.ErrStaleStatus)
	}

	return nil
}

func collectActions(rows *sql.Rows) ([]*models.ScheduledAction, error) {
	defer rows.Close()

	var out []*models.ScheduledAction

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, action)
	}

	return out, rows.Err()
}

func scanAction(row rowScanner) (*models.ScheduledAction, error) {
	var (
		action models.ScheduledAction
		args   []byte
	)

	err := row.Scan(&action.ID, &action.OrgID, &action.Kind, &args,
		&action.ScheduledFor, &action.Status, &action.Attempts,
		&action.MaxAttempts, &action.LastError, &action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		err = json.Unmarshal(args, &action.Args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode args for scheduled action %s: %w", action.ID, err)
		}
	}

	return &action, nil
}

type executionLogRepository struct {
	db *sql.DB
}

const logColumns = `id, org_id, workflow_id, enrollment_id, client_id,
	step_id, action, outcome, message, metadata, created_at`

func (r *executionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	metadata, err := json.Marshal(orEmptyMap(entry.Metadata))
	if err != nil {
		return persistence.NewStoreError("ExecutionLogs.Append", entry.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (
			id, org_id, workflow_id, enrollment_id, client_id, step_id,
			action, outcome, message, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.OrgID, entry.WorkflowID, entry.EnrollmentID,
		entry.ClientID, entry.StepID, entry.Action, entry.Outcome,
		entry.Message, metadata, createdOrNow(entry.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("ExecutionLogs.Append", entry.ID, err)
	}

	return nil
}

func (r *executionLogRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`
		 FROM execution_logs
		 WHERE enrollment_id = $1
		 ORDER BY created_at`, enrollmentID)
	if err != nil {
		return nil, persistence.NewStoreError("ExecutionLogs.ListByEnrollment", enrollmentID, err)
	}

	return collectLogs(rows)
}

func (r *executionLogRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*models.ExecutionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`
		 FROM execution_logs
		 WHERE org_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, persistence.NewStoreError("ExecutionLogs.ListByOrg", orgID, err)
	}

	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]*models.ExecutionLog, error) {
	defer rows.Close()

	var out []*models.ExecutionLog

	for rows.Next() {
		var (
			entry    models.ExecutionLog
			metadata []byte
		)

		err := rows.Scan(&entry.ID, &entry.OrgID, &entry.WorkflowID,
			&entry.EnrollmentID, &entry.ClientID, &entry.StepID, &entry.Action,
			&entry.Outcome, &entry.Message, &metadata, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}

		if len(metadata) > 0 {
			err = json.Unmarshal(metadata, &entry.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to decode metadata for log %s: %w", entry.ID, err)
			}
		}

		out = append(out, &entry)
	}

	return out, rows.Err()
}

type messageRepository struct {
	db *sql.DB
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, org_id, client_id, enrollment_id, channel, to_addr,
			subject, body, delivery_ref, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		message.ID, message.OrgID, message.ClientID, message.EnrollmentID,
		message.Channel, message.To, message.Subject, message.Body,
		message.DeliveryRef, createdOrNow(message.SentAt))
	if err != nil {
		return persistence.NewStoreError("Messages.Create", message.ID, err)
	}

	return nil
}

func (r *messageRepository) ListByClient(ctx context.Context, orgID, clientID string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, client_id, enrollment_id, channel, to_addr,
		       subject, body, delivery_ref, sent_at
		FROM messages
		WHERE org_id = $1 AND client_id = $2
		ORDER BY sent_at`, orgID, clientID)
	if err != nil {
		return nil, persistence.NewStoreError("Messages.ListByClient", clientID, err)
	}
	defer rows.Close()

	var out []*models.Message

	for rows.Next() {
		var msg models.Message

		err := rows.Scan(&msg.ID, &msg.OrgID, &msg.ClientID, &msg.EnrollmentID,
			&msg.Channel, &msg.To, &msg.Subject, &msg.Body, &msg.DeliveryRef,
			&msg.SentAt)
		if err != nil {
			return nil, err
		}

		out = append(out, &msg)
	}

	return out, rows.Err()
}

type publishScheduleRepository struct {
	db *sql.DB
}

const scheduleColumns = `id, org_id, cron_expression, platform, template,
	next_due_at, active, created_at, updated_at`

func (r *publishScheduleRepository) Save(ctx context.Context, schedule *models.PublishSchedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publish_schedules (
			id, org_id, cron_expression, platform, template,
			next_due_at, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			platform = EXCLUDED.platform,
			template = EXCLUDED.template,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = NOW()`,
		schedule.ID, schedule.OrgID, schedule.CronExpression, schedule.Platform,
		schedule.Template, schedule.NextDueAt, schedule.Active,
		createdOrNow(schedule.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("PublishSchedules.Save", schedule.ID, err)
	}

	return nil
}

func (r *publishScheduleRepository) ListByOrg(ctx context.Context, orgID string) ([]*models.PublishSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM publish_schedules
		 WHERE org_id = $1
		 ORDER BY id`, orgID)
	if err != nil {
		return nil, persistence.NewStoreError("PublishSchedules.ListByOrg", orgID, err)
	}

	return collectSchedules(rows)
}

func (r *publishScheduleRepository) Due(ctx context.Context, now time.Time) ([]*models.PublishSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+`
		 FROM publish_schedules
		 WHERE active AND next_due_at <= $1
		 ORDER BY next_due_at`, now)
	if err != nil {
		return nil, persistence.NewStoreError("PublishSchedules.Due", "", err)
	}

	return collectSchedules(rows)
}

func collectSchedules(rows *sql.Rows) ([]*models.PublishSchedule, error) {
	defer rows.Close()

	var out []*models.PublishSchedule

	for rows.Next() {
		var s models.PublishSchedule

		err := rows.Scan(&s.ID, &s.OrgID, &s.CronExpression, &s.Platform,
			&s.Template, &s.NextDueAt, &s.Active, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, &s)
	}

	return out, rows.Err()
}
