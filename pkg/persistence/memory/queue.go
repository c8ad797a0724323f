package memory

import (
	"context"
	"sort"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
)

type scheduledActionRepository struct {
	store *Persistence
}

func (r *scheduledActionRepository) ByID(_ context.Context, id string) (*models.ScheduledAction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	action, ok := r.store.actions[id]
	if !ok {
		return nil, persistence.ErrScheduledActionNotFound
	}

	return cloneAction(action), nil
}

func (r *scheduledActionRepository) Create(_ context.Context, action *models.ScheduledAction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.actions[action.ID]; exists {
		return persistence.NewStoreError("ScheduledActions.Create", action.ID, persistence.ErrAlreadyExists)
	}

	r.store.actions[action.ID] = cloneAction(action)

	return nil
}

func (r *scheduledActionRepository) ListByOrg(_ context.Context, orgID string) ([]*models.ScheduledAction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.ScheduledAction

	for _, action := range r.store.actions {
		if action.OrgID == orgID {
			out = append(out, cloneAction(action))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })

	return out, nil
}

func (r *scheduledActionRepository) Due(_ context.Context, now time.Time) ([]*models.ScheduledAction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.ScheduledAction

	for _, action := range r.store.actions {
		if action.Status == models.ActionPending && !action.ScheduledFor.After(now) {
			out = append(out, cloneAction(action))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })

	return out, nil
}

// Claim performs the pending -> running transition under the store mutex,
// mirroring the conditional UPDATE of the SQL implementation.
func (r *scheduledActionRepository) Claim(_ context.Context, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	action, ok := r.store.actions[id]
	if !ok {
		return false, persistence.ErrScheduledActionNotFound
	}

	if action.Status != models.ActionPending {
		return false, nil
	}

	action.Status = models.ActionRunning
	action.Attempts++
	action.UpdatedAt = time.Now().UTC()

	return true, nil
}

func (r *scheduledActionRepository) MarkCompleted(_ context.Context, id string) error {
	return r.transition(id, models.ActionRunning, func(a *models.ScheduledAction) {
		a.Status = models.ActionCompleted
	})
}

func (r *scheduledActionRepository) Reschedule(_ context.Context, id string, at time.Time, lastError string) error {
	return r.transition(id, models.ActionRunning, func(a *models.ScheduledAction) {
		a.Status = models.ActionPending
		a.ScheduledFor = at
		a.LastError = lastError
	})
}

func (r *scheduledActionRepository) MarkFailed(_ context.Context, id string, lastError string) error {
	return r.transition(id, models.ActionRunning, func(a *models.ScheduledAction) {
		a.Status = models.ActionFailed
		a.LastError = lastError
	})
}

func (r *scheduledActionRepository) Cancel(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	action, ok := r.store.actions[id]
	if !ok {
		return persistence.ErrScheduledActionNotFound
	}

	if action.Status != models.ActionPending {
		return nil
	}

	action.Status = models.ActionCancelled
	action.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *scheduledActionRepository) transition(id string, from models.ActionStatus, apply func(*models.ScheduledAction)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	action, ok := r.store.actions[id]
	if !ok {
		return persistence.ErrScheduledActionNotFound
	}

	if action.Status != from {
		return persistence.NewStoreError("ScheduledActions.transition", id, persistence.ErrStaleStatus)
	}

	apply(action)
	action.UpdatedAt = time.Now().UTC()

	return nil
}

type executionLogRepository struct {
	store *Persistence
}

func (r *executionLogRepository) Append(_ context.Context, entry *models.ExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	clone := *entry
	clone.Metadata = cloneMap(entry.Metadata)
	r.store.logs = append(r.store.logs, &clone)

	return nil
}

func (r *executionLogRepository) ListByEnrollment(_ context.Context, enrollmentID string) ([]*models.ExecutionLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.ExecutionLog

	for _, entry := range r.store.logs {
		if entry.EnrollmentID == enrollmentID {
			clone := *entry
			out = append(out, &clone)
		}
	}

	return out, nil
}

func (r *executionLogRepository) ListByOrg(_ context.Context, orgID string, limit int) ([]*models.ExecutionLog, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.ExecutionLog

	for i := len(r.store.logs) - 1; i >= 0; i-- {
		if r.store.logs[i].OrgID != orgID {
			continue
		}

		clone := *r.store.logs[i]
		out = append(out, &clone)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

type messageRepository struct {
	store *Persistence
}

func (r *messageRepository) Create(_ context.Context, message *models.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	clone := *message
	r.store.messages[message.ID] = &clone

	return nil
}

func (r *messageRepository) ListByClient(_ context.Context, orgID, clientID string) ([]*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Message

	for _, msg := range r.store.messages {
		if msg.OrgID == orgID && msg.ClientID == clientID {
			clone := *msg
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })

	return out, nil
}

type publishScheduleRepository struct {
	store *Persistence
}

func (r *publishScheduleRepository) Save(_ context.Context, schedule *models.PublishSchedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	clone := *schedule
	r.store.publishSchedules[schedule.ID] = &clone

	return nil
}

func (r *publishScheduleRepository) ListByOrg(_ context.Context, orgID string) ([]*models.PublishSchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.PublishSchedule

	for _, s := range r.store.publishSchedules {
		if s.OrgID == orgID {
			clone := *s
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *publishScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.PublishSchedule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.PublishSchedule

	for _, s := range r.store.publishSchedules {
		if s.IsDue(now) {
			clone := *s
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(out[j].NextDueAt) })

	return out, nil
}

func cloneAction(action *models.ScheduledAction) *models.ScheduledAction {
	clone := *action
	clone.Args = cloneMap(action.Args)

	return &clone
}
