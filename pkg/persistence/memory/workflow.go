package memory

import (
	"context"
	"sort"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
)

type workflowRepository struct {
	store *Persistence
}

func (r *workflowRepository) ByID(_ context.Context, orgID, id string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	wf, ok := r.store.workflows[id]
	if !ok || wf.OrgID != orgID {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(wf), nil
}

func (r *workflowRepository) ListByOrg(_ context.Context, orgID string) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Workflow

	for _, wf := range r.store.workflows {
		if wf.OrgID == orgID {
			out = append(out, cloneWorkflow(wf))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (r *workflowRepository) Delete(_ context.Context, orgID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	wf, ok := r.store.workflows[id]
	if !ok || wf.OrgID != orgID {
		return persistence.ErrWorkflowNotFound
	}

	delete(r.store.workflows, id)

	return nil
}

func (r *workflowRepository) EnabledByTrigger(_ context.Context, orgID string, keys []string) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	match := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		match[k] = struct{}{}
	}

	var out []*models.Workflow

	for _, wf := range r.store.workflows {
		if wf.OrgID != orgID || !wf.Enabled {
			continue
		}

		if _, ok := match[wf.Trigger]; ok {
			out = append(out, cloneWorkflow(wf))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

type enrollmentRepository struct {
	store *Persistence
}

func (r *enrollmentRepository) ByID(_ context.Context, id string) (*models.Enrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	enr, ok := r.store.enrollments[id]
	if !ok {
		return nil, persistence.ErrEnrollmentNotFound
	}

	return cloneEnrollment(enr), nil
}

func (r *enrollmentRepository) Create(_ context.Context, enrollment *models.Enrollment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.enrollments[enrollment.ID]; exists {
		return persistence.NewStoreError("Enrollments.Create", enrollment.ID, persistence.ErrAlreadyExists)
	}

	r.store.enrollments[enrollment.ID] = cloneEnrollment(enrollment)

	return nil
}

func (r *enrollmentRepository) Save(_ context.Context, enrollment *models.Enrollment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.enrollments[enrollment.ID]; !exists {
		return persistence.ErrEnrollmentNotFound
	}

	r.store.enrollments[enrollment.ID] = cloneEnrollment(enrollment)

	return nil
}

func (r *enrollmentRepository) ListByOrg(_ context.Context, orgID string) ([]*models.Enrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Enrollment

	for _, enr := range r.store.enrollments {
		if enr.OrgID == orgID {
			out = append(out, cloneEnrollment(enr))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })

	return out, nil
}

func (r *enrollmentRepository) LatestByWorkflowAndClient(_ context.Context, workflowID, clientID string, since time.Time) (*models.Enrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var latest *models.Enrollment

	for _, enr := range r.store.enrollments {
		if enr.WorkflowID != workflowID || enr.ClientID != clientID {
			continue
		}

		if enr.EnrolledAt.Before(since) {
			continue
		}

		if latest == nil || enr.EnrolledAt.After(latest.EnrolledAt) {
			latest = enr
		}
	}

	if latest == nil {
		return nil, persistence.ErrEnrollmentNotFound
	}

	return cloneEnrollment(latest), nil
}

func cloneWorkflow(wf *models.Workflow) *models.Workflow {
	clone := *wf
	clone.Steps = make([]*models.Step, len(wf.Steps))

	for i, s := range wf.Steps {
		step := *s
		clone.Steps[i] = &step
	}

	return &clone
}

func cloneEnrollment(enr *models.Enrollment) *models.Enrollment {
	clone := *enr
	clone.Metadata = cloneMap(enr.Metadata)

	if enr.NextExecutionAt != nil {
		t := *enr.NextExecutionAt
		clone.NextExecutionAt = &t
	}

	if enr.CompletedAt != nil {
		t := *enr.CompletedAt
		clone.CompletedAt = &t
	}

	return &clone
}
