package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowdesk/reflow/pkg/models"
	notifiermem "github.com/glowdesk/reflow/pkg/notifier/memory"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/testutil"
	"github.com/glowdesk/reflow/pkg/web"
	"github.com/glowdesk/reflow/pkg/workflow"
)

type webFixture struct {
	app   *fiber.App
	store *memory.Persistence
	clock *testutil.FakeClock
	org   *models.Organization
}

func setupTestApp(t *testing.T) *webFixture {
	t.Helper()

	store := memory.NewPersistence()
	bus := testutil.NewRecordingBus()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.Default()

	executor := workflow.NewExecutor(store, notifiermem.NewNotifier(), bus, clock, logger)
	enrollments := workflow.NewEnrollments(store, executor, bus, clock, logger, 3)

	handlers := web.NewAPIHandlers(store, enrollments, validator.New(validator.WithRequiredStructEnabled()), clock)

	app := fiber.New()
	web.Register(app, handlers)

	org := testutil.CreateTestOrg()
	require.NoError(t, store.Organizations().Save(context.Background(), org))

	return &webFixture{app: app, store: store, clock: clock, org: org}
}

func (f *webFixture) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))

	return out
}

func TestCreateWorkflow(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/workflows/", web.CreateWorkflowRequest{
		Name:    "Post-Botox Follow-up",
		Trigger: "toxins",
		Steps: []*models.Step{
			testutil.SMSStep("s1", "Thanks {{first_name}}!", "s2"),
			testutil.DelayStep("s2", 1, "days", "s3"),
			testutil.AddTagStep("s3", "followed_up", ""),
		},
		Enabled:                 true,
		PreventDuplicates:       true,
		DuplicatePreventionDays: 30,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Workflow](t, resp)
	assert.Equal(t, "Post-Botox Follow-up", created.Name)
	assert.Equal(t, f.org.ID, created.OrgID)
	assert.Len(t, created.Steps, 3)

	stored, err := f.store.Workflows().ByID(context.Background(), f.org.ID, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestCreateWorkflow_RejectsInvalidStepConfig(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/workflows/", web.CreateWorkflowRequest{
		Name:    "Broken",
		Trigger: "toxins",
		Steps: []*models.Step{
			{ID: "s1", Kind: models.StepSendSMS, SendSMS: &models.SendSMSConfig{Template: ""}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflow_RejectsDanglingEdge(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/workflows/", web.CreateWorkflowRequest{
		Name:    "Dangling",
		Trigger: "toxins",
		Steps: []*models.Step{
			testutil.AddTagStep("s1", "x", "nope"),
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodGet, "/orgs/"+f.org.ID+"/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnableDisableWorkflow(t *testing.T) {
	f := setupTestApp(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, "toxins", []*models.Step{
		testutil.AddTagStep("s1", "x", ""),
	}, func(w *models.Workflow) { w.Enabled = false })
	require.NoError(t, f.store.Workflows().Save(context.Background(), wf))

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/workflows/"+wf.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := f.store.Workflows().ByID(context.Background(), f.org.ID, wf.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	resp = f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/workflows/"+wf.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err = f.store.Workflows().ByID(context.Background(), f.org.ID, wf.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestUpdateWorkflow_PartialPatch(t *testing.T) {
	f := setupTestApp(t)

	wf := testutil.CreateTestWorkflow(f.org.ID, "toxins", []*models.Step{
		testutil.AddTagStep("s1", "x", ""),
	})
	require.NoError(t, f.store.Workflows().Save(context.Background(), wf))

	name := "Renamed Workflow"
	resp := f.request(t, http.MethodPatch, "/orgs/"+f.org.ID+"/workflows/"+wf.ID, web.UpdateWorkflowRequest{
		Name: &name,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := f.store.Workflows().ByID(context.Background(), f.org.ID, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Workflow", stored.Name)
	assert.Equal(t, "toxins", stored.Trigger, "untouched fields survive")
}

func TestEnrollmentLifecycleEndpoints(t *testing.T) {
	f := setupTestApp(t)

	client := testutil.CreateTestClient(f.org.ID)
	require.NoError(t, f.store.Clients().Save(context.Background(), client))

	wf := testutil.CreateTestWorkflow(f.org.ID, "toxins", []*models.Step{
		testutil.DelayStep("s1", 1, "days", "s2"),
		testutil.AddTagStep("s2", "x", ""),
	})
	require.NoError(t, f.store.Workflows().Save(context.Background(), wf))

	enrollment := &models.Enrollment{
		ID:            "enr1",
		OrgID:         f.org.ID,
		WorkflowID:    wf.ID,
		ClientID:      client.ID,
		CurrentStepID: "s1",
		Status:        models.EnrollmentActive,
		EnrolledAt:    f.clock.Now(),
	}
	require.NoError(t, f.store.Enrollments().Create(context.Background(), enrollment))

	resp := f.request(t, http.MethodGet, "/orgs/"+f.org.ID+"/enrollments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := decode[web.EnrollmentListResponse](t, resp)
	require.Len(t, list.Enrollments, 1)

	resp = f.request(t, http.MethodPost, "/enrollments/enr1/pause", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := f.store.Enrollments().ByID(context.Background(), "enr1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPaused, stored.Status)

	resp = f.request(t, http.MethodPost, "/enrollments/enr1/cancel", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err = f.store.Enrollments().ByID(context.Background(), "enr1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, stored.Status)
}

func TestCreatePublishSchedule(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/publish-schedules/", web.CreatePublishScheduleRequest{
		CronExpression: "0 9 * * 1",
		Platform:       "instagram",
		Template:       "Book your visit at {{business_name}}!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.PublishSchedule](t, resp)
	assert.True(t, created.Active)
	assert.False(t, created.NextDueAt.IsZero())
}

func TestCreatePublishSchedule_RejectsBadCron(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodPost, "/orgs/"+f.org.ID+"/publish-schedules/", web.CreatePublishScheduleRequest{
		CronExpression: "whenever",
		Platform:       "instagram",
		Template:       "hello",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	f := setupTestApp(t)

	resp := f.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
