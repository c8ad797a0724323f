package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Step Model Tests

func TestStep_ValidateConfig_MatchingPayload(t *testing.T) {
	step := &Step{
		ID:      "step-1",
		Kind:    StepSendSMS,
		SendSMS: &SendSMSConfig{Template: "Hi {client_first_name}"},
	}

	assert.NoError(t, step.ValidateConfig())
}

func TestStep_ValidateConfig_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		step    *Step
		wantErr error
	}{
		{
			name:    "unknown kind",
			step:    &Step{ID: "step-1", Kind: StepKind("wait_for_moon_phase")},
			wantErr: ErrUnknownStepKind,
		},
		{
			name:    "missing payload",
			step:    &Step{ID: "step-1", Kind: StepAddTag},
			wantErr: ErrMissingStepConfig,
		},
		{
			name: "payload for another kind attached",
			step: &Step{
				ID:      "step-1",
				Kind:    StepDelay,
				Delay:   &DelayConfig{Value: 1, Unit: "days"},
				AddTag:  &AddTagConfig{Tag: "vip"},
				SendSMS: nil,
			},
			wantErr: ErrAmbiguousStepConfig,
		},
		{
			name: "conditional without a condition field",
			step: &Step{
				ID:          "step-1",
				Kind:        StepConditional,
				Conditional: &ConditionalConfig{},
			},
			wantErr: ErrMissingStepConfig,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.ValidateConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

// Workflow Model Tests

func TestWorkflow_Validate_DanglingEdge(t *testing.T) {
	workflow := &Workflow{
		ID:      "wf-1",
		OrgID:   "org-1",
		Name:    "Follow up",
		Trigger: TriggerAppointmentCompleted,
		Steps: []*Step{
			{
				ID:      "sms",
				Kind:    StepSendSMS,
				SendSMS: &SendSMSConfig{Template: "Thanks!"},
				Next:    "does-not-exist",
			},
		},
	}

	err := workflow.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingEdge)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "sms", stepErr.StepID)
	assert.Equal(t, "wf-1", stepErr.WorkflowID)
}

func TestWorkflow_Validate_ConditionalEdges(t *testing.T) {
	cond := &Step{
		ID:   "branch",
		Kind: StepConditional,
		Conditional: &ConditionalConfig{
			Condition: Condition{Field: ConditionTags, Operator: OpHasTag, Value: "vip"},
			OnTrue:    "tag",
			OnFalse:   "", // terminal edge
		},
	}
	tag := &Step{
		ID:     "tag",
		Kind:   StepAddTag,
		AddTag: &AddTagConfig{Tag: "vip-offer"},
	}

	workflow := &Workflow{
		ID:      "wf-1",
		OrgID:   "org-1",
		Name:    "VIP routing",
		Trigger: TriggerAppointmentScheduled,
		Steps:   []*Step{cond, tag},
	}

	require.NoError(t, workflow.Validate())

	cond.Conditional.OnTrue = "missing"
	assert.ErrorIs(t, workflow.Validate(), ErrDanglingEdge)
}

func TestWorkflow_StartStep(t *testing.T) {
	empty := &Workflow{}
	assert.Nil(t, empty.StartStep())

	workflow := &Workflow{
		Steps: []*Step{
			{ID: "first", Kind: StepAddTag, AddTag: &AddTagConfig{Tag: "a"}},
			{ID: "second", Kind: StepAddTag, AddTag: &AddTagConfig{Tag: "b"}},
		},
	}
	require.NotNil(t, workflow.StartStep())
	assert.Equal(t, "first", workflow.StartStep().ID)

	step, ok := workflow.StepByID("second")
	require.True(t, ok)
	assert.Equal(t, "second", step.ID)

	_, ok = workflow.StepByID("third")
	assert.False(t, ok)
}

// Delay Conversion Tests

func TestDelayConfig_Duration(t *testing.T) {
	testCases := []struct {
		value int
		unit  string
		want  time.Duration
	}{
		{30, "seconds", 30 * time.Second},
		{15, "minutes", 15 * time.Minute},
		{2, "hours", 2 * time.Hour},
		{3, "days", 72 * time.Hour},
		{1, "weeks", 7 * 24 * time.Hour},
		{1, "months", 30 * 24 * time.Hour},
		{2, "fortnights", 48 * time.Hour}, // unknown unit falls back to days
		{0, "days", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.unit, func(t *testing.T) {
			d := DelayConfig{Value: tc.value, Unit: tc.unit}
			assert.Equal(t, tc.want, d.Duration())
		})
	}
}

// Scheduled Action Tests

func TestScheduledAction_StringArg(t *testing.T) {
	action := &ScheduledAction{
		Args: map[string]any{
			"enrollment_id": "enr-1",
			"attempt":       3,
		},
	}

	assert.Equal(t, "enr-1", action.StringArg("enrollment_id"))
	assert.Equal(t, "", action.StringArg("attempt"))
	assert.Equal(t, "", action.StringArg("missing"))

	var bare ScheduledAction
	assert.Equal(t, "", bare.StringArg("anything"))
}

// Publish Schedule Tests

func TestNewPublishSchedule_ComputesNextDueAt(t *testing.T) {
	schedule, err := NewPublishSchedule("ps-1", "org-1", "0 9 * * *", "instagram", "Book now!")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC()))
	assert.Equal(t, 9, schedule.NextDueAt.Hour())
	assert.Equal(t, 0, schedule.NextDueAt.Minute())
}

func TestNewPublishSchedule_RejectsBadCron(t *testing.T) {
	_, err := NewPublishSchedule("ps-1", "org-1", "not a cron", "instagram", "Book now!")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPublishSchedule)
}

func TestPublishSchedule_UpdateNextDueAt_RollsForward(t *testing.T) {
	schedule, err := NewPublishSchedule("ps-1", "org-1", "0 9 * * *", "instagram", "Book now!")
	require.NoError(t, err)

	reference := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, schedule.UpdateNextDueAt(reference))
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), schedule.NextDueAt)
}
