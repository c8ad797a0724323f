package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence/memory"
	"github.com/glowdesk/reflow/pkg/testutil"
)

func TestConditionEvaluator_Tags(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev := NewConditionEvaluator(store.Appointments(), clock)

	org := testutil.CreateTestOrg()
	client := testutil.CreateTestClient(org.ID, func(c *models.Client) {
		c.Tags = []string{"vip", "botox_regular"}
	})

	tests := []struct {
		name     string
		operator models.ConditionOperator
		value    string
		want     bool
	}{
		{"has_tag present", models.OpHasTag, "vip", true},
		{"has_tag absent", models.OpHasTag, "lapsed", false},
		{"contains alias", models.OpContains, "botox_regular", true},
		{"not_has_tag absent", models.OpNotHasTag, "lapsed", true},
		{"not_has_tag present", models.OpNotHasTag, "vip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), models.Condition{
				Field:    models.ConditionTags,
				Operator: tt.operator,
				Value:    tt.value,
			}, client, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvaluator_AppointmentCount(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ev := NewConditionEvaluator(store.Appointments(), clock)

	org := testutil.CreateTestOrg()
	client := testutil.CreateTestClient(org.ID)

	for range 3 {
		appt := testutil.CreateTestAppointment(org.ID, client.ID)
		require.NoError(t, store.Appointments().Save(context.Background(), appt))
	}

	got, err := ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentCount,
		Operator: models.OpGreaterThan,
		Value:    "2",
	}, client, nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentCount,
		Operator: models.OpEquals,
		Value:    "3",
	}, client, nil)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentCount,
		Operator: models.OpGreaterThan,
		Value:    "a lot",
	}, client, nil)
	require.Error(t, err)
}

func TestConditionEvaluator_AppointmentType(t *testing.T) {
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(time.Now().UTC())
	ev := NewConditionEvaluator(store.Appointments(), clock)

	org := testutil.CreateTestOrg()
	client := testutil.CreateTestClient(org.ID)
	appt := testutil.CreateTestAppointment(org.ID, client.ID, func(a *models.Appointment) {
		a.Type = "Botox Touch-up"
	})

	got, err := ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentType,
		Operator: models.OpContains,
		Value:    "botox",
	}, client, appt)
	require.NoError(t, err)
	assert.True(t, got, "type comparison is case-insensitive")

	// Older stored workflows use the string_contains spelling.
	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentType,
		Operator: models.OpStringContains,
		Value:    "botox",
	}, client, appt)
	require.NoError(t, err)
	assert.True(t, got)

	// No appointment in scope compares against the empty string.
	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionAppointmentType,
		Operator: models.OpEquals,
		Value:    "",
	}, client, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestConditionEvaluator_LastAppointmentDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := memory.NewPersistence()
	clock := testutil.NewFakeClock(now)
	ev := NewConditionEvaluator(store.Appointments(), clock)

	org := testutil.CreateTestOrg()
	client := testutil.CreateTestClient(org.ID)

	// No completed appointment: treated as infinitely long ago.
	got, err := ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionLastAppointment,
		Operator: models.OpGreaterThan,
		Value:    "90",
	}, client, nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionLastAppointment,
		Operator: models.OpLessThan,
		Value:    "90",
	}, client, nil)
	require.NoError(t, err)
	assert.False(t, got)

	appt := testutil.CreateTestAppointment(org.ID, client.ID, func(a *models.Appointment) {
		a.StartsAt = now.AddDate(0, 0, -45)
		a.Status = models.AppointmentStatusCompleted
	})
	require.NoError(t, store.Appointments().Save(context.Background(), appt))

	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionLastAppointment,
		Operator: models.OpGreaterThan,
		Value:    "30",
	}, client, nil)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionLastAppointment,
		Operator: models.OpLessThan,
		Value:    "30",
	}, client, nil)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestConditionEvaluator_UnknownFieldAndOperator(t *testing.T) {
	store := memory.NewPersistence()
	ev := NewConditionEvaluator(store.Appointments(), testutil.NewFakeClock(time.Now().UTC()))

	org := testutil.CreateTestOrg()
	client := testutil.CreateTestClient(org.ID)

	_, err := ev.Evaluate(context.Background(), models.Condition{
		Field:    "zodiac_sign",
		Operator: models.OpEquals,
		Value:    "leo",
	}, client, nil)
	assert.ErrorIs(t, err, ErrUnknownConditionField)

	_, err = ev.Evaluate(context.Background(), models.Condition{
		Field:    models.ConditionTags,
		Operator: models.OpGreaterThan,
		Value:    "vip",
	}, client, nil)
	assert.ErrorIs(t, err, ErrUnknownConditionOperator)
}
