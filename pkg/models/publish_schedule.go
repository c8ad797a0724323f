package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// PublishSchedule is a recurring social-post schedule stored in the
// database. The next fire time is precomputed so the scheduler can query
// for due schedules without parsing cron expressions per tick.
type PublishSchedule struct {
	ID    string `json:"id"     validate:"required"`
	OrgID string `json:"org_id" validate:"required"`

	// CronExpression uses the standard 5-field format
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	Platform string `json:"platform" validate:"required"`

	// Template is the post body, rendered against the org context when the
	// resulting publish_post action fires.
	Template string `json:"template" validate:"required"`

	NextDueAt time.Time `json:"next_due_at"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidPublishSchedule is returned when schedule validation fails.
var ErrInvalidPublishSchedule = errors.New("invalid publish schedule configuration")

// NewPublishSchedule creates a schedule with its first fire time computed
// from now.
func NewPublishSchedule(id, orgID, cronExpression, platform, template string) (*PublishSchedule, error) {
	now := time.Now().UTC()
	schedule := &PublishSchedule{
		ID:             id,
		OrgID:          orgID,
		CronExpression: cronExpression,
		Platform:       platform,
		Template:       template,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt rolls the schedule forward after it fires.
func (s *PublishSchedule) UpdateNextDueAt(reference time.Time) error {
	return s.calculateNextDueAt(reference)
}

func (s *PublishSchedule) calculateNextDueAt(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPublishSchedule, err)
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the schedule should fire at the given time.
func (s *PublishSchedule) IsDue(now time.Time) bool {
	return s.Active && !s.NextDueAt.After(now)
}

// Validate checks required fields and the cron expression format.
func (s *PublishSchedule) Validate() error {
	if s.ID == "" || s.OrgID == "" || s.CronExpression == "" {
		return ErrInvalidPublishSchedule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(s.CronExpression)

	return err
}
