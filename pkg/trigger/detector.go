// Package trigger detects appointment activity and enrolls matching
// workflows.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
	"github.com/glowdesk/reflow/pkg/protocol"
	"github.com/glowdesk/reflow/pkg/workflow"
)

const (
	// defaultAssumedDuration is how long after its start time a scheduled
	// appointment is presumed finished. Completion is inferred from elapsed
	// time because the calendar source sends no explicit confirmation.
	defaultAssumedDuration = time.Hour

	// defaultLookback caps the creation scan window on an org that has
	// never been scanned, keeping the first tick bounded.
	defaultLookback = 24 * time.Hour
)

// Stats summarizes one detection pass over an org.
type Stats struct {
	Processed int
	Triggered int
}

// Detector runs the two detection paths per org: newly created appointments
// and inferred completions. The creation path advances a per-org high-water
// mark; the completion path is bounded by the status transition itself.
type Detector struct {
	persistence persistence.Persistence
	enrollments *workflow.Enrollments
	clock       protocol.Clock
	logger      *slog.Logger

	assumedDuration time.Duration
	lookback        time.Duration
}

func NewDetector(
	p persistence.Persistence,
	enrollments *workflow.Enrollments,
	clock protocol.Clock,
	logger *slog.Logger,
	assumedDuration time.Duration,
	lookback time.Duration,
) *Detector {
	if assumedDuration <= 0 {
		assumedDuration = defaultAssumedDuration
	}

	if lookback <= 0 {
		lookback = defaultLookback
	}

	return &Detector{
		persistence:     p,
		enrollments:     enrollments,
		clock:           clock,
		logger:          logger.With("module", "detector"),
		assumedDuration: assumedDuration,
		lookback:        lookback,
	}
}

// Detect runs both detection paths for the org and persists the advanced
// creation watermark. Individual appointment failures are logged and
// skipped; one bad record must not stall the whole org.
func (d *Detector) Detect(ctx context.Context, org *models.Organization) (Stats, error) {
	var stats Stats

	now := d.clock.Now()

	if err := d.detectCreated(ctx, org, now, &stats); err != nil {
		return stats, err
	}

	if err := d.detectCompleted(ctx, org, now, &stats); err != nil {
		return stats, err
	}

	org.UpdatedAt = now
	if err := d.persistence.Organizations().Save(ctx, org); err != nil {
		return stats, fmt.Errorf("failed to save organization watermark: %w", err)
	}

	return stats, nil
}

// detectCreated scans appointments created in (CreationScannedAt, now] that
// are still scheduled and fires the appointment_scheduled trigger for each.
func (d *Detector) detectCreated(ctx context.Context, org *models.Organization, now time.Time, stats *Stats) error {
	since := org.CreationScannedAt
	if since.IsZero() {
		since = now.Add(-d.lookback)
	}

	appointments, err := d.persistence.Appointments().CreatedBetween(ctx, org.ID, since, now)
	if err != nil {
		return fmt.Errorf("failed to scan created appointments: %w", err)
	}

	for _, appt := range appointments {
		stats.Processed++
		stats.Triggered += d.fire(ctx, org, appt, models.TriggerAppointmentScheduled)
	}

	org.CreationScannedAt = now

	return nil
}

// detectCompleted finds scheduled appointments presumed finished, flips
// them to completed, and fires the appointment_completed trigger. The
// conditional transition makes two detectors racing on the same appointment
// produce one completion.
func (d *Detector) detectCompleted(ctx context.Context, org *models.Organization, now time.Time, stats *Stats) error {
	cutoff := now.Add(-d.assumedDuration)

	appointments, err := d.persistence.Appointments().StartedBefore(ctx, org.ID, cutoff)
	if err != nil {
		return fmt.Errorf("failed to scan completable appointments: %w", err)
	}

	for _, appt := range appointments {
		won, err := d.persistence.Appointments().MarkCompleted(ctx, org.ID, appt.ID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to mark appointment completed",
				"org_id", org.ID, "appointment_id", appt.ID, "error", err)

			continue
		}

		if !won {
			continue
		}

		stats.Processed++
		stats.Triggered += d.fire(ctx, org, appt, models.TriggerAppointmentCompleted)
	}

	return nil
}

// fire matches the appointment against enabled workflows subscribed to the
// base event key or the derived service sub-key and enrolls the client in
// each. Returns how many enrollments were created.
func (d *Detector) fire(ctx context.Context, org *models.Organization, appt *models.Appointment, baseKey string) int {
	keys := []string{baseKey}
	if derived := DeriveTriggerKey(appt.Type, baseKey); derived != baseKey {
		keys = append(keys, derived)
	}

	workflows, err := d.persistence.Workflows().EnabledByTrigger(ctx, org.ID, keys)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to match workflows",
			"org_id", org.ID, "appointment_id", appt.ID, "error", err)

		return 0
	}

	if len(workflows) == 0 {
		return 0
	}

	client, err := d.persistence.Clients().ByID(ctx, org.ID, appt.ClientID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load client for trigger",
			"org_id", org.ID, "client_id", appt.ClientID, "error", err)

		return 0
	}

	triggered := 0

	for _, wf := range workflows {
		enrollment, err := d.enrollments.Enroll(ctx, wf, client, "trigger:"+wf.Trigger, map[string]any{
			"appointment_id":   appt.ID,
			"appointment_type": appt.Type,
			"trigger_key":      baseKey,
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "Enrollment failed",
				"org_id", org.ID, "workflow_id", wf.ID, "client_id", client.ID, "error", err)

			continue
		}

		if enrollment != nil {
			triggered++
		}
	}

	return triggered
}
