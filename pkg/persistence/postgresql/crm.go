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

type organizationRepository struct {
	db *sql.DB
}

func (r *organizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, booking_link, google_review_link, custom_tokens,
		       creation_scanned_at, created_at, updated_at
		FROM organizations
		ORDER BY id`)
	if err != nil {
		return nil, persistence.NewStoreError("Organizations.List", "", err)
	}
	defer rows.Close()

	var orgs []*models.Organization

	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}

		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

func (r *organizationRepository) ByID(ctx context.Context, id string) (*models.Organization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, booking_link, google_review_link, custom_tokens,
		       creation_scanned_at, created_at, updated_at
		FROM organizations
		WHERE id = $1`, id)

	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrOrganizationNotFound
	}

	return org, err
}

func (r *organizationRepository) Save(ctx context.Context, org *models.Organization) error {
	tokens, err := json.Marshal(orEmptyTokens(org.CustomTokens))
	if err != nil {
		return persistence.NewStoreError("Organizations.Save", org.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO organizations (
			id, name, booking_link, google_review_link, custom_tokens,
			creation_scanned_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			booking_link = EXCLUDED.booking_link,
			google_review_link = EXCLUDED.google_review_link,
			custom_tokens = EXCLUDED.custom_tokens,
			creation_scanned_at = EXCLUDED.creation_scanned_at,
			updated_at = NOW()`,
		org.ID, org.Name, org.BookingLink, org.GoogleReviewLink, tokens,
		org.CreationScannedAt, createdOrNow(org.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("Organizations.Save", org.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org    models.Organization
		tokens []byte
	)

	err := row.Scan(&org.ID, &org.Name, &org.BookingLink, &org.GoogleReviewLink,
		&tokens, &org.CreationScannedAt,
		&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(tokens) > 0 {
		err = json.Unmarshal(tokens, &org.CustomTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to decode custom tokens for organization %s: %w", org.ID, err)
		}
	}

	return &org, nil
}

type clientRepository struct {
	db *sql.DB
}

func (r *clientRepository) ByID(ctx context.Context, orgID, id string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, first_name, last_name, email, phones, status, tags,
		       created_at, updated_at
		FROM clients
		WHERE id = $1 AND org_id = $2`, id, orgID)

	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrClientNotFound
	}

	return client, err
}

func (r *clientRepository) Save(ctx context.Context, client *models.Client) error {
	phones, err := json.Marshal(orEmptySlice(client.Phones))
	if err != nil {
		return persistence.NewStoreError("Clients.Save", client.ID, err)
	}

	tags, err := json.Marshal(orEmptySlice(client.Tags))
	if err != nil {
		return persistence.NewStoreError("Clients.Save", client.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, org_id, first_name, last_name, email, phones, status, tags,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			phones = EXCLUDED.phones,
			status = EXCLUDED.status,
			tags = EXCLUDED.tags,
			updated_at = NOW()`,
		client.ID, client.OrgID, client.FirstName, client.LastName, client.Email,
		phones, client.Status, tags, createdOrNow(client.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("Clients.Save", client.ID, err)
	}

	return nil
}

// AddTag appends the tag inside a row-locked transaction so concurrent tag
// mutations on the same client serialize.
func (r *clientRepository) AddTag(ctx context.Context, orgID, clientID, tag string) (bool, error) {
	added := false

	err := r.withClientTags(ctx, orgID, clientID, func(tags []string) ([]string, bool) {
		for _, t := range tags {
			if t == tag {
				return tags, false
			}
		}

		added = true

		return append(tags, tag), true
	})

	return added, err
}

func (r *clientRepository) RemoveTag(ctx context.Context, orgID, clientID, tag string, mode models.RemoveTagMode) (int, error) {
	removed := 0

	err := r.withClientTags(ctx, orgID, clientID, func(tags []string) ([]string, bool) {
		kept := tags[:0]

		for _, t := range tags {
			if t == tag && (mode == models.RemoveTagAll || removed == 0) {
				removed++

				continue
			}

			kept = append(kept, t)
		}

		return kept, removed > 0
	})

	return removed, err
}

func (r *clientRepository) withClientTags(ctx context.Context, orgID, clientID string, mutate func([]string) ([]string, bool)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStoreError("Clients.withClientTags", clientID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte

	err = tx.QueryRowContext(ctx,
		`SELECT tags FROM clients WHERE id = $1 AND org_id = $2 FOR UPDATE`,
		clientID, orgID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrClientNotFound
	}

	if err != nil {
		return persistence.NewStoreError("Clients.withClientTags", clientID, err)
	}

	var tags []string

	err = json.Unmarshal(raw, &tags)
	if err != nil {
		return persistence.NewStoreError("Clients.withClientTags", clientID, err)
	}

	next, changed := mutate(tags)
	if !changed {
		return nil
	}

	encoded, err := json.Marshal(orEmptySlice(next))
	if err != nil {
		return persistence.NewStoreError("Clients.withClientTags", clientID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE clients SET tags = $1, updated_at = NOW() WHERE id = $2`,
		encoded, clientID)
	if err != nil {
		return persistence.NewStoreError("Clients.withClientTags", clientID, err)
	}

	return tx.Commit()
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		client models.Client
		phones []byte
		tags   []byte
	)

	err := row.Scan(&client.ID, &client.OrgID, &client.FirstName, &client.LastName,
		&client.Email, &phones, &client.Status, &tags,
		&client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(phones, &client.Phones); err != nil {
		return nil, fmt.Errorf("failed to decode phones for client %s: %w", client.ID, err)
	}

	if err := json.Unmarshal(tags, &client.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for client %s: %w", client.ID, err)
	}

	return &client, nil
}

type appointmentRepository struct {
	db *sql.DB
}

const appointmentColumns = `id, org_id, client_id, type, starts_at, status, created_at, updated_at`

func (r *appointmentRepository) ByID(ctx context.Context, orgID, id string) (*models.Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND org_id = $2`,
		id, orgID)

	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrAppointmentNotFound
	}

	return appt, err
}

func (r *appointmentRepository) Save(ctx context.Context, appointment *models.Appointment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, org_id, client_id, type, starts_at, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			starts_at = EXCLUDED.starts_at,
			status = EXCLUDED.status,
			updated_at = NOW()`,
		appointment.ID, appointment.OrgID, appointment.ClientID, appointment.Type,
		appointment.StartsAt, appointment.Status, createdOrNow(appointment.CreatedAt))
	if err != nil {
		return persistence.NewStoreError("Appointments.Save", appointment.ID, err)
	}

	return nil
}

func (r *appointmentRepository) CreatedBetween(ctx context.Context, orgID string, since, until time.Time) ([]*models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE org_id = $1 AND status = $2 AND created_at > $3 AND created_at <= $4
		 ORDER BY created_at`,
		orgID, models.AppointmentStatusScheduled, since, until)
	if err != nil {
		return nil, persistence.NewStoreError("Appointments.CreatedBetween", orgID, err)
	}

	return collectAppointments(rows)
}

func (r *appointmentRepository) StartedBefore(ctx context.Context, orgID string, cutoff time.Time) ([]*models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE org_id = $1 AND status = $2 AND starts_at <= $3
		 ORDER BY starts_at`,
		orgID, models.AppointmentStatusScheduled, cutoff)
	if err != nil {
		return nil, persistence.NewStoreError("Appointments.StartedBefore", orgID, err)
	}

	return collectAppointments(rows)
}

func (r *appointmentRepository) MarkCompleted(ctx context.Context, orgID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND org_id = $3 AND status = $4`,
		models.AppointmentStatusCompleted, id, orgID, models.AppointmentStatusScheduled)
	if err != nil {
		return false, persistence.NewStoreError("Appointments.MarkCompleted", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewStoreError("Appointments.MarkCompleted", id, err)
	}

	return affected == 1, nil
}

func (r *appointmentRepository) CountByClient(ctx context.Context, orgID, clientID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE org_id = $1 AND client_id = $2 AND status <> $3`,
		orgID, clientID, models.AppointmentStatusCancelled).Scan(&count)
	if err != nil {
		return 0, persistence.NewStoreError("Appointments.CountByClient", clientID, err)
	}

	return count, nil
}

func (r *appointmentRepository) LastCompletedByClient(ctx context.Context, orgID, clientID string) (*models.Appointment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE org_id = $1 AND client_id = $2 AND status = $3
		 ORDER BY starts_at DESC
		 LIMIT 1`,
		orgID, clientID, models.AppointmentStatusCompleted)

	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrAppointmentNotFound
	}

	return appt, err
}

func collectAppointments(rows *sql.Rows) ([]*models.Appointment, error) {
	defer rows.Close()

	var out []*models.Appointment

	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, appt)
	}

	return out, rows.Err()
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var appt models.Appointment

	err := row.Scan(&appt.ID, &appt.OrgID, &appt.ClientID, &appt.Type,
		&appt.StartsAt, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &appt, nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

func orEmptyTokens(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}

	return m
}

func createdOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}

	return t
}
