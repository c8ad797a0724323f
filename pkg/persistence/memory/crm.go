package memory

import (
	"context"
	"sort"
	"time"

	"github.com/glowdesk/reflow/pkg/models"
	"github.com/glowdesk/reflow/pkg/persistence"
)

type organizationRepository struct {
	store *Persistence
}

func (r *organizationRepository) List(_ context.Context) ([]*models.Organization, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	orgs := make([]*models.Organization, 0, len(r.store.organizations))
	for _, org := range r.store.organizations {
		orgs = append(orgs, cloneOrganization(org))
	}

	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })

	return orgs, nil
}

func (r *organizationRepository) ByID(_ context.Context, id string) (*models.Organization, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	org, ok := r.store.organizations[id]
	if !ok {
		return nil, persistence.ErrOrganizationNotFound
	}

	return cloneOrganization(org), nil
}

func (r *organizationRepository) Save(_ context.Context, org *models.Organization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.organizations[org.ID] = cloneOrganization(org)

	return nil
}

type clientRepository struct {
	store *Persistence
}

func (r *clientRepository) ByID(_ context.Context, orgID, id string) (*models.Client, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	client, ok := r.store.clients[id]
	if !ok || client.OrgID != orgID {
		return nil, persistence.ErrClientNotFound
	}

	return cloneClient(client), nil
}

func (r *clientRepository) Save(_ context.Context, client *models.Client) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.clients[client.ID] = cloneClient(client)

	return nil
}

func (r *clientRepository) AddTag(_ context.Context, orgID, clientID, tag string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	client, ok := r.store.clients[clientID]
	if !ok || client.OrgID != orgID {
		return false, persistence.ErrClientNotFound
	}

	if client.HasTag(tag) {
		return false, nil
	}

	client.Tags = append(client.Tags, tag)
	client.UpdatedAt = time.Now().UTC()

	return true, nil
}

func (r *clientRepository) RemoveTag(_ context.Context, orgID, clientID, tag string, mode models.RemoveTagMode) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	client, ok := r.store.clients[clientID]
	if !ok || client.OrgID != orgID {
		return 0, persistence.ErrClientNotFound
	}

	removed := 0
	kept := client.Tags[:0]

	for _, t := range client.Tags {
		if t == tag && (mode == models.RemoveTagAll || removed == 0) {
			removed++

			continue
		}

		kept = append(kept, t)
	}

	client.Tags = kept
	if removed > 0 {
		client.UpdatedAt = time.Now().UTC()
	}

	return removed, nil
}

type appointmentRepository struct {
	store *Persistence
}

func (r *appointmentRepository) ByID(_ context.Context, orgID, id string) (*models.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	appt, ok := r.store.appointments[id]
	if !ok || appt.OrgID != orgID {
		return nil, persistence.ErrAppointmentNotFound
	}

	clone := *appt

	return &clone, nil
}

func (r *appointmentRepository) Save(_ context.Context, appointment *models.Appointment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	clone := *appointment
	r.store.appointments[appointment.ID] = &clone

	return nil
}

func (r *appointmentRepository) CreatedBetween(_ context.Context, orgID string, since, until time.Time) ([]*models.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Appointment

	for _, appt := range r.store.appointments {
		if appt.OrgID != orgID || appt.Status != models.AppointmentStatusScheduled {
			continue
		}

		if appt.CreatedAt.After(since) && !appt.CreatedAt.After(until) {
			clone := *appt
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *appointmentRepository) StartedBefore(_ context.Context, orgID string, cutoff time.Time) ([]*models.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.Appointment

	for _, appt := range r.store.appointments {
		if appt.OrgID != orgID || appt.Status != models.AppointmentStatusScheduled {
			continue
		}

		if !appt.StartsAt.After(cutoff) {
			clone := *appt
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })

	return out, nil
}

func (r *appointmentRepository) MarkCompleted(_ context.Context, orgID, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	appt, ok := r.store.appointments[id]
	if !ok || appt.OrgID != orgID {
		return false, persistence.ErrAppointmentNotFound
	}

	if appt.Status != models.AppointmentStatusScheduled {
		return false, nil
	}

	appt.Status = models.AppointmentStatusCompleted
	appt.UpdatedAt = time.Now().UTC()

	return true, nil
}

func (r *appointmentRepository) CountByClient(_ context.Context, orgID, clientID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	count := 0

	for _, appt := range r.store.appointments {
		if appt.OrgID == orgID && appt.ClientID == clientID && appt.Status != models.AppointmentStatusCancelled {
			count++
		}
	}

	return count, nil
}

func (r *appointmentRepository) LastCompletedByClient(_ context.Context, orgID, clientID string) (*models.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var last *models.Appointment

	for _, appt := range r.store.appointments {
		if appt.OrgID != orgID || appt.ClientID != clientID || appt.Status != models.AppointmentStatusCompleted {
			continue
		}

		if last == nil || appt.StartsAt.After(last.StartsAt) {
			last = appt
		}
	}

	if last == nil {
		return nil, persistence.ErrAppointmentNotFound
	}

	clone := *last

	return &clone, nil
}

func cloneOrganization(org *models.Organization) *models.Organization {
	clone := *org

	if org.CustomTokens != nil {
		clone.CustomTokens = make(map[string]string, len(org.CustomTokens))
		for k, v := range org.CustomTokens {
			clone.CustomTokens[k] = v
		}
	}

	return &clone
}

func cloneClient(client *models.Client) *models.Client {
	clone := *client
	clone.Phones = cloneStrings(client.Phones)
	clone.Tags = cloneStrings(client.Tags)

	return &clone
}
