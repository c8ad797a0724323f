package models

import "time"

// AppointmentStatus is the lifecycle state of an appointment as seen by the
// engine. The calendar sync owning these records lives outside this repo.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booked visit. Type is free text entered by clinic staff
// ("Botox Touch-up", "Initial Consultation"); the trigger detector keyword
// matches it against the service taxonomy.
type Appointment struct {
	ID        string            `json:"id"        validate:"required"`
	OrgID     string            `json:"org_id"    validate:"required"`
	ClientID  string            `json:"client_id" validate:"required"`
	Type      string            `json:"type"`
	StartsAt  time.Time         `json:"starts_at"`
	Status    AppointmentStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
