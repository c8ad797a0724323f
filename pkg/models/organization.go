// Package models defines the core domain models for the clinic workflow engine.
package models

import "time"

// Organization is a tenant of the CRM. Every record in the engine is scoped
// to exactly one organization.
type Organization struct {
	ID               string            `json:"id"                 validate:"required"`
	Name             string            `json:"name"               validate:"required,min=2"`
	BookingLink      string            `json:"booking_link,omitempty"`
	GoogleReviewLink string            `json:"google_review_link,omitempty"`
	CustomTokens     map[string]string `json:"custom_tokens,omitempty"`

	// Creation-detection high-water mark. The scan covers (mark, now] so a
	// re-run after a crash never re-reads behind the mark. Completion
	// detection needs no mark; completed appointments leave its scan set.
	CreationScannedAt time.Time `json:"creation_scanned_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
