package models

import "time"

// MessageChannel is the delivery medium of an outbound message.
type MessageChannel string

const (
	ChannelSMS   MessageChannel = "sms"
	ChannelEmail MessageChannel = "email"
)

// Message records an outbound SMS/email accepted by the notifier. The
// DeliveryRef is whatever handle the provider returned; "accepted for
// delivery" is the strongest guarantee the engine tracks.
type Message struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	ClientID     string         `json:"client_id"`
	EnrollmentID string         `json:"enrollment_id,omitempty"`
	Channel      MessageChannel `json:"channel"`
	To           string         `json:"to"`
	Subject      string         `json:"subject,omitempty"`
	Body         string         `json:"body"`
	DeliveryRef  string         `json:"delivery_ref,omitempty"`
	SentAt       time.Time      `json:"sent_at"`
}
