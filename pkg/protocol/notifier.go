// Package protocol defines the collaborator interfaces the engine consumes.
// Implementations are injected by constructor so tests can substitute fakes.
package protocol

import "context"

// Notifier is the external SMS/email capability. A nil-error return means
// "accepted for delivery" by the provider, not "delivered"; duplicate sends
// caused by upstream retries are the provider's concern.
type Notifier interface {
	SendSMS(ctx context.Context, to, body string) (DeliveryRef, error)
	SendEmail(ctx context.Context, to, subject, body string) (DeliveryRef, error)
}

// DeliveryRef is the provider's handle for an accepted message.
type DeliveryRef string
