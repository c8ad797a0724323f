package protocol

import "context"

// SocialPublisher posts rendered content to an external social platform.
// Consumed by the publish_post scheduled-action handler.
type SocialPublisher interface {
	Publish(ctx context.Context, orgID, platform, body string) error
}
