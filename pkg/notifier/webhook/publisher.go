package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Publisher implements the SocialPublisher against the same HTTP gateway
// the notifier uses. The gateway owns platform credentials per org.
type Publisher struct {
	gatewayURL string
	client     *http.Client
	logger     *slog.Logger
}

type publishRequest struct {
	OrgID    string `json:"org_id"`
	Platform string `json:"platform"`
	Body     string `json:"body"`
}

func NewPublisher(gatewayURL string, logger *slog.Logger) *Publisher {
	return &Publisher{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("module", "webhook_publisher"),
	}
}

func (p *Publisher) Publish(ctx context.Context, orgID, platform, body string) error {
	encoded, err := json.Marshal(publishRequest{OrgID: orgID, Platform: platform, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode publish payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.gatewayURL+"/posts", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build publish request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

		return fmt.Errorf("publish gateway returned status %d: %s", resp.StatusCode, raw)
	}

	p.logger.Debug("Post accepted by gateway", "org_id", orgID, "platform", platform)

	return nil
}
