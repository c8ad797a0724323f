// Package webhook implements the Notifier against an HTTP messaging
// gateway. The gateway owns provider credentials and delivery mechanics;
// this side only hands messages over.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/glowdesk/reflow/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

type Notifier struct {
	gatewayURL string
	client     *http.Client
	logger     *slog.Logger
}

type sendRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type sendResponse struct {
	DeliveryRef string `json:"delivery_ref"`
}

func NewNotifier(gatewayURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("module", "webhook_notifier"),
	}
}

func (n *Notifier) SendSMS(ctx context.Context, to, body string) (protocol.DeliveryRef, error) {
	return n.send(ctx, sendRequest{Channel: "sms", To: to, Body: body})
}

func (n *Notifier) SendEmail(ctx context.Context, to, subject, body string) (protocol.DeliveryRef, error) {
	return n.send(ctx, sendRequest{Channel: "email", To: to, Subject: subject, Body: body})
}

func (n *Notifier) send(ctx context.Context, payload sendRequest) (protocol.DeliveryRef, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode notifier payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.gatewayURL+"/messages", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to build notifier request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notifier gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("failed to read notifier response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("notifier gateway returned status %d: %s", resp.StatusCode, raw)
	}

	var decoded sendResponse

	err = json.Unmarshal(raw, &decoded)
	if err != nil {
		n.logger.Warn("Notifier response not decodable, message still accepted", "error", err)

		return "", nil
	}

	return protocol.DeliveryRef(decoded.DeliveryRef), nil
}
