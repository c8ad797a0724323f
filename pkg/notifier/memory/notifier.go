// Package memory provides an in-memory Notifier for tests. It records every
// accepted message and can be told to fail.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/glowdesk/reflow/pkg/protocol"
)

// Sent is one message the fake accepted.
type Sent struct {
	Channel string
	To      string
	Subject string
	Body    string
}

type Notifier struct {
	mu   sync.Mutex
	sent []Sent

	// Err, when set, is returned by every send.
	Err error
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) SendSMS(_ context.Context, to, body string) (protocol.DeliveryRef, error) {
	return n.record("sms", to, "", body)
}

func (n *Notifier) SendEmail(_ context.Context, to, subject, body string) (protocol.DeliveryRef, error) {
	return n.record("email", to, subject, body)
}

func (n *Notifier) record(channel, to, subject, body string) (protocol.DeliveryRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return "", n.Err
	}

	n.sent = append(n.sent, Sent{Channel: channel, To: to, Subject: subject, Body: body})

	return protocol.DeliveryRef(fmt.Sprintf("fake-%d", len(n.sent))), nil
}

// Messages returns a copy of everything accepted so far.
func (n *Notifier) Messages() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Sent, len(n.sent))
	copy(out, n.sent)

	return out
}
