// internal/providers/provider.go
package providers

import (
	"context"

	"autoshop-notifications/internal/models"
)

// Target is the destination of one send: an email address, a push
// subscription, or a user id, depending on the channel.
type Target struct {
	Address      string
	Subscription *models.PushSubscription
	UserID       string
}

// Message is the rendered content handed to a provider.
type Message struct {
	Title    string
	Body     string
	BodyHTML string
	Data     map[string]interface{}
}

// Result reports a successful send.
type Result struct {
	MessageID string
}

// Provider performs the actual network send for one channel. Failures are
// returned as *errors.DeliveryError so the caller can distinguish permanent
// failures (never retried) from transient ones (retried with escalating
// delay). Providers run their own bounded retry loop for transient failures;
// the notification-level retry count is separate bookkeeping owned by the
// dispatcher.
type Provider interface {
	Name() string
	Channel() models.Channel
	Send(ctx context.Context, target Target, msg Message) (*Result, error)
}
