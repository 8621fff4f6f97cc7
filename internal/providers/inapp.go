// internal/providers/inapp.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// InAppProvider completes the in-app channel. The notification record itself
// is the durable artifact; the provider additionally publishes a wake-up
// message on the user's Redis channel so connected clients can refresh
// without polling. Publish failures are logged and swallowed, an in-app send
// never fails once the record exists.
type InAppProvider struct {
	redis   *redis.Client
	sandbox bool
	logger  logger.Logger
}

func NewInAppProvider(rdb *redis.Client, sandbox bool, log logger.Logger) *InAppProvider {
	return &InAppProvider{
		redis:   rdb,
		sandbox: sandbox,
		logger:  log,
	}
}

func (p *InAppProvider) Name() string {
	return "inapp"
}

func (p *InAppProvider) Channel() models.Channel {
	return models.ChannelInApp
}

// inAppSignal is the payload published to inapp:user:<id>.
type inAppSignal struct {
	NotificationID string    `json:"notificationId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (p *InAppProvider) Send(ctx context.Context, target Target, msg Message) (*Result, error) {
	if target.UserID == "" {
		return nil, errors.NewMissingAddressError(string(models.ChannelInApp), target.UserID)
	}

	messageID := uuid.New().String()

	if p.sandbox {
		p.logger.Info("Sandbox in-app send", map[string]interface{}{
			"userId": target.UserID,
			"title":  msg.Title,
		})
		return &Result{MessageID: "sandbox-" + messageID}, nil
	}

	notificationID := ""
	if msg.Data != nil {
		if v, ok := msg.Data["notificationId"].(string); ok {
			notificationID = v
		}
	}

	payload, err := json.Marshal(inAppSignal{
		NotificationID: notificationID,
		Title:          msg.Title,
		Body:           msg.Body,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return &Result{MessageID: messageID}, nil
	}

	channel := fmt.Sprintf("inapp:user:%s", target.UserID)
	if p.redis != nil {
		if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
			p.logger.Warn("Failed to publish in-app signal", map[string]interface{}{
				"userId": target.UserID,
				"error":  err.Error(),
			})
		}
	}

	return &Result{MessageID: messageID}, nil
}
