// internal/providers/push.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// PushProvider delivers Web Push messages signed with the service VAPID key
// pair. A 404 or 410 from the push service means the subscription no longer
// exists; that is surfaced as a permanent error so the caller can deactivate
// the subscription instead of retrying. Transient failures are retried with
// linear backoff.
type PushProvider struct {
	config     config.WebPushConfig
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

func NewPushProvider(cfg config.WebPushConfig, maxRetries int, backoff time.Duration, log logger.Logger) *PushProvider {
	return &PushProvider{
		config:     cfg,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log,
	}
}

func (p *PushProvider) Name() string {
	return "webpush"
}

func (p *PushProvider) Channel() models.Channel {
	return models.ChannelPush
}

// pushPayload is the JSON body the browser service worker receives.
type pushPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

func (p *PushProvider) Send(ctx context.Context, target Target, msg Message) (*Result, error) {
	sub := target.Subscription
	if sub == nil {
		return nil, errors.NewMissingAddressError(string(models.ChannelPush), target.UserID)
	}

	if p.config.Sandbox {
		p.logger.Info("Sandbox push send", map[string]interface{}{
			"endpoint": sub.Endpoint,
			"title":    msg.Title,
		})
		return &Result{MessageID: "sandbox-" + uuid.New().String()}, nil
	}

	payload, err := json.Marshal(pushPayload{
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return nil, errors.NewTransportFailedError(p.Name(), err)
	}

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	options := &webpush.Options{
		Subscriber:      p.config.Subscriber,
		VAPIDPublicKey:  p.config.VAPIDPublicKey,
		VAPIDPrivateKey: p.config.VAPIDPrivateKey,
		TTL:             p.config.TTL,
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewTransportTimeoutError(p.Name())
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, options)
		if err == nil {
			status := resp.StatusCode
			resp.Body.Close()

			switch {
			case status == http.StatusCreated || status == http.StatusOK:
				p.logger.Info("Push sent", map[string]interface{}{
					"endpoint": sub.Endpoint,
					"attempt":  attempt,
				})
				return &Result{MessageID: uuid.New().String()}, nil

			case status == http.StatusNotFound || status == http.StatusGone:
				return nil, errors.NewEndpointGoneError(sub.Endpoint, status)

			case status == http.StatusTooManyRequests:
				lastErr = errors.NewRateLimitedError(p.Name())

			case status >= 400 && status < 500:
				// malformed request or oversized payload, retrying cannot help
				return nil, errors.NewPayloadTooLargeError(sub.Endpoint, status)

			default:
				lastErr = &statusError{endpoint: sub.Endpoint, status: status}
			}
		} else {
			lastErr = err
		}

		p.logger.Warn("Push send failed, will retry", map[string]interface{}{
			"endpoint": sub.Endpoint,
			"attempt":  attempt,
			"error":    lastErr.Error(),
		})

		if attempt < p.maxRetries {
			// linear: base, 2*base, 3*base, ...
			delay := p.backoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, errors.NewTransportTimeoutError(p.Name())
			case <-time.After(delay):
			}
		}
	}

	if de, ok := lastErr.(*errors.DeliveryError); ok {
		return nil, de
	}
	return nil, errors.NewTransportFailedError(p.Name(), lastErr)
}

type statusError struct {
	endpoint string
	status   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("push service returned status %d for %s", e.status, e.endpoint)
}
