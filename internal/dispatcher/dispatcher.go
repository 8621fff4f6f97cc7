// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/common/metrics"
	"autoshop-notifications/internal/common/observability"
	"autoshop-notifications/internal/enrich"
	"autoshop-notifications/internal/events"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/providers"
	"autoshop-notifications/internal/templates"
)

// NotificationSink is the slice of the notification store the dispatcher
// drives. Satisfied by *store.NotificationStore.
type NotificationSink interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, deliveredAt *time.Time) error
	RecordFailure(ctx context.Context, id string, lastError string, terminal bool) error
}

// SubscriptionSource is the slice of the subscription store the dispatcher
// reads and updates. Satisfied by *store.SubscriptionStore.
type SubscriptionSource interface {
	ListActiveByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error)
	RecordSuccess(ctx context.Context, endpoint string) error
	RecordFailure(ctx context.Context, endpoint string, maxFailures int) (int, bool, error)
	Deactivate(ctx context.Context, endpoint string) error
}

// TemplateResolver resolves the template for one (tenant, event, channel,
// locale). Satisfied by *templates.Resolver.
type TemplateResolver interface {
	Resolve(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error)
}

// Auditor records one entry per delivery attempt. Satisfied by *audit.Writer.
type Auditor interface {
	RecordAttempt(ctx context.Context, entry *models.NotificationLog)
}

// Dependencies wires the collaborators the dispatcher orchestrates.
type Dependencies struct {
	Lookup        enrich.EntityLookup
	Enricher      *enrich.Enricher
	Resolver      TemplateResolver
	Notifications NotificationSink
	Subscriptions SubscriptionSource
	Providers     map[models.Channel]providers.Provider
	Audit         Auditor
	Observability *observability.Observability
	Logger        logger.Logger
}

// Dispatcher is the delivery engine entry point. HandleEvent validates and
// enqueues; a worker pool resolves the recipient, decides the channel set,
// renders content and drives each channel's delivery with its own retry
// budget. A failure on one channel never affects the others.
type Dispatcher struct {
	cfg             config.DispatcherConfig
	channels        config.ChannelsConfig
	maxPushFailures int

	deps Dependencies
	pool *pool
}

func New(cfg config.DispatcherConfig, channels config.ChannelsConfig, maxPushFailures int, deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		cfg:             cfg,
		channels:        channels,
		maxPushFailures: maxPushFailures,
		deps:            deps,
	}
	d.pool = newPool(cfg.Workers, cfg.QueueSize, d.process, deps.Logger)
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// HandleEvent accepts a domain event for asynchronous delivery. It validates
// the payload synchronously and returns; delivery outcomes never propagate
// back to the caller. Invalid events are rejected, a full queue drops the
// event with a metric rather than blocking the producer.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := events.Validate(event); err != nil {
		metrics.EventsDropped.WithLabelValues(event.Type, "invalid").Inc()
		d.deps.Logger.Warn("Rejected invalid event", map[string]interface{}{
			"eventType": event.Type,
			"userId":    event.UserID,
			"error":     err.Error(),
		})
		return err
	}

	if !d.pool.Submit(event) {
		metrics.EventsDropped.WithLabelValues(event.Type, "queue_full").Inc()
		d.deps.Logger.Warn("Event queue full, dropping event", map[string]interface{}{
			"eventType": event.Type,
			"userId":    event.UserID,
		})
		return nil
	}

	metrics.EventsDispatched.WithLabelValues(event.Type).Inc()
	return nil
}

// process runs on a pool worker. It owns the full lifecycle of one event.
func (d *Dispatcher) process(ctx context.Context, event *events.DomainEvent) {
	start := time.Now()
	status := "ok"
	defer func() {
		if d.deps.Observability != nil {
			d.deps.Observability.RecordDispatch(ctx, event.Type, status)
			d.deps.Observability.RecordDispatchDuration(ctx, time.Since(start), status)
		}
	}()

	user, err := d.deps.Lookup.GetUser(ctx, event.UserID)
	if err != nil || user == nil {
		if err == nil {
			err = errors.NewRecipientNotFoundError(event.UserID)
		}
		status = "dropped"
		metrics.EventsDropped.WithLabelValues(event.Type, "recipient_not_found").Inc()
		d.deps.Logger.Warn("Recipient not found, discarding event", map[string]interface{}{
			"eventType": event.Type,
			"userId":    event.UserID,
			"error":     err.Error(),
		})
		return
	}

	targets := d.resolveChannels(ctx, event, user)
	if len(targets) == 0 {
		status = "dropped"
		metrics.EventsDropped.WithLabelValues(event.Type, "no_channels").Inc()
		return
	}

	vars := d.deps.Enricher.Enrich(ctx, event)

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t channelTarget) {
			defer wg.Done()
			d.deliver(ctx, event, user, t, vars)
		}(t)
	}
	wg.Wait()
}

// channelTarget is one resolved (channel, destination) pair for an event.
type channelTarget struct {
	channel       models.Channel
	userID        string
	address       string
	subscriptions []*models.PushSubscription
}

// resolveChannels decides where this event goes. In-app is unconditional.
// Email requires a known address and push requires at least one active
// subscription; both can be disabled globally. An explicit channel list on
// the event narrows the set but cannot force a channel whose preconditions
// are unmet, those are dropped with a warning.
func (d *Dispatcher) resolveChannels(ctx context.Context, event *events.DomainEvent, user *models.User) []channelTarget {
	requested := map[models.Channel]bool{}
	for _, c := range event.Channels {
		requested[c] = true
	}
	wanted := func(c models.Channel) bool {
		return len(requested) == 0 || requested[c]
	}
	dropWarn := func(c models.Channel, reason string) {
		if requested[c] {
			d.deps.Logger.Warn("Requested channel unavailable", map[string]interface{}{
				"eventType": event.Type,
				"userId":    event.UserID,
				"channel":   string(c),
				"reason":    reason,
			})
		}
	}

	var targets []channelTarget

	if wanted(models.ChannelInApp) {
		targets = append(targets, channelTarget{channel: models.ChannelInApp, userID: user.ID})
	}

	if wanted(models.ChannelEmail) {
		switch {
		case !d.channels.EmailEnabled:
			dropWarn(models.ChannelEmail, "channel disabled")
		case user.Email == "":
			dropWarn(models.ChannelEmail, "no email address")
		default:
			targets = append(targets, channelTarget{
				channel: models.ChannelEmail,
				userID:  user.ID,
				address: user.Email,
			})
		}
	}

	if wanted(models.ChannelPush) {
		switch {
		case !d.channels.PushEnabled:
			dropWarn(models.ChannelPush, "channel disabled")
		default:
			subs, err := d.deps.Subscriptions.ListActiveByUser(ctx, user.ID)
			if err != nil {
				d.deps.Logger.Error("Failed to list push subscriptions", map[string]interface{}{
					"userId": user.ID,
					"error":  err.Error(),
				})
			}
			if len(subs) == 0 {
				dropWarn(models.ChannelPush, "no active subscriptions")
			} else {
				targets = append(targets, channelTarget{
					channel:       models.ChannelPush,
					userID:        user.ID,
					subscriptions: subs,
				})
			}
		}
	}

	return targets
}

// deliver drives one channel of one event to a terminal state. The retry loop
// here is the notification-level budget; providers keep their own per-send
// attempt loop for transient transport errors.
func (d *Dispatcher) deliver(ctx context.Context, event *events.DomainEvent, user *models.User, target channelTarget, vars map[string]interface{}) {
	provider, ok := d.deps.Providers[target.channel]
	if !ok {
		d.deps.Logger.Error("No provider for channel", map[string]interface{}{
			"channel": string(target.channel),
		})
		return
	}

	tmpl, err := d.deps.Resolver.Resolve(ctx, event.OrganizationID, event.Type, target.channel, user.Locale)
	if err != nil {
		d.deps.Logger.Warn("No template for event, skipping channel", map[string]interface{}{
			"eventType": event.Type,
			"channel":   string(target.channel),
			"error":     err.Error(),
		})
		return
	}

	content, err := templates.Render(tmpl, vars)
	if err != nil {
		d.deps.Logger.Error("Template render failed", map[string]interface{}{
			"eventType": event.Type,
			"channel":   string(target.channel),
			"error":     err.Error(),
		})
		return
	}

	notification := &models.Notification{
		OrganizationID: event.OrganizationID,
		BranchID:       event.BranchID,
		UserID:         user.ID,
		Type:           event.Type,
		Channel:        target.channel,
		Title:          content.Title,
		Body:           content.Body,
		Data:           event.Payload,
	}
	if err := d.deps.Notifications.Create(ctx, notification); err != nil {
		d.deps.Logger.Error("Failed to create notification record", map[string]interface{}{
			"eventType": event.Type,
			"channel":   string(target.channel),
			"userId":    user.ID,
			"error":     err.Error(),
		})
		return
	}

	msg := providers.Message{
		Title:    content.Title,
		Body:     content.Body,
		BodyHTML: content.BodyHTML,
		Data:     map[string]interface{}{"notificationId": notification.ID},
	}
	for k, v := range event.Payload {
		msg.Data[k] = v
	}

	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.RetriesTotal.WithLabelValues(string(target.channel)).Inc()
			delay := config.GetDuration(d.cfg.BackoffBaseMs) * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		result, sendErr := d.sendOnce(ctx, provider, target, msg)

		if sendErr == nil {
			d.finishSent(ctx, notification, provider.Name(), result.MessageID, attempt)
			return
		}

		terminal := errors.IsPermanent(sendErr) || !errors.IsRetryable(sendErr) || attempt+1 >= d.cfg.MaxRetries
		d.recordFailure(ctx, notification, provider.Name(), sendErr, attempt, terminal)
		if terminal {
			return
		}
	}
}

// sendOnce performs a single delivery cycle under the configured timeout. For
// push it fans out over the recipient's subscriptions and succeeds when at
// least one endpoint accepts; per-endpoint outcomes feed the subscription
// failure counters.
func (d *Dispatcher) sendOnce(ctx context.Context, provider providers.Provider, target channelTarget, msg providers.Message) (*providers.Result, error) {
	sendCtx, cancel := context.WithTimeout(ctx, config.GetDuration(d.cfg.SendTimeoutMs))
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.SendDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
	}()

	if target.channel != models.ChannelPush {
		return provider.Send(sendCtx, providers.Target{
			Address: target.address,
			UserID:  target.userID,
		}, msg)
	}

	var (
		lastResult *providers.Result
		lastErr    error
		anySent    bool
	)
	for _, sub := range target.subscriptions {
		result, err := provider.Send(sendCtx, providers.Target{Subscription: sub}, msg)
		if err == nil {
			anySent = true
			lastResult = result
			if dbErr := d.deps.Subscriptions.RecordSuccess(ctx, sub.Endpoint); dbErr != nil {
				d.deps.Logger.Warn("Failed to record subscription success", map[string]interface{}{
					"endpoint": sub.Endpoint,
					"error":    dbErr.Error(),
				})
			}
			continue
		}

		lastErr = err
		d.recordEndpointFailure(ctx, sub.Endpoint, err)
	}

	if anySent {
		return lastResult, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no subscriptions to send to")
	}
	return nil, lastErr
}

// recordEndpointFailure updates per-endpoint health. Gone endpoints are
// deactivated immediately, transient failures count toward the deactivation
// threshold.
func (d *Dispatcher) recordEndpointFailure(ctx context.Context, endpoint string, sendErr error) {
	if de, ok := sendErr.(*errors.DeliveryError); ok && de.Code == errors.ErrCodeEndpointGone {
		if err := d.deps.Subscriptions.Deactivate(ctx, endpoint); err != nil {
			d.deps.Logger.Warn("Failed to deactivate subscription", map[string]interface{}{
				"endpoint": endpoint,
				"error":    err.Error(),
			})
			return
		}
		metrics.SubscriptionsDeactivated.WithLabelValues("gone").Inc()
		d.deps.Logger.Info("Deactivated gone subscription", map[string]interface{}{
			"endpoint": endpoint,
		})
		return
	}

	_, deactivated, err := d.deps.Subscriptions.RecordFailure(ctx, endpoint, d.maxPushFailures)
	if err != nil {
		d.deps.Logger.Warn("Failed to record subscription failure", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return
	}
	if deactivated {
		metrics.SubscriptionsDeactivated.WithLabelValues("failures").Inc()
		d.deps.Logger.Info("Deactivated subscription after repeated failures", map[string]interface{}{
			"endpoint": endpoint,
		})
	}
}

func (d *Dispatcher) finishSent(ctx context.Context, n *models.Notification, provider, messageID string, attempt int) {
	sentAt := time.Now()
	var deliveredAt *time.Time
	if n.Channel == models.ChannelInApp {
		deliveredAt = &sentAt
	}

	if err := d.deps.Notifications.MarkSent(ctx, n.ID, sentAt, deliveredAt); err != nil {
		d.deps.Logger.Error("Failed to mark notification sent", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}

	metrics.DeliveriesTotal.WithLabelValues(string(n.Channel), "sent").Inc()
	d.deps.Audit.RecordAttempt(ctx, &models.NotificationLog{
		NotificationID:    n.ID,
		Channel:           n.Channel,
		Status:            models.StatusSent,
		Provider:          provider,
		ProviderMessageID: messageID,
		RetryAttempt:      attempt,
		SentAt:            sentAt,
	})
}

func (d *Dispatcher) recordFailure(ctx context.Context, n *models.Notification, provider string, sendErr error, attempt int, terminal bool) {
	if err := d.deps.Notifications.RecordFailure(ctx, n.ID, sendErr.Error(), terminal); err != nil {
		d.deps.Logger.Error("Failed to record notification failure", map[string]interface{}{
			"notificationId": n.ID,
			"error":          err.Error(),
		})
	}

	if terminal {
		metrics.DeliveriesTotal.WithLabelValues(string(n.Channel), "failed").Inc()
	}

	d.deps.Audit.RecordAttempt(ctx, &models.NotificationLog{
		NotificationID: n.ID,
		Channel:        n.Channel,
		Status:         models.StatusFailed,
		Provider:       provider,
		Error:          sendErr.Error(),
		RetryAttempt:   attempt,
		SentAt:         time.Now(),
	})

	level := d.deps.Logger.Warn
	if terminal {
		level = d.deps.Logger.Error
	}
	level("Delivery attempt failed", map[string]interface{}{
		"notificationId": n.ID,
		"channel":        string(n.Channel),
		"attempt":        attempt,
		"terminal":       terminal,
		"error":          sendErr.Error(),
	})
}
