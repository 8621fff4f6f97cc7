// internal/push/registry.go
package push

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/common/metrics"
	"autoshop-notifications/internal/enrich"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/providers"
	"autoshop-notifications/internal/store"
)

// DirectResult aggregates a direct push fan-out.
type DirectResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SubscriptionStore is the persistence surface the registry manages.
// Satisfied by *store.SubscriptionStore.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *models.PushSubscription) error
	GetByEndpoint(ctx context.Context, endpoint string) (*models.PushSubscription, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error)
	ListActiveByOrganization(ctx context.Context, orgID string) ([]*models.PushSubscription, error)
	ListActiveByRole(ctx context.Context, orgID, role string) ([]*models.PushSubscription, error)
	RecordSuccess(ctx context.Context, endpoint string) error
	RecordFailure(ctx context.Context, endpoint string, maxFailures int) (int, bool, error)
	Deactivate(ctx context.Context, endpoint string) error
	DeleteStale(ctx context.Context, maxFailures int, retention time.Duration) (int64, error)
	CountActive(ctx context.Context) (int, error)
}

// Registry manages push subscription lifecycle and direct (non-event) push
// fan-out. Subscriptions are keyed by endpoint: subscribing an endpoint twice
// refreshes its keys instead of duplicating it, so a browser re-registering
// after a service worker update is harmless.
type Registry struct {
	subs        SubscriptionStore
	provider    providers.Provider
	lookup      enrich.EntityLookup
	maxFailures int
	retention   time.Duration
	logger      logger.Logger
}

func NewRegistry(subs SubscriptionStore, provider providers.Provider, lookup enrich.EntityLookup, maxFailures int, retention time.Duration, log logger.Logger) *Registry {
	return &Registry{
		subs:        subs,
		provider:    provider,
		lookup:      lookup,
		maxFailures: maxFailures,
		retention:   retention,
		logger:      log,
	}
}

// Subscribe registers or refreshes a push subscription. Re-subscribing a
// previously deactivated endpoint reactivates it with a clean failure count.
func (r *Registry) Subscribe(ctx context.Context, sub *models.PushSubscription) error {
	if sub.Endpoint == "" || !strings.HasPrefix(sub.Endpoint, "https://") {
		return errors.NewInvalidPayloadError("push_subscribe", "endpoint must be an https URL")
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return errors.NewInvalidPayloadError("push_subscribe", "missing encryption keys")
	}
	if sub.UserID == "" {
		return errors.NewInvalidPayloadError("push_subscribe", "missing user id")
	}

	if err := r.subs.Upsert(ctx, sub); err != nil {
		return err
	}

	r.refreshActiveGauge(ctx)
	r.logger.Info("Push subscription registered", map[string]interface{}{
		"userId":   sub.UserID,
		"endpoint": sub.Endpoint,
	})
	return nil
}

// Unsubscribe deactivates an endpoint. Only the owning user or an admin of
// the owning organization may remove it.
func (r *Registry) Unsubscribe(ctx context.Context, endpoint, requestingUserID string) error {
	sub, err := r.subs.GetByEndpoint(ctx, endpoint)
	if err != nil {
		if stderrors.Is(err, store.ErrSubscriptionNotFound) {
			// removing an unknown endpoint is a no-op
			return nil
		}
		return err
	}

	if sub.UserID != requestingUserID {
		requester, err := r.lookup.GetUser(ctx, requestingUserID)
		if err != nil || requester == nil {
			return errors.NewUnauthorizedError("unknown requesting user")
		}
		if requester.Role != "ADMIN" || requester.OrganizationID != sub.OrganizationID {
			return errors.NewUnauthorizedError("subscription belongs to another user")
		}
	}

	if err := r.subs.Deactivate(ctx, endpoint); err != nil {
		return err
	}

	r.refreshActiveGauge(ctx)
	r.logger.Info("Push subscription removed", map[string]interface{}{
		"endpoint":    endpoint,
		"requestedBy": requestingUserID,
	})
	return nil
}

// SendToUser pushes a message to every active subscription of one user.
func (r *Registry) SendToUser(ctx context.Context, userID string, msg providers.Message) (*DirectResult, error) {
	subs, err := r.subs.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.fanOut(ctx, subs, msg), nil
}

// SendToRole pushes a message to every user holding a role in an
// organization.
func (r *Registry) SendToRole(ctx context.Context, orgID, role string, msg providers.Message) (*DirectResult, error) {
	subs, err := r.subs.ListActiveByRole(ctx, orgID, role)
	if err != nil {
		return nil, err
	}
	return r.fanOut(ctx, subs, msg), nil
}

// SendToOrganization pushes a message to every active subscription in an
// organization.
func (r *Registry) SendToOrganization(ctx context.Context, orgID string, msg providers.Message) (*DirectResult, error) {
	subs, err := r.subs.ListActiveByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return r.fanOut(ctx, subs, msg), nil
}

// fanOut sends to all endpoints in parallel and applies the per-endpoint
// failure bookkeeping. One bad endpoint never blocks the rest.
func (r *Registry) fanOut(ctx context.Context, subs []*models.PushSubscription, msg providers.Message) *DirectResult {
	result := &DirectResult{}
	if len(subs) == 0 {
		return result
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *models.PushSubscription) {
			defer wg.Done()

			_, err := r.provider.Send(ctx, providers.Target{Subscription: sub}, msg)

			mu.Lock()
			if err == nil {
				result.Sent++
			} else {
				result.Failed++
			}
			mu.Unlock()

			if err == nil {
				if dbErr := r.subs.RecordSuccess(ctx, sub.Endpoint); dbErr != nil {
					r.logger.Warn("Failed to record subscription success", map[string]interface{}{
						"endpoint": sub.Endpoint,
						"error":    dbErr.Error(),
					})
				}
				return
			}

			r.handleSendFailure(ctx, sub.Endpoint, err)
		}(sub)
	}
	wg.Wait()

	r.refreshActiveGauge(ctx)
	return result
}

func (r *Registry) handleSendFailure(ctx context.Context, endpoint string, sendErr error) {
	if de, ok := sendErr.(*errors.DeliveryError); ok && de.Code == errors.ErrCodeEndpointGone {
		if err := r.subs.Deactivate(ctx, endpoint); err == nil {
			metrics.SubscriptionsDeactivated.WithLabelValues("gone").Inc()
		}
		return
	}

	_, deactivated, err := r.subs.RecordFailure(ctx, endpoint, r.maxFailures)
	if err != nil {
		r.logger.Warn("Failed to record subscription failure", map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return
	}
	if deactivated {
		metrics.SubscriptionsDeactivated.WithLabelValues("failures").Inc()
	}
}

// CleanupInvalidSubscriptions deletes subscriptions that were deactivated
// past the failure threshold and have not been touched within the retention
// window. Returns the number of rows removed.
func (r *Registry) CleanupInvalidSubscriptions(ctx context.Context) (int64, error) {
	removed, err := r.subs.DeleteStale(ctx, r.maxFailures, r.retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Info("Removed stale push subscriptions", map[string]interface{}{
			"count": removed,
		})
	}
	r.refreshActiveGauge(ctx)
	return removed, nil
}

func (r *Registry) refreshActiveGauge(ctx context.Context) {
	count, err := r.subs.CountActive(ctx)
	if err != nil {
		return
	}
	metrics.ActiveSubscriptions.Set(float64(count))
}
