// internal/templates/resolver.go
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/events"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/store"

	"github.com/redis/go-redis/v9"
)

const defaultLocale = "en"

// TemplateFinder is the read-only template lookup owned by the administrative
// collaborator.
type TemplateFinder interface {
	FindActive(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error)
}

// Resolver picks the best-matching template for an event: tenant-specific
// active template first, else the global active template, else a hardcoded
// default. Lookups are cached in redis.
type Resolver struct {
	finder   TemplateFinder
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewResolver(finder TemplateFinder, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *Resolver {
	return &Resolver{
		finder:   finder,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "template-resolver"}),
	}
}

// Resolve returns the template for (orgID, eventType, channel, locale).
func (r *Resolver) Resolve(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error) {
	if locale == "" {
		locale = defaultLocale
	}

	cacheKey := fmt.Sprintf("tmpl:%s:%s:%s:%s", orgID, eventType, channel, locale)
	if r.redis != nil {
		if val, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			var t models.NotificationTemplate
			if err := json.Unmarshal([]byte(val), &t); err == nil {
				return &t, nil
			}
		}
	}

	t, err := r.lookup(ctx, orgID, eventType, channel, locale)
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(t); err == nil {
			r.redis.Set(ctx, cacheKey, data, r.cacheTTL)
		}
	}
	return t, nil
}

func (r *Resolver) lookup(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error) {
	// Tenant-specific first
	if orgID != "" {
		t, err := r.finder.FindActive(ctx, orgID, eventType, channel, locale)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrTemplateNotFound) {
			return nil, err
		}
	}

	// Global
	t, err := r.finder.FindActive(ctx, "", eventType, channel, locale)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, store.ErrTemplateNotFound) {
		return nil, err
	}

	// Hardcoded fallback
	if def, ok := defaultTemplates[eventType]; ok {
		r.logger.Debug("using default template", map[string]interface{}{
			"eventType": eventType,
			"channel":   channel,
		})
		return def.forChannel(channel), nil
	}

	return nil, apperrors.NewTemplateNotFoundError(eventType, string(channel))
}

type defaultTemplate struct {
	subject  string
	bodyText string
	bodyHTML string
}

func (d defaultTemplate) forChannel(channel models.Channel) *models.NotificationTemplate {
	t := &models.NotificationTemplate{
		Type:     "",
		Channel:  channel,
		Locale:   defaultLocale,
		Subject:  d.subject,
		BodyText: d.bodyText,
		IsActive: true,
	}
	if channel == models.ChannelEmail {
		t.BodyHTML = d.bodyHTML
	}
	return t
}

// defaultTemplates is the last-resort message per event type when neither a
// tenant nor a global template exists.
var defaultTemplates = map[string]defaultTemplate{
	events.TypeWorkOrderCreated: {
		subject:  "Work order {{workOrderNumber}} created",
		bodyText: "A new work order {{workOrderNumber}} was created for {{clientName}} ({{vehicleLabel}}).",
		bodyHTML: "<p>A new work order <strong>{{workOrderNumber}}</strong> was created for {{clientName}} ({{vehicleLabel}}).</p>",
	},
	events.TypeWorkOrderStatusChanged: {
		subject:  "Work order {{workOrderNumber}} is now {{newStatus}}",
		bodyText: "Work order {{workOrderNumber}} changed from {{oldStatus}} to {{newStatus}}.",
		bodyHTML: "<p>Work order <strong>{{workOrderNumber}}</strong> changed from {{oldStatus}} to <strong>{{newStatus}}</strong>.</p>",
	},
	events.TypeAppointmentReminder: {
		subject:  "Upcoming appointment on {{scheduledAt}}",
		bodyText: "Reminder: you have an appointment scheduled for {{scheduledAt}} at {{branchName}}.",
		bodyHTML: "<p>Reminder: you have an appointment scheduled for <strong>{{scheduledAt}}</strong> at {{branchName}}.</p>",
	},
	events.TypeInvoiceCreated: {
		subject:  "Invoice {{invoiceNumber}} issued",
		bodyText: "Invoice {{invoiceNumber}} for {{invoiceTotal}} has been issued to {{clientName}}.",
		bodyHTML: "<p>Invoice <strong>{{invoiceNumber}}</strong> for <strong>{{invoiceTotal}}</strong> has been issued to {{clientName}}.</p>",
	},
	events.TypePaymentReceived: {
		subject:  "Payment received for invoice {{invoiceNumber}}",
		bodyText: "A payment of {{amount}} was received for invoice {{invoiceNumber}}.",
		bodyHTML: "<p>A payment of <strong>{{amount}}</strong> was received for invoice {{invoiceNumber}}.</p>",
	},
	events.TypeSubscriptionExpiring: {
		subject:  "Your subscription expires on {{expiresAt}}",
		bodyText: "Your {{planName}} subscription expires on {{expiresAt}}. Renew to keep your workshop online.",
		bodyHTML: "<p>Your <strong>{{planName}}</strong> subscription expires on <strong>{{expiresAt}}</strong>. Renew to keep your workshop online.</p>",
	},
	events.TypeStockLow: {
		subject:  "Low stock: {{itemName}}",
		bodyText: "Stock for {{itemName}} is low ({{quantity}} left).",
		bodyHTML: "<p>Stock for <strong>{{itemName}}</strong> is low ({{quantity}} left).</p>",
	},
}
