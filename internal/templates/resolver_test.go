// internal/templates/resolver_test.go
package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/events"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/store"
)

// ==========================
// Test Helper Functions
// ==========================

type stubFinder struct {
	templates map[string]*models.NotificationTemplate
	calls     int
}

func finderKey(orgID, eventType string, channel models.Channel, locale string) string {
	return fmt.Sprintf("%s|%s|%s|%s", orgID, eventType, channel, locale)
}

func (f *stubFinder) FindActive(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error) {
	f.calls++
	if t, ok := f.templates[finderKey(orgID, eventType, channel, locale)]; ok {
		return t, nil
	}
	return nil, store.ErrTemplateNotFound
}

func newTestResolver(t *testing.T, finder *stubFinder) (*Resolver, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewResolver(finder, rdb, 0, logger.NewTestLogger(t)), mr
}

// ==========================
// Resolution Chain Tests
// ==========================

func TestResolve_TenantTemplateWins(t *testing.T) {
	tenant := &models.NotificationTemplate{
		OrganizationID: "org-1",
		Type:           events.TypeInvoiceCreated,
		Channel:        models.ChannelEmail,
		Subject:        "Tenant invoice subject",
		BodyText:       "tenant body",
		IsActive:       true,
	}
	global := &models.NotificationTemplate{
		Type:     events.TypeInvoiceCreated,
		Channel:  models.ChannelEmail,
		Subject:  "Global invoice subject",
		BodyText: "global body",
		IsActive: true,
	}

	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{
		finderKey("org-1", events.TypeInvoiceCreated, models.ChannelEmail, "en"): tenant,
		finderKey("", events.TypeInvoiceCreated, models.ChannelEmail, "en"):      global,
	}}
	resolver, _ := newTestResolver(t, finder)

	got, err := resolver.Resolve(context.Background(), "org-1", events.TypeInvoiceCreated, models.ChannelEmail, "en")
	require.NoError(t, err)
	assert.Equal(t, "Tenant invoice subject", got.Subject)
}

func TestResolve_FallsBackToGlobal(t *testing.T) {
	global := &models.NotificationTemplate{
		Type:     events.TypeInvoiceCreated,
		Channel:  models.ChannelPush,
		Subject:  "Global invoice subject",
		BodyText: "global body",
		IsActive: true,
	}

	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{
		finderKey("", events.TypeInvoiceCreated, models.ChannelPush, "en"): global,
	}}
	resolver, _ := newTestResolver(t, finder)

	got, err := resolver.Resolve(context.Background(), "org-without-templates", events.TypeInvoiceCreated, models.ChannelPush, "en")
	require.NoError(t, err)
	assert.Equal(t, "Global invoice subject", got.Subject)
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{}}
	resolver, _ := newTestResolver(t, finder)

	got, err := resolver.Resolve(context.Background(), "org-1", events.TypeStockLow, models.ChannelInApp, "en")
	require.NoError(t, err)
	assert.Contains(t, got.Subject, "{{itemName}}")
	assert.True(t, got.IsActive)
	assert.Empty(t, got.BodyHTML, "non-email default carries no HTML body")
}

func TestResolve_DefaultEmailCarriesHTML(t *testing.T) {
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{}}
	resolver, _ := newTestResolver(t, finder)

	got, err := resolver.Resolve(context.Background(), "", events.TypeWorkOrderCreated, models.ChannelEmail, "")
	require.NoError(t, err)
	assert.NotEmpty(t, got.BodyHTML)
}

func TestResolve_UnknownTypeWithoutTemplates(t *testing.T) {
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{}}
	resolver, _ := newTestResolver(t, finder)

	_, err := resolver.Resolve(context.Background(), "org-1", "CUSTOM_EVENT", models.ChannelInApp, "en")
	require.Error(t, err)

	de, ok := err.(*apperrors.DeliveryError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTemplateNotFound, de.Code)
}

// ==========================
// Caching Tests
// ==========================

func TestResolve_SecondLookupServedFromCache(t *testing.T) {
	tenant := &models.NotificationTemplate{
		OrganizationID: "org-1",
		Type:           events.TypePaymentReceived,
		Channel:        models.ChannelInApp,
		Subject:        "Payment in",
		BodyText:       "body",
		IsActive:       true,
	}
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{
		finderKey("org-1", events.TypePaymentReceived, models.ChannelInApp, "en"): tenant,
	}}
	resolver, _ := newTestResolver(t, finder)

	_, err := resolver.Resolve(context.Background(), "org-1", events.TypePaymentReceived, models.ChannelInApp, "en")
	require.NoError(t, err)
	callsAfterFirst := finder.calls

	got, err := resolver.Resolve(context.Background(), "org-1", events.TypePaymentReceived, models.ChannelInApp, "en")
	require.NoError(t, err)
	assert.Equal(t, "Payment in", got.Subject)
	assert.Equal(t, callsAfterFirst, finder.calls, "second resolve must not hit the finder")
}

func TestResolve_WritesCacheKeyWithTTL(t *testing.T) {
	tenant := &models.NotificationTemplate{
		OrganizationID: "org-1",
		Type:           events.TypeInvoiceCreated,
		Channel:        models.ChannelEmail,
		Subject:        "Invoice issued",
		BodyText:       "body",
		IsActive:       true,
	}
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{
		finderKey("org-1", events.TypeInvoiceCreated, models.ChannelEmail, "en"): tenant,
	}}

	rdb, mock := redismock.NewClientMock()
	resolver := NewResolver(finder, rdb, 5*time.Minute, logger.NewTestLogger(t))

	cacheKey := "tmpl:org-1:INVOICE_CREATED:EMAIL:en"
	cached, err := json.Marshal(tenant)
	require.NoError(t, err)

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSet(cacheKey, cached, 5*time.Minute).SetVal("OK")

	got, err := resolver.Resolve(context.Background(), "org-1", events.TypeInvoiceCreated, models.ChannelEmail, "en")
	require.NoError(t, err)
	assert.Equal(t, "Invoice issued", got.Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_SurvivesRedisOutage(t *testing.T) {
	tenant := &models.NotificationTemplate{
		OrganizationID: "org-1",
		Type:           events.TypeStockLow,
		Channel:        models.ChannelInApp,
		Subject:        "Low stock",
		BodyText:       "body",
		IsActive:       true,
	}
	finder := &stubFinder{templates: map[string]*models.NotificationTemplate{
		finderKey("org-1", events.TypeStockLow, models.ChannelInApp, "en"): tenant,
	}}
	resolver, mr := newTestResolver(t, finder)
	mr.Close()

	got, err := resolver.Resolve(context.Background(), "org-1", events.TypeStockLow, models.ChannelInApp, "en")
	require.NoError(t, err)
	assert.Equal(t, "Low stock", got.Subject)
}
