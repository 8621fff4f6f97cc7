// internal/providers/providers_test.go
package providers

import (
	"context"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func sandboxEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		Provider: "smtp",
		Sandbox:  true,
		From:     "noreply@autoshop.example",
		SMTP:     config.SMTPConfig{Host: "localhost", Port: 587},
	}
}

func sandboxPushConfig() config.WebPushConfig {
	return config.WebPushConfig{
		Sandbox:    true,
		Subscriber: "mailto:ops@autoshop.example",
		TTL:        60,
	}
}

func testSubscription() *models.PushSubscription {
	return &models.PushSubscription{
		ID:       "s-1",
		UserID:   "user-1",
		Endpoint: "https://push.example/ep1",
		Keys:     models.SubscriptionKeys{P256dh: "p256", Auth: "auth"},
		IsActive: true,
	}
}

// ==========================
// SMTP Provider Tests
// ==========================

func TestSMTPProvider_SandboxSend(t *testing.T) {
	p := NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	res, err := p.Send(context.Background(), Target{Address: "client@example.com", UserID: "user-1"},
		Message{Title: "subject", Body: "body"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "sandbox-"))
	assert.Equal(t, models.ChannelEmail, p.Channel())
}

func TestSMTPProvider_RejectsMissingAddress(t *testing.T) {
	p := NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	_, err := p.Send(context.Background(), Target{UserID: "user-1"}, Message{Title: "x"})
	require.Error(t, err)

	de, ok := err.(*errors.DeliveryError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeMissingAddress, de.Code)
	assert.False(t, de.Retryable)
}

func TestSMTPProvider_RejectsMalformedAddress(t *testing.T) {
	p := NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	tests := []string{"", "no-at-sign", "@nodomain", "user@", "user@nodot"}
	for _, addr := range tests {
		_, err := p.Send(context.Background(), Target{Address: addr}, Message{Title: "x"})
		assert.Error(t, err, "address %q must be rejected", addr)
	}
}

func TestSMTPProvider_BuildMessage_MultipartAlternative(t *testing.T) {
	p := NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	msg := p.buildMessage("to@example.com", Message{
		Title:    "Invoice INV-1",
		Body:     "plain text part",
		BodyHTML: "<p>html part</p>",
	})

	text := string(msg)
	assert.Contains(t, text, "Subject: Invoice INV-1")
	assert.Contains(t, text, "multipart/alternative")
	assert.Contains(t, text, "text/plain; charset=UTF-8")
	assert.Contains(t, text, "text/html; charset=UTF-8")
	assert.Contains(t, text, "plain text part")
	assert.Contains(t, text, "<p>html part</p>")
}

func TestSMTPProvider_BuildMessage_PlainOnly(t *testing.T) {
	p := NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	msg := p.buildMessage("to@example.com", Message{Title: "s", Body: "only text"})
	text := string(msg)
	assert.NotContains(t, text, "multipart/alternative")
	assert.Contains(t, text, "only text")
}

func TestIsPermanentSMTPError(t *testing.T) {
	assert.True(t, isPermanentSMTPError(&textproto.Error{Code: 550, Msg: "mailbox unavailable"}))
	assert.True(t, isPermanentSMTPError(&textproto.Error{Code: 554, Msg: "rejected"}))
	assert.False(t, isPermanentSMTPError(&textproto.Error{Code: 421, Msg: "try again later"}))
	assert.False(t, isPermanentSMTPError(assert.AnError))
}

// ==========================
// SES Provider Tests
// ==========================

func sandboxSESConfig() config.EmailConfig {
	return config.EmailConfig{
		Provider: "ses",
		Sandbox:  true,
		From:     "noreply@autoshop.example",
		SES:      config.SESConfig{Region: "eu-central-1"},
	}
}

func TestSESProvider_SandboxSend(t *testing.T) {
	p, err := NewSESProvider(context.Background(), sandboxSESConfig(), 3, time.Millisecond, logger.NewTestLogger(t))
	require.NoError(t, err, "sandbox construction needs no AWS credentials")

	res, err := p.Send(context.Background(), Target{Address: "client@example.com", UserID: "user-1"},
		Message{Title: "subject", Body: "body"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "sandbox-"))
	assert.Equal(t, models.ChannelEmail, p.Channel())
}

func TestSESProvider_RejectsMissingAddress(t *testing.T) {
	p, err := NewSESProvider(context.Background(), sandboxSESConfig(), 3, time.Millisecond, logger.NewTestLogger(t))
	require.NoError(t, err)

	_, err = p.Send(context.Background(), Target{UserID: "user-1"}, Message{Title: "x"})
	require.Error(t, err)

	de, ok := err.(*errors.DeliveryError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeMissingAddress, de.Code)
	assert.False(t, de.Retryable)
}

func TestSESProvider_RejectsMalformedAddress(t *testing.T) {
	p, err := NewSESProvider(context.Background(), sandboxSESConfig(), 3, time.Millisecond, logger.NewTestLogger(t))
	require.NoError(t, err)

	_, err = p.Send(context.Background(), Target{Address: "no-at-sign"}, Message{Title: "x"})
	require.Error(t, err)

	de, ok := err.(*errors.DeliveryError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeAddressRejected, de.Code)
	assert.True(t, de.Permanent)
}

func TestEmailProviders_ShareTheContract(t *testing.T) {
	sesProvider, err := NewSESProvider(context.Background(), sandboxSESConfig(), 3, time.Millisecond, logger.NewTestLogger(t))
	require.NoError(t, err)

	// either transport slots into the dispatcher's email seat unchanged
	for _, p := range []Provider{
		NewSMTPProvider(sandboxEmailConfig(), 3, time.Millisecond, logger.NewTestLogger(t)),
		sesProvider,
	} {
		assert.Equal(t, models.ChannelEmail, p.Channel())

		res, err := p.Send(context.Background(), Target{Address: "client@example.com"},
			Message{Title: "subject", Body: "body"})
		require.NoError(t, err, "provider %s", p.Name())
		assert.True(t, strings.HasPrefix(res.MessageID, "sandbox-"), "provider %s", p.Name())

		_, err = p.Send(context.Background(), Target{}, Message{Title: "subject"})
		require.Error(t, err, "provider %s", p.Name())
	}
}

// ==========================
// Push Provider Tests
// ==========================

func TestPushProvider_SandboxSend(t *testing.T) {
	p := NewPushProvider(sandboxPushConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	res, err := p.Send(context.Background(), Target{Subscription: testSubscription()},
		Message{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.MessageID, "sandbox-"))
	assert.Equal(t, models.ChannelPush, p.Channel())
}

func TestPushProvider_RequiresSubscription(t *testing.T) {
	p := NewPushProvider(sandboxPushConfig(), 3, time.Millisecond, logger.NewTestLogger(t))

	_, err := p.Send(context.Background(), Target{UserID: "user-1"}, Message{Title: "t"})
	require.Error(t, err)

	de, ok := err.(*errors.DeliveryError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeMissingAddress, de.Code)
}

func TestPushRejectionClassification(t *testing.T) {
	// a 4xx rejection of the request itself must never burn the
	// notification's retry loop on the same doomed payload
	rejected := errors.NewPayloadTooLargeError("https://push.example/ep1", 413)
	assert.False(t, errors.IsRetryable(rejected))
	assert.True(t, errors.IsPermanent(rejected))

	gone := errors.NewEndpointGoneError("https://push.example/ep1", 410)
	assert.False(t, errors.IsRetryable(gone))
	assert.True(t, errors.IsPermanent(gone))

	transient := errors.NewTransportFailedError("webpush", assert.AnError)
	assert.True(t, errors.IsRetryable(transient))
	assert.False(t, errors.IsPermanent(transient))
}

// ==========================
// In-App Provider Tests
// ==========================

func TestInAppProvider_PublishesWakeupSignal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewInAppProvider(rdb, false, logger.NewTestLogger(t))

	sub := rdb.Subscribe(context.Background(), "inapp:user:user-1")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	res, err := p.Send(context.Background(), Target{UserID: "user-1"},
		Message{Title: "t", Body: "b", Data: map[string]interface{}{"notificationId": "n-1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	msg, err := sub.ReceiveTimeout(context.Background(), time.Second)
	require.NoError(t, err)
	if m, ok := msg.(*redis.Message); ok {
		assert.Contains(t, m.Payload, "n-1")
	}
}

func TestInAppProvider_SurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	p := NewInAppProvider(rdb, false, logger.NewTestLogger(t))

	res, err := p.Send(context.Background(), Target{UserID: "user-1"}, Message{Title: "t"})
	require.NoError(t, err, "in-app delivery is local, the wakeup publish is best effort")
	assert.NotEmpty(t, res.MessageID)
}

func TestInAppProvider_RequiresUserID(t *testing.T) {
	p := NewInAppProvider(nil, true, logger.NewTestLogger(t))

	_, err := p.Send(context.Background(), Target{}, Message{Title: "t"})
	require.Error(t, err)
}
