// internal/audit/audit_test.go
package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/store"
)

func newTestWriter(t *testing.T) (*Writer, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// no ES client configured, postgres only
	return NewWriter(store.NewLogStore(db), nil, "notification-logs", logger.NewTestLogger(t)), mock
}

func TestRecordAttempt_AppendsEntry(t *testing.T) {
	w, mock := newTestWriter(t)

	mock.ExpectExec(`INSERT INTO notification_logs`).
		WithArgs(sqlmock.AnyArg(), "n-1", "EMAIL", "SENT", "smtp", "mid-1", nil, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.NotificationLog{
		NotificationID:    "n-1",
		Channel:           models.ChannelEmail,
		Status:            models.StatusSent,
		Provider:          "smtp",
		ProviderMessageID: "mid-1",
	}
	w.RecordAttempt(context.Background(), entry)

	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.SentAt.IsZero())
}

func TestRecordAttempt_SwallowsStoreErrors(t *testing.T) {
	w, mock := newTestWriter(t)

	mock.ExpectExec(`INSERT INTO notification_logs`).
		WillReturnError(assert.AnError)

	// must not panic or propagate, delivery outcome never depends on audit
	w.RecordAttempt(context.Background(), &models.NotificationLog{
		NotificationID: "n-1",
		Channel:        models.ChannelPush,
		Status:         models.StatusFailed,
		Provider:       "webpush",
		Error:          "endpoint gone",
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	w, mock := newTestWriter(t)

	sentAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "notification_id", "channel", "status", "provider",
		"provider_message_id", "error", "retry_attempt", "sent_at",
	}).
		AddRow("log-1", "n-1", "EMAIL", "FAILED", "smtp", nil, "connection refused", 0, sentAt).
		AddRow("log-2", "n-1", "EMAIL", "SENT", "smtp", "mid-2", nil, 1, sentAt.Add(time.Minute))

	mock.ExpectQuery(`SELECT .+ FROM notification_logs WHERE notification_id`).
		WithArgs("n-1").
		WillReturnRows(rows)

	entries, err := w.History(context.Background(), "n-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, models.StatusFailed, entries[0].Status)
	assert.Equal(t, "connection refused", entries[0].Error)
	assert.Equal(t, models.StatusSent, entries[1].Status)
	assert.Equal(t, "mid-2", entries[1].ProviderMessageID)
	assert.Equal(t, 1, entries[1].RetryAttempt)
}
