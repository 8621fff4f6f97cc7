// internal/store/notifications_test.go
package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoshop-notifications/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// ==========================
// Create Tests
// ==========================

func TestNotificationStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	n := &models.Notification{
		OrganizationID: "org-1",
		UserID:         "user-1",
		Type:           "WORK_ORDER_CREATED",
		Channel:        models.ChannelInApp,
		Title:          "Work order WO-1 created",
		Body:           "body",
		Data:           map[string]interface{}{"workOrderNumber": "WO-1"},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", "WORK_ORDER_CREATED",
			"IN_APP", "PENDING", "Work order WO-1 created", "body", sqlmock.AnyArg(), 0,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Create(context.Background(), n)
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID, "Create must assign an id")
	assert.Equal(t, models.StatusPending, n.Status)
	assert.False(t, n.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_Create_KeepsProvidedID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Notification{ID: "fixed-id", UserID: "u", Type: "STOCK_LOW", Channel: models.ChannelInApp}
	require.NoError(t, s.Create(context.Background(), n))
	assert.Equal(t, "fixed-id", n.ID)
}

// ==========================
// Lifecycle Tests
// ==========================

func TestNotificationStore_MarkSent(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	sentAt := time.Now()
	delivered := sentAt

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications")).
		WithArgs("n-1", "SENT", sentAt, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkSent(context.Background(), "n-1", sentAt, &delivered))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationStore_RecordFailure(t *testing.T) {
	tests := []struct {
		name           string
		terminal       bool
		expectedStatus string
	}{
		{name: "non-terminal failure stays PENDING", terminal: false, expectedStatus: "PENDING"},
		{name: "terminal failure goes FAILED", terminal: true, expectedStatus: "FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewNotificationStore(db)

			mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications")).
				WithArgs("n-1", "smtp: connection refused", tt.expectedStatus, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, s.RecordFailure(context.Background(), "n-1", "smtp: connection refused", tt.terminal))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNotificationStore_MarkRead_UnknownRow(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read_at")).
		WithArgs("n-404", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkRead(context.Background(), "n-404", "user-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

// ==========================
// Query Tests
// ==========================

func notificationColumns() []string {
	return []string{"id", "organization_id", "branch_id", "user_id", "type", "channel", "status",
		"title", "body", "data", "read_at", "sent_at", "delivered_at", "retry_count", "last_error",
		"created_at", "updated_at"}
}

func TestNotificationStore_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	now := time.Now()
	rows := sqlmock.NewRows(notificationColumns()).
		AddRow("n-1", "org-1", nil, "user-1", "INVOICE_CREATED", "EMAIL", "SENT",
			"Invoice INV-1 issued", "body", []byte(`{"invoiceNumber":"INV-1"}`),
			nil, now, nil, 1, "first attempt timed out", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE id =")).
		WithArgs("n-1").
		WillReturnRows(rows)

	n, err := s.GetByID(context.Background(), "n-1")
	require.NoError(t, err)

	assert.Equal(t, models.ChannelEmail, n.Channel)
	assert.Equal(t, models.StatusSent, n.Status)
	assert.Equal(t, "INV-1", n.Data["invoiceNumber"])
	assert.NotNil(t, n.SentAt)
	assert.Nil(t, n.DeliveredAt)
	assert.Equal(t, 1, n.RetryCount)
	assert.Equal(t, "first attempt timed out", n.LastError)
}

func TestNotificationStore_CountUnread(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewNotificationStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications")).
		WithArgs("user-1", "IN_APP").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := s.CountUnread(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
