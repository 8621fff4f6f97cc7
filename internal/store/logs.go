// internal/store/logs.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autoshop-notifications/internal/models"

	"github.com/google/uuid"
)

// LogStore persists NotificationLog entries. Rows are written once and never
// updated.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

// Append inserts one audit entry for a delivery attempt.
func (s *LogStore) Append(ctx context.Context, entry *models.NotificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	query := `INSERT INTO notification_logs
		(id, notification_id, channel, status, provider, provider_message_id, error, retry_attempt, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.NotificationID, string(entry.Channel), string(entry.Status),
		entry.Provider, nullStr(entry.ProviderMessageID), nullStr(entry.Error),
		entry.RetryAttempt, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// ListByNotification returns all attempts for one notification in order.
func (s *LogStore) ListByNotification(ctx context.Context, notificationID string) ([]*models.NotificationLog, error) {
	query := `SELECT id, notification_id, channel, status, provider, provider_message_id, error, retry_attempt, sent_at
		FROM notification_logs WHERE notification_id = $1 ORDER BY retry_attempt ASC, sent_at ASC`

	rows, err := s.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationLog
	for rows.Next() {
		var entry models.NotificationLog
		var channel, status string
		var providerMessageID, errMsg sql.NullString

		err := rows.Scan(&entry.ID, &entry.NotificationID, &channel, &status,
			&entry.Provider, &providerMessageID, &errMsg, &entry.RetryAttempt, &entry.SentAt)
		if err != nil {
			return nil, err
		}

		entry.Channel = models.Channel(channel)
		entry.Status = models.Status(status)
		entry.ProviderMessageID = providerMessageID.String
		entry.Error = errMsg.String
		out = append(out, &entry)
	}
	return out, rows.Err()
}
