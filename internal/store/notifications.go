// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"autoshop-notifications/internal/models"

	"github.com/google/uuid"
)

// NotificationStore persists Notification records. Records are append-only
// history per user: status, timestamps and retryCount are mutated by the
// dispatcher, readAt by the recipient, and rows are never deleted.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts a PENDING notification and fills in id/timestamps.
func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.Status = models.StatusPending
	n.CreatedAt = now
	n.UpdatedAt = now

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := `INSERT INTO notifications
		(id, organization_id, branch_id, user_id, type, channel, status, title, body, data, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.db.ExecContext(ctx, query,
		n.ID, nullStr(n.OrganizationID), nullStr(n.BranchID), n.UserID, n.Type,
		string(n.Channel), string(n.Status), n.Title, n.Body, data, n.RetryCount,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkSent transitions a record to SENT. deliveredAt is only set for IN_APP
// records, whose delivery is local.
func (s *NotificationStore) MarkSent(ctx context.Context, id string, sentAt time.Time, deliveredAt *time.Time) error {
	query := `UPDATE notifications
		SET status = $2, sent_at = $3, delivered_at = $4, updated_at = $5
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query, id, string(models.StatusSent), sentAt, nullTime(deliveredAt), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// RecordFailure increments retryCount, records the error, and marks the
// record FAILED when terminal (retry budget exhausted or permanent failure).
func (s *NotificationStore) RecordFailure(ctx context.Context, id string, lastError string, terminal bool) error {
	status := models.StatusPending
	if terminal {
		status = models.StatusFailed
	}

	query := `UPDATE notifications
		SET retry_count = retry_count + 1, last_error = $2, status = $3, updated_at = $4
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query, id, lastError, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// MarkRead sets readAt for the recipient. Independent of delivery status.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	query := `UPDATE notifications SET read_at = $3, updated_at = $3 WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID loads a single notification.
func (s *NotificationStore) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := `SELECT id, organization_id, branch_id, user_id, type, channel, status, title, body, data,
		read_at, sent_at, delivered_at, retry_count, last_error, created_at, updated_at
		FROM notifications WHERE id = $1`

	return scanNotification(s.db.QueryRowContext(ctx, query, id))
}

// ListByUser returns the user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, organization_id, branch_id, user_id, type, channel, status, title, body, data,
		read_at, sent_at, delivered_at, retry_count, last_error, created_at, updated_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnread returns the user's unread in-app notification count.
func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND channel = $2 AND read_at IS NULL`

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, string(models.ChannelInApp)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var orgID, branchID, lastError sql.NullString
	var data []byte
	var readAt, sentAt, deliveredAt sql.NullTime
	var channel, status string

	err := row.Scan(&n.ID, &orgID, &branchID, &n.UserID, &n.Type, &channel, &status,
		&n.Title, &n.Body, &data, &readAt, &sentAt, &deliveredAt,
		&n.RetryCount, &lastError, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}

	n.OrganizationID = orgID.String
	n.BranchID = branchID.String
	n.Channel = models.Channel(channel)
	n.Status = models.Status(status)
	n.LastError = lastError.String
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		n.DeliveredAt = &deliveredAt.Time
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &n.Data)
	}
	return &n, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
