// internal/store/subscriptions.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoshop-notifications/internal/models"

	"github.com/google/uuid"
)

var ErrSubscriptionNotFound = errors.New("push subscription not found")

// SubscriptionStore persists PushSubscription records. The endpoint column
// carries a unique constraint; Upsert relies on it for idempotent
// re-subscription.
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Upsert registers a subscription keyed by endpoint. A second call with the
// same endpoint overwrites keys and device info, reactivates the row, and
// resets the failure count.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `INSERT INTO push_subscriptions
		(id, user_id, organization_id, endpoint, p256dh_key, auth_key, user_agent, platform, is_active, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, 0, $9, $9)
		ON CONFLICT (endpoint) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			organization_id = EXCLUDED.organization_id,
			p256dh_key = EXCLUDED.p256dh_key,
			auth_key = EXCLUDED.auth_key,
			user_agent = EXCLUDED.user_agent,
			platform = EXCLUDED.platform,
			is_active = TRUE,
			failure_count = 0,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.UserID, nullStr(sub.OrganizationID), sub.Endpoint,
		sub.Keys.P256dh, sub.Keys.Auth, nullStr(sub.Device.UserAgent), nullStr(sub.Device.Platform),
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	sub.IsActive = true
	sub.FailureCount = 0
	sub.UpdatedAt = now
	return nil
}

// GetByEndpoint loads one subscription by its endpoint.
func (s *SubscriptionStore) GetByEndpoint(ctx context.Context, endpoint string) (*models.PushSubscription, error) {
	query := selectSubscription + ` WHERE endpoint = $1`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, endpoint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// ListActiveByUser returns the user's active subscriptions.
func (s *SubscriptionStore) ListActiveByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error) {
	query := selectSubscription + ` WHERE user_id = $1 AND is_active = TRUE`
	return s.list(ctx, query, userID)
}

// ListActiveByOrganization returns all active subscriptions in an organization.
func (s *SubscriptionStore) ListActiveByOrganization(ctx context.Context, orgID string) ([]*models.PushSubscription, error) {
	query := selectSubscription + ` WHERE organization_id = $1 AND is_active = TRUE`
	return s.list(ctx, query, orgID)
}

// ListActiveByRole returns active subscriptions whose owners hold the given
// role within the organization. Roles live on the users table owned by the
// CRUD layer; the join is read-only.
func (s *SubscriptionStore) ListActiveByRole(ctx context.Context, orgID, role string) ([]*models.PushSubscription, error) {
	query := `SELECT ps.id, ps.user_id, ps.organization_id, ps.endpoint, ps.p256dh_key, ps.auth_key,
		ps.user_agent, ps.platform, ps.is_active, ps.last_sent_at, ps.failure_count, ps.created_at, ps.updated_at
		FROM push_subscriptions ps
		JOIN users u ON u.id = ps.user_id
		WHERE ps.organization_id = $1 AND u.role = $2 AND ps.is_active = TRUE`
	return s.list(ctx, query, orgID, role)
}

// RecordSuccess resets the failure count and stamps lastSentAt after a
// successful send.
func (s *SubscriptionStore) RecordSuccess(ctx context.Context, endpoint string) error {
	query := `UPDATE push_subscriptions
		SET failure_count = 0, last_sent_at = $2, updated_at = $2
		WHERE endpoint = $1`

	_, err := s.db.ExecContext(ctx, query, endpoint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// RecordFailure increments the failure count and deactivates the row once it
// reaches maxFailures. Returns the new failure count and whether the row is
// still active.
func (s *SubscriptionStore) RecordFailure(ctx context.Context, endpoint string, maxFailures int) (int, bool, error) {
	query := `UPDATE push_subscriptions
		SET failure_count = failure_count + 1,
			is_active = (failure_count + 1 < $2),
			updated_at = $3
		WHERE endpoint = $1
		RETURNING failure_count, is_active`

	var count int
	var active bool
	err := s.db.QueryRowContext(ctx, query, endpoint, maxFailures, time.Now().UTC()).Scan(&count, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, ErrSubscriptionNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record failure: %w", err)
	}
	return count, active, nil
}

// Deactivate flips a subscription inactive immediately. Used for permanent
// transport failures and explicit unsubscribes; reversible by re-subscribing.
func (s *SubscriptionStore) Deactivate(ctx context.Context, endpoint string) error {
	query := `UPDATE push_subscriptions
		SET is_active = FALSE, failure_count = failure_count + 1, updated_at = $2
		WHERE endpoint = $1`

	res, err := s.db.ExecContext(ctx, query, endpoint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// DeleteStale permanently removes subscriptions that are inactive, over the
// failure threshold, and untouched for longer than the retention window.
// Distinct from deactivation, which is immediate and reversible.
func (s *SubscriptionStore) DeleteStale(ctx context.Context, maxFailures int, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	query := `DELETE FROM push_subscriptions
		WHERE is_active = FALSE AND failure_count >= $1 AND updated_at < $2`

	res, err := s.db.ExecContext(ctx, query, maxFailures, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale subscriptions: %w", err)
	}
	return res.RowsAffected()
}

// CountActive returns the number of active subscriptions.
func (s *SubscriptionStore) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_subscriptions WHERE is_active = TRUE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active subscriptions: %w", err)
	}
	return count, nil
}

const selectSubscription = `SELECT id, user_id, organization_id, endpoint, p256dh_key, auth_key,
	user_agent, platform, is_active, last_sent_at, failure_count, created_at, updated_at
	FROM push_subscriptions`

func (s *SubscriptionStore) list(ctx context.Context, query string, args ...interface{}) ([]*models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row rowScanner) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	var orgID, userAgent, platform sql.NullString
	var lastSentAt sql.NullTime

	err := row.Scan(&sub.ID, &sub.UserID, &orgID, &sub.Endpoint,
		&sub.Keys.P256dh, &sub.Keys.Auth, &userAgent, &platform,
		&sub.IsActive, &lastSentAt, &sub.FailureCount, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sub.OrganizationID = orgID.String
	sub.Device.UserAgent = userAgent.String
	sub.Device.Platform = platform.String
	if lastSentAt.Valid {
		sub.LastSentAt = &lastSentAt.Time
	}
	return &sub, nil
}
