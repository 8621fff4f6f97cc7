// internal/store/templates.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"autoshop-notifications/internal/models"

	"github.com/lib/pq"
)

var ErrTemplateNotFound = errors.New("notification template not found")

// TemplateStore reads NotificationTemplate records. Templates are created and
// edited by the administrative layer; the delivery flow only reads them.
type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// FindActive returns the active template for the exact key
// (organizationId, type, channel, locale). Pass an empty orgID for the
// global template.
func (s *TemplateStore) FindActive(ctx context.Context, orgID, eventType string, channel models.Channel, locale string) (*models.NotificationTemplate, error) {
	query := `SELECT id, organization_id, type, channel, locale, subject, body_html, body_text, variables, is_active, created_at, updated_at
		FROM notification_templates
		WHERE COALESCE(organization_id, '') = $1 AND type = $2 AND channel = $3 AND locale = $4 AND is_active = TRUE
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, orgID, eventType, string(channel), locale)

	var t models.NotificationTemplate
	var dbOrgID, bodyHTML sql.NullString
	var channelStr string

	err := row.Scan(&t.ID, &dbOrgID, &t.Type, &channelStr, &t.Locale,
		&t.Subject, &bodyHTML, &t.BodyText, pq.Array(&t.Variables),
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}

	t.OrganizationID = dbOrgID.String
	t.BodyHTML = bodyHTML.String
	t.Channel = models.Channel(channelStr)
	return &t, nil
}
