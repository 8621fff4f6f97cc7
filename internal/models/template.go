// internal/models/template.go
package models

import "time"

// NotificationTemplate is a rendering template keyed by
// (organizationId [empty = global], event type, channel, locale).
// Templates are read-only to the delivery flow.
type NotificationTemplate struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Type           string    `json:"type"`
	Channel        Channel   `json:"channel"`
	Locale         string    `json:"locale"`
	Subject        string    `json:"subject"`
	BodyHTML       string    `json:"bodyHtml,omitempty"`
	BodyText       string    `json:"bodyText"`
	Variables      []string  `json:"variables,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
