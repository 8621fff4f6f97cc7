// internal/models/subscription.go
package models

import "time"

// SubscriptionKeys is the client key material a browser hands over when
// registering for Web Push.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// DeviceInfo is optional metadata about the registering browser/device.
type DeviceInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// PushSubscription is one browser/device registration. At most one live row
// exists per endpoint; re-subscribing the same endpoint updates it in place.
// The organization id is a denormalized lookup field; the registering user
// owns the subscription.
type PushSubscription struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	OrganizationID string           `json:"organizationId,omitempty"`
	Endpoint       string           `json:"endpoint"`
	Keys           SubscriptionKeys `json:"keys"`
	Device         DeviceInfo       `json:"device"`
	IsActive       bool             `json:"isActive"`
	LastSentAt     *time.Time       `json:"lastSentAt,omitempty"`
	FailureCount   int              `json:"failureCount"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
