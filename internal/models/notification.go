// internal/models/notification.go
package models

import "time"

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// Status is the delivery state of a notification record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Notification is one delivery record per (recipient, channel, event). It is
// the source of truth for current delivery state; per-attempt history lives
// in NotificationLog. Records are never deleted.
type Notification struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organizationId,omitempty"`
	BranchID       string                 `json:"branchId,omitempty"`
	UserID         string                 `json:"userId"`
	Type           string                 `json:"type"`
	Channel        Channel                `json:"channel"`
	Status         Status                 `json:"status"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Data           map[string]interface{} `json:"data,omitempty"`
	ReadAt         *time.Time             `json:"readAt,omitempty"`
	SentAt         *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time             `json:"deliveredAt,omitempty"`
	RetryCount     int                    `json:"retryCount"`
	LastError      string                 `json:"lastError,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// NotificationLog is one immutable audit entry per delivery attempt.
type NotificationLog struct {
	ID                string    `json:"id"`
	NotificationID    string    `json:"notificationId"`
	Channel           Channel   `json:"channel"`
	Status            Status    `json:"status"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	Error             string    `json:"error,omitempty"`
	RetryAttempt      int       `json:"retryAttempt"`
	SentAt            time.Time `json:"sentAt"`
}
