// internal/events/event.go
package events

import (
	"time"

	"autoshop-notifications/internal/models"
)

// Event type constants for the business workflows that emit notifications.
const (
	TypeWorkOrderCreated       = "WORK_ORDER_CREATED"
	TypeWorkOrderStatusChanged = "WORK_ORDER_STATUS_CHANGED"
	TypeAppointmentReminder    = "APPOINTMENT_REMINDER"
	TypeInvoiceCreated         = "INVOICE_CREATED"
	TypePaymentReceived        = "PAYMENT_RECEIVED"
	TypeSubscriptionExpiring   = "SUBSCRIPTION_EXPIRING"
	TypeStockLow               = "STOCK_LOW"
)

// DomainEvent is the sole entry point into the delivery engine. It is
// ephemeral: only the Notification records derived from it are persisted and
// retried. Channels, when set, overrides the default channel resolution;
// overridden channels with unmet preconditions are still dropped with a
// warning.
type DomainEvent struct {
	Type           string                 `json:"type"`
	OrganizationID string                 `json:"organizationId,omitempty"`
	BranchID       string                 `json:"branchId,omitempty"`
	UserID         string                 `json:"userId"`
	Payload        map[string]interface{} `json:"payload"`
	Channels       []models.Channel       `json:"channels,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}
