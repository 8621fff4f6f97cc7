// internal/events/registry_test.go
package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoshop-notifications/internal/common/errors"
)

// ==========================
// Validation Tests
// ==========================

func TestValidate_Success(t *testing.T) {
	tests := []struct {
		name  string
		event *DomainEvent
	}{
		{
			name: "work order created with required fields",
			event: &DomainEvent{
				Type:   TypeWorkOrderCreated,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"workOrderNumber": "WO-1042",
					"clientId":        "client-7",
				},
			},
		},
		{
			name: "status change with both statuses",
			event: &DomainEvent{
				Type:   TypeWorkOrderStatusChanged,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"workOrderNumber": "WO-1042",
					"oldStatus":       "IN_PROGRESS",
					"newStatus":       "READY",
				},
			},
		},
		{
			name: "payment received with numeric amount",
			event: &DomainEvent{
				Type:   TypePaymentReceived,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"amount":   149.90,
					"currency": "EUR",
				},
			},
		},
		{
			name: "extra payload keys are accepted",
			event: &DomainEvent{
				Type:   TypeStockLow,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"itemName":   "Brake pads",
					"quantity":   float64(2),
					"internalId": "whatever",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(tt.event))
		})
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name         string
		event        *DomainEvent
		expectedCode errors.ErrorCode
	}{
		{
			name: "unknown event type",
			event: &DomainEvent{
				Type:    "SOMETHING_ELSE",
				UserID:  "user-1",
				Payload: map[string]interface{}{},
			},
			expectedCode: errors.ErrCodeUnknownEventType,
		},
		{
			name: "missing user id",
			event: &DomainEvent{
				Type: TypeWorkOrderCreated,
				Payload: map[string]interface{}{
					"workOrderNumber": "WO-1",
				},
			},
			expectedCode: errors.ErrCodeInvalidPayload,
		},
		{
			name: "missing required payload field",
			event: &DomainEvent{
				Type:   TypeWorkOrderStatusChanged,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"workOrderNumber": "WO-1",
				},
			},
			expectedCode: errors.ErrCodeInvalidPayload,
		},
		{
			name: "wrong field type",
			event: &DomainEvent{
				Type:   TypePaymentReceived,
				UserID: "user-1",
				Payload: map[string]interface{}{
					"amount": "a lot",
				},
			},
			expectedCode: errors.ErrCodeInvalidPayload,
		},
		{
			name: "nil payload with required fields",
			event: &DomainEvent{
				Type:   TypeSubscriptionExpiring,
				UserID: "user-1",
			},
			expectedCode: errors.ErrCodeInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.event)
			require.Error(t, err)

			de, ok := err.(*errors.DeliveryError)
			require.True(t, ok, "expected *errors.DeliveryError, got %T", err)
			assert.Equal(t, tt.expectedCode, de.Code)
			assert.False(t, de.Retryable, "data errors must never be retryable")
		})
	}
}

// ==========================
// Registry Tests
// ==========================

func TestIsRegistered(t *testing.T) {
	assert.True(t, IsRegistered(TypeWorkOrderCreated))
	assert.True(t, IsRegistered(TypeInvoiceCreated))
	assert.False(t, IsRegistered("NOT_AN_EVENT"))
	assert.False(t, IsRegistered(""))
}

func TestTypes_CoversAllSchemas(t *testing.T) {
	types := Types()
	assert.Len(t, types, len(payloadSchemas))
	for _, typ := range types {
		assert.True(t, IsRegistered(typ))
	}
}
