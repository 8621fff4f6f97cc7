// internal/events/registry.go
package events

import (
	"fmt"
	"strings"

	"autoshop-notifications/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// payloadSchemas holds one JSON schema per registered event type. The payload
// stays a dynamic map past this point (template rendering is inherently
// key/value), but required keys are enforced here at the boundary.
var payloadSchemas = map[string]map[string]interface{}{
	TypeWorkOrderCreated: {
		"type": "object",
		"properties": map[string]interface{}{
			"workOrderId":     map[string]interface{}{"type": "string"},
			"workOrderNumber": map[string]interface{}{"type": "string"},
			"clientId":        map[string]interface{}{"type": "string"},
			"vehicleId":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"workOrderNumber"},
	},
	TypeWorkOrderStatusChanged: {
		"type": "object",
		"properties": map[string]interface{}{
			"workOrderId":     map[string]interface{}{"type": "string"},
			"workOrderNumber": map[string]interface{}{"type": "string"},
			"oldStatus":       map[string]interface{}{"type": "string"},
			"newStatus":       map[string]interface{}{"type": "string"},
		},
		"required": []string{"workOrderNumber", "newStatus"},
	},
	TypeAppointmentReminder: {
		"type": "object",
		"properties": map[string]interface{}{
			"workOrderId": map[string]interface{}{"type": "string"},
			"scheduledAt": map[string]interface{}{"type": "string"},
			"branchId":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"scheduledAt"},
	},
	TypeInvoiceCreated: {
		"type": "object",
		"properties": map[string]interface{}{
			"invoiceId":     map[string]interface{}{"type": "string"},
			"invoiceNumber": map[string]interface{}{"type": "string"},
			"total":         map[string]interface{}{"type": "number"},
			"currency":      map[string]interface{}{"type": "string"},
			"clientId":      map[string]interface{}{"type": "string"},
		},
		"required": []string{"invoiceNumber"},
	},
	TypePaymentReceived: {
		"type": "object",
		"properties": map[string]interface{}{
			"invoiceId":     map[string]interface{}{"type": "string"},
			"invoiceNumber": map[string]interface{}{"type": "string"},
			"amount":        map[string]interface{}{"type": "number"},
			"currency":      map[string]interface{}{"type": "string"},
			"method":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"amount"},
	},
	TypeSubscriptionExpiring: {
		"type": "object",
		"properties": map[string]interface{}{
			"planName":  map[string]interface{}{"type": "string"},
			"expiresAt": map[string]interface{}{"type": "string"},
		},
		"required": []string{"expiresAt"},
	},
	TypeStockLow: {
		"type": "object",
		"properties": map[string]interface{}{
			"itemName": map[string]interface{}{"type": "string"},
			"quantity": map[string]interface{}{"type": "number"},
		},
		"required": []string{"itemName"},
	},
}

// IsRegistered reports whether the event type has a registered schema.
func IsRegistered(eventType string) bool {
	_, ok := payloadSchemas[eventType]
	return ok
}

// Types returns the registered event types.
func Types() []string {
	out := make([]string, 0, len(payloadSchemas))
	for t := range payloadSchemas {
		out = append(out, t)
	}
	return out
}

// Validate checks the event against its type's payload schema. Unknown types
// and schema violations are data errors: logged and discarded upstream, never
// retried.
func Validate(event *DomainEvent) error {
	if event.UserID == "" {
		return errors.NewInvalidPayloadError(event.Type, "userId is required")
	}

	schemaMap, ok := payloadSchemas[event.Type]
	if !ok {
		return errors.NewUnknownEventTypeError(event.Type)
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.NewInvalidPayloadError(event.Type, strings.Join(msgs, "; "))
	}

	return nil
}
