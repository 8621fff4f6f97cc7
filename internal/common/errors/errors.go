// Package errors provides standardized error handling for notification delivery.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Recipient / data errors. Never retried.
	ErrCodeRecipientNotFound ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeMissingAddress    ErrorCode = "MISSING_ADDRESS"
	ErrCodeInvalidPayload    ErrorCode = "INVALID_PAYLOAD"
	ErrCodeUnknownEventType  ErrorCode = "UNKNOWN_EVENT_TYPE"

	// Permanent transport errors. Fail immediately, no retries consumed.
	ErrCodeEndpointGone      ErrorCode = "ENDPOINT_GONE"
	ErrCodeAddressRejected   ErrorCode = "ADDRESS_REJECTED"
	ErrCodePayloadTooLarge   ErrorCode = "PAYLOAD_TOO_LARGE"

	// Transient transport errors. Retried with escalating delay.
	ErrCodeTransportFailed   ErrorCode = "TRANSPORT_FAILED"
	ErrCodeTransportTimeout  ErrorCode = "TRANSPORT_TIMEOUT"
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"

	// Configuration errors. Fatal for the provider at startup, falls back to sandbox.
	ErrCodeProviderNotConfigured ErrorCode = "PROVIDER_NOT_CONFIGURED"

	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeStoreFailed      ErrorCode = "STORE_FAILED"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
)

// ==========================
// 2. DeliveryError
// ==========================

// DeliveryError is a structured delivery failure. Retryable marks transient
// transport failures; Permanent marks destinations that will never succeed
// (expired push endpoint, hard SMTP rejection) and short-circuits any
// remaining retry budget.
type DeliveryError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Permanent bool                   `json:"permanent"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("DeliveryError[%s]: %s", e.Code, e.Message)
}

// IsPermanent reports whether err is a DeliveryError marking a destination
// that will never succeed.
func IsPermanent(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Permanent
	}
	return false
}

// IsRetryable reports whether err may succeed on retry. Unknown error types
// are treated as transient so a flaky collaborator does not burn a record.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// ==========================
// 3. Error Constructors
// ==========================

// NewRecipientNotFoundError creates a non-retryable data error.
func NewRecipientNotFoundError(userID string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeRecipientNotFound,
		Message:   "Recipient does not exist",
		Details:   fmt.Sprintf("userId: %s", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingAddressError creates a non-retryable data error for a channel
// whose precondition (email address, push subscription) is unmet.
func NewMissingAddressError(channel, userID string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeMissingAddress,
		Message:   "Recipient has no address for channel",
		Details:   fmt.Sprintf("channel: %s, userId: %s", channel, userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPayloadError creates a non-retryable event validation error.
func NewInvalidPayloadError(eventType, details string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeInvalidPayload,
		Message:   "Event payload failed schema validation",
		Details:   fmt.Sprintf("eventType: %s, %s", eventType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownEventTypeError creates a non-retryable event validation error.
func NewUnknownEventTypeError(eventType string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeUnknownEventType,
		Message:   "Event type is not registered",
		Details:   fmt.Sprintf("eventType: %s", eventType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEndpointGoneError creates a permanent transport error for an expired or
// invalid push endpoint (HTTP 404/410).
func NewEndpointGoneError(endpoint string, statusCode int) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeEndpointGone,
		Message:   "Push endpoint is permanently gone",
		Details:   fmt.Sprintf("status: %d, endpoint: %s", statusCode, endpoint),
		Retryable: false,
		Permanent: true,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// NewAddressRejectedError creates a permanent transport error for a hard
// SMTP rejection.
func NewAddressRejectedError(address string, err error) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeAddressRejected,
		Message:   "Destination address rejected by transport",
		Details:   fmt.Sprintf("address: %s, error: %v", address, err),
		Retryable: false,
		Permanent: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadTooLargeError creates a permanent transport error for a push
// request the service rejected outright (413 and other client-side 4xx).
// Resending the same payload can never succeed.
func NewPayloadTooLargeError(endpoint string, statusCode int) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodePayloadTooLarge,
		Message:   "Push service rejected the request",
		Details:   fmt.Sprintf("status: %d, endpoint: %s", statusCode, endpoint),
		Retryable: false,
		Permanent: true,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportFailedError creates a retryable transport error.
func NewTransportFailedError(provider string, err error) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeTransportFailed,
		Message:   "Transport send failed",
		Details:   fmt.Sprintf("provider: %s, error: %v", provider, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportTimeoutError creates a retryable transport timeout error.
func NewTransportTimeoutError(provider string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeTransportTimeout,
		Message:   "Transport send timed out",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError creates a retryable rate-limit error (HTTP 429).
func NewRateLimitedError(provider string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeRateLimited,
		Message:   "Transport rate limited the send",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderNotConfiguredError creates a configuration error. The caller is
// expected to fall back to the sandbox provider rather than crash.
func NewProviderNotConfiguredError(provider, missing string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeProviderNotConfigured,
		Message:   "Provider credentials missing at startup",
		Details:   fmt.Sprintf("provider: %s, missing: %s", provider, missing),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(eventType, channel string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No template matched and no default exists",
		Details:   fmt.Sprintf("eventType: %s, channel: %s", eventType, channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreFailedError creates a retryable datastore error.
func NewStoreFailedError(op string, err error) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeStoreFailed,
		Message:   "Datastore operation failed",
		Details:   fmt.Sprintf("op: %s, error: %v", op, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnauthorizedError creates a non-retryable authorization error.
func NewUnauthorizedError(details string) *DeliveryError {
	return &DeliveryError{
		Code:      ErrCodeUnauthorized,
		Message:   "Requesting user is not allowed to perform this operation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
