package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type ObserverError struct {
	Message string
	Cause   error
}

func (e *ObserverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ObserverError) Unwrap() error {
	return e.Cause
}

// Distinct error categories for type assertions.
//
// AuthenticationMissingError: no credential available, connect must not retry.
// TransportError: socket/handshake failure, recovered by the reconnect loop.
// DecodeError: malformed inbound payload, dropped per-message.
// ListenerError: a registered observer panicked, isolated from the rest.
// RestError: REST collaborator failure after retries.
// ConfigurationError: invalid or unreadable configuration.
type AuthenticationMissingError struct{ ObserverError }
type TransportError struct{ ObserverError }
type DecodeError struct{ ObserverError }
type ListenerError struct{ ObserverError }
type RestError struct{ ObserverError }
type ConfigurationError struct{ ObserverError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewAuthenticationMissing(message string) *AuthenticationMissingError {
	return &AuthenticationMissingError{ObserverError{Message: message}}
}

func NewTransportError(message string, cause error) *TransportError {
	return &TransportError{ObserverError{Message: message, Cause: cause}}
}

func NewDecodeError(message string, cause error) *DecodeError {
	return &DecodeError{ObserverError{Message: message, Cause: cause}}
}

func NewListenerError(message string, cause error) *ListenerError {
	return &ListenerError{ObserverError{Message: message, Cause: cause}}
}

func NewRestError(message string, cause error) *RestError {
	return &RestError{ObserverError{Message: message, Cause: cause}}
}

func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{ObserverError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Classification helpers
// -----------------------------------------------------------------------------

func IsAuthenticationMissing(err error) bool {
	var target *AuthenticationMissingError
	return errors.As(err, &target)
}

func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
