package odoo

import (
	"context"
	"fmt"
	"time"

	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

// Error codes shared by every layer above the client.
const (
	CodeAuthFailed      = "AUTH_FAILED"
	CodeFault           = "ODOO_FAULT"
	CodeConnection      = "CONNECTION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeValidation      = "VALIDATION_ERROR"
	CodeConfig          = "CONFIG_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	credentialsCheckMsg = "check ODOO_USERNAME, ODOO_PASSWORD and ODOO_DB"
)

// AuthenticationError means Odoo rejected the credentials: authenticate
// returned no user id.
type AuthenticationError struct{}

func (e *AuthenticationError) Error() string {
	return "odoo authentication failed: " + credentialsCheckMsg
}

func (e *AuthenticationError) Code() string { return CodeAuthFailed }

// FaultError carries an application error reported by Odoo.
type FaultError struct {
	Fault *xmlrpc.Fault
}

func (e *FaultError) Error() string {
	return "odoo fault: " + e.Fault.Message
}

// Message is Odoo's faultString, unmodified.
func (e *FaultError) Message() string { return e.Fault.Message }

func (e *FaultError) Code() string { return CodeFault }

func (e *FaultError) Unwrap() error { return e.Fault }

// TransportError is any HTTP-level failure other than a timeout. Status is
// set for non-2xx responses; Err for network failures.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("odoo %s: unexpected HTTP status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("odoo %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Code() string { return CodeConnection }

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means the call did not complete within the configured timeout.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("odoo %s: request timed out after %s", e.Endpoint, e.Timeout)
}

func (e *TimeoutError) Code() string { return CodeTimeout }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ValidationError rejects caller input before any network call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Code() string { return CodeValidation }
