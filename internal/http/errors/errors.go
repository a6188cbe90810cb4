package errors

import (
	"encoding/json"
	stderrors "errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Boundary error codes. Codes raised below the HTTP layer (CONFIG_ERROR,
// AUTH_FAILED, ODOO_FAULT, CONNECTION_ERROR, TIMEOUT, VALIDATION_ERROR,
// INVALID_DATETIME) come from the error values themselves through Code().
// ODOO_FAULT is client class: Odoo's message is passed through as is.
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeMissingFields   = "MISSING_FIELDS"
	CodeInvalidEmail    = "INVALID_EMAIL"
	CodeInvalidPhone    = "INVALID_PHONE"
	CodeInvalidDatetime = "INVALID_DATETIME"
	CodeValidation      = "VALIDATION_ERROR"
	CodeSlotUnavailable = "SLOT_UNAVAILABLE"
	CodeTooFast         = "TOO_FAST"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// Envelope is the body of every JSON API response.
type Envelope struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Error   *Body `json:"error,omitempty"`
}

// Body describes a failed request.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error is an error raised by a handler with a client-facing code.
type Error struct {
	code    string
	Message string
	Details any
	Err     error
}

// New returns an Error with the given code and client message.
func New(code, message string) *Error {
	return &Error{code: code, Message: message}
}

// WithDetails attaches structured details shown to the client.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Wrap records the underlying cause. The cause is logged, never sent.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Code() string { return e.code }

func (e *Error) Unwrap() error { return e.Err }

type coder interface {
	Code() string
}

// messager is implemented by errors whose client message differs from
// Error(), such as CRM faults.
type messager interface {
	Message() string
}

// CodeOf returns the code carried by err or anything it wraps, or
// INTERNAL_ERROR.
func CodeOf(err error) string {
	var c coder
	if stderrors.As(err, &c) {
		if code := c.Code(); code != "" {
			return code
		}
	}
	return CodeInternal
}

// Status maps an error code to its HTTP status.
func Status(code string) int {
	switch code {
	case CodeInvalidJSON, CodeMissingFields, CodeInvalidEmail, CodeInvalidPhone,
		CodeInvalidDatetime, CodeValidation, "ODOO_FAULT":
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSlotUnavailable:
		return http.StatusConflict
	case CodeTooFast, CodeRateLimited:
		return http.StatusTooManyRequests
	case "CONNECTION_ERROR":
		return http.StatusBadGateway
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func genericMessage(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "the CRM could not complete the request"
	case http.StatusGatewayTimeout:
		return "the CRM did not respond in time"
	default:
		return "internal server error"
	}
}

// WriteJSON writes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] encode response: %v", err)
	}
}

// OK writes a successful envelope around data.
func OK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Write classifies err, logs it with the request ID, and writes the error
// envelope. Server-class errors get a generic message; client-class errors
// pass their message through.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	status := Status(code)
	body := &Body{Code: code}

	if status >= http.StatusInternalServerError {
		LogError(r, code, err)
		body.Message = genericMessage(status)
	} else {
		LogWarn(r, code, err)
		body.Message = err.Error()
		var e *Error
		var m messager
		if stderrors.As(err, &e) {
			body.Message = e.Message
			body.Details = e.Details
		} else if stderrors.As(err, &m) {
			body.Message = m.Message()
		}
	}
	WriteJSON(w, status, Envelope{Success: false, Error: body})
}

// InternalError logs err and writes a generic 500 envelope.
func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	Write(w, r, New(CodeInternal, message).Wrap(err))
}

func LogError(r *http.Request, message string, err error) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[ERROR] RequestID=%s: %s: %v", requestID, message, err)
	} else {
		log.Printf("[ERROR] %s: %v", message, err)
	}
}

func LogWarn(r *http.Request, message string, err error) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[WARN] RequestID=%s: %s: %v", requestID, message, err)
	} else {
		log.Printf("[WARN] %s: %v", message, err)
	}
}

func LogInfo(r *http.Request, message string) {
	requestID := middleware.GetReqID(r.Context())

	if requestID != "" {
		log.Printf("[INFO] RequestID=%s: %s", requestID, message)
	} else {
		log.Printf("[INFO] %s", message)
	}
}
