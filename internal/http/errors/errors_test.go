package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/odoo"
	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestWriteStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"missing fields", New(CodeMissingFields, "missing required fields"), http.StatusBadRequest, CodeMissingFields, "missing required fields"},
		{"odoo validation", &odoo.ValidationError{Field: "email", Message: "is not a valid address"}, http.StatusBadRequest, "VALIDATION_ERROR", "email: is not a valid address"},
		{"slot taken", New(CodeSlotUnavailable, "slot is no longer available"), http.StatusConflict, CodeSlotUnavailable, "slot is no longer available"},
		{"too fast", New(CodeTooFast, "please wait"), http.StatusTooManyRequests, CodeTooFast, "please wait"},
		{"fault", &odoo.FaultError{Fault: &xmlrpc.Fault{Code: "1", Message: "Invalid field 'x_studio_celular' on model 'res.partner'"}}, http.StatusBadRequest, "ODOO_FAULT", "Invalid field 'x_studio_celular' on model 'res.partner'"},
		{"wrapped fault", fmt.Errorf("upsert contact: %w", &odoo.FaultError{Fault: &xmlrpc.Fault{Code: "2", Message: "Record does not exist"}}), http.StatusBadRequest, "ODOO_FAULT", "Record does not exist"},
		{"transport", &odoo.TransportError{Endpoint: "/xmlrpc/2/object", Err: fmt.Errorf("refused")}, http.StatusBadGateway, "CONNECTION_ERROR", "the CRM could not complete the request"},
		{"timeout", fmt.Errorf("upsert: %w", &odoo.TimeoutError{Endpoint: "/xmlrpc/2/object"}), http.StatusGatewayTimeout, "TIMEOUT", "the CRM did not respond in time"},
		{"auth", &odoo.AuthenticationError{}, http.StatusInternalServerError, "AUTH_FAILED", "internal server error"},
		{"config", &config.Error{Missing: []string{"ODOO_URL"}}, http.StatusInternalServerError, "CONFIG_ERROR", "internal server error"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Write(rec, httptest.NewRequest(http.MethodPost, "/api/contact/submit", nil), tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			env := decode(t, rec)
			if env.Success || env.Error == nil {
				t.Fatalf("expected error envelope, got %+v", env)
			}
			if env.Error.Code != tt.code || env.Error.Message != tt.message {
				t.Errorf("error = %+v, want %s %q", env.Error, tt.code, tt.message)
			}
		})
	}
}

func TestWriteDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := New(CodeMissingFields, "missing required fields").WithDetails([]string{"name", "phone"})
	Write(rec, httptest.NewRequest(http.MethodPost, "/", nil), err)

	env := decode(t, rec)
	details, ok := env.Error.Details.([]any)
	if !ok || len(details) != 2 || details[0] != "name" {
		t.Errorf("details = %#v", env.Error.Details)
	}
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]any{"contactId": 7})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	env := decode(t, rec)
	if !env.Success || env.Error != nil {
		t.Errorf("envelope = %+v", env)
	}
	if data, _ := env.Data.(map[string]any); data["contactId"] != float64(7) {
		t.Errorf("data = %#v", env.Data)
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("password=hunter2"), "record submission")

	env := decode(t, rec)
	if rec.Code != http.StatusInternalServerError || env.Error.Message != "internal server error" {
		t.Errorf("got %d %+v", rec.Code, env.Error)
	}
}
