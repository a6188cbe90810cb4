// Package api implements the JSON endpoints the website calls: contact
// submission, slot queries, meeting scheduling, and the CRM status page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"gitea.jw6.us/james/odoolink/internal/auth"
	"gitea.jw6.us/james/odoolink/internal/booking"
	"gitea.jw6.us/james/odoolink/internal/config"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
	"gitea.jw6.us/james/odoolink/internal/odoo"
	"gitea.jw6.us/james/odoolink/internal/store"
)

const maxBodyBytes = 64 << 10

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	bracketPattern = regexp.MustCompile(`[<>]`)
)

// Handler serves the API. The Odoo connection is resolved from env on every
// request; nothing CRM-related is cached between requests.
type Handler struct {
	env       config.Env
	policy    *booking.Policy
	ledger    *store.Store
	operators *auth.Operators
	now       func() time.Time
	options   []odoo.Option
}

// NewHandler returns a Handler. ledger and operators may be nil.
func NewHandler(env config.Env, policy *booking.Policy, ledger *store.Store, operators *auth.Operators) *Handler {
	if policy == nil {
		policy = booking.DefaultPolicy()
	}
	return &Handler{
		env:       env,
		policy:    policy,
		ledger:    ledger,
		operators: operators,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// SetClientOptions applies opts to every Odoo client the handler builds.
func (h *Handler) SetClientOptions(opts ...odoo.Option) { h.options = opts }

func (h *Handler) client(opts ...odoo.Option) (*odoo.Client, error) {
	conn, err := config.LoadConnection(h.env)
	if err != nil {
		return nil, err
	}
	all := make([]odoo.Option, 0, len(h.options)+len(opts))
	all = append(append(all, h.options...), opts...)
	return odoo.NewClient(conn, all...), nil
}

func (h *Handler) record(r *http.Request, sub *store.Submission) {
	if h.ledger == nil {
		return
	}
	// The CRM write already succeeded; a ledger failure must not fail the
	// request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.ledger.Submissions.Record(ctx, sub); err != nil {
		httperrors.LogError(r, "record submission", err)
	}
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return httperrors.New(httperrors.CodeInvalidJSON, "request body must be a JSON object").Wrap(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return httperrors.New(httperrors.CodeInvalidJSON, "request body must contain a single JSON object")
	}
	return nil
}

// sanitize strips markup from free text.
func sanitize(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = bracketPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func missingFields(fields ...[2]string) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f[1]) == "" {
			missing = append(missing, f[0])
		}
	}
	return missing
}

func missingErr(missing []string) error {
	return httperrors.New(httperrors.CodeMissingFields, "missing required fields: "+strings.Join(missing, ", ")).
		WithDetails(map[string]any{"missingFields": missing})
}

// Preflight answers CORS preflight requests for the public POST endpoints.
func Preflight(w http.ResponseWriter, r *http.Request) {
	allowCORS(w)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// CORS adds the allow-origin header to public endpoint responses.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowCORS(w)
		next.ServeHTTP(w, r)
	})
}

func allowCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}
