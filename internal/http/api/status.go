package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitea.jw6.us/james/odoolink/internal/booking"
	"gitea.jw6.us/james/odoolink/internal/config"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
	"gitea.jw6.us/james/odoolink/internal/odoo"
)

const (
	statusTimeout     = 5 * time.Second
	degradedAfter     = 2 * time.Second
	statusOperational = "operational"
	statusDegraded    = "degraded"
	statusDown        = "down"
)

// ServiceStatus is the health of one upstream.
type ServiceStatus struct {
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Status       string         `json:"status"`
	ResponseTime int64          `json:"responseTime"`
	Message      string         `json:"message"`
	LastChecked  time.Time      `json:"lastChecked"`
	Details      map[string]any `json:"details,omitempty"`
	Error        *StatusError   `json:"error,omitempty"`
}

// StatusError describes why an upstream is down.
type StatusError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StatusReport is the body of GET /api/status/odoo.
type StatusReport struct {
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	ResponseTime int64           `json:"responseTime"`
	LastChecked  time.Time       `json:"lastChecked"`
	Services     []ServiceStatus `json:"services"`
}

// OdooStatus handles GET /api/status/odoo. It always answers 200; the state
// is in the body. Operators get usernames, uids and missing variable names.
func (h *Handler) OdooStatus(w http.ResponseWriter, r *http.Request) {
	started := h.now()
	operator := h.operators.IsOperator(r)
	svc := h.checkOdoo(r, operator)

	report := StatusReport{
		Name:         "Odoo Integrations",
		Status:       svc.Status,
		ResponseTime: h.now().Sub(started).Milliseconds(),
		LastChecked:  svc.LastChecked,
		Services:     []ServiceStatus{svc},
	}
	noStore(w)
	httperrors.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) checkOdoo(r *http.Request, operator bool) ServiceStatus {
	svc := ServiceStatus{Name: "Odoo CRM", Slug: "odoo-crm"}

	if missing := config.MissingConnectionVars(h.env); len(missing) > 0 {
		svc.Status = statusDown
		svc.Message = "Configuration missing"
		svc.LastChecked = h.now().UTC()
		svc.Error = &StatusError{Message: "missing environment variables", Code: odoo.CodeConfig}
		if operator {
			svc.Error.Message = "missing environment variables: " + strings.Join(missing, ", ")
			svc.Details = map[string]any{"missingVars": missing}
		}
		return svc
	}

	client, err := h.client(odoo.WithTimeout(statusTimeout))
	if err != nil {
		svc.Status = statusDown
		svc.Message = "Configuration invalid"
		svc.LastChecked = h.now().UTC()
		svc.Error = &StatusError{Message: "invalid configuration", Code: httperrors.CodeOf(err)}
		if operator {
			svc.Error.Message = err.Error()
		}
		return svc
	}
	conn := client.Connection()

	start := h.now()
	uid, err := client.Authenticate(r.Context())
	elapsed := h.now().Sub(start)
	svc.ResponseTime = elapsed.Milliseconds()
	svc.LastChecked = h.now().UTC()

	if err != nil {
		httperrors.LogWarn(r, "status: odoo check failed", err)
		svc.Status = statusDown
		svc.Message = "Could not authenticate via XML-RPC"
		svc.Error = &StatusError{Message: "authentication check failed", Code: httperrors.CodeOf(err)}
		if operator {
			svc.Error.Message = err.Error()
		}
		return svc
	}

	svc.Status = statusOperational
	svc.Message = "Authenticated successfully via XML-RPC"
	if elapsed >= degradedAfter {
		svc.Status = statusDegraded
		svc.Message = "Authenticated but response was slow"
	}
	svc.Details = map[string]any{
		"host":     hostOf(conn.URL),
		"database": conn.Database,
	}
	if operator {
		svc.Details["url"] = conn.URL
		svc.Details["username"] = conn.Username
		svc.Details["uid"] = uid
		svc.Details["authTime"] = elapsed.String()
	}
	return svc
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// CalendarEvents handles GET /api/debug/calendar-events?date=YYYY-MM-DD for
// operators: the raw events the slot engine sees for that local day.
func (h *Handler) CalendarEvents(w http.ResponseWriter, r *http.Request) {
	day := h.now()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := h.policy.ParseDate(raw)
		if err != nil {
			httperrors.Write(w, r, err)
			return
		}
		day = d
	}
	loc := h.policy.Location()
	day = day.In(loc)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1).Add(-time.Second)

	client, err := h.client()
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	events, err := booking.NewOdooEvents(client, loc).EventsBetween(r.Context(), from, to)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	if events == nil {
		events = []booking.Busy{}
	}
	noStore(w)
	httperrors.OK(w, map[string]any{
		"date":     from.Format("2006-01-02"),
		"timezone": loc.String(),
		"from":     from,
		"to":       to,
		"count":    len(events),
		"events":   events,
	})
}
