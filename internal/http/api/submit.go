package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/contact"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
	"gitea.jw6.us/james/odoolink/internal/store"
)

// minFillTime is how long a human needs at least to fill the contact form.
const minFillTime = 3 * time.Second

type submitRequest struct {
	contact.Form
	Honeypot string `json:"honeypot"`
	// Timestamp is when the form was rendered, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// SubmitContact handles POST /api/contact/submit.
func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	if strings.TrimSpace(req.Honeypot) != "" {
		httperrors.LogInfo(r, "contact: honeypot filled, dropping submission")
		httperrors.OK(w, map[string]any{"received": true})
		return
	}
	if req.Timestamp > 0 {
		if elapsed := h.now().Sub(time.UnixMilli(req.Timestamp)); elapsed < minFillTime {
			httperrors.Write(w, r, httperrors.New(httperrors.CodeTooFast, "please wait a few seconds before submitting"))
			return
		}
	}

	f := req.Form
	if missing := missingFields([2]string{"name", f.Name}, [2]string{"email", f.Email}, [2]string{"phone", f.Phone}); len(missing) > 0 {
		httperrors.Write(w, r, missingErr(missing))
		return
	}
	if !contact.ValidEmail(f.Email) {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeInvalidEmail, "email address is not valid"))
		return
	}
	f = sanitizeForm(f)

	client, err := h.client()
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	svc := contact.NewService(client, client.Connection())
	svc.SetClock(h.now)

	result, err := svc.Upsert(r.Context(), f)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}

	h.record(r, &store.Submission{
		Reference: uuid.New(),
		Kind:      store.KindContact,
		Email:     f.Email,
		ContactID: result.ContactID,
		Action:    string(result.Action),
	})
	httperrors.OK(w, result)
}

// ContactStatus handles GET /api/contact/submit. Operators also see which
// variables are missing.
func (h *Handler) ContactStatus(w http.ResponseWriter, r *http.Request) {
	missing := config.MissingConnectionVars(h.env)
	data := map[string]any{
		"configured": len(missing) == 0,
	}
	if len(missing) > 0 && h.operators.IsOperator(r) {
		data["missing"] = missing
	}
	noStore(w)
	httperrors.OK(w, data)
}

func sanitizeForm(f contact.Form) contact.Form {
	f.Name = sanitize(f.Name)
	f.Email = contact.NormalizeEmail(f.Email)
	f.Phone = sanitize(f.Phone)
	f.Locale = sanitize(f.Locale)
	f.Source = sanitize(f.Source)
	f.Page = sanitize(f.Page)
	f.UTMSource = sanitize(f.UTMSource)
	f.UTMMedium = sanitize(f.UTMMedium)
	f.UTMCampaign = sanitize(f.UTMCampaign)
	f.UTMContent = sanitize(f.UTMContent)
	f.UTMTerm = sanitize(f.UTMTerm)
	return f
}
