package api

import (
	"net/http"
	"time"

	"gitea.jw6.us/james/odoolink/internal/contact"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
)

// ContactReport is the body of GET /api/debug/contacts.
type ContactReport struct {
	Email    string          `json:"email"`
	Contacts []ContactRecord `json:"contacts"`
	// LedgerContacts is the number of distinct contact ids the ledger saw
	// written for Email; nil when the ledger is disabled.
	LedgerContacts *int `json:"ledgerContacts"`
	Duplicate      bool `json:"duplicate"`
}

// ContactRecord is one CRM contact with its submission history summarised.
type ContactRecord struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Phone         string         `json:"phone"`
	Lang          string         `json:"lang"`
	CreatedAt     time.Time      `json:"createdAt"`
	SalespersonID int64          `json:"salespersonId,omitempty"`
	Salesperson   string         `json:"salesperson,omitempty"`
	History       HistorySummary `json:"history"`
}

// HistorySummary describes the comment of a contact.
type HistorySummary struct {
	First      *contact.Submission `json:"first,omitempty"`
	Updates    int                 `json:"updates"`
	LastUpdate *contact.Submission `json:"lastUpdate,omitempty"`
}

// Contacts handles GET /api/debug/contacts?email= for operators. It lists the
// CRM contacts sharing an email and, with the ledger enabled, how many
// distinct contacts this service wrote for it, so duplicates left by
// concurrent first submissions can be found and merged.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	email := contact.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		httperrors.Write(w, r, missingErr([]string{"email"}))
		return
	}
	if !contact.ValidEmail(email) {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeInvalidEmail, "email address is not valid"))
		return
	}

	client, err := h.client()
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	found, err := contact.NewService(client, client.Connection()).FindByEmail(r.Context(), email)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}

	report := ContactReport{Email: email, Contacts: make([]ContactRecord, 0, len(found))}
	for _, c := range found {
		report.Contacts = append(report.Contacts, ContactRecord{
			ID:            c.ID,
			Name:          c.Name,
			Phone:         c.Phone,
			Lang:          c.Lang,
			CreatedAt:     c.CreatedAt,
			SalespersonID: c.SalespersonID,
			Salesperson:   c.Salesperson,
			History:       summarize(contact.ParseHistory(c.Comment)),
		})
	}

	if h.ledger != nil {
		n, err := h.ledger.Submissions.ContactsForEmail(r.Context(), email)
		if err != nil {
			httperrors.LogError(r, "count ledger contacts", err)
		} else {
			report.LedgerContacts = &n
		}
	}
	report.Duplicate = len(found) > 1 || (report.LedgerContacts != nil && *report.LedgerContacts > 1)

	noStore(w)
	httperrors.OK(w, report)
}

func summarize(hist contact.History) HistorySummary {
	sum := HistorySummary{Updates: len(hist.Updates)}
	if first, ok := hist.OriginalSubmission(); ok {
		sum.First = &first
	}
	if last, ok := hist.Update(len(hist.Updates) - 1); ok {
		sum.LastUpdate = &last
	}
	return sum
}
