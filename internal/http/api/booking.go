package api

import (
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitea.jw6.us/james/odoolink/internal/booking"
	"gitea.jw6.us/james/odoolink/internal/contact"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
	"gitea.jw6.us/james/odoolink/internal/store"
)

var (
	phoneNoise   = regexp.MustCompile(`[\s\-().]`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{7,14}$`)
)

const (
	scheduleSource = "contact_page"
	schedulePage   = "/contact"
)

// Slots handles GET /api/booking/slots?date=YYYY-MM-DD&duration=30.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minutes, err := h.duration(q.Get("duration"))
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	day, err := h.policy.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	if err := h.policy.CheckDate(day, h.now()); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	client, err := h.client()
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	engine := booking.NewEngine(h.policy, booking.NewOdooEvents(client, h.policy.Location()))
	engine.SetClock(h.now)

	avail, err := engine.Slots(r.Context(), day, minutes)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	noStore(w)
	httperrors.WriteJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		booking.Availability
	}{true, avail})
}

func (h *Handler) duration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.policy.DefaultDuration, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || !h.policy.ValidDuration(minutes) {
		return 0, &booking.DateError{Err: fmt.Errorf("%w: must be between %d and %d minutes",
			booking.ErrInvalidDuration, h.policy.MinDuration, h.policy.MaxDuration)}
	}
	return minutes, nil
}

type scheduleRequest struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	Topic    string `json:"topic"`
	Notes    string `json:"notes"`
	Locale   string `json:"locale"`
	Source   string `json:"source"`
	Page     string `json:"page"`
}

type scheduleResult struct {
	EventID      int64     `json:"eventId"`
	ContactID    int64     `json:"contactId"`
	ScheduledFor time.Time `json:"scheduledFor"`
	Reference    uuid.UUID `json:"reference"`
	// Invite is an iCalendar request for the visitor's own calendar.
	Invite string `json:"invite"`
}

// Schedule handles POST /api/booking/schedule. The requested slot is checked
// against the live calendar before the contact and event are written.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	if missing := missingFields(
		[2]string{"name", req.Name},
		[2]string{"email", req.Email},
		[2]string{"phone", req.Phone},
		[2]string{"date", req.Date},
		[2]string{"time", req.Time},
	); len(missing) > 0 {
		httperrors.Write(w, r, missingErr(missing))
		return
	}
	if !contact.ValidEmail(req.Email) {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeInvalidEmail, "email address is not valid"))
		return
	}
	phone, ok := cleanPhone(req.Phone)
	if !ok {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeInvalidPhone, "phone number must have 8 to 15 digits"))
		return
	}

	minutes := req.Duration
	if minutes == 0 {
		minutes = h.policy.DefaultDuration
	}
	start, err := h.policy.ParseStart(strings.TrimSpace(req.Date), strings.TrimSpace(req.Time))
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	now := h.now()
	if err := h.policy.CheckStart(start, minutes, now); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	client, err := h.client()
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	engine := booking.NewEngine(h.policy, booking.NewOdooEvents(client, h.policy.Location()))
	engine.SetClock(h.now)

	slot, err := engine.SlotAt(r.Context(), start, minutes)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	if !slot.Available {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeSlotUnavailable, "the selected time is no longer available").
			WithDetails(map[string]any{"reason": slot.Reason}))
		return
	}

	form := contact.Form{
		Name:   sanitize(req.Name),
		Email:  contact.NormalizeEmail(req.Email),
		Phone:  phone,
		Locale: sanitize(req.Locale),
		Source: orDefault(sanitize(req.Source), scheduleSource),
		Page:   orDefault(sanitize(req.Page), schedulePage),
	}
	svc := contact.NewService(client, client.Connection())
	svc.SetClock(h.now)

	partner, err := svc.FindOrCreate(r.Context(), form)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}

	ref := uuid.New()
	company := sanitize(req.Company)
	title := meetingTitle(form.Name, company)
	description := meetingDescription(form, company, sanitize(req.Topic), sanitize(req.Notes), ref)
	stop := start.Add(time.Duration(minutes) * time.Minute)
	eventID, err := svc.CreateCalendarEvent(r.Context(), contact.Event{
		Title:         title,
		Start:         start,
		Stop:          stop,
		ContactID:     partner.ContactID,
		Description:   description,
		DurationHours: float64(minutes) / 60,
	})
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}

	scheduled := start.UTC()
	h.record(r, &store.Submission{
		Reference:    ref,
		Kind:         store.KindBooking,
		Email:        form.Email,
		ContactID:    partner.ContactID,
		Action:       string(partner.Action),
		EventID:      &eventID,
		ScheduledFor: &scheduled,
	})
	httperrors.LogInfo(r, fmt.Sprintf("booking: event %d for partner %d at %s", eventID, partner.ContactID, scheduled.Format(time.RFC3339)))
	httperrors.OK(w, scheduleResult{
		EventID:      eventID,
		ContactID:    partner.ContactID,
		ScheduledFor: scheduled,
		Reference:    ref,
		Invite: booking.Invite{
			UID:         ref.String() + "@odoolink",
			Summary:     title,
			Start:       start,
			Stop:        stop,
			Description: description,
			Attendee:    (&mail.Address{Name: form.Name, Address: form.Email}).String(),
		}.ICS(now),
	})
}

// cleanPhone strips separators and returns the number in +digits form.
func cleanPhone(raw string) (string, bool) {
	p := phoneNoise.ReplaceAllString(sanitize(raw), "")
	if !phonePattern.MatchString(p) {
		return "", false
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p, true
}

func meetingTitle(name, company string) string {
	if company == "" {
		return "Meeting: " + name
	}
	return "Meeting: " + name + " - " + company
}

func meetingDescription(f contact.Form, company, topic, notes string, ref uuid.UUID) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Contact", f.Name)
	line("Company", company)
	line("Email", f.Email)
	line("Phone", f.Phone)
	line("Topic", topic)
	line("Notes", notes)
	line("Origin", f.Source)
	line("Page", f.Page)
	line("Language", orDefault(f.Locale, "en"))
	line("Reference", ref.String())
	return strings.TrimRight(b.String(), "\n")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
