package contact

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/odoo"
	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

const (
	partnerModel  = "res.partner"
	categoryModel = "res.partner.category"
	eventModel    = "calendar.event"

	searchLimit     = 10
	defaultLocation = "Virtual Meeting"
)

// Action tells the caller which branch of an upsert ran.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionExisting Action = "existing"
)

// Executor runs ORM methods. *odoo.Client implements it.
type Executor interface {
	Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (xmlrpc.Value, error)
}

// Contact is a res.partner record as returned by FindByEmail.
type Contact struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Lang      string
	Comment   string
	CreatedAt time.Time
	// SalespersonID and Salesperson come from user_id; zero when unassigned.
	SalespersonID int64
	Salesperson   string
}

// UpsertResult reports the contact id and the branch taken.
type UpsertResult struct {
	ContactID int64  `json:"contactId"`
	Action    Action `json:"action"`
}

// Event describes a calendar.event to create.
type Event struct {
	Title             string
	Start             time.Time
	Stop              time.Time
	ContactID         int64
	ResponsibleUserID int64
	Description       string
	DurationHours     float64
	Location          string
}

// Service manages contacts and meetings in Odoo.
//
// Upsert is find-then-write over separate RPC calls. Two concurrent
// submissions for a new email can both miss in FindByEmail and create two
// contacts; Odoo offers no unique constraint on email to prevent it.
type Service struct {
	exec        Executor
	phoneField  string
	salesUserID int64
	defaultTag  string
	now         func() time.Time
}

// NewService builds a Service on exec, taking field names and defaults from
// conn.
func NewService(exec Executor, conn config.Connection) *Service {
	s := &Service{
		exec:        exec,
		phoneField:  conn.PhoneField,
		salesUserID: conn.SalesUserID,
		defaultTag:  conn.DefaultTag,
		now:         time.Now,
	}
	if s.phoneField == "" {
		s.phoneField = config.DefaultPhoneField
	}
	if s.salesUserID <= 0 {
		s.salesUserID = config.DefaultSalesUserID
	}
	if s.defaultTag == "" {
		s.defaultTag = config.DefaultTag
	}
	return s
}

// SetClock replaces the time source used for submission timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// FindOrCreateTag returns the id of the partner category called name,
// creating it when it does not exist.
func (s *Service) FindOrCreateTag(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &odoo.ValidationError{Field: "tag", Message: "is required"}
	}

	found, err := s.exec.Execute(ctx, categoryModel, "search",
		[]any{[]any{[]any{"name", "=", name}}}, map[string]any{"limit": 1})
	if err != nil {
		return 0, fmt.Errorf("search tag: %w", err)
	}
	if ids := odoo.IDs(found); len(ids) > 0 {
		return ids[0], nil
	}

	created, err := s.exec.Execute(ctx, categoryModel, "create", []any{map[string]any{"name": name}}, nil)
	if err != nil {
		return 0, fmt.Errorf("create tag: %w", err)
	}
	id, err := odoo.CreatedID(created)
	if err != nil {
		return 0, fmt.Errorf("create tag: %w", err)
	}
	log.Printf("[INFO] contact: created partner category %d", id)
	return id, nil
}

// FindByEmail returns the contacts whose email matches, in a single
// search_read capped at ten records.
func (s *Service) FindByEmail(ctx context.Context, email string) ([]Contact, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, &odoo.ValidationError{Field: "email", Message: "is required"}
	}

	fields := []any{"id", "name", "email", s.phoneField, "lang", "comment", "create_date", "user_id"}
	result, err := s.exec.Execute(ctx, partnerModel, "search_read",
		[]any{[]any{[]any{"email", "=", email}}},
		map[string]any{"fields": fields, "limit": searchLimit})
	if err != nil {
		return nil, fmt.Errorf("search contact: %w", err)
	}

	var contacts []Contact
	for _, rec := range odoo.Records(result) {
		c := Contact{
			ID:      odoo.Int(rec, "id"),
			Name:    odoo.String(rec, "name"),
			Email:   odoo.String(rec, "email"),
			Phone:   odoo.String(rec, s.phoneField),
			Lang:    odoo.String(rec, "lang"),
			Comment: odoo.String(rec, "comment"),
		}
		c.CreatedAt, _ = odoo.Time(rec, "create_date")
		c.SalespersonID, c.Salesperson = odoo.Many2One(rec, "user_id")
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// Upsert creates the contact for f, or appends f to the history of the
// existing contact with the same email.
func (s *Service) Upsert(ctx context.Context, f Form) (UpsertResult, error) {
	if err := f.Validate(); err != nil {
		return UpsertResult{}, err
	}

	existing, err := s.FindByEmail(ctx, f.Email)
	if err != nil {
		return UpsertResult{}, err
	}
	if len(existing) > 0 {
		c := existing[0]
		if err := s.appendSubmission(ctx, c, f); err != nil {
			return UpsertResult{}, err
		}
		return UpsertResult{ContactID: c.ID, Action: ActionUpdated}, nil
	}

	id, err := s.create(ctx, f)
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{ContactID: id, Action: ActionCreated}, nil
}

// FindOrCreate returns the existing contact for f's email untouched, or
// creates one. It is used where a submission should not grow the history.
func (s *Service) FindOrCreate(ctx context.Context, f Form) (UpsertResult, error) {
	if err := f.Validate(); err != nil {
		return UpsertResult{}, err
	}

	existing, err := s.FindByEmail(ctx, f.Email)
	if err != nil {
		return UpsertResult{}, err
	}
	if len(existing) > 0 {
		return UpsertResult{ContactID: existing[0].ID, Action: ActionExisting}, nil
	}

	id, err := s.create(ctx, f)
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{ContactID: id, Action: ActionCreated}, nil
}

func (s *Service) appendSubmission(ctx context.Context, c Contact, f Form) error {
	h := ParseHistory(c.Comment)
	h.Append(f.submission(s.now()))
	comment, err := h.Encode()
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	vals := map[string]any{
		s.phoneField: strings.TrimSpace(f.Phone),
		"comment":    comment,
	}
	if _, err := s.exec.Execute(ctx, partnerModel, "write", []any{[]any{c.ID}, vals}, nil); err != nil {
		return fmt.Errorf("update contact %d: %w", c.ID, err)
	}
	log.Printf("[INFO] contact: updated partner %d (%d updates)", c.ID, len(h.Updates))
	return nil
}

func (s *Service) create(ctx context.Context, f Form) (int64, error) {
	// A tag created here survives even if the partner create below fails.
	tagID, err := s.FindOrCreateTag(ctx, s.defaultTag)
	if err != nil {
		return 0, err
	}

	comment, err := f.submission(s.now()).Encode()
	if err != nil {
		return 0, fmt.Errorf("encode submission: %w", err)
	}

	vals := map[string]any{
		"name":        strings.TrimSpace(f.Name),
		"email":       NormalizeEmail(f.Email),
		s.phoneField:  strings.TrimSpace(f.Phone),
		"lang":        OdooLang(f.locale()),
		"type":        "contact",
		"is_company":  false,
		"comment":     comment,
		"category_id": odoo.Replace(tagID),
	}
	created, err := s.exec.Execute(ctx, partnerModel, "create", []any{vals}, nil)
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	id, err := odoo.CreatedID(created)
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	log.Printf("[INFO] contact: created partner %d", id)
	return id, nil
}

// CreateCalendarEvent creates a meeting attended by e.ContactID and owned by
// e.ResponsibleUserID, or the configured sales user when unset.
func (s *Service) CreateCalendarEvent(ctx context.Context, e Event) (int64, error) {
	if strings.TrimSpace(e.Title) == "" {
		return 0, &odoo.ValidationError{Field: "title", Message: "is required"}
	}
	if e.ContactID <= 0 {
		return 0, &odoo.ValidationError{Field: "contactId", Message: "must be positive"}
	}
	if !e.Stop.After(e.Start) {
		return 0, &odoo.ValidationError{Field: "stop", Message: "must be after start"}
	}

	userID := e.ResponsibleUserID
	if userID <= 0 {
		userID = s.salesUserID
	}
	duration := e.DurationHours
	if duration <= 0 {
		duration = 1.0
	}
	location := strings.TrimSpace(e.Location)
	if location == "" {
		location = defaultLocation
	}

	vals := map[string]any{
		"name":        e.Title,
		"start":       odoo.FormatServerTime(e.Start),
		"stop":        odoo.FormatServerTime(e.Stop),
		"allday":      false,
		"duration":    duration,
		"partner_ids": odoo.Replace(e.ContactID),
		"user_id":     userID,
		"description": e.Description,
		"location":    location,
	}
	created, err := s.exec.Execute(ctx, eventModel, "create", []any{vals}, nil)
	if err != nil {
		return 0, fmt.Errorf("create calendar event: %w", err)
	}
	id, err := odoo.CreatedID(created)
	if err != nil {
		return 0, fmt.Errorf("create calendar event: %w", err)
	}
	log.Printf("[INFO] contact: created calendar event %d for partner %d", id, e.ContactID)
	return id, nil
}
