package store

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the type of CRM write a submission produced.
type Kind string

const (
	KindContact Kind = "contact"
	KindBooking Kind = "booking"
)

// Submission is one ledger row. EventID and ScheduledFor are set for
// bookings only.
type Submission struct {
	ID           int64
	Reference    uuid.UUID
	Kind         Kind
	Email        string
	ContactID    int64
	Action       string
	EventID      *int64
	ScheduledFor *time.Time
	CreatedAt    time.Time
}
