package booking

import (
	"context"
	"fmt"
	"time"

	"gitea.jw6.us/james/odoolink/internal/odoo"
	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

// Busy is an existing calendar event that blocks slots.
type Busy struct {
	ID     int64     `json:"id"`
	Title  string    `json:"name"`
	Start  time.Time `json:"start"`
	Stop   time.Time `json:"stop"`
	AllDay bool      `json:"allday"`
}

// EventSource returns the events overlapping [from, to].
type EventSource interface {
	EventsBetween(ctx context.Context, from, to time.Time) ([]Busy, error)
}

// Executor runs ORM methods. *odoo.Client implements it.
type Executor interface {
	Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (xmlrpc.Value, error)
}

// OdooEvents reads calendar.event records.
type OdooEvents struct {
	exec Executor
	loc  *time.Location
}

// NewOdooEvents returns an EventSource backed by Odoo. All-day events are
// expanded to whole days in loc.
func NewOdooEvents(exec Executor, loc *time.Location) *OdooEvents {
	if loc == nil {
		loc = time.UTC
	}
	return &OdooEvents{exec: exec, loc: loc}
}

var eventFields = []any{"id", "name", "start", "stop", "allday", "start_date", "stop_date"}

// EventsBetween runs one search_read for events with start <= to and
// stop >= from.
func (o *OdooEvents) EventsBetween(ctx context.Context, from, to time.Time) ([]Busy, error) {
	domain := []any{
		[]any{"start", "<=", odoo.FormatServerTime(to)},
		[]any{"stop", ">=", odoo.FormatServerTime(from)},
	}
	result, err := o.exec.Execute(ctx, "calendar.event", "search_read",
		[]any{domain},
		map[string]any{"fields": eventFields, "order": "start asc"})
	if err != nil {
		return nil, fmt.Errorf("search calendar events: %w", err)
	}

	var events []Busy
	for _, rec := range odoo.Records(result) {
		b, ok := o.busy(rec)
		if !ok {
			continue
		}
		events = append(events, b)
	}
	return events, nil
}

func (o *OdooEvents) busy(rec xmlrpc.Value) (Busy, bool) {
	b := Busy{
		ID:     odoo.Int(rec, "id"),
		Title:  odoo.String(rec, "name"),
		AllDay: odoo.Bool(rec, "allday"),
	}
	start, okStart := odoo.Time(rec, "start")
	stop, okStop := odoo.Time(rec, "stop")

	if b.AllDay {
		first, ok := o.day(rec, "start_date", start, okStart)
		if !ok {
			return Busy{}, false
		}
		last, ok := o.day(rec, "stop_date", stop, okStop)
		if !ok {
			last = first
		}
		b.Start = first
		b.Stop = last.AddDate(0, 0, 1)
		return b, true
	}

	if !okStart || !okStop || !stop.After(start) {
		return Busy{}, false
	}
	b.Start, b.Stop = start, stop
	return b, true
}

// day resolves an all-day boundary to local midnight, preferring the date
// field Odoo keeps for all-day events.
func (o *OdooEvents) day(rec xmlrpc.Value, field string, fallback time.Time, ok bool) (time.Time, bool) {
	if s := odoo.String(rec, field); s != "" {
		if d, err := time.ParseInLocation(dateLayout, s, o.loc); err == nil {
			return d, true
		}
	}
	if !ok {
		return time.Time{}, false
	}
	y, m, d := fallback.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, o.loc), true
}
