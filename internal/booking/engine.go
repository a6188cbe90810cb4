package booking

import (
	"context"
	"time"
)

// Reason explains why a slot cannot be booked.
type Reason string

const (
	ReasonPast         Reason = "past"
	ReasonOccupied     Reason = "occupied"
	ReasonBuffer       Reason = "buffer"
	ReasonOutsideHours Reason = "outside_hours"
)

// Slot is one candidate meeting time in the policy zone.
type Slot struct {
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
	Reason    Reason `json:"reason,omitempty"`

	startsAt time.Time
}

// StartsAt returns the slot start as an absolute time.
func (s Slot) StartsAt() time.Time { return s.startsAt }

// Metadata summarises a slot grid.
type Metadata struct {
	Timezone       string `json:"timezone"`
	BusinessHours  Hours  `json:"businessHours"`
	TotalSlots     int    `json:"totalSlots"`
	AvailableSlots int    `json:"availableSlots"`
	OccupiedSlots  int    `json:"occupiedSlots"`
	Duration       int    `json:"duration"`
}

// Availability is the grid for one date.
type Availability struct {
	Date     string   `json:"date"`
	Slots    []Slot   `json:"slots"`
	Metadata Metadata `json:"metadata"`
}

// Engine computes slot availability from a policy and the events already in
// the calendar.
type Engine struct {
	policy *Policy
	events EventSource
	now    func() time.Time
}

// NewEngine returns an Engine reading busy times from events.
func NewEngine(policy *Policy, events EventSource) *Engine {
	return &Engine{policy: policy, events: events, now: time.Now}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() *Policy { return e.policy }

// Slots builds the grid for the local day containing date. Slots start every
// SlotInterval minutes from opening time and last minutes; a slot that would
// end after closing time is not generated. A closed day yields no slots.
//
// Each slot gets at most one reason, checked in order: past, occupied,
// buffer, outside_hours.
func (e *Engine) Slots(ctx context.Context, date time.Time, minutes int) (Availability, error) {
	p := e.policy
	loc := p.Location()
	date = date.In(loc)
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Second)

	out := Availability{
		Date:  dayStart.Format(dateLayout),
		Slots: []Slot{},
		Metadata: Metadata{
			Timezone: p.Timezone,
			Duration: minutes,
		},
	}

	w := p.windows[dayStart.Weekday()]
	if w == nil {
		return out, nil
	}
	out.Metadata.BusinessHours = w.hours

	busy, err := e.events.EventsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return Availability{}, err
	}

	now := e.now()
	length := time.Duration(minutes) * time.Minute
	buffer := time.Duration(p.BufferMinutes) * time.Minute
	opens := time.Date(y, m, d, 0, w.open, 0, 0, loc)
	closes := time.Date(y, m, d, 0, w.close, 0, 0, loc)

	for offset := w.open; offset+minutes <= w.close; offset += p.SlotInterval {
		start := time.Date(y, m, d, 0, offset, 0, 0, loc)
		end := start.Add(length)
		slot := Slot{
			Date:     out.Date,
			Start:    start.Format(clockLayout),
			End:      end.Format(clockLayout),
			startsAt: start,
		}
		slot.Reason = classify(start, end, now, opens, closes, busy, buffer)
		slot.Available = slot.Reason == ""
		out.Slots = append(out.Slots, slot)

		out.Metadata.TotalSlots++
		if slot.Available {
			out.Metadata.AvailableSlots++
		} else {
			out.Metadata.OccupiedSlots++
		}
	}
	return out, nil
}

// SlotAt classifies the single interval [start, start+minutes) against the
// live calendar, the same way Slots classifies grid entries. start does not
// have to fall on the grid.
func (e *Engine) SlotAt(ctx context.Context, start time.Time, minutes int) (Slot, error) {
	p := e.policy
	loc := p.Location()
	start = start.In(loc)
	y, m, d := start.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := start.Add(time.Duration(minutes) * time.Minute)

	slot := Slot{
		Date:     dayStart.Format(dateLayout),
		Start:    start.Format(clockLayout),
		End:      end.Format(clockLayout),
		startsAt: start,
	}
	w := p.windows[dayStart.Weekday()]
	if w == nil {
		slot.Reason = ReasonOutsideHours
		return slot, nil
	}

	busy, err := e.events.EventsBetween(ctx, dayStart, time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Second))
	if err != nil {
		return Slot{}, err
	}
	opens := time.Date(y, m, d, 0, w.open, 0, 0, loc)
	closes := time.Date(y, m, d, 0, w.close, 0, 0, loc)
	slot.Reason = classify(start, end, e.now(), opens, closes, busy, time.Duration(p.BufferMinutes)*time.Minute)
	slot.Available = slot.Reason == ""
	return slot, nil
}

func classify(start, end, now, opens, closes time.Time, busy []Busy, buffer time.Duration) Reason {
	if start.Before(now) {
		return ReasonPast
	}
	for _, b := range busy {
		if overlaps(start, end, b.Start, b.Stop) {
			return ReasonOccupied
		}
	}
	if buffer > 0 {
		for _, b := range busy {
			if overlaps(start, end, b.Start.Add(-buffer), b.Start) || overlaps(start, end, b.Stop, b.Stop.Add(buffer)) {
				return ReasonBuffer
			}
		}
	}
	if start.Before(opens) || end.After(closes) {
		return ReasonOutsideHours
	}
	return ""
}

// overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
