package booking

import (
	"errors"
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

var (
	ErrInvalidDate        = errors.New("invalid date provided")
	ErrInvalidTime        = errors.New("invalid time provided")
	ErrPastDate           = errors.New("cannot book appointments in the past")
	ErrInsufficientNotice = errors.New("appointment requires more advance notice")
	ErrTooFarInAdvance    = errors.New("cannot book appointments that far in advance")
	ErrClosedDay          = errors.New("no business hours on the selected day")
	ErrOutsideHours       = errors.New("selected time is outside business hours")
	ErrInvalidDuration    = errors.New("invalid appointment duration")
)

// DateError rejects a requested date, time or duration at the boundary.
type DateError struct {
	Err error
}

func (e *DateError) Error() string { return e.Err.Error() }

func (e *DateError) Unwrap() error { return e.Err }

func (e *DateError) Code() string { return "INVALID_DATETIME" }

func dateErr(err error) error { return &DateError{Err: err} }

// ParseDate reads a YYYY-MM-DD date as local midnight in the policy zone.
func (p *Policy) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, p.Location())
	if err != nil {
		return time.Time{}, dateErr(ErrInvalidDate)
	}
	return d, nil
}

// ParseStart combines a YYYY-MM-DD date and an HH:MM time in the policy zone.
func (p *Policy) ParseStart(date, clock string) (time.Time, error) {
	d, err := p.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := time.Parse(clockLayout, clock)
	if err != nil || len(clock) != 5 {
		return time.Time{}, dateErr(ErrInvalidTime)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, p.Location()), nil
}

// CheckDate rejects days that cannot hold any booking: closed weekdays, days
// whose business hours end before the minimum notice, and days beyond the
// booking horizon.
func (p *Policy) CheckDate(day, now time.Time) error {
	loc := p.Location()
	day = day.In(loc)
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	w := p.windows[midnight.Weekday()]
	if w == nil {
		return dateErr(ErrClosedDay)
	}

	nowLocal := now.In(loc)
	ny, nm, nd := nowLocal.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	if midnight.Before(today) {
		return dateErr(ErrPastDate)
	}
	if midnight.After(today.AddDate(0, 0, p.DaysInAdvance)) {
		return dateErr(ErrTooFarInAdvance)
	}

	closing := time.Date(y, m, d, 0, w.close, 0, 0, loc)
	if closing.Before(p.earliestStart(now)) {
		return dateErr(ErrInsufficientNotice)
	}
	return nil
}

// CheckStart validates a concrete meeting start and length against the
// policy: CheckDate, the minimum notice, and the day's business hours.
func (p *Policy) CheckStart(start time.Time, minutes int, now time.Time) error {
	if !p.ValidDuration(minutes) {
		return dateErr(fmt.Errorf("%w: must be between %d and %d minutes", ErrInvalidDuration, p.MinDuration, p.MaxDuration))
	}
	if err := p.CheckDate(start, now); err != nil {
		return err
	}
	if start.Before(now) {
		return dateErr(ErrPastDate)
	}
	if start.Before(p.earliestStart(now)) {
		return dateErr(ErrInsufficientNotice)
	}

	local := start.In(p.Location())
	w := p.windows[local.Weekday()]
	begin := local.Hour()*60 + local.Minute()
	if begin < w.open || begin+minutes > w.close {
		return dateErr(ErrOutsideHours)
	}
	return nil
}

func (p *Policy) earliestStart(now time.Time) time.Time {
	return now.Add(time.Duration(p.MinimumNoticeHours) * time.Hour)
}
