package booking

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Hours is one weekday's opening window as local "HH:MM" times.
type Hours struct {
	Open  string `yaml:"open" json:"start"`
	Close string `yaml:"close" json:"end"`
}

// Policy is the booking configuration. It is loaded once at startup and
// read-only afterwards. A weekday missing from BusinessHours, or set to null,
// is closed.
type Policy struct {
	BusinessHours      map[string]*Hours `yaml:"business_hours"`
	DefaultDuration    int               `yaml:"default_duration"`
	BufferMinutes      int               `yaml:"buffer_minutes"`
	DaysInAdvance      int               `yaml:"days_in_advance"`
	MinimumNoticeHours int               `yaml:"minimum_notice_hours"`
	Timezone           string            `yaml:"timezone"`
	SlotInterval       int               `yaml:"slot_interval"`
	MinDuration        int               `yaml:"min_duration"`
	MaxDuration        int               `yaml:"max_duration"`

	loc     *time.Location
	windows [7]*window
}

// window is an opening window in minutes after local midnight.
type window struct {
	open, close int
	hours       Hours
}

// DefaultPolicy returns the built-in policy: weekdays 09:00 to 18:00 in
// America/Mexico_City, 30 minute meetings on a 30 minute grid, 15 minutes of
// buffer, bookable 4 hours to 60 days ahead.
func DefaultPolicy() *Policy {
	weekday := func() *Hours { return &Hours{Open: "09:00", Close: "18:00"} }
	p := &Policy{
		BusinessHours: map[string]*Hours{
			"monday":    weekday(),
			"tuesday":   weekday(),
			"wednesday": weekday(),
			"thursday":  weekday(),
			"friday":    weekday(),
			"saturday":  nil,
			"sunday":    nil,
		},
		DefaultDuration:    30,
		BufferMinutes:      15,
		DaysInAdvance:      60,
		MinimumNoticeHours: 4,
		Timezone:           "America/Mexico_City",
		SlotInterval:       30,
		MinDuration:        15,
		MaxDuration:        120,
	}
	if err := p.Validate(); err != nil {
		panic("booking: invalid default policy: " + err.Error())
	}
	return p
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read booking policy: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("booking policy %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy decodes and validates a YAML policy. Scalar fields left out
// keep their DefaultPolicy values; business_hours must be given in full.
func ParsePolicy(data []byte) (*Policy, error) {
	p := DefaultPolicy()
	p.BusinessHours = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the policy and prepares it for use.
func (p *Policy) Validate() error {
	var errs []error

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		errs = append(errs, fmt.Errorf("timezone %q is not a valid IANA zone", p.Timezone))
	}

	var windows [7]*window
	open := 0
	for name := range p.BusinessHours {
		if weekdayIndex(name) < 0 {
			errs = append(errs, fmt.Errorf("business_hours: unknown weekday %q", name))
		}
	}
	for i, name := range weekdayNames {
		h := p.BusinessHours[name]
		if h == nil {
			continue
		}
		o, errO := parseClock(h.Open)
		c, errC := parseClock(h.Close)
		if errO != nil || errC != nil {
			errs = append(errs, fmt.Errorf("business_hours.%s: times must be HH:MM", name))
			continue
		}
		if o >= c {
			errs = append(errs, fmt.Errorf("business_hours.%s: open %s is not before close %s", name, h.Open, h.Close))
			continue
		}
		windows[i] = &window{open: o, close: c, hours: *h}
		open++
	}
	if open == 0 {
		errs = append(errs, errors.New("business_hours: at least one weekday must be open"))
	}

	if p.DefaultDuration <= 0 {
		errs = append(errs, errors.New("default_duration must be positive"))
	}
	if p.DaysInAdvance <= 0 {
		errs = append(errs, errors.New("days_in_advance must be positive"))
	}
	if p.BufferMinutes < 0 {
		errs = append(errs, errors.New("buffer_minutes must not be negative"))
	}
	if p.MinimumNoticeHours < 0 {
		errs = append(errs, errors.New("minimum_notice_hours must not be negative"))
	}
	if p.SlotInterval <= 0 {
		errs = append(errs, errors.New("slot_interval must be positive"))
	}
	if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
		errs = append(errs, errors.New("min_duration and max_duration must form a positive range"))
	} else if p.DefaultDuration > 0 && (p.DefaultDuration < p.MinDuration || p.DefaultDuration > p.MaxDuration) {
		errs = append(errs, errors.New("default_duration must be within min_duration and max_duration"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	p.loc = loc
	p.windows = windows
	return nil
}

// Location returns the policy's time zone.
func (p *Policy) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// Window returns the opening window for a weekday, or false when closed.
func (p *Policy) Window(day time.Weekday) (Hours, bool) {
	w := p.windows[day]
	if w == nil {
		return Hours{}, false
	}
	return w.hours, true
}

// ValidDuration reports whether minutes is an accepted meeting length.
func (p *Policy) ValidDuration(minutes int) bool {
	return minutes >= p.MinDuration && minutes <= p.MaxDuration
}

func weekdayIndex(name string) int {
	for i, n := range weekdayNames {
		if n == name {
			return i
		}
	}
	return -1
}

// parseClock converts "HH:MM" to minutes after midnight. "24:00" is allowed
// as a closing time.
func parseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("invalid time %q", s)
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}
