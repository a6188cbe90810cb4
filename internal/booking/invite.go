package booking

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	icalUTC       = "20060102T150405Z"
	icalLineLimit = 75
)

// Invite is a booked meeting rendered as an iCalendar request the visitor
// can add to their own calendar.
type Invite struct {
	UID         string
	Summary     string
	Start       time.Time
	Stop        time.Time
	Location    string
	Description string
	// Attendee is "Name <addr>" or a bare address.
	Attendee string
}

// ICS renders the invite as a VCALENDAR with a single VEVENT. Times are
// written in UTC; lines are CRLF terminated and folded at 75 octets.
func (i Invite) ICS(stamp time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//odoolink//booking//EN",
		"METHOD:REQUEST",
		"BEGIN:VEVENT",
		"UID:" + escapeText(i.UID),
		"DTSTAMP:" + stamp.UTC().Format(icalUTC),
		"DTSTART:" + i.Start.UTC().Format(icalUTC),
		"DTEND:" + i.Stop.UTC().Format(icalUTC),
		"SUMMARY:" + escapeText(i.Summary),
	}
	if i.Location != "" {
		lines = append(lines, "LOCATION:"+escapeText(i.Location))
	}
	if i.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(i.Description))
	}
	if line := attendeeLine(i.Attendee); line != "" {
		lines = append(lines, line)
	}
	lines = append(lines, "STATUS:CONFIRMED", "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(fold(line))
	}
	return b.String()
}

func attendeeLine(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, "\r\n") {
		return ""
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return ""
	}
	line := "ATTENDEE;ROLE=REQ-PARTICIPANT"
	if name := strings.TrimSpace(addr.Name); name != "" && !hasControl(name) {
		line += fmt.Sprintf(";CN=%q", strings.ReplaceAll(name, `"`, "'"))
	}
	return line + ":mailto:" + addr.Address
}

// escapeText escapes a TEXT property value.
func escapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ";", `\;`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// fold splits line into CRLF-terminated chunks of at most 75 octets, never
// inside a UTF-8 sequence. Continuation lines start with a space.
func fold(line string) string {
	var b strings.Builder
	limit := icalLineLimit
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8Start(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = icalLineLimit - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
	return b.String()
}

func utf8Start(c byte) bool { return c&0xC0 != 0x80 }
