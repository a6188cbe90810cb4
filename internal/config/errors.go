package config

import "strings"

// Error reports missing or malformed configuration. It names variables and
// never echoes their values.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Code identifies the error class at the HTTP boundary.
func (e *Error) Code() string { return "CONFIG_ERROR" }
