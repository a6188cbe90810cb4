package odoo

import (
	"fmt"
	"time"

	"gitea.jw6.us/james/odoolink/internal/xmlrpc"
)

// ServerTimeLayout is how Odoo stores datetimes: UTC, second precision.
const ServerTimeLayout = "2006-01-02 15:04:05"

var serverTimeFormats = []string{
	ServerTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02",
}

// Odoo returns false for unset fields of every type. The helpers below treat
// false, nil and a missing member as the zero value.

// Records returns the struct elements of a search_read result.
func Records(v xmlrpc.Value) []xmlrpc.Value {
	var out []xmlrpc.Value
	for _, item := range v.Items() {
		if item.Kind() == xmlrpc.KindStruct {
			out = append(out, item)
		}
	}
	return out
}

// String returns a char/text field.
func String(rec xmlrpc.Value, field string) string {
	v, ok := rec.Get(field)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// Int returns an integer field.
func Int(rec xmlrpc.Value, field string) int64 {
	v, ok := rec.Get(field)
	if !ok {
		return 0
	}
	n, _ := v.AsInt()
	return n
}

// Bool returns a boolean field.
func Bool(rec xmlrpc.Value, field string) bool {
	v, ok := rec.Get(field)
	if !ok {
		return false
	}
	b, _ := v.AsBool()
	return b
}

// Many2One splits a [id, display_name] pair.
func Many2One(rec xmlrpc.Value, field string) (int64, string) {
	v, ok := rec.Get(field)
	if !ok {
		return 0, ""
	}
	items := v.Items()
	if len(items) == 0 {
		n, _ := v.AsInt()
		return n, ""
	}
	id, _ := items[0].AsInt()
	var name string
	if len(items) > 1 {
		name, _ = items[1].AsString()
	}
	return id, name
}

// IDs returns the integer elements of a list result, as returned by search.
func IDs(v xmlrpc.Value) []int64 {
	var out []int64
	for _, item := range v.Items() {
		if n, ok := item.AsInt(); ok {
			out = append(out, n)
		}
	}
	return out
}

// Time parses a datetime field. Odoo sends them as strings in UTC.
func Time(rec xmlrpc.Value, field string) (time.Time, bool) {
	v, ok := rec.Get(field)
	if !ok {
		return time.Time{}, false
	}
	if t, ok := v.AsTime(); ok {
		return t.UTC(), true
	}
	s, ok := v.AsString()
	if !ok || s == "" {
		return time.Time{}, false
	}
	return ParseServerTime(s)
}

// ParseServerTime parses an Odoo datetime string as UTC.
func ParseServerTime(s string) (time.Time, bool) {
	for _, layout := range serverTimeFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatServerTime renders t the way Odoo expects datetime arguments.
func FormatServerTime(t time.Time) string {
	return t.UTC().Format(ServerTimeLayout)
}

// CreatedID extracts the id returned by create, which is an int for a single
// record and a one-element list when a list of values was passed.
func CreatedID(v xmlrpc.Value) (int64, error) {
	if n, ok := v.AsInt(); ok && n > 0 {
		return n, nil
	}
	if ids := IDs(v); len(ids) == 1 && ids[0] > 0 {
		return ids[0], nil
	}
	return 0, fmt.Errorf("odoo: unexpected create result %s", v)
}

// Replace builds the many2many command that replaces the relation with ids.
func Replace(ids ...int64) []any {
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	return []any{[]any{6, 0, list}}
}
