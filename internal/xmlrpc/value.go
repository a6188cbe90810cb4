package xmlrpc

import (
	"fmt"
	"math"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNil Kind = iota
	KindInt
	KindDouble
	KindBool
	KindString
	KindDateTime
	KindArray
	KindStruct
	// KindUnparsed marks a fragment the decoder could not interpret. The raw
	// fragment is kept so callers can inspect it.
	KindUnparsed
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindDateTime:
		return "dateTime.iso8601"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindUnparsed:
		return "unparsed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an XML-RPC value. The zero Value is nil.
type Value struct {
	kind    Kind
	i       int64
	f       float64
	b       bool
	s       string
	t       time.Time
	items   []Value
	members []Member
}

// Member is a single named field of a struct value.
type Member struct {
	Name  string
	Value Value
}

func Nil() Value { return Value{} }
func Int(n int64) Value { return Value{kind: KindInt, i: n} }
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Unparsed(raw string) Value { return Value{kind: KindUnparsed, s: raw} }

// DateTime truncates t to whole seconds in UTC, the precision XML-RPC carries.
func DateTime(t time.Time) Value {
	return Value{kind: KindDateTime, t: t.UTC().Truncate(time.Second)}
}

// Array builds an array value. A nil list encodes as an empty array.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// Struct builds a struct value preserving member order. Member names are
// expected to be unique; duplicates are not rejected.
func Struct(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: KindStruct, members: members}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }
func (v Value) Items() []Value { return v.items }
func (v Value) Members() []Member { return v.members }

// Raw returns the original fragment of an unparsed value.
func (v Value) Raw() string {
	if v.kind != KindUnparsed {
		return ""
	}
	return v.s
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsDouble() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindDateTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Get returns the first member with the given name.
func (v Value) Get(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether a and b hold the same variant and contents. Doubles
// compare bitwise equal or both NaN.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindInt:
		return a.i == b.i
	case KindDouble:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case KindBool:
		return a.b == b.b
	case KindString, KindUnparsed:
		return a.s == b.s
	case KindDateTime:
		return a.t.Equal(b.t)
	case KindArray:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindStruct:
		if len(a.members) != len(b.members) {
			return false
		}
		for i := range a.members {
			if a.members[i].Name != b.members[i].Name || !Equal(a.members[i].Value, b.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDouble:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindDateTime:
		return v.t.Format(time.RFC3339)
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.items))
	case KindStruct:
		return fmt.Sprintf("struct(%d)", len(v.members))
	default:
		return "unparsed"
	}
}
