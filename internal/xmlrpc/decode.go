package xmlrpc

import (
	"errors"
	"html"
	"log"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoMethodName is returned by DecodeCall for documents without a methodName.
	ErrNoMethodName = errors.New("xmlrpc: methodCall has no methodName")
	// ErrNotResponse is returned by DecodeResponse for bodies with neither
	// params nor a fault, such as an HTML error page.
	ErrNotResponse = errors.New("xmlrpc: body is not a methodResponse")
)

var dateTimeFormats = []string{
	dateTimeLayout,        // XML-RPC basic
	"20060102T150405",     // Compact
	"20060102T15:04:05Z",  // Basic UTC
	"2006-01-02T15:04:05", // Extended
	time.RFC3339Nano,      // Extended with zone, optional fraction
	"2006-01-02 15:04:05", // Odoo server format
}

// span locates one element inside a document: the outer bounds include the
// tags, the inner bounds only the content.
type span struct {
	outerStart, innerStart, innerEnd, outerEnd int
}

// scanSpans finds every top-level <tag>...</tag> (or self-closing <tag/>) in s.
// Nested elements with the same name are tracked with a depth counter so a
// closing tag only ends the current element when the counter returns to zero.
// Unterminated elements are dropped.
func scanSpans(s, tag string) []span {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"
	selfClosing := []string{"<" + tag + "/>", "<" + tag + " />"}

	var spans []span
	depth := 0
	var cur span
	for i := 0; i < len(s); {
		if s[i] != '<' {
			next := strings.IndexByte(s[i:], '<')
			if next < 0 {
				break
			}
			i += next
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, open):
			if depth == 0 {
				cur = span{outerStart: i, innerStart: i + len(open)}
			}
			depth++
			i += len(open)
		case strings.HasPrefix(rest, closing):
			if depth > 0 {
				depth--
				if depth == 0 {
					cur.innerEnd = i
					cur.outerEnd = i + len(closing)
					spans = append(spans, cur)
				}
			}
			i += len(closing)
		case strings.HasPrefix(rest, selfClosing[0]):
			if depth == 0 {
				spans = append(spans, span{i, i, i, i + len(selfClosing[0])})
			}
			i += len(selfClosing[0])
		case strings.HasPrefix(rest, selfClosing[1]):
			if depth == 0 {
				spans = append(spans, span{i, i, i, i + len(selfClosing[1])})
			}
			i += len(selfClosing[1])
		default:
			i++
		}
	}
	return spans
}

// scanElements returns the inner content of every top-level tag element in s.
func scanElements(s, tag string) []string {
	spans := scanSpans(s, tag)
	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		out = append(out, s[sp.innerStart:sp.innerEnd])
	}
	return out
}

// Decode parses a single XML-RPC value. The fragment may be a complete
// <value> element or just its content. Malformed input never fails: it
// decodes to an unparsed Value and is logged.
func Decode(fragment string) Value {
	trimmed := strings.TrimSpace(fragment)
	if strings.HasPrefix(trimmed, "<value>") || strings.HasPrefix(trimmed, "<value/>") {
		values := scanElements(trimmed, "value")
		if len(values) == 0 {
			return unparsed(trimmed)
		}
		return decodeContent(values[0])
	}
	return decodeContent(fragment)
}

// DecodeResponse extracts the return value of a methodResponse document. A
// fault response yields a *Fault error and a body without params yields
// ErrNotResponse. A malformed return value is not an error: it decodes to
// an unparsed Value.
func DecodeResponse(body []byte) (Value, error) {
	doc := string(body)
	if strings.Contains(doc, "<fault>") {
		return Value{}, parseFault(doc)
	}

	params := scanElements(doc, "params")
	if len(params) == 0 {
		return unparsed(doc), ErrNotResponse
	}
	param := scanElements(params[0], "param")
	if len(param) == 0 {
		return unparsed(doc), nil
	}
	return Decode(param[0]), nil
}

// DecodeCall parses a methodCall document into its method name and params.
func DecodeCall(body []byte) (string, []Value, error) {
	doc := string(body)
	names := scanElements(doc, "methodName")
	if len(names) == 0 {
		return "", nil, ErrNoMethodName
	}
	method := unescape(strings.TrimSpace(names[0]))

	var params []Value
	for _, block := range scanElements(doc, "params") {
		for _, p := range scanElements(block, "param") {
			params = append(params, Decode(p))
		}
	}
	return method, params, nil
}

func decodeContent(content string) Value {
	c := strings.TrimSpace(content)
	if !strings.HasPrefix(c, "<") {
		// A value without a type element is a string.
		return String(unescape(content))
	}

	name := typeName(c)
	switch name {
	case "nil", "nil/":
		if c == "<nil/>" || c == "<nil />" || c == "<nil></nil>" {
			return Nil()
		}
	case "int", "i4", "i8":
		if inner, ok := unwrap(c, name); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(inner), 10, 64); err == nil {
				return Int(n)
			}
		}
	case "double":
		if inner, ok := unwrap(c, name); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(inner), 64); err == nil {
				return Double(f)
			}
		}
	case "boolean":
		if inner, ok := unwrap(c, name); ok {
			switch strings.TrimSpace(inner) {
			case "1":
				return Bool(true)
			case "0":
				return Bool(false)
			}
		}
	case "string", "string/":
		if inner, ok := unwrap(c, "string"); ok {
			return String(unescape(inner))
		}
	case "dateTime.iso8601":
		if inner, ok := unwrap(c, name); ok {
			if t, ok := parseDateTime(strings.TrimSpace(inner)); ok {
				return DateTime(t)
			}
		}
	case "array", "array/":
		if inner, ok := unwrap(c, "array"); ok {
			return decodeArray(inner, c)
		}
	case "struct", "struct/":
		if inner, ok := unwrap(c, "struct"); ok {
			return decodeStruct(inner)
		}
	}
	return unparsed(c)
}

func decodeArray(inner, whole string) Value {
	data := scanElements(inner, "data")
	if len(data) == 0 {
		if strings.TrimSpace(inner) == "" {
			return Array()
		}
		return unparsed(whole)
	}
	raw := scanElements(data[0], "value")
	items := make([]Value, 0, len(raw))
	for _, r := range raw {
		items = append(items, decodeContent(r))
	}
	return Array(items...)
}

func decodeStruct(inner string) Value {
	blocks := scanElements(inner, "member")
	members := make([]Member, 0, len(blocks))
	for _, block := range blocks {
		values := scanSpans(block, "value")
		if len(values) == 0 {
			log.Printf("[WARN] xmlrpc: struct member without value: %s", truncate(block))
			continue
		}
		v := values[0]
		// Look for the name outside the value so names of nested members are
		// never picked up.
		outside := block[:v.outerStart] + block[v.outerEnd:]
		names := scanElements(outside, "name")
		if len(names) == 0 {
			log.Printf("[WARN] xmlrpc: struct member without name: %s", truncate(block))
			continue
		}
		members = append(members, Member{
			Name:  unescape(strings.TrimSpace(names[0])),
			Value: decodeContent(block[v.innerStart:v.innerEnd]),
		})
	}
	return Struct(members...)
}

func parseFault(doc string) *Fault {
	region := doc[strings.Index(doc, "<fault>"):]
	if faults := scanElements(region, "fault"); len(faults) > 0 {
		region = faults[0]
	}

	f := &Fault{}
	if values := scanElements(region, "value"); len(values) > 0 {
		v := decodeContent(values[0])
		if msg, ok := v.Get("faultString"); ok {
			f.Message, _ = msg.AsString()
		}
		if code, ok := v.Get("faultCode"); ok {
			switch code.Kind() {
			case KindInt:
				n, _ := code.AsInt()
				f.Code = strconv.FormatInt(n, 10)
			case KindString:
				f.Code, _ = code.AsString()
			}
		}
	}
	if f.Message == "" {
		if strs := scanElements(region, "string"); len(strs) > 0 {
			f.Message = unescape(strs[0])
		}
	}
	if f.Message == "" {
		f.Message = "unknown fault"
	}
	return f
}

// typeName returns the element name of the first tag in c, keeping a trailing
// slash for self-closing tags.
func typeName(c string) string {
	end := strings.IndexByte(c, '>')
	if end < 0 {
		return ""
	}
	name := strings.TrimSpace(c[1:end])
	if strings.HasSuffix(name, "/") {
		return strings.TrimSpace(strings.TrimSuffix(name, "/")) + "/"
	}
	return name
}

// unwrap strips <name>...</name> from c, or accepts an empty self-closing tag.
func unwrap(c, name string) (string, bool) {
	if c == "<"+name+"/>" || c == "<"+name+" />" {
		return "", true
	}
	open, closing := "<"+name+">", "</"+name+">"
	if !strings.HasPrefix(c, open) || !strings.HasSuffix(c, closing) || len(c) < len(open)+len(closing) {
		return "", false
	}
	return c[len(open) : len(c)-len(closing)], true
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func unescape(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}

func unparsed(fragment string) Value {
	log.Printf("[WARN] xmlrpc: unparsed value: %s", truncate(fragment))
	return Unparsed(fragment)
}

func truncate(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
