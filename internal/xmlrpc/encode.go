package xmlrpc

import (
	"strconv"
	"strings"
)

// dateTimeLayout is the XML-RPC basic ISO 8601 form, always written in UTC.
const dateTimeLayout = "20060102T15:04:05"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape replaces the five XML special characters with entity references.
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

// Encode renders v as a complete <value> element.
func Encode(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

// EncodeCall renders a complete methodCall document.
func EncodeCall(method string, params ...Value) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("\n<methodCall>\n<methodName>")
	b.WriteString(Escape(method))
	b.WriteString("</methodName>\n<params>\n")
	for _, p := range params {
		b.WriteString("<param>")
		writeValue(&b, p)
		b.WriteString("</param>\n")
	}
	b.WriteString("</params>\n</methodCall>\n")
	return []byte(b.String())
}

// EncodeResponse renders a methodResponse carrying a single return value.
func EncodeResponse(v Value) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("\n<methodResponse>\n<params>\n<param>")
	writeValue(&b, v)
	b.WriteString("</param>\n</params>\n</methodResponse>\n")
	return []byte(b.String())
}

// EncodeFault renders a methodResponse carrying a fault struct.
func EncodeFault(f *Fault) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>`)
	b.WriteString("\n<methodResponse>\n<fault>")
	writeValue(&b, Struct(
		Member{Name: "faultCode", Value: f.codeValue()},
		Member{Name: "faultString", Value: String(f.Message)},
	))
	b.WriteString("</fault>\n</methodResponse>\n")
	return []byte(b.String())
}

func writeValue(b *strings.Builder, v Value) {
	b.WriteString("<value>")
	switch v.kind {
	case KindNil:
		b.WriteString("<nil/>")
	case KindInt:
		b.WriteString("<int>")
		b.WriteString(strconv.FormatInt(v.i, 10))
		b.WriteString("</int>")
	case KindDouble:
		b.WriteString("<double>")
		b.WriteString(strconv.FormatFloat(v.f, 'f', -1, 64))
		b.WriteString("</double>")
	case KindBool:
		if v.b {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case KindString:
		b.WriteString("<string>")
		b.WriteString(Escape(v.s))
		b.WriteString("</string>")
	case KindDateTime:
		b.WriteString("<dateTime.iso8601>")
		b.WriteString(v.t.UTC().Format(dateTimeLayout))
		b.WriteString("</dateTime.iso8601>")
	case KindArray:
		b.WriteString("<array><data>")
		for _, item := range v.items {
			writeValue(b, item)
		}
		b.WriteString("</data></array>")
	case KindStruct:
		b.WriteString("<struct>")
		for _, m := range v.members {
			b.WriteString("<member><name>")
			b.WriteString(Escape(m.Name))
			b.WriteString("</name>")
			writeValue(b, m.Value)
			b.WriteString("</member>")
		}
		b.WriteString("</struct>")
	case KindUnparsed:
		// Unparsed values are never produced by callers; send them as text so
		// nothing unescaped reaches the wire.
		b.WriteString("<string>")
		b.WriteString(Escape(v.s))
		b.WriteString("</string>")
	}
	b.WriteString("</value>")
}
