package contact

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// HistoryVersion is written into every history document this package
// produces. Documents without a version predate it.
const HistoryVersion = 1

// Submission is one web form submission as recorded in a contact's comment.
type Submission struct {
	Source      string    `json:"source"`
	Page        string    `json:"page"`
	Locale      string    `json:"locale"`
	UTMSource   string    `json:"utm_source,omitempty"`
	UTMMedium   string    `json:"utm_medium,omitempty"`
	UTMCampaign string    `json:"utm_campaign,omitempty"`
	UTMContent  string    `json:"utm_content,omitempty"`
	UTMTerm     string    `json:"utm_term,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// History is the append-only log kept in the comment of an updated contact.
// Original holds whatever the comment contained before the first update:
// the first Submission, the first-submission members of an older document,
// or free text encoded as a JSON string. Updates are kept as raw JSON so
// entries written by other tools round-trip with all their keys.
type History struct {
	Version  int               `json:"version,omitempty"`
	Original json.RawMessage   `json:"original,omitempty"`
	Updates  []json.RawMessage `json:"updates"`
}

// ParseHistory reads a contact comment into a History. It never fails and
// never drops content: anything it cannot place in Original or Updates
// makes the whole comment the Original.
func ParseHistory(comment string) History {
	h := History{Version: HistoryVersion}
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return h
	}

	if !json.Valid([]byte(trimmed)) {
		raw, _ := json.Marshal(comment)
		h.Original = raw
		return h
	}

	if parsed, ok := parseDocument([]byte(trimmed)); ok {
		return parsed
	}
	h.Original = compact(trimmed)
	return h
}

// parseDocument handles objects carrying an updates array or an original
// member. Without original, the remaining top-level members, in their
// written order, become the Original.
func parseDocument(data []byte) (History, bool) {
	members, ok := objectMembers(data)
	if !ok {
		return History{}, false
	}
	h := History{Version: HistoryVersion}
	var rest []member
	var hasUpdates, hasOriginal bool
	for _, m := range members {
		switch m.key {
		case "updates":
			if err := json.Unmarshal(m.value, &h.Updates); err != nil {
				return History{}, false
			}
			hasUpdates = true
		case "original":
			h.Original = m.value
			hasOriginal = true
		case "version":
			var v int
			if err := json.Unmarshal(m.value, &v); err != nil {
				rest = append(rest, m)
			}
		default:
			rest = append(rest, m)
		}
	}
	switch {
	case !hasUpdates && !hasOriginal:
		return History{}, false
	case hasOriginal && len(rest) > 0:
		return History{}, false
	case !hasOriginal && len(rest) > 0:
		h.Original = encodeMembers(rest)
	}
	return h, true
}

type member struct {
	key   string
	value json.RawMessage
}

// objectMembers splits a JSON object into its members, keeping their order
// and their values byte for byte.
func objectMembers(data []byte) ([]member, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		members = append(members, member{key: key, value: compact(string(value))})
	}
	return members, true
}

func encodeMembers(members []member) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(m.key)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(m.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Append adds s to the end of the update log.
func (h *History) Append(s Submission) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	h.Updates = append(h.Updates, raw)
}

// Update decodes entry i of the log as a Submission. Keys the Submission
// does not know are ignored.
func (h History) Update(i int) (Submission, bool) {
	if i < 0 || i >= len(h.Updates) {
		return Submission{}, false
	}
	var s Submission
	if err := json.Unmarshal(h.Updates[i], &s); err != nil {
		return Submission{}, false
	}
	return s, true
}

// Encode renders the history as indented JSON for the comment field.
func (h History) Encode() (string, error) {
	if h.Updates == nil {
		h.Updates = []json.RawMessage{}
	}
	out, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode renders a first submission as the comment of a new contact.
func (s Submission) Encode() (string, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// OriginalSubmission decodes Original as a Submission when it has that shape.
func (h History) OriginalSubmission() (Submission, bool) {
	if len(h.Original) == 0 || h.Original[0] != '{' {
		return Submission{}, false
	}
	var s Submission
	if err := json.Unmarshal(h.Original, &s); err != nil || s.SubmittedAt.IsZero() {
		return Submission{}, false
	}
	return s, true
}

func compact(s string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return json.RawMessage(s)
	}
	return buf.Bytes()
}
