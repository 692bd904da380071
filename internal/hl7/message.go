// Package hl7 implements the HL7 v2.x codec used between the agent and the
// counterpart practice-management system.
//
// Only the dialect actually produced and consumed by the two systems is
// supported: ADT patient administration, DFT charge, and ORU result messages.
// Parsing is deliberately lenient — short segments yield empty fields rather
// than errors, and unrecognized message types map to TypeUnknown.
package hl7

import (
	"fmt"
	"strings"
	"time"
)

// HL7 delimiters. Segments are joined with CR on the wire; parsing accepts
// any mix of CR and LF.
const (
	fieldSep     = "|"
	componentSep = "^"
	repeatSep    = "~"
	segmentSep   = "\r"
)

// MessageType classifies a message by its MSH-9 type^trigger pair.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypePatientRegister
	TypePatientUpdate
	TypePatientMerge
	TypeCharge
	TypeResult
)

// String returns a human-readable representation of the message type.
func (t MessageType) String() string {
	switch t {
	case TypePatientRegister:
		return "patient-register"
	case TypePatientUpdate:
		return "patient-update"
	case TypePatientMerge:
		return "patient-merge"
	case TypeCharge:
		return "charge"
	case TypeResult:
		return "result"
	default:
		return "unknown"
	}
}

// messageTypes is the allow-list of MSH-9 TYPE^TRIGGER pairs the counterpart
// system emits. Anything else parses as TypeUnknown.
var messageTypes = map[string]MessageType{
	"ADT^A04": TypePatientRegister,
	"ADT^A08": TypePatientUpdate,
	"ADT^A40": TypePatientMerge,
	"DFT^P03": TypeCharge,
	"ORU^R01": TypeResult,
}

// Segment is one tagged line of an HL7 message. Fields holds the full
// pipe-split line, so Fields[0] is the tag and Fields[n] is HL7 field n.
type Segment struct {
	Tag    string
	Fields []string
}

// Field returns HL7 field i (1-based, matching standard segment numbering).
// Out-of-range indexes return an empty string.
func (s Segment) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Component returns component c (1-based) of HL7 field i.
func (s Segment) Component(i, c int) string {
	return component(s.Field(i), c)
}

// component splits an already-extracted field value on ^ and returns
// component c (1-based).
func component(field string, c int) string {
	parts := strings.Split(field, componentSep)
	if c < 1 || c > len(parts) {
		return ""
	}
	return parts[c-1]
}

// repeats splits a field value on the ~ repetition separator, dropping
// empty entries.
func repeats(field string) []string {
	if field == "" {
		return nil
	}
	var out []string
	for _, r := range strings.Split(field, repeatSep) {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Message is a parsed HL7 message. It is immutable once returned by Parse.
type Message struct {
	Raw             string
	Type            MessageType
	TypeCode        string // raw MSH-9, e.g. "ADT^A08"
	ControlID       string // MSH-10
	SendingApp      string // MSH-3
	SendingFacility string // MSH-4
	Timestamp       string // MSH-7, raw HL7 timestamp

	segments []Segment
}

// Segment returns the first segment with the given tag, or nil.
func (m *Message) Segment(tag string) *Segment {
	for i := range m.segments {
		if m.segments[i].Tag == tag {
			return &m.segments[i]
		}
	}
	return nil
}

// Segments returns all segments with the given tag, in document order.
func (m *Message) Segments(tag string) []Segment {
	var out []Segment
	for _, s := range m.segments {
		if s.Tag == tag {
			out = append(out, s)
		}
	}
	return out
}

// All returns every segment in document order.
func (m *Message) All() []Segment {
	return m.segments
}

// Time parses the MSH-7 timestamp. The zero time is returned when the field
// is absent or unparseable.
func (m *Message) Time() time.Time {
	t, _ := parseTimestamp(m.Timestamp)
	return t
}

// Parse decodes a single HL7 message. The input must contain an MSH segment;
// everything else is extracted leniently, with absent fields reading as empty
// strings.
func Parse(raw string) (*Message, error) {
	segments := splitSegments(raw)
	if len(segments) == 0 {
		return nil, fmt.Errorf("hl7: empty message")
	}

	m := &Message{Raw: raw, segments: segments}

	msh := m.Segment("MSH")
	if msh == nil {
		return nil, fmt.Errorf("hl7: missing MSH segment")
	}

	m.SendingApp = msh.Field(2)
	m.SendingFacility = msh.Field(3)
	m.Timestamp = msh.Field(6)
	m.TypeCode = msh.Field(8)
	m.ControlID = msh.Field(9)
	m.Type = normalizeType(m.TypeCode)

	return m, nil
}

// splitSegments splits raw text on any run of CR/LF, discards blank lines,
// and pipe-splits each line.
func splitSegments(raw string) []Segment {
	lines := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\r' || r == '\n'
	})

	var segments []Segment
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, fieldSep)
		segments = append(segments, Segment{Tag: fields[0], Fields: fields})
	}
	return segments
}

// normalizeType matches a raw MSH-9 value against the allow-list. The value
// is upper-cased and reduced to its first two components, so "adt^a08^ADT_A01"
// matches "ADT^A08".
func normalizeType(code string) MessageType {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(code)), componentSep)
	if len(parts) < 2 {
		return TypeUnknown
	}
	if t, ok := messageTypes[parts[0]+componentSep+parts[1]]; ok {
		return t
	}
	return TypeUnknown
}

// parseTimestamp parses an HL7 timestamp (YYYYMMDDHHmmss, or truncated
// variants down to YYYYMMDD).
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7: unrecognized timestamp %q", s)
	}
}
