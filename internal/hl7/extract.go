package hl7

import (
	"strconv"
	"strings"
)

// Patient is the normalized projection of PID/IN1 segments used as the
// patient-upsert request body.
type Patient struct {
	ExternalID string      `json:"externalId"`
	LastName   string      `json:"lastName"`
	FirstName  string      `json:"firstName"`
	MiddleName string      `json:"middleName,omitempty"`
	DOB        string      `json:"dob,omitempty"` // YYYY-MM-DD
	Sex        string      `json:"sex,omitempty"`
	Street     string      `json:"street,omitempty"`
	City       string      `json:"city,omitempty"`
	State      string      `json:"state,omitempty"`
	Zip        string      `json:"zip,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Insurance  []Insurance `json:"insurance,omitempty"`
}

// Insurance is one IN1 payer entry.
type Insurance struct {
	PayerID      string `json:"payerId,omitempty"`
	PayerName    string `json:"payerName,omitempty"`
	MemberID     string `json:"memberId,omitempty"`
	GroupID      string `json:"groupId,omitempty"`
	Relationship string `json:"relationship"`
}

// ChargeLine is one FT1 procedure line.
type ChargeLine struct {
	CPTCode     string   `json:"cptCode"`
	Description string   `json:"description,omitempty"`
	Modifiers   []string `json:"modifiers,omitempty"`
	Units       int      `json:"units"`
	Amount      float64  `json:"amount"`
	Diagnoses   []string `json:"diagnoses,omitempty"`
}

// Encounter is the normalized projection of a DFT charge message.
type Encounter struct {
	Patient   Patient      `json:"patient"`
	Lines     []ChargeLine `json:"lines"`
	Diagnoses []string     `json:"diagnoses"`
}

// Note is the normalized projection of an ORU result message.
type Note struct {
	Patient Patient `json:"patient"`
	VisitID string  `json:"visitId,omitempty"`
	Body    string  `json:"body"`
}

// ExtractPatient builds a Patient from the message's PID and IN1 segments.
// Missing segments or fields yield zero values, never errors.
func ExtractPatient(m *Message) Patient {
	var p Patient

	if pid := m.Segment("PID"); pid != nil {
		p.ExternalID = component(pid.Field(3), 1)
		p.LastName = pid.Component(5, 1)
		p.FirstName = pid.Component(5, 2)
		p.MiddleName = pid.Component(5, 3)
		p.DOB = formatDOB(pid.Field(7))
		p.Sex = pid.Field(8)
		p.Street = pid.Component(11, 1)
		p.City = pid.Component(11, 3)
		p.State = pid.Component(11, 4)
		p.Zip = pid.Component(11, 5)
		p.Phone = normalizePhone(pid.Field(13))
	}

	for _, in1 := range m.Segments("IN1") {
		p.Insurance = append(p.Insurance, extractInsurance(in1))
	}

	return p
}

// extractInsurance reads one IN1 segment. The member id prefers IN1-36
// (policy number) and falls back to IN1-2 (plan id), matching what the
// counterpart system actually populates.
func extractInsurance(in1 Segment) Insurance {
	ins := Insurance{
		PayerID:      component(in1.Field(3), 1),
		PayerName:    component(in1.Field(4), 1),
		MemberID:     in1.Field(36),
		GroupID:      in1.Field(8),
		Relationship: in1.Field(17),
	}
	if ins.MemberID == "" {
		ins.MemberID = in1.Field(2)
	}
	if ins.Relationship == "" {
		ins.Relationship = "self"
	}
	return ins
}

// ExtractEncounter builds an Encounter from a charge message. The diagnosis
// set is the union of codes embedded in FT1-19 and standalone DG1 segments,
// deduplicated in first-seen order.
func ExtractEncounter(m *Message) Encounter {
	enc := Encounter{Patient: ExtractPatient(m)}

	seen := make(map[string]bool)
	addDiagnosis := func(code string) {
		if code == "" || seen[code] {
			return
		}
		seen[code] = true
		enc.Diagnoses = append(enc.Diagnoses, code)
	}

	for _, ft1 := range m.Segments("FT1") {
		line := ChargeLine{
			CPTCode:     component(ft1.Field(7), 1),
			Description: component(ft1.Field(7), 2),
			Units:       parseUnits(ft1.Field(10)),
			Amount:      parseAmount(ft1.Field(11)),
		}
		for _, rep := range repeats(ft1.Field(19)) {
			code := component(rep, 1)
			if code == "" {
				continue
			}
			line.Diagnoses = append(line.Diagnoses, code)
			addDiagnosis(code)
		}
		enc.Lines = append(enc.Lines, line)
	}

	for _, dg1 := range m.Segments("DG1") {
		addDiagnosis(component(dg1.Field(3), 1))
	}

	return enc
}

// ExtractNote builds a Note from a result message. The body is the
// concatenation of every OBX-5 value in segment order.
func ExtractNote(m *Message) Note {
	note := Note{Patient: ExtractPatient(m)}

	if obr := m.Segment("OBR"); obr != nil {
		note.VisitID = component(obr.Field(2), 1)
		if note.VisitID == "" {
			note.VisitID = component(obr.Field(3), 1)
		}
	}

	var parts []string
	for _, obx := range m.Segments("OBX") {
		if v := obx.Field(5); v != "" {
			parts = append(parts, v)
		}
	}
	note.Body = strings.Join(parts, "\n")

	return note
}

// formatDOB converts an HL7 YYYYMMDD date to YYYY-MM-DD. Shorter or
// malformed values pass through unchanged.
func formatDOB(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return s
	}
	s = s[:8]
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:8]
}

// normalizePhone strips non-digits and formats exactly-ten-digit numbers as
// NNN-NNN-NNNN. Anything else is returned trimmed but otherwise untouched.
func normalizePhone(s string) string {
	s = strings.TrimSpace(component(s, 1))
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 10 {
		return d[:3] + "-" + d[3:6] + "-" + d[6:]
	}
	return s
}

// parseUnits parses FT1-10, defaulting to 1 on failure.
func parseUnits(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(component(s, 1)))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// parseAmount parses FT1-11, defaulting to 0 on failure.
func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(component(s, 1)), 64)
	if err != nil {
		return 0
	}
	return f
}
