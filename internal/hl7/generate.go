package hl7

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// maxModifiers is the per-line cap the counterpart system accepts on FT1-26.
const maxModifiers = 4

// Claim is the outbound projection of one billing claim, materialized as a
// DFT^P03 charge message for the counterpart system to import.
type Claim struct {
	Patient     Patient
	VisitID     string
	ServiceDate string // YYYY-MM-DD
	Lines       []ChargeLine
	Diagnoses   []string
}

// InsuranceUpdate is the outbound projection of one patient-insurance change,
// materialized as an ADT^A08 update message.
type InsuranceUpdate struct {
	Patient Patient
	VisitID string
}

// Generator builds outbound HL7 messages. The zero value is not usable; call
// NewGenerator. Clock and control-id generation are injectable so tests can
// pin the only time-variant fields.
type Generator struct {
	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string

	Now          func() time.Time
	NewControlID func() string
}

// NewGenerator creates a Generator with the given application and facility
// identifiers and real clock/control-id sources.
func NewGenerator(app, facility, recvApp, recvFacility string) *Generator {
	return &Generator{
		SendingApp:        app,
		SendingFacility:   facility,
		ReceivingApp:      recvApp,
		ReceivingFacility: recvFacility,
		Now:               time.Now,
		NewControlID:      newControlID,
	}
}

var controlSeq atomic.Uint32

// newControlID returns a short, time-derived token that is unique within a
// burst of same-microsecond calls.
func newControlID() string {
	n := controlSeq.Add(1) % 100
	return strconv.FormatInt(time.Now().UnixMicro(), 36) + fmt.Sprintf("%02d", n)
}

// Charge generates a DFT^P03 charge message for one claim. Output is
// deterministic given fixed Now and NewControlID.
func (g *Generator) Charge(c Claim) string {
	ts := g.Now().Format("20060102150405")

	segments := []string{
		g.msh("DFT", "P03", ts),
		seg("EVN", "P03", ts),
		pidSegment(c.Patient),
		pv1Segment(c.VisitID),
		in1Segment(firstInsurance(c.Patient)),
	}

	serviceDate := hl7Date(c.ServiceDate)
	if serviceDate == "" {
		serviceDate = ts[:8]
	}
	for i, line := range c.Lines {
		segments = append(segments, ft1Segment(i+1, serviceDate, line))
	}
	for i, code := range c.Diagnoses {
		segments = append(segments, dg1Segment(i+1, code))
	}

	return strings.Join(segments, segmentSep) + segmentSep
}

// Insurance generates an ADT^A08 patient-insurance-update message.
func (g *Generator) Insurance(u InsuranceUpdate) string {
	ts := g.Now().Format("20060102150405")

	segments := []string{
		g.msh("ADT", "A08", ts),
		seg("EVN", "A08", ts),
		pidSegment(u.Patient),
		pv1Segment(u.VisitID),
		in1Segment(firstInsurance(u.Patient)),
	}

	return strings.Join(segments, segmentSep) + segmentSep
}

func (g *Generator) msh(msgType, trigger, ts string) string {
	return seg("MSH",
		`^~\&`,
		g.SendingApp,
		g.SendingFacility,
		g.ReceivingApp,
		g.ReceivingFacility,
		ts,
		"",
		msgType+componentSep+trigger,
		g.NewControlID(),
		"P",
		"2.3",
	)
}

func pidSegment(p Patient) string {
	name := joinComponents(
		strings.ToUpper(p.LastName),
		strings.ToUpper(p.FirstName),
		strings.ToUpper(p.MiddleName),
	)
	address := joinComponents(
		strings.ToUpper(p.Street),
		"",
		strings.ToUpper(p.City),
		strings.ToUpper(p.State),
		p.Zip,
	)

	f := fields(13)
	f[1] = "1"
	f[3] = p.ExternalID
	f[5] = name
	f[7] = hl7Date(p.DOB)
	f[8] = p.Sex
	f[11] = address
	f[13] = p.Phone
	return seg("PID", f[1:]...)
}

func pv1Segment(visitID string) string {
	f := fields(19)
	f[1] = "1"
	f[2] = "O"
	f[19] = visitID
	return seg("PV1", f[1:]...)
}

func firstInsurance(p Patient) Insurance {
	if len(p.Insurance) > 0 {
		return p.Insurance[0]
	}
	return Insurance{Relationship: "self"}
}

func in1Segment(ins Insurance) string {
	f := fields(36)
	f[1] = "1"
	f[3] = ins.PayerID
	f[4] = strings.ToUpper(ins.PayerName)
	f[8] = ins.GroupID
	f[17] = ins.Relationship
	f[36] = ins.MemberID
	return seg("IN1", f[1:]...)
}

func ft1Segment(setID int, serviceDate string, line ChargeLine) string {
	mods := line.Modifiers
	if len(mods) > maxModifiers {
		mods = mods[:maxModifiers]
	}

	var diag []string
	for _, code := range line.Diagnoses {
		diag = append(diag, code+componentSep+componentSep+"ICD")
	}

	f := fields(26)
	f[1] = strconv.Itoa(setID)
	f[4] = serviceDate
	f[6] = "CG"
	f[7] = line.CPTCode + componentSep + strings.ToUpper(line.Description)
	f[10] = strconv.Itoa(units(line.Units))
	f[11] = fmt.Sprintf("%.2f", line.Amount)
	f[19] = strings.Join(diag, repeatSep)
	f[26] = strings.Join(mods, repeatSep)
	return seg("FT1", f[1:]...)
}

func dg1Segment(setID int, code string) string {
	f := fields(3)
	f[1] = strconv.Itoa(setID)
	f[3] = code + componentSep + componentSep + "ICD"
	return seg("DG1", f[1:]...)
}

// seg joins a tag and its fields with the pipe separator. Trailing empty
// fields are kept; the counterpart system indexes fields positionally.
func seg(tag string, fieldValues ...string) string {
	return tag + fieldSep + strings.Join(fieldValues, fieldSep)
}

// fields returns a slice indexable by HL7 field number up to n.
func fields(n int) []string {
	return make([]string, n+1)
}

// joinComponents joins with ^ and trims trailing empty components.
func joinComponents(parts ...string) string {
	end := len(parts)
	for end > 0 && parts[end-1] == "" {
		end--
	}
	return strings.Join(parts[:end], componentSep)
}

// hl7Date converts YYYY-MM-DD to YYYYMMDD, passing through values that are
// already bare digits.
func hl7Date(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "")
}

func units(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
