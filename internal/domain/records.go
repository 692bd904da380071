package domain

import (
	"time"

	"github.com/medlink-labs/medlink/internal/hl7"
)

// FileEvent identifies one accepted file in the watch folder. The watcher
// creates it; ownership transfers to the orchestrator on dequeue and each
// event is consumed exactly once.
type FileEvent struct {
	Path      string
	Name      string
	CreatedAt time.Time
}

// ExportClaim is one remote billing claim awaiting materialization as a
// local HL7 charge file. ClaimID correlates the per-claim result in the
// confirmation protocol.
type ExportClaim struct {
	ClaimID     string           `json:"claimId"`
	Patient     hl7.Patient      `json:"patient"`
	VisitID     string           `json:"visitId,omitempty"`
	ServiceDate string           `json:"serviceDate,omitempty"`
	Lines       []hl7.ChargeLine `json:"lines"`
	Diagnoses   []string         `json:"diagnoses,omitempty"`
}

// ToClaim converts the remote record into the codec's generation input.
func (c ExportClaim) ToClaim() hl7.Claim {
	return hl7.Claim{
		Patient:     c.Patient,
		VisitID:     c.VisitID,
		ServiceDate: c.ServiceDate,
		Lines:       c.Lines,
		Diagnoses:   c.Diagnoses,
	}
}

// AdtExport is one remote patient-insurance update awaiting materialization
// as a local HL7 file. QueueID correlates the per-item result in the
// confirmation protocol. Patient.ExternalID is the counterpart-system
// reference; without it the record cannot be written.
type AdtExport struct {
	QueueID string      `json:"queueId"`
	Patient hl7.Patient `json:"patient"`
	VisitID string      `json:"visitId,omitempty"`
}

// ToUpdate converts the remote record into the codec's generation input.
func (a AdtExport) ToUpdate() hl7.InsuranceUpdate {
	return hl7.InsuranceUpdate{Patient: a.Patient, VisitID: a.VisitID}
}

// ExportResult reports the outcome of materializing one claim or ADT export.
type ExportResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	Error   string `json:"error,omitempty"`
}
