package app

import (
	"context"
	"sync"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
)

type confirmCall struct {
	fetchID string
	results []domain.ExportResult
}

// fakeRemote implements ports.Remote in memory. Error fields, when set, are
// returned by the corresponding method; upsertFn overrides per-call behavior.
type fakeRemote struct {
	mu sync.Mutex

	upserts    []hl7.Patient
	charges    []hl7.Encounter
	notes      []hl7.Note
	heartbeats []ports.Heartbeat

	upsertFn     func(hl7.Patient) error
	chargeErr    error
	noteErr      error
	heartbeatErr error

	pendingClaims ports.PendingClaims
	pendingErr    error
	adtPending    ports.PendingAdtExports
	adtErr        error

	confirms    []confirmCall
	adtConfirms []confirmCall
	marks       [][]string
	confirmErr  error
	markErr     error
}

func (f *fakeRemote) Heartbeat(ctx context.Context, hb ports.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, hb)
	return f.heartbeatErr
}

func (f *fakeRemote) Status(ctx context.Context) (ports.RemoteStatus, error) {
	return ports.RemoteStatus{ClinicName: "Test Clinic"}, nil
}

func (f *fakeRemote) UpsertPatient(ctx context.Context, p hl7.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, p)
	if f.upsertFn != nil {
		return f.upsertFn(p)
	}
	return nil
}

func (f *fakeRemote) CreateCharge(ctx context.Context, enc hl7.Encounter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, enc)
	return f.chargeErr
}

func (f *fakeRemote) CreateNote(ctx context.Context, n hl7.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return f.noteErr
}

func (f *fakeRemote) PendingExports(ctx context.Context) (ports.PendingClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingClaims, f.pendingErr
}

func (f *fakeRemote) MarkExported(ctx context.Context, claimIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, claimIDs)
	return f.markErr
}

func (f *fakeRemote) ConfirmExport(ctx context.Context, fetchID string, results []domain.ExportResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, confirmCall{fetchID: fetchID, results: results})
	return f.confirmErr
}

func (f *fakeRemote) PendingAdtExports(ctx context.Context) (ports.PendingAdtExports, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adtPending, f.adtErr
}

func (f *fakeRemote) ConfirmAdtExport(ctx context.Context, fetchID string, results []domain.ExportResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adtConfirms = append(f.adtConfirms, confirmCall{fetchID: fetchID, results: results})
	return f.confirmErr
}

func (f *fakeRemote) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}
