package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medlink-labs/medlink/internal/adapters/log"
	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
)

type fakeExportEmitter struct {
	mu       sync.Mutex
	exported []int
}

func (f *fakeExportEmitter) OnExported(kind string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported = append(f.exported, count)
}

func (f *fakeExportEmitter) OnActivity(item domain.ActivityItem) {}

func testClaims() []domain.ExportClaim {
	return []domain.ExportClaim{
		{
			ClaimID:     "c-1",
			Patient:     hl7.Patient{ExternalID: "PAT-1", LastName: "Doe", FirstName: "Jane"},
			VisitID:     "V-100",
			ServiceDate: "2026-03-01",
			Lines:       []hl7.ChargeLine{{CPTCode: "99213", Units: 1, Amount: 125.5}},
			Diagnoses:   []string{"J10.1"},
		},
		{
			ClaimID:     "c-2",
			Patient:     hl7.Patient{ExternalID: "PAT-2", LastName: "Roe", FirstName: "Bob"},
			VisitID:     "V-101",
			ServiceDate: "2026-03-01",
			Lines:       []hl7.ChargeLine{{CPTCode: "99214", Units: 1, Amount: 180}},
		},
	}
}

func newExportFixture(t *testing.T, remote *fakeRemote) (*ExportOrchestrator, string, *fakeExportEmitter) {
	t.Helper()
	outDir := t.TempDir()
	emitter := &fakeExportEmitter{}
	gen := hl7.NewGenerator("BILLING", "REMOTE", "EHR", "CLINIC")
	orch := NewExportOrchestrator(ExportConfig{
		OutputDir:  outDir,
		ClinicCode: "NORTH",
	}, remote, gen, log.NewNoopLogger(), emitter)
	orch.now = func() time.Time {
		return time.Date(2026, 3, 1, 14, 30, 5, 0, time.UTC)
	}
	return orch, outDir, emitter
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExportClaimsTwoPhase(t *testing.T) {
	remote := &fakeRemote{pendingClaims: ports.PendingClaims{FetchID: "f-1", Claims: testClaims()}}
	orch, outDir, emitter := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	files := listFiles(t, outDir)
	if len(files) != 2 {
		t.Fatalf("files = %v, want 2", files)
	}
	for _, name := range files {
		if !strings.HasPrefix(name, "NORTH_20260301143005_") || !strings.HasSuffix(name, ".hl7") {
			t.Errorf("filename %q does not match pattern", name)
		}
	}

	if len(remote.confirms) != 1 {
		t.Fatalf("confirm calls = %d, want 1", len(remote.confirms))
	}
	call := remote.confirms[0]
	if call.fetchID != "f-1" || len(call.results) != 2 {
		t.Fatalf("confirm = %+v", call)
	}
	for _, r := range call.results {
		if !r.Success || r.File == "" {
			t.Errorf("result = %+v", r)
		}
	}
	if len(remote.marks) != 0 {
		t.Error("legacy mark-exported must not be called when a fetch id exists")
	}

	if stats := orch.Stats(); stats.ExportedToday != 2 || stats.ExportFailures != 0 {
		t.Errorf("stats = %+v", stats)
	}
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if len(emitter.exported) != 1 || emitter.exported[0] != 2 {
		t.Errorf("OnExported = %v", emitter.exported)
	}
}

func TestExportClaimFileReparses(t *testing.T) {
	remote := &fakeRemote{pendingClaims: ports.PendingClaims{FetchID: "f-2", Claims: testClaims()[:1]}}
	orch, outDir, _ := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	files := listFiles(t, outDir)
	if len(files) != 1 {
		t.Fatalf("files = %v", files)
	}
	data, err := os.ReadFile(filepath.Join(outDir, files[0]))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	msg, err := hl7.Parse(string(data))
	if err != nil {
		t.Fatalf("generated file does not parse: %v", err)
	}
	if msg.Type != hl7.TypeCharge {
		t.Errorf("Type = %v, want charge", msg.Type)
	}
	enc := hl7.ExtractEncounter(msg)
	if enc.Patient.LastName != "DOE" || len(enc.Lines) != 1 || enc.Lines[0].CPTCode != "99213" {
		t.Errorf("encounter = %+v", enc)
	}
}

func TestExportLegacyMarkExported(t *testing.T) {
	remote := &fakeRemote{pendingClaims: ports.PendingClaims{Claims: testClaims()}}
	orch, _, _ := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(remote.confirms) != 0 {
		t.Error("confirm must not be called without a fetch id")
	}
	if len(remote.marks) != 1 || len(remote.marks[0]) != 2 {
		t.Fatalf("marks = %v", remote.marks)
	}
	if remote.marks[0][0] != "c-1" || remote.marks[0][1] != "c-2" {
		t.Errorf("marked ids = %v", remote.marks[0])
	}
}

func TestExportConfirmFailureKeepsFiles(t *testing.T) {
	remote := &fakeRemote{
		pendingClaims: ports.PendingClaims{FetchID: "f-3", Claims: testClaims()[:1]},
		confirmErr:    context.DeadlineExceeded,
	}
	orch, outDir, _ := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce must surface the confirmation failure")
	}

	if files := listFiles(t, outDir); len(files) != 1 {
		t.Fatalf("files = %v, want the written file to remain", files)
	}

	found := false
	for _, item := range orch.Activity() {
		if item.Message == confirmFailedActivityText {
			found = true
		}
	}
	if !found {
		t.Error("missing confirmation-failed activity item")
	}
}

func TestAdtExportMissingPatientReference(t *testing.T) {
	remote := &fakeRemote{adtPending: ports.PendingAdtExports{
		FetchID: "f-4",
		Exports: []domain.AdtExport{
			{QueueID: "q-1", Patient: hl7.Patient{ExternalID: "PAT-1", LastName: "Doe", FirstName: "Jane"}},
			{QueueID: "q-2", Patient: hl7.Patient{LastName: "Nameless"}},
		},
	}}
	orch, outDir, _ := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if files := listFiles(t, outDir); len(files) != 1 {
		t.Fatalf("files = %v, want 1", files)
	}
	if len(remote.adtConfirms) != 1 {
		t.Fatalf("adt confirms = %d", len(remote.adtConfirms))
	}
	results := remote.adtConfirms[0].results
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if !results[0].Success || results[0].ID != "q-1" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Success || results[1].Error != "missing patient reference" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if stats := orch.Stats(); stats.ExportedToday != 1 || stats.ExportFailures != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAdtExportFeatureUnavailable(t *testing.T) {
	remote := &fakeRemote{adtErr: domain.ErrFeatureUnavailable}
	orch, outDir, _ := newExportFixture(t, remote)

	if err := orch.RunOnce(context.Background()); err != nil {
		t.Fatalf("feature-unavailable must not be an error, got %v", err)
	}
	if files := listFiles(t, outDir); len(files) != 0 {
		t.Errorf("files = %v", files)
	}
}

func TestExportFileNameFallbackSuffix(t *testing.T) {
	remote := &fakeRemote{}
	orch, _, _ := newExportFixture(t, remote)

	a := orch.fileName("")
	b := orch.fileName("")
	if a == b {
		t.Errorf("names %q and %q must differ", a, b)
	}
	if !strings.HasPrefix(a, "NORTH_20260301143005_") {
		t.Errorf("name = %q", a)
	}
}

func TestExportedTodayRollsOver(t *testing.T) {
	remote := &fakeRemote{}
	orch, _, _ := newExportFixture(t, remote)

	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	orch.now = func() time.Time { return day1 }
	orch.record("claims", []domain.ExportResult{{ID: "c-1", Success: true}})

	if stats := orch.Stats(); stats.ExportedToday != 1 {
		t.Fatalf("ExportedToday = %d", stats.ExportedToday)
	}

	orch.now = func() time.Time { return day1.Add(time.Hour) }
	orch.record("claims", []domain.ExportResult{{ID: "c-2", Success: true}})

	if stats := orch.Stats(); stats.ExportedToday != 1 {
		t.Errorf("ExportedToday = %d, want reset to 1 on the new day", stats.ExportedToday)
	}
}

func TestExportPausedSkipsPolls(t *testing.T) {
	remote := &fakeRemote{pendingClaims: ports.PendingClaims{FetchID: "f-5", Claims: testClaims()}}
	orch, outDir, _ := newExportFixture(t, remote)
	orch.cfg.PollInterval = 10 * time.Millisecond
	orch.SetPaused(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	orch.Run(ctx)

	if files := listFiles(t, outDir); len(files) != 0 {
		t.Errorf("paused orchestrator wrote files: %v", files)
	}
	if len(remote.confirms) != 0 {
		t.Error("paused orchestrator polled the remote")
	}
}
