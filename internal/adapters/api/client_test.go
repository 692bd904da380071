package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medlink-labs/medlink/internal/adapters/log"
	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "key-123", "clinic-7", "1.2.3", srv.Client(), log.NewNoopLogger())
	return c, srv
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"ok":true}`))
	})

	if err := c.UpsertPatient(context.Background(), hl7.Patient{ExternalID: "PAT-1"}); err != nil {
		t.Fatalf("UpsertPatient: %v", err)
	}

	if auth := got.Get("Authorization"); auth != "Bearer key-123" {
		t.Errorf("Authorization = %q", auth)
	}
	if clinic := got.Get("X-Clinic-Id"); clinic != "clinic-7" {
		t.Errorf("X-Clinic-Id = %q", clinic)
	}
	if ver := got.Get("X-Agent-Version"); ver != "1.2.3" {
		t.Errorf("X-Agent-Version = %q", ver)
	}
	if got.Get("X-Agent-Hostname") == "" {
		t.Error("X-Agent-Hostname not set")
	}
	if ct := got.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestEnvelopeError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"dob is malformed","code":"validation"}`))
	})

	err := c.CreateCharge(context.Background(), hl7.Encounter{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *Error, got %v", err)
	}
	if apiErr.Code != CodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, CodeValidation)
	}
	if apiErr.Message != "dob is malformed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if errors.Is(err, domain.ErrCredentialsInvalid) {
		t.Error("validation error must not map to credentials-invalid")
	}
}

func TestCredentialsInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(w http.ResponseWriter)
	}{
		{"envelope code", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"ok":false,"error":"bad key","code":"unauthorized"}`))
		}},
		{"bare 403", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("forbidden"))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { tc.fn(w) })
			err := c.Heartbeat(context.Background(), ports.Heartbeat{})
			if !errors.Is(err, domain.ErrCredentialsInvalid) {
				t.Fatalf("want credentials-invalid, got %v", err)
			}
		})
	}
}

func TestHeartbeatPayload(t *testing.T) {
	var got ports.Heartbeat
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agent/heartbeat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode heartbeat: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	hb := ports.Heartbeat{AgentVersion: "1.2.3", Hostname: "clinic-pc", InstanceID: "i-1", PendingFiles: 4}
	if err := c.Heartbeat(context.Background(), hb); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got.PendingFiles != 4 || got.InstanceID != "i-1" {
		t.Errorf("payload = %+v", got)
	}
	if got.OSUser == "" {
		t.Error("OSUser not filled in")
	}
}

func TestPendingExports(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q", r.Method)
		}
		w.Write([]byte(`{"ok":true,"fetchId":"f-42","claims":[
			{"claimId":"c-1","patient":{"externalId":"PAT-1","lastName":"Doe","firstName":"Jane"},
			 "lines":[{"cptCode":"99213","units":1,"amount":125.5}]},
			{"claimId":"c-2","patient":{"externalId":"PAT-2","lastName":"Roe","firstName":"Bob"},"lines":[]}
		]}`))
	})

	pending, err := c.PendingExports(context.Background())
	if err != nil {
		t.Fatalf("PendingExports: %v", err)
	}
	if pending.FetchID != "f-42" {
		t.Errorf("FetchID = %q", pending.FetchID)
	}
	if len(pending.Claims) != 2 {
		t.Fatalf("got %d claims", len(pending.Claims))
	}
	if pending.Claims[0].ClaimID != "c-1" || pending.Claims[0].Lines[0].Amount != 125.5 {
		t.Errorf("claim[0] = %+v", pending.Claims[0])
	}
}

func TestConfirmExportBody(t *testing.T) {
	var got struct {
		FetchID string                `json:"fetchId"`
		Results []domain.ExportResult `json:"results"`
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/exports/confirm" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode confirm: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	results := []domain.ExportResult{
		{ID: "c-1", Success: true, File: "clinic_20260101_c-1.hl7"},
		{ID: "c-2", Success: false, Error: "missing patient"},
	}
	if err := c.ConfirmExport(context.Background(), "f-42", results); err != nil {
		t.Fatalf("ConfirmExport: %v", err)
	}
	if got.FetchID != "f-42" || len(got.Results) != 2 || got.Results[1].Error != "missing patient" {
		t.Errorf("body = %+v", got)
	}
}

func TestPendingAdtExportsFeatureUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.PendingAdtExports(context.Background())
	if !errors.Is(err, domain.ErrFeatureUnavailable) {
		t.Fatalf("want feature-unavailable, got %v", err)
	}
}

func TestServerErrorWithoutEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>gateway timeout</html>"))
	})

	err := c.CreateNote(context.Background(), hl7.Note{})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *Error, got %v", err)
	}
	if apiErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d", apiErr.HTTPStatus)
	}
}

func TestMarkExported(t *testing.T) {
	var got struct {
		ClaimIDs []string `json:"claimIds"`
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/exports/mark" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode mark: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	})

	if err := c.MarkExported(context.Background(), []string{"c-1", "c-2"}); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	if len(got.ClaimIDs) != 2 || got.ClaimIDs[0] != "c-1" {
		t.Errorf("claimIds = %v", got.ClaimIDs)
	}
}

func TestStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"clinicName":"Northside Family","apiVersion":"2024-11"}`))
	})

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ClinicName != "Northside Family" || st.APIVersion != "2024-11" {
		t.Errorf("status = %+v", st)
	}
}
