// Package api implements the ports.Remote clinic API client over HTTP.
//
// Every endpoint speaks the same JSON envelope: {"ok":true,...payload} on
// success, {"ok":false,"error":...,"code":...,"details":...} on failure.
// Envelope failures surface as *Error; credential-class failures additionally
// unwrap to domain.ErrCredentialsInvalid.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
)

const (
	heartbeatEndpoint         = "/v1/agent/heartbeat"
	statusEndpoint            = "/v1/agent/status"
	patientUpsertEndpoint     = "/v1/patients/upsert"
	chargeEndpoint            = "/v1/encounters/charge"
	noteEndpoint              = "/v1/notes"
	pendingExportsEndpoint    = "/v1/exports/pending"
	markExportedEndpoint      = "/v1/exports/mark"
	confirmExportEndpoint     = "/v1/exports/confirm"
	pendingAdtExportsEndpoint = "/v1/adt-exports/pending"
	confirmAdtExportEndpoint  = "/v1/adt-exports/confirm"
)

// Client implements ports.Remote against the clinic API.
type Client struct {
	baseURL      string
	apiKey       string
	clinicID     string
	agentVersion string
	hostname     string
	client       ports.HTTPClient
	logger       ports.Logger
}

// NewClient creates a remote API client. baseURL has no trailing slash;
// agentVersion is reported on every request.
func NewClient(baseURL, apiKey, clinicID, agentVersion string, client ports.HTTPClient, logger ports.Logger) *Client {
	hostname, _ := os.Hostname()
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		clinicID:     clinicID,
		agentVersion: agentVersion,
		hostname:     hostname,
		client:       client,
		logger:       logger,
	}
}

// envelope is the common response wrapper.
type envelope struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

// Heartbeat reports liveness, identity and the pending-file count.
func (c *Client) Heartbeat(ctx context.Context, hb ports.Heartbeat) error {
	if hb.OSUser == "" {
		if u, err := user.Current(); err == nil {
			hb.OSUser = u.Username
		}
	}
	return c.post(ctx, heartbeatEndpoint, hb, nil)
}

// Status fetches the remote side's self-description, used for the
// interactive connectivity check.
func (c *Client) Status(ctx context.Context) (ports.RemoteStatus, error) {
	var out struct {
		envelope
		ports.RemoteStatus
	}
	if err := c.get(ctx, statusEndpoint, &out); err != nil {
		return ports.RemoteStatus{}, err
	}
	return out.RemoteStatus, nil
}

// UpsertPatient creates or updates one patient record.
func (c *Client) UpsertPatient(ctx context.Context, p hl7.Patient) error {
	return c.post(ctx, patientUpsertEndpoint, p, nil)
}

// CreateCharge submits one encounter with its charge lines.
func (c *Client) CreateCharge(ctx context.Context, enc hl7.Encounter) error {
	return c.post(ctx, chargeEndpoint, enc, nil)
}

// CreateNote submits one clinical note.
func (c *Client) CreateNote(ctx context.Context, n hl7.Note) error {
	return c.post(ctx, noteEndpoint, n, nil)
}

// PendingExports polls for billing claims awaiting local materialization.
func (c *Client) PendingExports(ctx context.Context) (ports.PendingClaims, error) {
	var out struct {
		envelope
		ports.PendingClaims
	}
	if err := c.get(ctx, pendingExportsEndpoint, &out); err != nil {
		return ports.PendingClaims{}, err
	}
	return out.PendingClaims, nil
}

// MarkExported is the legacy one-way acknowledgement, used when the pending
// poll returned no fetch id.
func (c *Client) MarkExported(ctx context.Context, claimIDs []string) error {
	body := struct {
		ClaimIDs []string `json:"claimIds"`
	}{ClaimIDs: claimIDs}
	return c.post(ctx, markExportedEndpoint, body, nil)
}

// ConfirmExport reports per-claim results for one fetch cycle.
func (c *Client) ConfirmExport(ctx context.Context, fetchID string, results []domain.ExportResult) error {
	body := struct {
		FetchID string                `json:"fetchId"`
		Results []domain.ExportResult `json:"results"`
	}{FetchID: fetchID, Results: results}
	return c.post(ctx, confirmExportEndpoint, body, nil)
}

// PendingAdtExports polls for patient-insurance updates. A 404 means the
// remote deployment predates the endpoint and maps to
// domain.ErrFeatureUnavailable.
func (c *Client) PendingAdtExports(ctx context.Context) (ports.PendingAdtExports, error) {
	var out struct {
		envelope
		ports.PendingAdtExports
	}
	if err := c.get(ctx, pendingAdtExportsEndpoint, &out); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && (apiErr.HTTPStatus == http.StatusNotFound || apiErr.Code == CodeNotFound) {
			return ports.PendingAdtExports{}, domain.ErrFeatureUnavailable
		}
		return ports.PendingAdtExports{}, err
	}
	return out.PendingAdtExports, nil
}

// ConfirmAdtExport reports per-update results for one fetch cycle.
func (c *Client) ConfirmAdtExport(ctx context.Context, fetchID string, results []domain.ExportResult) error {
	body := struct {
		FetchID string                `json:"fetchId"`
		Results []domain.ExportResult `json:"results"`
	}{FetchID: fetchID, Results: results}
	return c.post(ctx, confirmAdtExportEndpoint, body, nil)
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, payload, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Clinic-Id", c.clinicID)
	req.Header.Set("X-Agent-Version", c.agentVersion)
	req.Header.Set("X-Agent-Hostname", c.hostname)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(respBody, &env); jsonErr != nil || (resp.StatusCode/100 != 2 && env.Error == "") {
		if resp.StatusCode/100 != 2 {
			return &Error{
				Message:    fmt.Sprintf("server returned %d", resp.StatusCode),
				HTTPStatus: resp.StatusCode,
			}
		}
		if jsonErr != nil {
			return fmt.Errorf("decode response: %w", jsonErr)
		}
	}

	if !env.OK {
		return &Error{
			Code:       env.Code,
			Message:    env.Error,
			HTTPStatus: resp.StatusCode,
			Details:    env.Details,
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
