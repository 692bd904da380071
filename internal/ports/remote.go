package ports

import (
	"context"
	"time"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
)

// Heartbeat is the periodic liveness report sent to the remote side.
type Heartbeat struct {
	AgentVersion string    `json:"agentVersion"`
	Hostname     string    `json:"hostname"`
	OSUser       string    `json:"osUser"`
	InstanceID   string    `json:"instanceId"`
	PendingFiles int       `json:"pendingFiles"`
	LastSyncAt   time.Time `json:"lastSyncAt,omitempty"`
}

// RemoteStatus is the remote side's self-description, used by the CLI
// connectivity check.
type RemoteStatus struct {
	ClinicName string `json:"clinicName"`
	APIVersion string `json:"apiVersion"`
}

// PendingClaims is the response of one claim-export poll. FetchID is the
// correlation id echoed back on ConfirmExport; when empty the remote side
// predates the confirmation protocol and MarkExported is used instead.
type PendingClaims struct {
	FetchID string               `json:"fetchId"`
	Claims  []domain.ExportClaim `json:"claims"`
}

// PendingAdtExports is the response of one insurance-update poll, keyed by
// per-record queue ids.
type PendingAdtExports struct {
	FetchID string             `json:"fetchId"`
	Exports []domain.AdtExport `json:"exports"`
}

// Remote is the clinic API port: one method per remote operation.
// Implementations translate envelope failures into typed errors;
// unauthorized/forbidden map to domain.ErrCredentialsInvalid and a 404 on an
// optional endpoint maps to domain.ErrFeatureUnavailable.
type Remote interface {
	Heartbeat(ctx context.Context, hb Heartbeat) error
	Status(ctx context.Context) (RemoteStatus, error)

	UpsertPatient(ctx context.Context, p hl7.Patient) error
	CreateCharge(ctx context.Context, enc hl7.Encounter) error
	CreateNote(ctx context.Context, n hl7.Note) error

	PendingExports(ctx context.Context) (PendingClaims, error)
	MarkExported(ctx context.Context, claimIDs []string) error
	ConfirmExport(ctx context.Context, fetchID string, results []domain.ExportResult) error

	PendingAdtExports(ctx context.Context) (PendingAdtExports, error)
	ConfirmAdtExport(ctx context.Context, fetchID string, results []domain.ExportResult) error
}
