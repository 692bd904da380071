package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
)

// Default export orchestrator settings.
const (
	DefaultPollInterval       = 60 * time.Second
	DefaultExportFilePattern  = "{clinic}_{timestamp}_{id}"
	exportTimestampLayout     = "20060102150405"
	exportActivityCap         = 50
	confirmFailedActivityText = "confirmation failed, files written locally"
)

// ExportConfig contains the outbound export settings.
type ExportConfig struct {
	OutputDir    string
	ClinicCode   string
	PollInterval time.Duration
	FilePattern  string // placeholders: {clinic}, {timestamp}, {id}
}

// ExportOrchestrator polls the remote side for outbound work, materializes
// it as HL7 files, and runs the two-phase confirmation. The claim and
// insurance-update loops share one schedule but fail independently.
type ExportOrchestrator struct {
	cfg     ExportConfig
	remote  ports.Remote
	gen     *hl7.Generator
	logger  ports.Logger
	emitter ExportEventEmitter

	activity *domain.ActivityLog
	now      func() time.Time

	mu       sync.Mutex
	paused   bool
	stats    domain.ExportStats
	statsDay string
}

// NewExportOrchestrator creates the outbound orchestrator. Zero config
// values select the defaults above.
func NewExportOrchestrator(cfg ExportConfig, remote ports.Remote, gen *hl7.Generator, logger ports.Logger, emitter ExportEventEmitter) *ExportOrchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FilePattern == "" {
		cfg.FilePattern = DefaultExportFilePattern
	}
	return &ExportOrchestrator{
		cfg:      cfg,
		remote:   remote,
		gen:      gen,
		logger:   logger,
		emitter:  emitter,
		activity: domain.NewActivityLog(exportActivityCap),
		now:      time.Now,
	}
}

// Run polls on the configured interval until ctx is cancelled. While paused
// the scheduled poll is skipped entirely.
func (e *ExportOrchestrator) Run(ctx context.Context) error {
	bo := newBackoff(DefaultBackoffInitial, e.cfg.PollInterval)
	for {
		delay := e.cfg.PollInterval
		if !e.isPaused() {
			if err := e.RunOnce(ctx); err != nil {
				delay = bo.Next()
			} else {
				bo.Reset()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunOnce executes one full poll cycle: claims, then insurance updates.
func (e *ExportOrchestrator) RunOnce(ctx context.Context) error {
	claimErr := e.pollClaims(ctx)
	adtErr := e.pollAdtExports(ctx)
	if claimErr != nil {
		return claimErr
	}
	return adtErr
}

// SetPaused toggles polling. An in-progress cycle completes either way.
func (e *ExportOrchestrator) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

func (e *ExportOrchestrator) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Stats returns a snapshot of the export counters.
func (e *ExportOrchestrator) Stats() domain.ExportStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Activity returns the retained activity items, oldest first.
func (e *ExportOrchestrator) Activity() []domain.ActivityItem {
	return e.activity.Items()
}

// pollClaims fetches pending billing claims, writes one file per claim, and
// confirms the batch. Files already written are never rolled back; a failed
// confirmation is surfaced as its own error.
func (e *ExportOrchestrator) pollClaims(ctx context.Context) error {
	pending, err := e.remote.PendingExports(ctx)
	if err != nil {
		e.logger.Warn("claim export poll failed", ports.Err(err))
		return err
	}
	if len(pending.Claims) == 0 {
		return nil
	}

	results := make([]domain.ExportResult, 0, len(pending.Claims))
	for _, claim := range pending.Claims {
		results = append(results, e.writeClaim(claim))
	}
	e.record("claims", results)

	if pending.FetchID == "" {
		// Legacy remote: only acknowledge the claims that made it to disk.
		var written []string
		for _, r := range results {
			if r.Success {
				written = append(written, r.ID)
			}
		}
		if len(written) == 0 {
			return nil
		}
		if err := e.remote.MarkExported(ctx, written); err != nil {
			e.confirmFailed(err)
			return err
		}
		return nil
	}

	if err := e.remote.ConfirmExport(ctx, pending.FetchID, results); err != nil {
		e.confirmFailed(err)
		return err
	}
	return nil
}

// pollAdtExports fetches pending patient-insurance updates. A remote that
// does not serve the endpoint is treated as absence of work, not an error.
// A record without its counterpart-system patient reference fails alone
// without aborting the batch.
func (e *ExportOrchestrator) pollAdtExports(ctx context.Context) error {
	pending, err := e.remote.PendingAdtExports(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrFeatureUnavailable) {
			return nil
		}
		e.logger.Warn("insurance-update export poll failed", ports.Err(err))
		return err
	}
	if len(pending.Exports) == 0 {
		return nil
	}

	results := make([]domain.ExportResult, 0, len(pending.Exports))
	for _, exp := range pending.Exports {
		results = append(results, e.writeAdtExport(exp))
	}
	e.record("insurance updates", results)

	if err := e.remote.ConfirmAdtExport(ctx, pending.FetchID, results); err != nil {
		e.confirmFailed(err)
		return err
	}
	return nil
}

func (e *ExportOrchestrator) writeClaim(claim domain.ExportClaim) domain.ExportResult {
	name := e.fileName(claim.ClaimID)
	text := e.gen.Charge(claim.ToClaim())
	if err := e.writeFile(name, text); err != nil {
		e.logger.Error("cannot write claim file",
			ports.String("claim_id", claim.ClaimID), ports.Err(err))
		return domain.ExportResult{ID: claim.ClaimID, Error: err.Error()}
	}
	return domain.ExportResult{ID: claim.ClaimID, Success: true, File: name}
}

func (e *ExportOrchestrator) writeAdtExport(exp domain.AdtExport) domain.ExportResult {
	if exp.Patient.ExternalID == "" {
		e.logger.Warn("insurance update lacks patient reference, skipping",
			ports.String("queue_id", exp.QueueID))
		return domain.ExportResult{ID: exp.QueueID, Error: "missing patient reference"}
	}

	name := e.fileName(exp.QueueID)
	text := e.gen.Insurance(exp.ToUpdate())
	if err := e.writeFile(name, text); err != nil {
		e.logger.Error("cannot write insurance-update file",
			ports.String("queue_id", exp.QueueID), ports.Err(err))
		return domain.ExportResult{ID: exp.QueueID, Error: err.Error()}
	}
	return domain.ExportResult{ID: exp.QueueID, Success: true, File: name}
}

func (e *ExportOrchestrator) writeFile(name, content string) error {
	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(e.cfg.OutputDir, name), []byte(content), 0644)
}

// fileName expands the filename pattern. The record id keeps same-second
// exports unique; records without an id get a short random suffix.
func (e *ExportOrchestrator) fileName(id string) string {
	if id == "" {
		id = uuid.NewString()[:8]
	}
	name := strings.NewReplacer(
		"{clinic}", e.cfg.ClinicCode,
		"{timestamp}", e.now().Format(exportTimestampLayout),
		"{id}", id,
	).Replace(e.cfg.FilePattern)
	return name + ".hl7"
}

// record updates counters and activity for one written batch.
func (e *ExportOrchestrator) record(kind string, results []domain.ExportResult) {
	written, failed := 0, 0
	for _, r := range results {
		if r.Success {
			written++
		} else {
			failed++
		}
	}

	now := e.now()
	day := now.Format("2006-01-02")

	e.mu.Lock()
	if e.statsDay != day {
		e.statsDay = day
		e.stats.ExportedToday = 0
	}
	e.stats.ExportedToday += written
	e.stats.ExportFailures += failed
	if written > 0 {
		e.stats.LastExportAt = now
	}
	e.mu.Unlock()

	if written > 0 {
		e.addActivity(domain.ActivitySuccess, fmt.Sprintf("exported %d %s", written, kind), "")
		if e.emitter != nil {
			e.emitter.OnExported(kind, written)
		}
	}
	if failed > 0 {
		e.addActivity(domain.ActivityError, fmt.Sprintf("%d %s could not be written", failed, kind), "")
	}

	e.logger.Info("export batch processed",
		ports.String("kind", kind),
		ports.Int("written", written),
		ports.Int("failed", failed))
}

func (e *ExportOrchestrator) confirmFailed(err error) {
	e.addActivity(domain.ActivityError, confirmFailedActivityText, "")
	e.logger.Error("export confirmation failed, files remain on disk", ports.Err(err))
}

func (e *ExportOrchestrator) addActivity(level domain.ActivityLevel, message, file string) {
	e.activity.Add(level, message, file)
	if e.emitter != nil {
		e.emitter.OnActivity(domain.ActivityItem{
			Time:    e.now(),
			Level:   level,
			Message: message,
			File:    file,
		})
	}
}
