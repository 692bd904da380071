package medlink

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medlink-labs/medlink/internal/adapters/api"
	"github.com/medlink-labs/medlink/internal/app"
	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
	"github.com/medlink-labs/medlink/internal/statusapi"
	"github.com/medlink-labs/medlink/internal/watch"
)

// Message sending/receiving application identifiers used in generated HL7.
const (
	sendingApplication   = "MEDLINK"
	receivingApplication = "PMS"
)

// Medlink is the clinic integration agent. It can be embedded in other
// applications; use New() to create an instance, then Start() to begin.
type Medlink struct {
	config     Config
	opts       options
	lifecycle  *app.Lifecycle
	watcher    *watch.Watcher
	sync       *app.SyncOrchestrator
	export     *app.ExportOrchestrator
	status     *statusapi.Server
	remote     ports.Remote
	logger     ports.Logger
	instanceID string

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
}

// New creates a new Medlink instance with the given configuration.
// The instance is created in StateStopped; call Start() to begin.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Medlink, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	o := defaultOptions(httpClient)
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	lifecycle := app.NewLifecycle(logger, emitter)
	remote := api.NewClient(cfg.APIURL, cfg.APIKey, cfg.ClinicID, cfg.AgentVersion, o.httpClient, logger)

	watcher := watch.NewWatcher(cfg.WatchDir, watch.Options{
		Debounce:    cfg.Debounce,
		MaxFileSize: cfg.MaxFileSize,
	}, logger)

	instanceID := uuid.NewString()

	syncOrch := app.NewSyncOrchestrator(app.SyncConfig{
		ProcessedDir:      cfg.ProcessedDir,
		FailedDir:         cfg.FailedDir,
		DeleteOnSuccess:   cfg.DeleteOnSuccess,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		AgentVersion:      cfg.AgentVersion,
		InstanceID:        instanceID,
	}, watcher, remote, logger, emitter)

	var exportOrch *app.ExportOrchestrator
	if cfg.ExportEnabled {
		gen := hl7.NewGenerator(sendingApplication, cfg.ClinicCode, receivingApplication, cfg.ClinicCode)
		exportOrch = app.NewExportOrchestrator(app.ExportConfig{
			OutputDir:    cfg.ExportDir,
			ClinicCode:   cfg.ClinicCode,
			PollInterval: cfg.PollInterval,
			FilePattern:  cfg.ExportFilePattern,
		}, remote, gen, logger, emitter)
	}

	m := &Medlink{
		config:     cfg,
		opts:       o,
		lifecycle:  lifecycle,
		watcher:    watcher,
		sync:       syncOrch,
		export:     exportOrch,
		remote:     remote,
		logger:     logger,
		instanceID: instanceID,
	}

	if cfg.StatusAddr != "" {
		m.status = statusapi.NewServer(cfg.StatusAddr, &statusSource{m: m}, logger)
	}

	return m, nil
}

// Start begins watching and polling in the background.
// Returns immediately after starting the worker goroutines.
// Returns an error if already running or if startup fails.
// The provided context is used for the lifetime of the agent.
func (m *Medlink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}

	if err := m.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.lifecycle.SetCancel(cancel)
	m.startedAt = time.Now()

	if m.status != nil {
		if _, err := m.status.Start(); err != nil {
			cancel()
			_ = m.lifecycle.TransitionTo(app.StateCrashed, "status server failed")
			return err
		}
	}

	m.lifecycle.AddWorker()
	go func() {
		defer m.lifecycle.WorkerDone()
		if err := m.sync.Run(runCtx); err != nil && err != context.Canceled {
			m.logger.Error("sync orchestrator stopped", ports.Err(err))
			_ = m.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	}()

	if m.export != nil {
		m.lifecycle.AddWorker()
		go func() {
			defer m.lifecycle.WorkerDone()
			if err := m.export.Run(runCtx); err != nil && err != context.Canceled {
				m.logger.Error("export orchestrator stopped", ports.Err(err))
				_ = m.lifecycle.TransitionTo(app.StateCrashed, err.Error())
			}
		}()
	}

	return m.lifecycle.TransitionTo(app.StateRunning, "agent started")
}

// Stop gracefully shuts down the agent. In-flight work completes; the file
// queue and remote queue are re-derived on the next start.
// Waits up to 30 seconds before forcing shutdown.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (m *Medlink) Stop() error {
	m.mu.Lock()

	if !m.lifecycle.CanStop() {
		m.mu.Unlock()
		return domain.ErrNotRunning
	}

	if err := m.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		m.mu.Unlock()
		return err
	}

	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	err := m.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	if m.status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = m.status.Shutdown(shutdownCtx)
		cancel()
	}

	if err != nil {
		_ = m.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = m.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}

	return err
}

// Pause suspends file hand-off and export polling. In-flight work completes.
func (m *Medlink) Pause() error {
	if err := m.lifecycle.TransitionTo(app.StatePaused, "Pause() called"); err != nil {
		return err
	}
	m.sync.SetPaused(true)
	if m.export != nil {
		m.export.SetPaused(true)
	}
	return nil
}

// Resume reverses Pause.
func (m *Medlink) Resume() error {
	if err := m.lifecycle.TransitionTo(app.StateRunning, "Resume() called"); err != nil {
		return err
	}
	m.sync.SetPaused(false)
	if m.export != nil {
		m.export.SetPaused(false)
	}
	return nil
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (m *Medlink) Status() State {
	return convertState(m.lifecycle.State())
}

// SyncStats returns a snapshot of the inbound counters.
func (m *Medlink) SyncStats() domain.SyncStats {
	return m.sync.Stats()
}

// ExportStats returns a snapshot of the outbound counters.
func (m *Medlink) ExportStats() domain.ExportStats {
	if m.export == nil {
		return domain.ExportStats{}
	}
	return m.export.Stats()
}

// CheckRemote verifies connectivity and credentials against the remote API.
func (m *Medlink) CheckRemote(ctx context.Context) (string, error) {
	st, err := m.remote.Status(ctx)
	if err != nil {
		return "", err
	}
	return st.ClinicName, nil
}

// RunOnce processes everything currently in the watch folder, runs one export
// poll cycle, and stops. Intended for scripted or scheduled invocations.
func (m *Medlink) RunOnce(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	// Give the watcher time to debounce the initial scan, then wait until
	// the queue drains.
	settle := m.config.Debounce*2 + 200*time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(settle):
	}
	for m.sync != nil && !m.sync.Drained() {
		select {
		case <-ctx.Done():
			return m.Stop()
		case <-time.After(100 * time.Millisecond):
		}
	}

	if m.export != nil {
		if err := m.export.RunOnce(ctx); err != nil {
			m.logger.Warn("single-pass export cycle failed", ports.Err(err))
		}
	}

	return m.Stop()
}

// statusSource adapts Medlink to the status server's read-only view.
type statusSource struct {
	m *Medlink
}

func (s *statusSource) Status() statusapi.Status {
	syncStats := s.m.SyncStats()
	exportStats := s.m.ExportStats()
	s.m.mu.RLock()
	startedAt := s.m.startedAt
	s.m.mu.RUnlock()
	return statusapi.Status{
		State:        s.m.Status().String(),
		Version:      s.m.config.AgentVersion,
		StartedAt:    startedAt,
		PendingFiles: syncStats.PendingFiles,
		LastSyncAt:   syncStats.LastSyncAt,
		LastExportAt: exportStats.LastExportAt,
	}
}

func (s *statusSource) SyncStats() domain.SyncStats {
	return s.m.SyncStats()
}

func (s *statusSource) ExportStats() domain.ExportStats {
	return s.m.ExportStats()
}

func (s *statusSource) Activity() []domain.ActivityItem {
	items := s.m.sync.Activity()
	if s.m.export != nil {
		items = append(items, s.m.export.Activity()...)
	}
	return items
}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnFileSynced(file string, messages int) {
	if e.handler == nil {
		return
	}
	e.handler.OnFileSynced(FileSyncedEvent{File: file, Messages: messages})
}

func (e *eventEmitterWrapper) OnFileFailed(file string, attempts int, err error) {
	if e.handler == nil {
		return
	}
	e.handler.OnFileFailed(FileFailedEvent{File: file, Attempts: attempts, Err: err})
}

func (e *eventEmitterWrapper) OnExported(kind string, count int) {
	if e.handler == nil {
		return
	}
	e.handler.OnExported(ExportedEvent{Kind: kind, Count: count})
}

func (e *eventEmitterWrapper) OnCredentialsInvalid() {
	if e.handler == nil {
		return
	}
	e.handler.OnCredentialsInvalid()
}

func (e *eventEmitterWrapper) OnActivity(item domain.ActivityItem) {
	if e.handler == nil {
		return
	}
	e.handler.OnActivity(ActivityItem{
		Time:    item.Time,
		Level:   string(item.Level),
		Message: item.Message,
		File:    item.File,
	})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StatePaused:
		return StatePaused
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}
