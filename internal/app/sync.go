package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/hl7"
	"github.com/medlink-labs/medlink/internal/ports"
	"github.com/medlink-labs/medlink/internal/watch"
)

// Default sync orchestrator settings.
const (
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 5 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second

	syncActivityCap = 100
)

// SyncConfig contains the inbound sync settings.
type SyncConfig struct {
	ProcessedDir      string // move-on-success destination; empty with DeleteOnSuccess false keeps files in place
	FailedDir         string
	DeleteOnSuccess   bool
	MaxRetries        int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration

	AgentVersion string
	Hostname     string
	InstanceID   string
}

// SyncOrchestrator drives the inbound flow: dequeued file, decoded messages,
// routed remote calls, file disposition. All messages in a file must succeed
// for the file to succeed; any failure fails the whole file.
type SyncOrchestrator struct {
	cfg     SyncConfig
	watcher *watch.Watcher
	remote  ports.Remote
	logger  ports.Logger
	emitter SyncEventEmitter

	activity *domain.ActivityLog

	mu      sync.Mutex
	stats   domain.SyncStats
	retries map[string]int
}

// NewSyncOrchestrator creates the inbound orchestrator. Zero config values
// select the defaults above.
func NewSyncOrchestrator(cfg SyncConfig, watcher *watch.Watcher, remote ports.Remote, logger ports.Logger, emitter SyncEventEmitter) *SyncOrchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	return &SyncOrchestrator{
		cfg:      cfg,
		watcher:  watcher,
		remote:   remote,
		logger:   logger,
		emitter:  emitter,
		activity: domain.NewActivityLog(syncActivityCap),
		retries:  make(map[string]int),
	}
}

// Run registers the file handler, starts the watcher, and runs the heartbeat
// loop until ctx is cancelled.
func (s *SyncOrchestrator) Run(ctx context.Context) error {
	s.watcher.SetHandler(func(ev domain.FileEvent) {
		s.handleFile(ctx, ev)
	})

	if err := s.watcher.Start(ctx); err != nil {
		return err
	}

	bo := newBackoff(DefaultBackoffInitial, s.cfg.HeartbeatInterval)
	for {
		delay := s.cfg.HeartbeatInterval
		if err := s.heartbeat(ctx); err != nil && !errors.Is(err, domain.ErrCredentialsInvalid) {
			// Transient failure; probe again sooner.
			delay = bo.Next()
		} else {
			bo.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// SetPaused toggles file hand-off. In-flight work completes either way.
func (s *SyncOrchestrator) SetPaused(paused bool) {
	s.watcher.SetPaused(paused)
}

// Drained reports whether no accepted files remain, used by single-pass mode.
func (s *SyncOrchestrator) Drained() bool {
	return s.watcher.Pending() == 0
}

// Stats returns a snapshot of the sync counters.
func (s *SyncOrchestrator) Stats() domain.SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.PendingFiles = s.watcher.Pending()
	return st
}

// Activity returns the retained activity items, oldest first.
func (s *SyncOrchestrator) Activity() []domain.ActivityItem {
	return s.activity.Items()
}

// handleFile processes one dequeued file and reports its disposition back to
// the watcher.
func (s *SyncOrchestrator) handleFile(ctx context.Context, ev domain.FileEvent) {
	messages, err := s.processFile(ctx, ev)
	if err != nil {
		s.fail(ev, err)
		return
	}
	s.succeed(ev, messages)
}

// processFile reads, splits, and routes every message in the file. It returns
// the number of messages forwarded (skipped unknowns excluded).
func (s *SyncOrchestrator) processFile(ctx context.Context, ev domain.FileEvent) (int, error) {
	data, err := os.ReadFile(ev.Path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	chunks := hl7.SplitBatch(string(data))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no messages found in file")
	}

	forwarded := 0
	for i, chunk := range chunks {
		msg, err := hl7.Parse(chunk)
		if err != nil {
			return forwarded, fmt.Errorf("message %d: %w", i+1, err)
		}

		switch msg.Type {
		case hl7.TypePatientRegister, hl7.TypePatientUpdate, hl7.TypePatientMerge:
			err = s.remote.UpsertPatient(ctx, hl7.ExtractPatient(msg))
		case hl7.TypeCharge:
			err = s.remote.CreateCharge(ctx, hl7.ExtractEncounter(msg))
		case hl7.TypeResult:
			err = s.remote.CreateNote(ctx, hl7.ExtractNote(msg))
		default:
			s.logger.Warn("skipping unrecognized message type",
				ports.String("file", ev.Name),
				ports.String("type", msg.TypeCode),
				ports.String("control_id", msg.ControlID))
			continue
		}
		if err != nil {
			return forwarded, fmt.Errorf("message %d (%s): %w", i+1, msg.Type, err)
		}
		forwarded++
	}
	return forwarded, nil
}

func (s *SyncOrchestrator) succeed(ev domain.FileEvent, messages int) {
	if err := s.dispose(ev); err != nil {
		// The records made it to the remote side; failing the file now
		// would resend them. Keep the success, surface the housekeeping
		// problem loudly.
		s.logger.Error("file synced but disposition failed",
			ports.String("file", ev.Name), ports.Err(err))
	}

	s.mu.Lock()
	delete(s.retries, ev.Path)
	s.stats.FilesSynced++
	s.stats.MessagesProcessed += messages
	s.stats.LastSyncAt = time.Now()
	s.mu.Unlock()

	s.addActivity(domain.ActivitySuccess, fmt.Sprintf("synced %d message(s)", messages), ev.Name)
	s.logger.Info("file synced",
		ports.String("file", ev.Name),
		ports.Int("messages", messages))
	if s.emitter != nil {
		s.emitter.OnFileSynced(ev.Name, messages)
	}

	s.watcher.Complete(ev.Path, false, 0)
}

func (s *SyncOrchestrator) fail(ev domain.FileEvent, cause error) {
	if errors.Is(cause, domain.ErrCredentialsInvalid) && s.emitter != nil {
		s.emitter.OnCredentialsInvalid()
	}

	s.mu.Lock()
	s.retries[ev.Path]++
	attempts := s.retries[ev.Path]
	permanent := attempts >= s.cfg.MaxRetries
	if permanent {
		delete(s.retries, ev.Path)
		s.stats.FilesFailed++
	}
	s.mu.Unlock()

	if !permanent {
		s.addActivity(domain.ActivityInfo,
			fmt.Sprintf("sync failed (attempt %d of %d), will retry: %v", attempts, s.cfg.MaxRetries, cause),
			ev.Name)
		s.logger.Warn("file sync failed, scheduling retry",
			ports.String("file", ev.Name),
			ports.Int("attempt", attempts),
			ports.Err(cause))
		s.watcher.Complete(ev.Path, true, s.cfg.RetryDelay)
		return
	}

	if err := s.moveTo(ev, s.cfg.FailedDir); err != nil {
		s.logger.Error("cannot move failed file",
			ports.String("file", ev.Name), ports.Err(err))
	}

	s.addActivity(domain.ActivityError,
		fmt.Sprintf("sync failed permanently after %d attempts: %v", attempts, cause),
		ev.Name)
	s.logger.Error("file failed permanently",
		ports.String("file", ev.Name),
		ports.Int("attempts", attempts),
		ports.Err(cause))
	if s.emitter != nil {
		s.emitter.OnFileFailed(ev.Name, attempts, cause)
	}

	s.watcher.Complete(ev.Path, false, 0)
}

// dispose applies the configured success disposition: delete, or move to the
// processed folder. With neither configured the file stays where it is.
func (s *SyncOrchestrator) dispose(ev domain.FileEvent) error {
	if s.cfg.DeleteOnSuccess {
		return os.Remove(ev.Path)
	}
	if s.cfg.ProcessedDir != "" {
		return s.moveTo(ev, s.cfg.ProcessedDir)
	}
	return nil
}

func (s *SyncOrchestrator) moveTo(ev domain.FileEvent, dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	dest := filepath.Join(dir, ev.Name)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(dir, time.Now().Format("20060102150405")+"_"+ev.Name)
	}
	return os.Rename(ev.Path, dest)
}

// heartbeat reports identity and progress. A credential rejection surfaces
// the distinct reconfigure signal instead of a retry.
func (s *SyncOrchestrator) heartbeat(ctx context.Context) error {
	s.mu.Lock()
	lastSync := s.stats.LastSyncAt
	s.mu.Unlock()

	hb := ports.Heartbeat{
		AgentVersion: s.cfg.AgentVersion,
		Hostname:     s.cfg.Hostname,
		InstanceID:   s.cfg.InstanceID,
		PendingFiles: s.watcher.Pending(),
		LastSyncAt:   lastSync,
	}

	err := s.remote.Heartbeat(ctx, hb)
	if err == nil {
		return nil
	}

	if errors.Is(err, domain.ErrCredentialsInvalid) {
		s.addActivity(domain.ActivityError, "credentials rejected, reconfigure the agent", "")
		s.logger.Error("heartbeat rejected, credentials invalid", ports.Err(err))
		if s.emitter != nil {
			s.emitter.OnCredentialsInvalid()
		}
		return err
	}

	s.logger.Warn("heartbeat failed", ports.Err(err))
	return err
}

func (s *SyncOrchestrator) addActivity(level domain.ActivityLevel, message, file string) {
	s.activity.Add(level, message, file)
	if s.emitter != nil {
		s.emitter.OnActivity(domain.ActivityItem{
			Time:    time.Now(),
			Level:   level,
			Message: message,
			File:    file,
		})
	}
}
