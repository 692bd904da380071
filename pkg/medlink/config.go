package medlink

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/medlink-labs/medlink/internal/domain"
)

// Version is the agent version reported to the remote API.
const Version = "1.4.0"

// Config holds the settings for an embedded Medlink instance.
// WatchDir, APIURL, APIKey and ClinicID are required; everything else has a
// working default filled in by SetDefaults.
type Config struct {
	// Remote API.
	APIURL   string
	APIKey   string
	ClinicID string
	// ClinicCode is the short site code embedded in export filenames and
	// generated messages. Defaults to ClinicID.
	ClinicCode  string
	HTTPTimeout time.Duration

	// Folders. ProcessedDir is ignored when DeleteOnSuccess is set.
	WatchDir        string
	ProcessedDir    string
	FailedDir       string
	ExportDir       string
	DeleteOnSuccess bool

	// Inbound behavior.
	Debounce          time.Duration
	MaxFileSize       int64
	MaxRetries        int
	RetryDelay        time.Duration
	HeartbeatInterval time.Duration

	// Outbound behavior.
	ExportEnabled     bool
	PollInterval      time.Duration
	ExportFilePattern string

	// StatusAddr enables the local read-only status HTTP surface when set
	// (e.g. "127.0.0.1:7411"). Empty disables it.
	StatusAddr string

	// AgentVersion overrides the reported version. Defaults to Version.
	AgentVersion string
}

// SetDefaults fills unset fields with working defaults.
func (c *Config) SetDefaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 << 20
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ExportFilePattern == "" {
		c.ExportFilePattern = "{clinic}_{timestamp}_{id}"
	}
	if c.AgentVersion == "" {
		c.AgentVersion = Version
	}
	if c.ClinicCode == "" {
		c.ClinicCode = c.ClinicID
	}
	if c.FailedDir == "" && c.WatchDir != "" {
		c.FailedDir = filepath.Join(c.WatchDir, "failed")
	}
	if !c.DeleteOnSuccess && c.ProcessedDir == "" && c.WatchDir != "" {
		c.ProcessedDir = filepath.Join(c.WatchDir, "processed")
	}
	if c.ExportEnabled && c.ExportDir == "" && c.WatchDir != "" {
		c.ExportDir = filepath.Join(c.WatchDir, "export")
	}
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: api url is required", domain.ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", domain.ErrInvalidConfig)
	}
	if c.ClinicID == "" {
		return fmt.Errorf("%w: clinic id is required", domain.ErrInvalidConfig)
	}
	if c.WatchDir == "" {
		return fmt.Errorf("%w: watch dir is required", domain.ErrInvalidConfig)
	}
	return nil
}
