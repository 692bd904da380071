package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	APIURL     string `toml:"api_url"`
	APIKey     string `toml:"api_key"`
	ClinicID   string `toml:"clinic_id"`
	ClinicCode string `toml:"clinic_code"`

	WatchDir        string `toml:"watch_dir"`
	ProcessedDir    string `toml:"processed_dir"`
	FailedDir       string `toml:"failed_dir"`
	ExportDir       string `toml:"export_dir"`
	DeleteOnSuccess *bool  `toml:"delete_on_success"`

	Debounce          string `toml:"debounce"`
	MaxFileSize       int64  `toml:"max_file_size"`
	MaxRetries        int    `toml:"max_retries"`
	RetryDelay        string `toml:"retry_delay"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	PollInterval      string `toml:"poll_interval"`
	HTTPTimeout       string `toml:"http_timeout"`

	ExportEnabled     *bool  `toml:"export_enabled"`
	ExportFilePattern string `toml:"export_file_pattern"`

	StatusAddr string `toml:"status_addr"`
	Once       *bool  `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.medlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".medlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-url", fc.APIURL, &cfg.APIURL)
	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("clinic-id", fc.ClinicID, &cfg.ClinicID)
	s.setString("clinic-code", fc.ClinicCode, &cfg.ClinicCode)
	s.setString("watch-dir", fc.WatchDir, &cfg.WatchDir)
	s.setString("processed-dir", fc.ProcessedDir, &cfg.ProcessedDir)
	s.setString("failed-dir", fc.FailedDir, &cfg.FailedDir)
	s.setString("export-dir", fc.ExportDir, &cfg.ExportDir)
	s.setString("export-file-pattern", fc.ExportFilePattern, &cfg.ExportFilePattern)
	s.setString("status-addr", fc.StatusAddr, &cfg.StatusAddr)

	if err := s.setDuration("debounce", fc.Debounce, &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("retry-delay", fc.RetryDelay, &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat-interval", fc.HeartbeatInterval, &cfg.HeartbeatInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt64("max-file-size", fc.MaxFileSize, &cfg.MaxFileSize)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)

	s.setBool("delete-on-success", fc.DeleteOnSuccess, &cfg.DeleteOnSuccess)
	s.setBool("export", fc.ExportEnabled, &cfg.ExportEnabled)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
