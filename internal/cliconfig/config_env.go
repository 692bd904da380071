package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (MEDLINK_*).
// It respects flags that have been explicitly set (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("api-url", os.Getenv("MEDLINK_API_URL"), &cfg.APIURL)
	s.setString("api-key", os.Getenv("MEDLINK_API_KEY"), &cfg.APIKey)
	s.setString("clinic-id", os.Getenv("MEDLINK_CLINIC_ID"), &cfg.ClinicID)
	s.setString("clinic-code", os.Getenv("MEDLINK_CLINIC_CODE"), &cfg.ClinicCode)
	s.setString("watch-dir", os.Getenv("MEDLINK_WATCH_DIR"), &cfg.WatchDir)
	s.setString("processed-dir", os.Getenv("MEDLINK_PROCESSED_DIR"), &cfg.ProcessedDir)
	s.setString("failed-dir", os.Getenv("MEDLINK_FAILED_DIR"), &cfg.FailedDir)
	s.setString("export-dir", os.Getenv("MEDLINK_EXPORT_DIR"), &cfg.ExportDir)
	s.setString("export-file-pattern", os.Getenv("MEDLINK_EXPORT_FILE_PATTERN"), &cfg.ExportFilePattern)
	s.setString("status-addr", os.Getenv("MEDLINK_STATUS_ADDR"), &cfg.StatusAddr)

	if err := s.setDuration("debounce", os.Getenv("MEDLINK_DEBOUNCE"), &cfg.Debounce); err != nil {
		return err
	}
	if err := s.setDuration("retry-delay", os.Getenv("MEDLINK_RETRY_DELAY"), &cfg.RetryDelay); err != nil {
		return err
	}
	if err := s.setDuration("heartbeat-interval", os.Getenv("MEDLINK_HEARTBEAT_INTERVAL"), &cfg.HeartbeatInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", os.Getenv("MEDLINK_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("MEDLINK_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setInt64FromString("max-file-size", os.Getenv("MEDLINK_MAX_FILE_SIZE"), &cfg.MaxFileSize); err != nil {
		return err
	}
	if err := s.setIntFromString("max-retries", os.Getenv("MEDLINK_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}

	s.setBoolFromString("delete-on-success", os.Getenv("MEDLINK_DELETE_ON_SUCCESS"), &cfg.DeleteOnSuccess)
	s.setBoolFromString("export", os.Getenv("MEDLINK_EXPORT_ENABLED"), &cfg.ExportEnabled)
	s.setBoolFromString("once", os.Getenv("MEDLINK_ONCE"), &cfg.Once)

	return nil
}
