package cliconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/medlink-labs/medlink/internal/domain"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.APIKey = "key-123"
	cfg.ClinicID = "clinic-7"
	cfg.WatchDir = "/data/hl7"
	return cfg
}

func TestValidate_DerivedDefaults(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ProcessedDir != filepath.Join("/data/hl7", "processed") {
		t.Errorf("ProcessedDir = %q", cfg.ProcessedDir)
	}
	if cfg.FailedDir != filepath.Join("/data/hl7", "failed") {
		t.Errorf("FailedDir = %q", cfg.FailedDir)
	}
	if cfg.ClinicCode != "clinic-7" {
		t.Errorf("ClinicCode = %q, want derived from clinic id", cfg.ClinicCode)
	}
}

func TestValidate_DeleteWinsOverProcessedDir(t *testing.T) {
	cfg := validConfig()
	cfg.DeleteOnSuccess = true
	cfg.ProcessedDir = "/data/hl7/processed"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ProcessedDir != "" {
		t.Errorf("ProcessedDir = %q, want cleared when delete is selected", cfg.ProcessedDir)
	}
}

func TestValidate_ExportDirDerived(t *testing.T) {
	cfg := validConfig()
	cfg.ExportEnabled = true

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ExportDir != filepath.Join("/data/hl7", "export") {
		t.Errorf("ExportDir = %q", cfg.ExportDir)
	}
}

func TestValidate_TrimsTrailingSlash(t *testing.T) {
	cfg := validConfig()
	cfg.APIURL = "https://api.example.com/"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.APIURL != "https://api.example.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.APIKey = "" }},
		{"missing clinic id", func(c *Config) { c.ClinicID = "" }},
		{"missing watch dir", func(c *Config) { c.WatchDir = "" }},
		{"bad api url", func(c *Config) { c.APIURL = "not a url" }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero debounce", func(c *Config) { c.Debounce = 0 }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultConfig()
	fc := FileConfig{
		APIURL:            "https://file.example.com",
		APIKey:            "file-key",
		ClinicID:          "file-clinic",
		WatchDir:          "/file/watch",
		RetryDelay:        "9s",
		HeartbeatInterval: "2m",
		MaxRetries:        7,
		MaxFileSize:       1 << 20,
		DeleteOnSuccess:   boolPtr(true),
		ExportEnabled:     boolPtr(true),
	}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.APIURL != "https://file.example.com" || cfg.APIKey != "file-key" {
		t.Errorf("remote config = %q %q", cfg.APIURL, cfg.APIKey)
	}
	if cfg.RetryDelay != 9*time.Second || cfg.HeartbeatInterval != 2*time.Minute {
		t.Errorf("durations = %v %v", cfg.RetryDelay, cfg.HeartbeatInterval)
	}
	if cfg.MaxRetries != 7 || cfg.MaxFileSize != 1<<20 {
		t.Errorf("limits = %d %d", cfg.MaxRetries, cfg.MaxFileSize)
	}
	if !cfg.DeleteOnSuccess || !cfg.ExportEnabled {
		t.Errorf("bools = %v %v", cfg.DeleteOnSuccess, cfg.ExportEnabled)
	}
}

func TestApplyFileConfig_RespectsChangedFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WatchDir = "/flag/watch"
	fc := FileConfig{WatchDir: "/file/watch", ClinicID: "file-clinic"}

	changed := map[string]bool{"watch-dir": true}
	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.WatchDir != "/flag/watch" {
		t.Errorf("WatchDir = %q, flag must win", cfg.WatchDir)
	}
	if cfg.ClinicID != "file-clinic" {
		t.Errorf("ClinicID = %q, unflagged value must apply", cfg.ClinicID)
	}
}

func TestApplyFileConfig_BadDuration(t *testing.T) {
	cfg := DefaultConfig()
	fc := FileConfig{RetryDelay: "soon"}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err == nil {
		t.Fatal("want parse error for bad duration")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("MEDLINK_API_URL", "https://env.example.com")
	t.Setenv("MEDLINK_CLINIC_ID", "env-clinic")
	t.Setenv("MEDLINK_POLL_INTERVAL", "45s")
	t.Setenv("MEDLINK_MAX_RETRIES", "5")
	t.Setenv("MEDLINK_DELETE_ON_SUCCESS", "1")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{}); err != nil {
		t.Fatalf("ApplyEnvConfig: %v", err)
	}
	if cfg.APIURL != "https://env.example.com" || cfg.ClinicID != "env-clinic" {
		t.Errorf("remote config = %q %q", cfg.APIURL, cfg.ClinicID)
	}
	if cfg.PollInterval != 45*time.Second || cfg.MaxRetries != 5 {
		t.Errorf("poll = %v retries = %d", cfg.PollInterval, cfg.MaxRetries)
	}
	if !cfg.DeleteOnSuccess {
		t.Error("DeleteOnSuccess not applied from env")
	}
}

func TestApplyEnvConfig_RespectsChangedFlags(t *testing.T) {
	t.Setenv("MEDLINK_CLINIC_ID", "env-clinic")

	cfg := DefaultConfig()
	cfg.ClinicID = "flag-clinic"
	if err := ApplyEnvConfig(&cfg, map[string]bool{"clinic-id": true}); err != nil {
		t.Fatalf("ApplyEnvConfig: %v", err)
	}
	if cfg.ClinicID != "flag-clinic" {
		t.Errorf("ClinicID = %q, flag must win", cfg.ClinicID)
	}
}

func TestApplyEnvConfig_BadValues(t *testing.T) {
	t.Setenv("MEDLINK_MAX_RETRIES", "many")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{}); err == nil {
		t.Fatal("want parse error for bad int")
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `api_url = "https://toml.example.com"
api_key = "toml-key"
clinic_id = "toml-clinic"
watch_dir = "/toml/watch"
retry_delay = "7s"
export_enabled = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}
	if fc.APIURL != "https://toml.example.com" || fc.RetryDelay != "7s" {
		t.Errorf("file config = %+v", fc)
	}
	if fc.ExportEnabled == nil || !*fc.ExportEnabled {
		t.Error("export_enabled not decoded")
	}
}

func TestLoadFileConfig_Missing(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func boolPtr(b bool) *bool { return &b }
